package repository

import (
	"context"
	"database/sql"
	"errors"

	"backend/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ErrDuplicateUsername is returned when the username is already taken.
var ErrDuplicateUsername = errors.New("username already taken")

// ErrTOTPStepUsed is returned when a one-time code's timestep was already
// consumed by an earlier verification.
var ErrTOTPStepUsed = errors.New("totp step already used")

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SetTOTPSecret(ctx context.Context, userID int64, encryptedSecret string) error
	MarkTOTPStepUsed(ctx context.Context, userID int64, step int64) error
}

type userRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewUserRepository(db *sqlx.DB, log *logrus.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, created_at`
	err := r.db.QueryRowxContext(ctx, query, user.Username, user.PasswordHash).StructScan(user)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateUsername
		}
		return err
	}
	return nil
}

func (r *userRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, password_hash, totp_secret_encrypted, totp_last_step, created_at FROM users WHERE username = $1`
	err := r.db.GetContext(ctx, &user, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, password_hash, totp_secret_encrypted, totp_last_step, created_at FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetTOTPSecret overwrites the user's encrypted TOTP secret. Re-running 2FA
// setup rotates the secret, invalidating any previously scanned QR code. The
// last-used timestep is reset alongside the secret.
func (r *userRepository) SetTOTPSecret(ctx context.Context, userID int64, encryptedSecret string) error {
	query := `UPDATE users SET totp_secret_encrypted = $1, totp_last_step = NULL WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, encryptedSecret, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTOTPStepUsed records that a code at the given timestep was accepted.
// Only the call that advances the step past the stored one succeeds, so a
// replayed code (same or earlier step) gets ErrTOTPStepUsed, even when two
// verifications race.
func (r *userRepository) MarkTOTPStepUsed(ctx context.Context, userID int64, step int64) error {
	query := `
		UPDATE users SET totp_last_step = $1
		WHERE id = $2 AND (totp_last_step IS NULL OR totp_last_step < $1)`
	res, err := r.db.ExecContext(ctx, query, step, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTOTPStepUsed
	}
	return nil
}
