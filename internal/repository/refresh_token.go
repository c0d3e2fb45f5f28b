package repository

import (
	"context"
	"errors"
	"time"

	"backend/internal/crypto"
	"backend/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// ErrRotationConflict is returned when a rotation loses the race against a
// concurrent rotation of the same token.
var ErrRotationConflict = errors.New("refresh token already rotated")

// RefreshTokenRepository persists rotating refresh tokens. Only a salted
// Argon2id hash of each token is stored, so lookup compares the presented
// plaintext against every live row. That stays cheap only while the number of
// non-revoked tokens per deployment is small.
type RefreshTokenRepository interface {
	Create(ctx context.Context, userID int64, plaintext string, ttl time.Duration) (string, error)
	// FindLiveByToken returns the non-revoked, unexpired record matching the
	// presented plaintext, or ErrNotFound.
	FindLiveByToken(ctx context.Context, plaintext string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	// Rotate revokes the old record and creates a replacement in a single
	// transaction. If the old record was already revoked by a concurrent
	// rotation, it returns ErrRotationConflict and creates nothing.
	Rotate(ctx context.Context, oldID string, userID int64, newPlaintext string, ttl time.Duration) (string, error)
}

type refreshTokenRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewRefreshTokenRepository(db *sqlx.DB, log *logrus.Logger) RefreshTokenRepository {
	return &refreshTokenRepository{db: db, log: log}
}

func (r *refreshTokenRepository) Create(ctx context.Context, userID int64, plaintext string, ttl time.Duration) (string, error) {
	hash, err := crypto.HashPassword(plaintext)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	query := `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, id, userID, hash, time.Now().Add(ttl)); err != nil {
		return "", err
	}
	return id, nil
}

func (r *refreshTokenRepository) FindLiveByToken(ctx context.Context, plaintext string) (*models.RefreshToken, error) {
	var tokens []models.RefreshToken
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE NOT revoked AND expires_at > NOW()`
	if err := r.db.SelectContext(ctx, &tokens, query); err != nil {
		return nil, err
	}

	for i := range tokens {
		if crypto.VerifyPassword(tokens[i].TokenHash, plaintext) {
			return &tokens[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, id string) error {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *refreshTokenRepository) Rotate(ctx context.Context, oldID string, userID int64, newPlaintext string, ttl time.Duration) (string, error) {
	hash, err := crypto.HashPassword(newPlaintext)
	if err != nil {
		return "", err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Guard against two concurrent refresh calls: only the call that flips
	// revoked from FALSE to TRUE may issue the replacement.
	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1 AND NOT revoked`, oldID)
	if err != nil {
		return "", err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", ErrRotationConflict
	}

	newID := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`,
		newID, userID, hash, time.Now().Add(ttl))
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return newID, nil
}
