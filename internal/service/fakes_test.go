package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"backend/internal/models"
	"backend/internal/repository"

	"github.com/google/uuid"
)

// In-memory repository fakes. The refresh-token fake stores plaintexts
// instead of hashes; rotation semantics (revoke-then-create, single winner)
// match the real repository.

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*models.User)}
}

func (r *fakeUserRepo) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return repository.ErrDuplicateUsername
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) SetTOTPSecret(_ context.Context, userID int64, encryptedSecret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.TOTPSecretEncrypted = sql.NullString{String: encryptedSecret, Valid: true}
	u.TOTPLastStep = sql.NullInt64{}
	return nil
}

func (r *fakeUserRepo) MarkTOTPStepUsed(_ context.Context, userID int64, step int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.TOTPLastStep.Valid && step <= u.TOTPLastStep.Int64 {
		return repository.ErrTOTPStepUsed
	}
	u.TOTPLastStep = sql.NullInt64{Int64: step, Valid: true}
	return nil
}

type fakeRoleRepo struct {
	mu    sync.Mutex
	roles map[int64][]string
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{roles: make(map[int64][]string)}
}

func (r *fakeRoleRepo) AssignRole(_ context.Context, userID int64, roleName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.roles[userID] {
		if existing == roleName {
			return nil
		}
	}
	r.roles[userID] = append(r.roles[userID], roleName)
	return nil
}

func (r *fakeRoleRepo) GetRolesByUserID(_ context.Context, userID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.roles[userID]...), nil
}

type fakeRefreshTokenRepo struct {
	mu      sync.Mutex
	records map[string]*models.RefreshToken // keyed by id; TokenHash holds the plaintext
}

func newFakeRefreshTokenRepo() *fakeRefreshTokenRepo {
	return &fakeRefreshTokenRepo{records: make(map[string]*models.RefreshToken)}
}

func (r *fakeRefreshTokenRepo) Create(_ context.Context, userID int64, plaintext string, ttl time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.records[id] = &models.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: plaintext,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	return id, nil
}

func (r *fakeRefreshTokenRepo) FindLiveByToken(_ context.Context, plaintext string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if !rec.Revoked && rec.ExpiresAt.After(time.Now()) && rec.TokenHash == plaintext {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRefreshTokenRepo) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.Revoked = true
	}
	return nil
}

func (r *fakeRefreshTokenRepo) Rotate(_ context.Context, oldID string, userID int64, newPlaintext string, ttl time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.records[oldID]
	if !ok || old.Revoked {
		return "", repository.ErrRotationConflict
	}
	old.Revoked = true
	id := uuid.NewString()
	r.records[id] = &models.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: newPlaintext,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	return id, nil
}

func (r *fakeRefreshTokenRepo) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if !rec.Revoked && rec.ExpiresAt.After(time.Now()) {
			n++
		}
	}
	return n
}
