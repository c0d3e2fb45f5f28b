package models

import "time"

// RefreshToken is one persisted refresh-token row. Only a salted hash of the
// token is stored; the plaintext leaves the server exactly once, at issuance.
type RefreshToken struct {
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	Revoked   bool      `db:"revoked"`
	CreatedAt time.Time `db:"created_at"`
}

// Expired reports whether the token's expiry date has passed.
func (t *RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
