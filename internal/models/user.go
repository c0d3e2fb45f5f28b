package models

import (
	"database/sql"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type User struct {
	ID                  int64          `db:"id"`
	Username            string         `db:"username"`
	PasswordHash        string         `db:"password_hash"`
	TOTPSecretEncrypted sql.NullString `db:"totp_secret_encrypted"`
	// TOTPLastStep is the timestep of the last accepted one-time code; codes
	// at or before it are refused so a code cannot be replayed within the
	// drift window.
	TOTPLastStep sql.NullInt64 `db:"totp_last_step"`
	CreatedAt    time.Time     `db:"created_at"`
}

// Needs2FASetup reports whether the account has no enrolled second factor yet.
func (u *User) Needs2FASetup() bool {
	return !u.TOTPSecretEncrypted.Valid || u.TOTPSecretEncrypted.String == ""
}

// Scope marks the authentication stage a token was issued for.
type Scope string

const (
	// ScopeAuthSetup is issued after the password check and only grants
	// access to the 2FA setup/verify endpoints.
	ScopeAuthSetup Scope = "auth_setup"
	// ScopeFullAccess is issued after the second factor is verified.
	ScopeFullAccess Scope = "full_access"
)

// Claims defines the structure of the JWT claims.
type Claims struct {
	UserID int64    `json:"uid"`
	Scope  Scope    `json:"scope"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasAnyRole reports whether the claims carry at least one of the given roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range c.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
