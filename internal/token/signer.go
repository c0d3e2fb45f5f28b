// Package token issues and verifies the short-lived HMAC-signed access tokens
// that prove authentication state and scope on every request.
package token

import (
	"errors"
	"time"

	"backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Signer signs and verifies access tokens with a single shared secret.
// The secret and TTL are injected at construction; access tokens carry no
// server-side state and are invalidated only by expiry.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl}
}

// Sign issues a token for the given user at the given scope. Roles are only
// embedded on full-access tokens.
func (s *Signer) Sign(userID int64, scope models.Scope, roles []string) (string, error) {
	now := time.Now()
	claims := &models.Claims{
		UserID: userID,
		Scope:  scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if scope == models.ScopeFullAccess {
		claims.Roles = roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature and expiry in one parse and returns the embedded
// claims. Expired tokens map to ErrTokenExpired; every other structural or
// cryptographic failure maps to ErrInvalidToken.
func (s *Signer) Verify(tokenString string) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is what we expect
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	switch claims.Scope {
	case models.ScopeAuthSetup, models.ScopeFullAccess:
	default:
		return nil, ErrInvalidToken
	}

	return claims, nil
}
