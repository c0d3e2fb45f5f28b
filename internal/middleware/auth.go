package middleware

import (
	"errors"
	"net/http"
	"strings"

	"backend/internal/models"
	"backend/internal/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClaimsKey is the gin context key under which RequireAuth stores the
// verified *models.Claims.
const ClaimsKey = "claims"

// RequireAuth creates a Gin middleware that extracts and verifies the bearer
// token. Requests with a missing or invalid token are rejected with 401.
func RequireAuth(signer *token.Signer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer <token>"})
			c.Abort()
			return
		}

		claims, err := signer.Verify(parts[1])
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
				c.Abort()
				return
			}
			logger.Debug("Invalid bearer token", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireScope rejects with 403 unless the verified token carries exactly the
// given scope. Setup endpoints require auth_setup so a fully authenticated
// token cannot re-run enrollment; business endpoints require full_access so a
// pre-2FA token cannot reach them.
func RequireScope(scope models.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := MustClaims(c)
		if claims.Scope != scope {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient scope"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole rejects with 403 unless the token's role list intersects the
// given set.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := MustClaims(c)
		if !claims.HasAnyRole(roles...) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// MustClaims returns the claims stored by RequireAuth. It panics if no
// RequireAuth middleware ran earlier in the chain.
func MustClaims(c *gin.Context) *models.Claims {
	return c.MustGet(ClaimsKey).(*models.Claims)
}
