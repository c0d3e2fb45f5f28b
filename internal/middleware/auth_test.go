package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend/internal/models"
	"backend/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGateRouter(t *testing.T, signer *token.Signer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()

	logger := zap.NewNop()

	setup := router.Group("/setup")
	setup.Use(RequireAuth(signer, logger), RequireScope(models.ScopeAuthSetup))
	setup.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := router.Group("/api")
	api.Use(RequireAuth(signer, logger), RequireScope(models.ScopeFullAccess))
	api.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.GET("/admin", RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router
}

func perform(router *gin.Engine, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAuth_MissingOrMalformed(t *testing.T) {
	signer := token.NewSigner([]byte("secret"), time.Hour)
	router := newGateRouter(t, signer)

	assert.Equal(t, http.StatusUnauthorized, perform(router, "/api", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(router, "/api", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(router, "/api", "Bearer not.a.jwt").Code)
}

func TestRequireAuth_Expired(t *testing.T) {
	expired := token.NewSigner([]byte("secret"), -time.Minute)
	tok, err := expired.Sign(1, models.ScopeFullAccess, nil)
	require.NoError(t, err)

	router := newGateRouter(t, token.NewSigner([]byte("secret"), time.Hour))
	w := perform(router, "/api", "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token expired")
}

func TestRequireScope(t *testing.T) {
	signer := token.NewSigner([]byte("secret"), time.Hour)
	router := newGateRouter(t, signer)

	setupTok, err := signer.Sign(1, models.ScopeAuthSetup, nil)
	require.NoError(t, err)
	fullTok, err := signer.Sign(1, models.ScopeFullAccess, []string{"member"})
	require.NoError(t, err)

	// Matching scope passes
	assert.Equal(t, http.StatusOK, perform(router, "/setup", "Bearer "+setupTok).Code)
	assert.Equal(t, http.StatusOK, perform(router, "/api", "Bearer "+fullTok).Code)

	// A full_access token must not reach auth_setup routes and vice versa
	assert.Equal(t, http.StatusForbidden, perform(router, "/setup", "Bearer "+fullTok).Code)
	assert.Equal(t, http.StatusForbidden, perform(router, "/api", "Bearer "+setupTok).Code)
}

func TestRequireRole(t *testing.T) {
	signer := token.NewSigner([]byte("secret"), time.Hour)
	router := newGateRouter(t, signer)

	memberTok, err := signer.Sign(1, models.ScopeFullAccess, []string{"member"})
	require.NoError(t, err)
	adminTok, err := signer.Sign(2, models.ScopeFullAccess, []string{"member", "admin"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, perform(router, "/api/admin", "Bearer "+memberTok).Code)
	assert.Equal(t, http.StatusOK, perform(router, "/api/admin", "Bearer "+adminTok).Code)
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())

	var seen string
	router.GET("/", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	// Generated when absent, and retrievable by handlers
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), seen)

	// Echoed when present
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", seen)
}

func TestGetRequestID_WithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetRequestID(c))
}
