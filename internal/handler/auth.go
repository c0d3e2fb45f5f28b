package handler

import (
	"errors"
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RefreshCookieName is the cookie carrying the opaque refresh token.
const RefreshCookieName = "refreshToken"

// refreshCookiePath limits the cookie to the auth endpoints.
const refreshCookiePath = "/auth"

const refreshCookieMaxAge = 7 * 24 * 60 * 60 // seconds

type AuthHandler interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Setup2FA(c *gin.Context)
	Verify2FA(c *gin.Context)
	Refresh(c *gin.Context)
	Logout(c *gin.Context)
}

type authHandler struct {
	authService service.AuthService
	log         *logrus.Logger
}

func NewAuthHandler(authService service.AuthService, log *logrus.Logger) AuthHandler {
	return &authHandler{authService: authService, log: log}
}

// requestLog scopes a log entry to the current request so its lines can be
// correlated with the echoed X-Request-ID.
func (h *authHandler) requestLog(c *gin.Context) *logrus.Entry {
	return h.log.WithField("request_id", middleware.GetRequestID(c))
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type Verify2FARequest struct {
	// Token is the 6-digit code from the authenticator app.
	Token string `json:"token" binding:"required"`
}

func (h *authHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.requestLog(c).Errorf("Failed to bind JSON for registration: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, accessToken, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
			return
		}
		h.requestLog(c).Errorf("Failed to register user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
		},
		"token": accessToken,
	})
}

func (h *authHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.requestLog(c).Errorf("Failed to bind JSON for login: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accessToken, needs2FASetup, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.requestLog(c).Errorf("Failed to login user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to login"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":         accessToken,
		"needs2FASetup": needs2FASetup,
	})
}

func (h *authHandler) Setup2FA(c *gin.Context) {
	claims := middleware.MustClaims(c)

	enrollment, err := h.authService.Setup2FA(c.Request.Context(), claims.UserID)
	if err != nil {
		h.requestLog(c).Errorf("Failed to set up 2FA: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set up 2FA"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"qr":         enrollment.ProvisioningURI,
		"manualCode": enrollment.ManualCode,
	})
}

func (h *authHandler) Verify2FA(c *gin.Context) {
	claims := middleware.MustClaims(c)

	var req Verify2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.requestLog(c).Errorf("Failed to bind JSON for 2FA verification: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokens, err := h.authService.Verify2FA(c.Request.Context(), claims.UserID, req.Token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTOTPCode) {
			// Wrong code is not an auth failure; the client re-prompts.
			c.JSON(http.StatusOK, gin.H{"success": false})
			return
		}
		h.requestLog(c).Errorf("Failed to verify 2FA code: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify code"})
		return
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   tokens.AccessToken,
	})
}

func (h *authHandler) Refresh(c *gin.Context) {
	presented, err := c.Cookie(RefreshCookieName)
	if err != nil || presented == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing refresh token"})
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), presented)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}
		h.requestLog(c).Errorf("Failed to refresh session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh session"})
		return
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   tokens.AccessToken,
	})
}

func (h *authHandler) Logout(c *gin.Context) {
	presented, _ := c.Cookie(RefreshCookieName)

	if err := h.authService.Logout(c.Request.Context(), presented); err != nil {
		h.requestLog(c).Errorf("Failed to logout: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *authHandler) setRefreshCookie(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, value, refreshCookieMaxAge, refreshCookiePath, "", true, true)
}

func (h *authHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, "", -1, refreshCookiePath, "", true, true)
}
