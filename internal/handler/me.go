package handler

import (
	"errors"
	"net/http"

	"backend/internal/middleware"
	"backend/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MeHandler interface {
	Me(c *gin.Context)
}

type meHandler struct {
	userRepo repository.UserRepository
	logger   *zap.Logger
}

func NewMeHandler(userRepo repository.UserRepository, logger *zap.Logger) MeHandler {
	return &meHandler{userRepo: userRepo, logger: logger}
}

// Me handles GET /api/me
func (h *meHandler) Me(c *gin.Context) {
	claims := middleware.MustClaims(c)

	user, err := h.userRepo.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.logger.Error("Failed to get user",
			zap.Int64("id", claims.UserID),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"roles":    claims.Roles,
	})
}
