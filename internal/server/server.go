package server

import (
	"net/http"

	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/models"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	signer *token.Signer
	auth   service.AuthService
	users  repository.UserRepository
	logger *zap.Logger
	log    *logrus.Logger
}

func NewServer(signer *token.Signer, authService service.AuthService, userRepo repository.UserRepository, logger *zap.Logger) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		signer: signer,
		auth:   authService,
		users:  userRepo,
		logger: logger,
		log:    logrus.New(),
	}

	// Setup routes
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.auth, s.log)
	meHandler := handler.NewMeHandler(s.users, s.logger)

	s.router.Use(middleware.RequestID())

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Public auth routes. Login, verify, and refresh are rate-limited at the
	// transport boundary, not here.
	authGroup := s.router.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)

	// 2FA enrollment requires an auth_setup token; a full_access token must
	// not be able to re-run enrollment.
	setupGroup := s.router.Group("/auth/2fa")
	setupGroup.Use(middleware.RequireAuth(s.signer, s.logger), middleware.RequireScope(models.ScopeAuthSetup))
	{
		setupGroup.POST("/setup", authHandler.Setup2FA)
		setupGroup.POST("/verify", authHandler.Verify2FA)
	}

	// Business routes require a fully verified session.
	apiGroup := s.router.Group("/api")
	apiGroup.Use(middleware.RequireAuth(s.signer, s.logger), middleware.RequireScope(models.ScopeFullAccess))
	{
		apiGroup.GET("/me", meHandler.Me)

		// Placeholder for the todo/team surface that lives outside the
		// auth core.
		apiGroup.GET("/todos", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"todos": []gin.H{}})
		})

		adminGroup := apiGroup.Group("/admin")
		adminGroup.Use(middleware.RequireRole("admin"))
		{
			adminGroup.GET("/users", func(c *gin.Context) {
				claims := middleware.MustClaims(c)
				c.JSON(http.StatusOK, gin.H{"requested_by": claims.UserID, "users": []gin.H{}})
			})
		}
	}
}

// Router exposes the underlying gin engine, mostly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run(addr string) {
	s.log.Infof("Server starting on port %s...", addr)
	if err := s.router.Run(addr); err != nil {
		s.log.Fatalf("Server failed to start: %v", err)
	}
}
