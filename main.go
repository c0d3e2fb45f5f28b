package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"backend/internal/config"
	"backend/internal/crypto"
	"backend/internal/repository"
	"backend/internal/server"
	"backend/internal/service"
	"backend/internal/token"
	"backend/internal/totp"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err) // Should not happen in development
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	// Load .env first so secrets can override the YAML config
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on environment and config file")
	}

	// Load configuration
	cfgPath := "configs/config.yml"
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Database connection
	db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	repository.MigrateDB(db, logger)

	// The cipher protecting TOTP secrets at rest
	encryptionKey, err := cfg.DecodeEncryptionKey()
	if err != nil {
		logger.Fatal("Failed to decode encryption key", zap.Error(err))
	}
	cipher, err := crypto.NewCipher(encryptionKey)
	if err != nil {
		logger.Fatal("Failed to initialize cipher", zap.Error(err))
	}

	signer := token.NewSigner([]byte(cfg.Auth.JWTSecret), cfg.AccessTokenTTL())
	totpEngine := totp.NewEngine(cfg.Auth.TOTPIssuer)

	// Initialize repositories
	log := logrus.New()
	userRepo := repository.NewUserRepository(db, log)
	roleRepo := repository.NewRoleRepository(db, log)
	refreshRepo := repository.NewRefreshTokenRepository(db, log)

	authService := service.NewAuthService(
		userRepo, roleRepo, refreshRepo,
		signer, totpEngine, cipher,
		cfg.RefreshTokenTTL(), logger,
	)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize and run the server
	srv := server.NewServer(signer, authService, userRepo, logger)
	srv.Run(cfg.Server.Port)

	<-ctx.Done()
	logger.Info("Application stopped.")
}
