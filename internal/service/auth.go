package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"backend/internal/crypto"
	"backend/internal/models"
	"backend/internal/repository"
	"backend/internal/token"
	"backend/internal/totp"

	"go.uber.org/zap"
)

var ( // Define custom errors
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidTOTPCode     = errors.New("invalid one-time code")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// DefaultRole is assigned to every newly registered user.
const DefaultRole = "member"

// SessionTokens bundles a short-lived access token and the plaintext of a
// long-lived refresh token. The refresh plaintext exists only in this value;
// the store keeps a hash.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
}

// TwoFactorEnrollment is the response of a 2FA setup call: the otpauth URI the
// client renders as a QR code and the base32 secret for manual entry.
type TwoFactorEnrollment struct {
	ProvisioningURI string
	ManualCode      string
}

// AuthService drives the login state machine: password check, second factor,
// full-access token issuance, silent refresh, and logout.
type AuthService interface {
	Register(ctx context.Context, username, password string) (*models.User, string, error)
	Login(ctx context.Context, username, password string) (accessToken string, needs2FASetup bool, err error)
	Setup2FA(ctx context.Context, userID int64) (*TwoFactorEnrollment, error)
	Verify2FA(ctx context.Context, userID int64, code string) (*SessionTokens, error)
	Refresh(ctx context.Context, presentedToken string) (*SessionTokens, error)
	Logout(ctx context.Context, presentedToken string) error
}

type authService struct {
	users         repository.UserRepository
	roles         repository.RoleRepository
	refreshTokens repository.RefreshTokenRepository
	signer        *token.Signer
	totp          *totp.Engine
	cipher        *crypto.Cipher
	refreshTTL    time.Duration
	logger        *zap.Logger
}

func NewAuthService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	refreshTokens repository.RefreshTokenRepository,
	signer *token.Signer,
	totpEngine *totp.Engine,
	cipher *crypto.Cipher,
	refreshTTL time.Duration,
	logger *zap.Logger,
) AuthService {
	return &authService{
		users:         users,
		roles:         roles,
		refreshTokens: refreshTokens,
		signer:        signer,
		totp:          totpEngine,
		cipher:        cipher,
		refreshTTL:    refreshTTL,
		logger:        logger,
	}
}

// Register creates a credential record, assigns the default role, and issues
// an auth_setup-scope token for the new user. No 2FA secret exists yet.
func (s *authService) Register(ctx context.Context, username, password string) (*models.User, string, error) {
	passwordHash, err := crypto.HashPassword(password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: passwordHash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, "", ErrUserAlreadyExists
		}
		s.logger.Error("Failed to create user", zap.Error(err))
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.roles.AssignRole(ctx, user.ID, DefaultRole); err != nil {
		s.logger.Error("Failed to assign default role", zap.Error(err))
		return nil, "", fmt.Errorf("failed to assign default role: %w", err)
	}

	accessToken, err := s.signer.Sign(user.ID, models.ScopeAuthSetup, nil)
	if err != nil {
		s.logger.Error("Failed to generate access token", zap.Error(err))
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User registered successfully.", zap.String("username", user.Username))
	return user, accessToken, nil
}

// Login verifies the password and issues an auth_setup-scope token. A missing
// user and a wrong password both return ErrInvalidCredentials so the response
// never reveals which usernames exist.
func (s *authService) Login(ctx context.Context, username, password string) (string, bool, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", false, ErrInvalidCredentials
		}
		s.logger.Error("Failed to get user by username", zap.Error(err))
		return "", false, fmt.Errorf("failed to retrieve user: %w", err)
	}

	if !crypto.VerifyPassword(user.PasswordHash, password) {
		return "", false, ErrInvalidCredentials
	}

	accessToken, err := s.signer.Sign(user.ID, models.ScopeAuthSetup, nil)
	if err != nil {
		s.logger.Error("Failed to generate access token", zap.Error(err))
		return "", false, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User logged in successfully.", zap.String("username", user.Username))
	return accessToken, user.Needs2FASetup(), nil
}

// Setup2FA generates a fresh TOTP secret for the user, overwriting any prior
// one. Each call rotates the secret, so a previously scanned QR code stops
// working.
func (s *authService) Setup2FA(ctx context.Context, userID int64) (*TwoFactorEnrollment, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to get user by id", zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	enrollment, err := s.totp.GenerateSecret(user.Username)
	if err != nil {
		s.logger.Error("Failed to generate TOTP secret", zap.Error(err))
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	encryptedSecret, err := s.cipher.Encrypt(enrollment.Secret)
	if err != nil {
		s.logger.Error("Failed to encrypt TOTP secret", zap.Error(err))
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	if err := s.users.SetTOTPSecret(ctx, userID, encryptedSecret); err != nil {
		s.logger.Error("Failed to store TOTP secret", zap.Error(err))
		return nil, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	return &TwoFactorEnrollment{
		ProvisioningURI: enrollment.ProvisioningURI,
		ManualCode:      enrollment.Secret,
	}, nil
}

// Verify2FA checks the submitted code against the user's stored secret. Each
// code is accepted at most once: its timestep is recorded and any later
// presentation of the same or an earlier step fails. On success it loads the
// user's roles, persists a new refresh token, and issues a full_access token
// carrying the role list.
func (s *authService) Verify2FA(ctx context.Context, userID int64, code string) (*SessionTokens, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to get user by id", zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	if user.Needs2FASetup() {
		return nil, ErrInvalidTOTPCode
	}

	secret, err := s.cipher.Decrypt(user.TOTPSecretEncrypted.String)
	if err != nil {
		s.logger.Error("Failed to decrypt TOTP secret", zap.Error(err))
		return nil, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}

	step, ok := s.totp.Verify(secret, code)
	if !ok {
		return nil, ErrInvalidTOTPCode
	}

	// A code is good exactly once: consuming its timestep fails for any
	// second use within the drift window, including two racing calls.
	if err := s.users.MarkTOTPStepUsed(ctx, user.ID, step); err != nil {
		if errors.Is(err, repository.ErrTOTPStepUsed) {
			return nil, ErrInvalidTOTPCode
		}
		s.logger.Error("Failed to mark TOTP step used", zap.Error(err))
		return nil, fmt.Errorf("failed to mark TOTP step used: %w", err)
	}

	tokens, err := s.issueSessionTokens(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Second factor verified.", zap.String("username", user.Username))
	return tokens, nil
}

// Refresh rotates a presented refresh token and issues a fresh full_access
// token with the user's current roles, so role changes take effect without a
// new login. A token that is absent, revoked, expired, or loses the rotation
// race maps to ErrInvalidRefreshToken.
func (s *authService) Refresh(ctx context.Context, presentedToken string) (*SessionTokens, error) {
	record, err := s.refreshTokens.FindLiveByToken(ctx, presentedToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		s.logger.Error("Failed to look up refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if record.Expired(time.Now()) {
		return nil, ErrInvalidRefreshToken
	}

	newPlaintext, err := generateRefreshToken()
	if err != nil {
		s.logger.Error("Failed to generate refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	if _, err := s.refreshTokens.Rotate(ctx, record.ID, record.UserID, newPlaintext, s.refreshTTL); err != nil {
		if errors.Is(err, repository.ErrRotationConflict) {
			return nil, ErrInvalidRefreshToken
		}
		s.logger.Error("Failed to rotate refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	roles, err := s.roles.GetRolesByUserID(ctx, record.UserID)
	if err != nil {
		s.logger.Error("Failed to load roles", zap.Error(err))
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}

	accessToken, err := s.signer.Sign(record.UserID, models.ScopeFullAccess, roles)
	if err != nil {
		s.logger.Error("Failed to generate access token", zap.Error(err))
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &SessionTokens{AccessToken: accessToken, RefreshToken: newPlaintext}, nil
}

// Logout revokes the stored record for the presented refresh token, if any.
// Calling it with no cookie or an unknown token still succeeds.
func (s *authService) Logout(ctx context.Context, presentedToken string) error {
	if presentedToken == "" {
		return nil
	}

	record, err := s.refreshTokens.FindLiveByToken(ctx, presentedToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		s.logger.Error("Failed to look up refresh token", zap.Error(err))
		return fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if err := s.refreshTokens.Revoke(ctx, record.ID); err != nil {
		s.logger.Error("Failed to revoke refresh token", zap.Error(err))
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.logger.Info("User logged out successfully.", zap.Int64("user_id", record.UserID))
	return nil
}

func (s *authService) issueSessionTokens(ctx context.Context, userID int64) (*SessionTokens, error) {
	roles, err := s.roles.GetRolesByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load roles", zap.Error(err))
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}

	refreshPlaintext, err := generateRefreshToken()
	if err != nil {
		s.logger.Error("Failed to generate refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	if _, err := s.refreshTokens.Create(ctx, userID, refreshPlaintext, s.refreshTTL); err != nil {
		s.logger.Error("Failed to store refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	accessToken, err := s.signer.Sign(userID, models.ScopeFullAccess, roles)
	if err != nil {
		s.logger.Error("Failed to generate access token", zap.Error(err))
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &SessionTokens{AccessToken: accessToken, RefreshToken: refreshPlaintext}, nil
}

// generateRefreshToken returns a cryptographically random opaque token.
func generateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
