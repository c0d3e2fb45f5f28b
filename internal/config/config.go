package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidEncryptionKey = errors.New("invalid encryption key: must be base64-encoded 32 bytes")

// Config holds the application's configuration.
type Config struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		// JWTSecret signs access tokens. Never logged.
		JWTSecret string `yaml:"jwt_secret"`
		// EncryptionKey (base64, 32 bytes) encrypts TOTP secrets at rest.
		EncryptionKey         string `yaml:"encryption_key"`
		AccessTokenTTLMinutes int64  `yaml:"access_token_ttl_minutes"`
		RefreshTokenTTLHours  int64  `yaml:"refresh_token_ttl_hours"`
		TOTPIssuer            string `yaml:"totp_issuer"`
	} `yaml:"auth"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

// LoadConfig reads configuration from the specified YAML file. Secrets can be
// overridden from the environment (JWT_SECRET, ENCRYPTION_KEY, DATABASE_URL)
// so they never have to live in the checked-in config file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		config.Auth.EncryptionKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.URL = v
	}

	if config.Auth.AccessTokenTTLMinutes == 0 {
		config.Auth.AccessTokenTTLMinutes = 15
	}
	if config.Auth.RefreshTokenTTLHours == 0 {
		config.Auth.RefreshTokenTTLHours = 7 * 24
	}
	if config.Auth.TOTPIssuer == "" {
		config.Auth.TOTPIssuer = "TeamTodo"
	}

	return config, nil
}

// AccessTokenTTL returns the access-token lifetime as a duration.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Auth.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh-token lifetime as a duration.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.Auth.RefreshTokenTTLHours) * time.Hour
}

// DecodeEncryptionKey decodes and validates the configured encryption key.
func (c *Config) DecodeEncryptionKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.Auth.EncryptionKey)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidEncryptionKey
	}
	return key, nil
}
