// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration. The server binary uses Port,
// DBPath, UpstreamURL, JWTSecret and BcryptCost; the client binary uses
// BackendURL, DBPath, SessionID and Gate.
type Config struct {
	Port        string
	DBPath      string
	BackendURL  string
	UpstreamURL string
	JWTSecret   string
	BcryptCost  int
	SessionID   string
	Gate        GateConfig
}

// GateConfig controls the authentication gate and credential policy.
type GateConfig struct {
	Threshold        int
	IdentifierDigits int
	SecretMinLength  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "./data/lida.db"),
		BackendURL:  getEnv("BACKEND_URL", "http://localhost:8080"),
		UpstreamURL: getEnv("UPSTREAM_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		BcryptCost:  getEnvInt("BCRYPT_COST", 12),
		SessionID:   getEnv("SESSION_ID", "default"),
		Gate: GateConfig{
			Threshold:        getEnvInt("GATE_THRESHOLD", 5),
			IdentifierDigits: getEnvInt("IDENTIFIER_DIGITS", 10),
			SecretMinLength:  getEnvInt("SECRET_MIN_LENGTH", 8),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if c.Gate.Threshold < 1 {
		return fmt.Errorf("GATE_THRESHOLD must be >= 1")
	}
	if c.Gate.IdentifierDigits < 1 {
		return fmt.Errorf("IDENTIFIER_DIGITS must be >= 1")
	}
	if c.Gate.SecretMinLength < 1 {
		return fmt.Errorf("SECRET_MIN_LENGTH must be >= 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
