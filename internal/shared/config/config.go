package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Email    EmailConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

type AuthConfig struct {
	// JWTSecret signs session tokens. Must be overridden outside development.
	JWTSecret string
	// TokenTTL is the session token lifetime.
	TokenTTL time.Duration
	// TOTPIssuer appears in authenticator apps during enrollment.
	TOTPIssuer string
	// ResetTokenTTL is the password-reset token lifetime.
	ResetTokenTTL time.Duration
	// LoginRatePerMinute and LoginBurst throttle the login endpoint per IP.
	LoginRatePerMinute int
	LoginBurst         int
}

type EmailConfig struct {
	// ResendAPIKey enables outbound mail. Empty key switches to the
	// log-only provider.
	ResendAPIKey string
	From         string
	// ResetBaseURL is the frontend URL the reset link points at.
	ResetBaseURL string
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "cavim"),
			Password: getEnv("DB_PASSWORD", "cavim"),
			Database: getEnv("DB_NAME", "cavim"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			TokenTTL:           getEnvDuration("TOKEN_TTL", 8*time.Hour),
			TOTPIssuer:         getEnv("TOTP_ISSUER", "CAVIM"),
			ResetTokenTTL:      getEnvDuration("RESET_TOKEN_TTL", time.Hour),
			LoginRatePerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
			LoginBurst:         getEnvInt("LOGIN_BURST", 5),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("EMAIL_FROM", "no-reply@cavim.example"),
			ResetBaseURL: getEnv("RESET_BASE_URL", "http://localhost:3000/restablecer"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
