package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	Auth          AuthConfig
	Admin         AdminConfig
	Roles         RolesConfig
}

// RateLimitConfig holds the coarse per-IP HTTP token bucket
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TrustProxy   bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string // postgres or memory
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	SamplingRate   float64
}

// SecurityConfig holds the stored secret cipher settings
type SecurityConfig struct {
	SecretPassphrase  string
	SecretSalt        string
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
}

// AuthConfig holds the credential exchange policy
type AuthConfig struct {
	MaxFailedAttempts int
	FailureWindow     time.Duration
	// FoldRateLimit reports rate limiting as a plain authentication failure
	FoldRateLimit bool
}

// AdminConfig holds admin API settings
type AdminConfig struct {
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

// RolesConfig locates the external role snapshot
type RolesConfig struct {
	File  string
	Watch bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			TrustProxy:   parseBool("SERVER_TRUST_PROXY", false),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "ssoproxy"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "ssoproxy"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
			AutoMigrate:     parseBool("DB_AUTO_MIGRATE", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "ssoproxy"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", ""),
			SamplingRate:   parseFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		Security: SecurityConfig{
			SecretPassphrase:  getEnv("SECRET_PASSPHRASE", ""),
			SecretSalt:        getEnv("SECRET_SALT", ""),
			Argon2Memory:      uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:  uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism: uint8(parseInt("ARGON2_PARALLELISM", 4)),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: parseFloat("RATELIMIT_RPS", 10),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
		Auth: AuthConfig{
			MaxFailedAttempts: parseInt("AUTH_RATELIMIT_MAX_ATTEMPTS", 20),
			FailureWindow:     parseDuration("AUTH_RATELIMIT_WINDOW", "30m"),
			FoldRateLimit:     parseBool("AUTH_FOLD_RATE_LIMIT", false),
		},
		Admin: AdminConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
			JWTIssuer: getEnv("ADMIN_JWT_ISSUER", "ssoproxy"),
			TokenTTL:  parseDuration("ADMIN_TOKEN_TTL", "1h"),
		},
		Roles: RolesConfig{
			File:  getEnv("ROLES_FILE", ""),
			Watch: parseBool("ROLES_WATCH", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Password == "" {
			return errors.New("DB_PASSWORD is required")
		}
	case "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.Security.SecretPassphrase == "" {
		return errors.New("SECRET_PASSPHRASE is required")
	}
	if len(c.Security.SecretSalt) < 8 {
		return errors.New("SECRET_SALT must be at least 8 characters")
	}
	if c.Admin.JWTSecret != "" && len(c.Admin.JWTSecret) < 32 {
		return errors.New("ADMIN_JWT_SECRET must be at least 32 characters")
	}
	if c.Auth.MaxFailedAttempts <= 0 {
		return errors.New("AUTH_RATELIMIT_MAX_ATTEMPTS must be positive")
	}
	if c.Auth.FailureWindow <= 0 {
		return errors.New("AUTH_RATELIMIT_WINDOW must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
