package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration loaded from the environment.
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Auth    AuthConfig
	Redis   RedisConfig
	Metrics bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DBConfig holds PostgreSQL settings.
type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds token and cookie settings.
type AuthConfig struct {
	Secret        string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SecureCookies bool
}

// RedisConfig holds the optional token denylist backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from OPSUITE_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("OPSUITE_ADDR", ":8080"),
			ReadTimeout:     getEnvDuration("OPSUITE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("OPSUITE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("OPSUITE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("OPSUITE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: DBConfig{
			DSN:             getEnv("OPSUITE_PG_DSN", ""),
			MaxOpenConns:    getEnvInt("OPSUITE_PG_MAX_OPEN", 50),
			MaxIdleConns:    getEnvInt("OPSUITE_PG_MAX_IDLE", 25),
			ConnMaxLifetime: getEnvDuration("OPSUITE_PG_CONN_LIFETIME", 15*time.Minute),
		},
		Auth: AuthConfig{
			Secret:        getEnv("OPSUITE_AUTH_SECRET", ""),
			Issuer:        getEnv("OPSUITE_AUTH_ISSUER", "opsuite"),
			AccessTTL:     getEnvDuration("OPSUITE_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:    getEnvDuration("OPSUITE_REFRESH_TTL", 7*24*time.Hour),
			SecureCookies: getEnvBool("OPSUITE_SECURE_COOKIES", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("OPSUITE_REDIS_ADDR", ""),
			Password: getEnv("OPSUITE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("OPSUITE_REDIS_DB", 0),
		},
		Metrics: getEnvBool("OPSUITE_METRICS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks required values and internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("OPSUITE_AUTH_SECRET is required")
	}
	// The authorization core cannot serve a single request without its
	// store; refusing to start beats a nil handle at request time.
	if strings.TrimSpace(c.DB.DSN) == "" {
		return errors.New("OPSUITE_PG_DSN is required")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return errors.New("refresh token lifetime must exceed access token lifetime")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
