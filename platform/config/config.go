// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq-backed notification queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// CursorConfig selects where the round-robin cursor keeps its index.
type CursorConfig interface {
	GetCursorBackend() string
	GetCursorRedisKey() string
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// ClaimConfig provides settings for the payment claim allocator.
type ClaimConfig interface {
	GetClaimMinimum() decimal.Decimal
}

// =============================================================================
// Main Config Struct
// =============================================================================

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	CursorBackendLocal = "local"
	CursorBackendRedis = "redis"
)

// Config holds all application configuration values.
type Config struct {
	Env               string
	HTTPAddr          string
	StoreDriver       string
	DatabaseURL       string
	MigrationsEnabled bool
	JWTAccessSecret   string
	CORSAllowAll      bool
	CORSOrigins       []string
	CORSAllowCreds    bool
	RedisURL          string
	RedisTLSInsecure  bool
	AsynqQueueName    string
	AsynqConcurrency  int
	CursorBackend     string
	CursorRedisKey    string
	ClaimMinimum      decimal.Decimal
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// CursorConfig implementation
func (c *Config) GetCursorBackend() string  { return c.CursorBackend }
func (c *Config) GetCursorRedisKey() string { return c.CursorRedisKey }

// ClaimConfig implementation
func (c *Config) GetClaimMinimum() decimal.Decimal { return c.ClaimMinimum }

// IsMemoryStore reports whether the in-memory store was selected.
func (c *Config) IsMemoryStore() bool { return c.StoreDriver == StoreDriverMemory }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	claimMinimum, err := decimal.NewFromString(getEnv("CLAIM_MINIMUM", "1"))
	if err != nil {
		return nil, fmt.Errorf("CLAIM_MINIMUM must be a decimal: %w", err)
	}

	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		MigrationsEnabled: strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:   getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:      corsAllowAll,
		CORSOrigins:       corsOrigins,
		CORSAllowCreds:    strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:          getEnv("REDIS_URL", ""),
		RedisTLSInsecure:  strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:    getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:  mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CursorBackend:     strings.ToLower(getEnv("CURSOR_BACKEND", CursorBackendLocal)),
		CursorRedisKey:    getEnv("CURSOR_REDIS_KEY", "leaddesk:assignment:cursor"),
		ClaimMinimum:      claimMinimum,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory)
	}

	switch c.CursorBackend {
	case CursorBackendLocal:
	case CursorBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CURSOR_BACKEND is redis")
		}
	default:
		return fmt.Errorf("CURSOR_BACKEND must be %q or %q", CursorBackendLocal, CursorBackendRedis)
	}

	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.ClaimMinimum.IsNegative() {
		return fmt.Errorf("CLAIM_MINIMUM cannot be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
