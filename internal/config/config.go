package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"bizledger-backend/internal/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultPostgresDSN = "host=localhost user=postgres password=postgres dbname=bizledger port=5432 sslmode=disable"
	defaultCORSOrigins = "http://localhost:8081"
)

type Config struct {
	HTTPPort    string
	CORSOrigins string

	DBDriver    string // sqlite | postgres
	DatabaseDSN string // postgres only
	SQLitePath  string
	DBLogLevel  string // silent | error | warn | info

	JWTSecret string
	TokenTTL  time.Duration

	DefaultCurrency string

	LogLevel  string
	LogFormat string
	LogOutput string
}

// Load reads the environment. A .env file, if any, has already been
// applied by main through godotenv.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadStorage is Load for tools that only touch the database; the auth
// settings are not checked.
func LoadStorage() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStorage(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func read() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		CORSOrigins:     getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DatabaseDSN:     getEnv("DATABASE_DSN", defaultPostgresDSN),
		SQLitePath:      getEnv("SQLITE_PATH", "./data/bizledger.db"),
		DBLogLevel:      getEnv("DB_LOG_LEVEL", "warn"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "NGN")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		LogOutput:       getEnv("LOG_OUTPUT", "stdout"),
	}

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = ttl
	return cfg, nil
}

func (c *Config) validateStorage() error {
	if c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres {
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver)
	}
	return nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code")
	}
	return nil
}

// Warnings lists settings that are fine for development but not for a
// real deployment.
func (c *Config) Warnings() []string {
	var w []string
	if c.DBDriver == DriverPostgres && c.DatabaseDSN == defaultPostgresDSN {
		w = append(w, "DATABASE_DSN is using the default value")
	}
	if c.CORSOrigins == defaultCORSOrigins {
		w = append(w, "CORS_ALLOWED_ORIGINS is using the default value")
	}
	return w
}

func (c *Config) GetLoggerConfig() logger.LogConfig {
	lc := logger.DefaultConfig()
	lc.Level = c.LogLevel
	lc.Format = c.LogFormat
	lc.Output = c.LogOutput
	return lc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
