package persist

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds PostgreSQL connection configuration for the durable store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN builds a pgx-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LoadConfigFromEnv loads store configuration from environment variables with
// compiler-daemon defaults.
func LoadConfigFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("COMPILER_DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid COMPILER_DB_PORT: %w", err)
	}

	maxConns, _ := strconv.Atoi(getEnvOrDefault("COMPILER_DB_MAX_CONNS", "20"))
	minConns, _ := strconv.Atoi(getEnvOrDefault("COMPILER_DB_MIN_CONNS", "2"))

	maxLifetime, err := time.ParseDuration(getEnvOrDefault("COMPILER_DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid COMPILER_DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("COMPILER_DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid COMPILER_DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	cfg := Config{
		Host:            getEnvOrDefault("COMPILER_DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("COMPILER_DB_USER", "compilerd"),
		Password:        os.Getenv("COMPILER_DB_PASSWORD"),
		Database:        getEnvOrDefault("COMPILER_DB_NAME", "nl2schema"),
		SSLMode:         getEnvOrDefault("COMPILER_DB_SSLMODE", "disable"),
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for obviously broken values.
func (c Config) Validate() error {
	if c.Password == "" {
		return fmt.Errorf("COMPILER_DB_PASSWORD is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("COMPILER_DB_MIN_CONNS (%d) cannot exceed COMPILER_DB_MAX_CONNS (%d)", c.MinConns, c.MaxConns)
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("COMPILER_DB_MAX_CONNS must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
