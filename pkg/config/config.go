package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process-level configuration.
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
//
// Experiment settings (models, strategies, thresholds) live in
// internal/strategyconfig; this struct only covers the runtime surface.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Batch execution
	Batch BatchConfig

	// Remote data sources
	HTTP HTTPConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	TTL      time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// BatchConfig controls the (model × strategy) worker pool.
type BatchConfig struct {
	Workers        int
	RunTimeout     time.Duration
	PersistResults bool // 결과를 PostgreSQL에 저장
}

// HTTPConfig controls fetching of http(s) data paths.
type HTTPConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RateLimit  int // requests per second, 0 = unlimited
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			TTL:      getEnvAsDuration("REDIS_REPORT_TTL", "24h"),
		},

		// Batch
		Batch: BatchConfig{
			Workers:        getEnvAsInt("BATCH_WORKERS", 4),
			RunTimeout:     getEnvAsDuration("RUN_TIMEOUT", "10m"),
			PersistResults: getEnvAsBool("PERSIST_RESULTS", false),
		},

		// HTTP
		HTTP: HTTPConfig{
			Timeout:    getEnvAsDuration("HTTP_TIMEOUT", "30s"),
			MaxRetries: getEnvAsInt("HTTP_MAX_RETRIES", 3),
			RateLimit:  getEnvAsInt("HTTP_RATE_LIMIT", 5),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is only required when runs are persisted
	if c.Batch.PersistResults && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when PERSIST_RESULTS is enabled")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Batch.Workers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be >= 1, got %d", c.Batch.Workers)
	}

	if c.Batch.RunTimeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT must be positive")
	}

	if c.HTTP.MaxRetries < 0 || c.HTTP.RateLimit < 0 {
		return fmt.Errorf("HTTP_MAX_RETRIES and HTTP_RATE_LIMIT must be >= 0")
	}

	return nil
}

// HasDatabase reports whether a PostgreSQL URL was configured.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
