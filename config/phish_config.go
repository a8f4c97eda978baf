package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a worker ID from hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "phish"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Auth
	APIKey    string
	JWTSecret string

	// Storage
	DatabaseURL    string
	RedisURL       string
	MigrateOnStart bool

	// Model
	ModelManifest string

	// Scoring
	CacheTTLMin      int
	MaxBatchSize     int
	BatchConcurrency int

	// Rate limiting
	RateLimitRPS     float64
	RateLimitBurst   int
	IPRateLimitRPS   float64
	IPRateLimitBurst int

	// Scan worker
	WorkerID        string
	SnowflakeNode   int64
	ScanStream      string
	ScanGroup       string
	WorkerCount     int
	WorkerQueueSize int
	ScanMaxRetries  int

	// HTTP
	AllowedOrigins  []string
	MaxBodyBytes    int
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "5000"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		APIKey:    getEnv("API_KEY", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),

		ModelManifest: getEnv("MODEL_MANIFEST", "model/manifest.yaml"),

		CacheTTLMin:      getEnvInt("CACHE_TTL_MIN", 60),
		MaxBatchSize:     getEnvInt("MAX_BATCH_SIZE", 100),
		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 8),

		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 40),
		IPRateLimitRPS:   getEnvFloat("IP_RATE_LIMIT_RPS", 50),
		IPRateLimitBurst: getEnvInt("IP_RATE_LIMIT_BURST", 100),

		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		SnowflakeNode:   int64(getEnvInt("SNOWFLAKE_NODE", 1)),
		ScanStream:      getEnv("SCAN_STREAM", "phish:scan"),
		ScanGroup:       getEnv("SCAN_GROUP", "phish-workers"),
		WorkerCount:     getEnvInt("WORKER_COUNT", 4),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 100),
		ScanMaxRetries:  getEnvInt("SCAN_MAX_RETRIES", 3),

		AllowedOrigins:  getEnvSlice("ALLOWED_ORIGINS", nil),
		MaxBodyBytes:    getEnvInt("MAX_BODY_BYTES", 1<<20),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}, nil
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("API_KEY is required"))
	}
	if strings.TrimSpace(c.ModelManifest) == "" {
		errs = append(errs, errors.New("MODEL_MANIFEST is required"))
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", c.Port))
	}
	if c.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("MAX_BATCH_SIZE must be positive"))
	}
	if c.BatchConcurrency <= 0 {
		errs = append(errs, errors.New("BATCH_CONCURRENCY must be positive"))
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		errs = append(errs, errors.New("SNOWFLAKE_NODE must be within 0-1023"))
	}
	return errors.Join(errs...)
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMin) * time.Minute
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s") or bare seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
