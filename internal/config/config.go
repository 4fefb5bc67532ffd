// Package config centralizes how SignDrop reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Storage backends accepted in SIGNDROP_STORAGE.
const (
	StorageLocal  = "local"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

var (
	// ErrMissingSecret is returned when a required secret is not configured.
	ErrMissingSecret = errors.New("missing secret")
	// ErrInvalid is returned for values that parse but make no sense.
	ErrInvalid = errors.New("invalid configuration")
)

// Config represents runtime configuration for the service.
type Config struct {
	Address      string
	Environment  string
	LogLevel     string
	MaxFileSize  int64
	AllowedTypes []string

	SigningSecret []byte
	JWTSecret     []byte
	TokenTTL      time.Duration
	SignedURLTTL  time.Duration
	ShareMaxTTL   time.Duration

	// DatabaseURL selects Postgres. When empty the in-memory store is used.
	DatabaseURL string

	StorageBackend string
	StorageDir     string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Region       string
	S3UseSSL       bool
	Bucket         string

	// RedisAddr selects the asynq queue. When empty notifications are
	// delivered by the in-process worker pool.
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	WorkerConcurrent int
	ProcessingPool   int
	ProcessingQueue  int

	PurgeAfter    time.Duration
	PurgeSchedule string
	PurgeBatch    int
}

const (
	defaultAddress      = ":8080"
	defaultEnvironment  = "development"
	defaultLogLevel     = "info"
	defaultMaxFileSize  = 25 << 20 // 25 MiB
	defaultAllowedTypes = "application/pdf,image/png,image/jpeg,text/plain"
	defaultTokenTTL     = 24 * time.Hour
	defaultSignedTTL    = 5 * time.Minute
	defaultShareMaxTTL  = 30 * 24 * time.Hour
	defaultStorage      = StorageLocal
	defaultStorageDir   = "./data/blobs"
	defaultBucket       = "signdrop-documents"
	defaultRegion       = "us-east-1"
	defaultWorkerCount  = 2
	defaultQueueSize    = 64
	defaultConcurrency  = 10
	defaultPurgeAfter   = 30 * 24 * time.Hour
	defaultPurgeEvery   = "@every 1h"
	defaultPurgeBatch   = 100
)

// Load reads configuration from environment variables falling back to
// defaults. A .env file in the working directory is loaded first when
// present; variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Address:      readEnv("SIGNDROP_ADDRESS", defaultAddress),
		Environment:  readEnv("SIGNDROP_ENV", defaultEnvironment),
		LogLevel:     readEnv("SIGNDROP_LOG_LEVEL", defaultLogLevel),
		MaxFileSize:  parseInt64("SIGNDROP_MAX_FILE_BYTES", defaultMaxFileSize),
		AllowedTypes: parseList("SIGNDROP_ALLOWED_TYPES", defaultAllowedTypes),

		SigningSecret: parseSecret("SIGNDROP_SIGNING_SECRET"),
		JWTSecret:     parseSecret("SIGNDROP_JWT_SECRET"),
		TokenTTL:      parseDuration("SIGNDROP_TOKEN_TTL", defaultTokenTTL),
		SignedURLTTL:  parseDuration("SIGNDROP_SIGNED_TTL", defaultSignedTTL),
		ShareMaxTTL:   parseDuration("SIGNDROP_SHARE_MAX_TTL", defaultShareMaxTTL),

		DatabaseURL: readEnv("SIGNDROP_DATABASE_URL", ""),

		StorageBackend: strings.ToLower(readEnv("SIGNDROP_STORAGE", defaultStorage)),
		StorageDir:     readEnv("SIGNDROP_STORAGE_DIR", defaultStorageDir),
		S3Endpoint:     readEnv("SIGNDROP_S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:    readEnv("SIGNDROP_S3_ACCESS_KEY", ""),
		S3SecretKey:    readEnv("SIGNDROP_S3_SECRET_KEY", ""),
		S3Region:       readEnv("SIGNDROP_S3_REGION", defaultRegion),
		S3UseSSL:       parseBool("SIGNDROP_S3_USE_SSL", false),
		Bucket:         readEnv("SIGNDROP_S3_BUCKET", defaultBucket),

		RedisAddr:        readEnv("SIGNDROP_REDIS_ADDR", ""),
		RedisPassword:    readEnv("SIGNDROP_REDIS_PASSWORD", ""),
		RedisDB:          parseInt("SIGNDROP_REDIS_DB", 0),
		WorkerConcurrent: parseInt("SIGNDROP_WORKER_CONCURRENCY", defaultConcurrency),
		ProcessingPool:   parseInt("SIGNDROP_WORKERS", defaultWorkerCount),
		ProcessingQueue:  parseInt("SIGNDROP_QUEUE_SIZE", defaultQueueSize),

		PurgeAfter:    parseDuration("SIGNDROP_PURGE_AFTER", defaultPurgeAfter),
		PurgeSchedule: readEnv("SIGNDROP_PURGE_SCHEDULE", defaultPurgeEvery),
		PurgeBatch:    parseInt("SIGNDROP_PURGE_BATCH", defaultPurgeBatch),
	}

	if cfg.ProcessingPool <= 0 {
		cfg.ProcessingPool = defaultWorkerCount
	}
	if cfg.ProcessingQueue <= 0 {
		cfg.ProcessingQueue = defaultQueueSize
	}
	if cfg.WorkerConcurrent <= 0 {
		cfg.WorkerConcurrent = defaultConcurrency
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.ShareMaxTTL <= 0 {
		cfg.ShareMaxTTL = defaultShareMaxTTL
	}
	if cfg.PurgeBatch <= 0 {
		cfg.PurgeBatch = defaultPurgeBatch
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that would make the service unsafe or
// unable to start.
func (c *Config) Validate() error {
	if len(c.SigningSecret) == 0 {
		return fmt.Errorf("SIGNDROP_SIGNING_SECRET: %w", ErrMissingSecret)
	}
	if len(c.JWTSecret) == 0 {
		return fmt.Errorf("SIGNDROP_JWT_SECRET: %w", ErrMissingSecret)
	}
	switch c.StorageBackend {
	case StorageLocal, StorageMemory:
	case StorageS3:
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("s3 storage needs SIGNDROP_S3_ACCESS_KEY and SIGNDROP_S3_SECRET_KEY: %w", ErrInvalid)
		}
	default:
		return fmt.Errorf("SIGNDROP_STORAGE=%q: %w", c.StorageBackend, ErrInvalid)
	}
	if c.PurgeAfter < 0 {
		return fmt.Errorf("SIGNDROP_PURGE_AFTER must not be negative: %w", ErrInvalid)
	}
	// Same parser as the asynq scheduler, so both processes agree.
	if _, err := cron.ParseStandard(c.PurgeSchedule); err != nil {
		return fmt.Errorf("SIGNDROP_PURGE_SCHEDULE=%q: %v: %w", c.PurgeSchedule, err, ErrInvalid)
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	parts := strings.Split(val, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	// Invalid input falls back to the default rather than failing startup.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}
