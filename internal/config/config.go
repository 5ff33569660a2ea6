package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	JWKSURL     string
	CORSOrigins string
	TablePrefix string
	// ApplySchema runs the embedded schema on startup (dev/test convenience)
	ApplySchema bool

	// Blob storage
	BlobBackend    string // "disk" or "badger"
	BlobDir        string
	PublicBaseURL  string // Used to build presigned download URLs
	BlobSigningKey string
	PresignTTL     time.Duration

	// Storage and trash policy (overridable from CONFIG_FILE)
	Policy Policy

	// Logging
	LogDir      string
	LogMaxFiles int
	LogLevel    string // debug, info, warn or error
}

// Policy is the storage and trash policy block. It can be overlaid from a
// YAML file pointed at by CONFIG_FILE.
type Policy struct {
	TrashRetention      time.Duration `yaml:"trash_retention"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	SweepBatchSize      int           `yaml:"sweep_batch_size"`
	DefaultStorageLimit int64         `yaml:"default_storage_limit"`
}

type fileOverlay struct {
	Policy *Policy `yaml:"policy"`
}

func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "dev")

	presignTTL, err := getDuration("PRESIGN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	retention, err := getDuration("TRASH_RETENTION", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := getDuration("SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	storageLimit, err := getInt64("DEFAULT_STORAGE_LIMIT", 10<<30)
	if err != nil {
		return nil, err
	}
	logMaxFiles, err := getInt64("LOG_MAX_FILES", 10)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    env,
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		JWKSURL:        getEnv("JWKS_URL", ""),
		CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:    getTablePrefix(env),
		ApplySchema:    getEnv("APPLY_SCHEMA", getDefaultApplySchema(env)) == "true",
		BlobBackend:    getEnv("BLOB_BACKEND", "disk"),
		BlobDir:        getEnv("BLOB_DIR", "./data/blobs"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		BlobSigningKey: getEnv("BLOB_SIGNING_KEY", ""),
		PresignTTL:     presignTTL,
		Policy: Policy{
			TrashRetention:      retention,
			SweepInterval:       sweepInterval,
			SweepBatchSize:      DefaultSweepBatchSize,
			DefaultStorageLimit: storageLimit,
		},
		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: int(logMaxFiles),
		LogLevel:    getEnv("LOG_LEVEL", ""),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.BlobSigningKey == "" {
		if env == "prod" {
			return nil, fmt.Errorf("BLOB_SIGNING_KEY is required in prod")
		}
		cfg.BlobSigningKey = "dev-only-signing-key"
	}

	return cfg, nil
}

// applyFile overlays non-zero policy values from a YAML file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if overlay.Policy == nil {
		return nil
	}

	p := overlay.Policy
	if p.TrashRetention > 0 {
		c.Policy.TrashRetention = p.TrashRetention
	}
	if p.SweepInterval > 0 {
		c.Policy.SweepInterval = p.SweepInterval
	}
	if p.SweepBatchSize > 0 {
		c.Policy.SweepBatchSize = p.SweepBatchSize
	}
	if p.DefaultStorageLimit > 0 {
		c.Policy.DefaultStorageLimit = p.DefaultStorageLimit
	}
	return nil
}

// getDefaultApplySchema returns the default schema bootstrap setting based on environment
func getDefaultApplySchema(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
