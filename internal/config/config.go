package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/jmgilman/go/errors"
)

type Config struct {
	Port            int
	DataDir         string
	LogLevel        string
	LogEncoding     string
	TileCapacity    int
	SlotBackend     string
	SlotFileDir     string
	WarmupLevels    int
	WarmupWorkers   int
	VipsMaxCacheMB  int
	VipsConcurrency int
	AllowedOrigin   string
}

func Load() *Config {
	dataDir := getEnv("DATA_DIR", "/data")

	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		DataDir:         dataDir,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogEncoding:     getEnv("LOG_ENCODING", "json"),
		TileCapacity:    getEnvInt("TILE_CAPACITY", 2000),
		SlotBackend:     getEnv("SLOT_BACKEND", "memory"),
		SlotFileDir:     getEnv("SLOT_FILE_DIR", filepath.Join(dataDir, "slots")),
		WarmupLevels:    getEnvInt("WARMUP_LEVELS", 1),
		WarmupWorkers:   getEnvInt("WARMUP_WORKERS", 1),
		VipsMaxCacheMB:  getEnvInt("VIPS_MAX_CACHE_MB", 256),
		VipsConcurrency: getEnvInt("VIPS_CONCURRENCY", 1),
		AllowedOrigin:   getEnv("ALLOWED_ORIGIN", ""),
	}

	return cfg
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.TileCapacity <= 0 {
		return errors.WithContext(
			errors.Newf(errors.CodeInvalidConfig, "TILE_CAPACITY must be positive, got %d", c.TileCapacity),
			"TILE_CAPACITY", c.TileCapacity,
		)
	}
	switch c.SlotBackend {
	case "memory":
	case "file":
		if c.SlotFileDir == "" {
			return errors.New(errors.CodeInvalidConfig, "SLOT_FILE_DIR is required for the file slot backend")
		}
	default:
		return errors.WithContext(
			errors.Newf(errors.CodeInvalidConfig, "unknown SLOT_BACKEND: %s (supported: memory, file)", c.SlotBackend),
			"SLOT_BACKEND", c.SlotBackend,
		)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Newf(errors.CodeInvalidConfig, "PORT out of range: %d", c.Port)
	}
	return nil
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
