// Package config loads SDK configuration from the environment, with an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API   APIConfig
	Cache CacheConfig
	Queue QueueConfig
	Redis RedisConfig
	Log   LogConfig
}

type APIConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

type QueueConfig struct {
	// FilePath holds the offline mutation queue; AuditFilePath holds the
	// audit fallback queue. They must differ.
	FilePath      string
	AuditFilePath string
}

type RedisConfig struct {
	// Addr is empty when the in-process cache and file queue are used.
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// Load reads configuration, consulting a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		API: APIConfig{
			BaseURL:   getEnv("STOREAPI_BASE_URL", "http://localhost:8000/api/"),
			UserAgent: getEnv("STOREAPI_USER_AGENT", "storeapi-go"),
			Timeout:   getDurationEnv("STOREAPI_TIMEOUT", 10*time.Second),
		},
		Cache: CacheConfig{
			TTL:        getDurationEnv("STOREAPI_CACHE_TTL", 60*time.Second),
			MaxEntries: getIntEnv("STOREAPI_CACHE_MAX_ENTRIES", 128),
		},
		Queue: QueueConfig{
			FilePath:      getEnv("STOREAPI_QUEUE_FILE", defaultQueuePath("offline_queue.json")),
			AuditFilePath: getEnv("STOREAPI_AUDIT_QUEUE_FILE", defaultQueuePath("audit_queue.json")),
		},
		Redis: RedisConfig{
			Addr:     getEnv("STOREAPI_REDIS_ADDR", ""),
			Password: getEnv("STOREAPI_REDIS_PASSWORD", ""),
			DB:       getIntEnv("STOREAPI_REDIS_DB", 0),
			Prefix:   getEnv("STOREAPI_REDIS_PREFIX", "storeapi"),
		},
		Log: LogConfig{
			Level:  getEnv("STOREAPI_LOG_LEVEL", "info"),
			Format: getEnv("STOREAPI_LOG_FORMAT", "text"),
		},
	}

	if cfg.Queue.FilePath == cfg.Queue.AuditFilePath {
		return nil, fmt.Errorf("offline queue and audit queue must use different files")
	}
	return cfg, nil
}

func defaultQueuePath(name string) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "storeapi", name)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
