// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/settings"
)

// Store backends for the Configuration Store.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds the process configuration.
type Config struct {
	HTTPAddr          string
	StoreBackend      string
	StorePath         string
	RedisAddr         string
	DatabaseDSN       string
	HistoryEnabled    bool
	CameraDevice      int
	CameraJPEGQuality int
	ClassifyTimeout   time.Duration
	DefaultEndpoint   string
	LogLevel          string
	LogFile           string
}

// Load reads a .env file when present and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
		StorePath:       getEnv("STORE_PATH", defaultStorePath()),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseDSN:     getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=snapclassify port=5432 sslmode=disable"),
		DefaultEndpoint: getEnv("DEFAULT_ENDPOINT", settings.DefaultEndpoint),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		LogFile:         os.Getenv("LOG_FILE"),
	}

	var err error
	if cfg.HistoryEnabled, err = strconv.ParseBool(getEnv("HISTORY_ENABLED", "false")); err != nil {
		return nil, fmt.Errorf("HISTORY_ENABLED: %w", err)
	}
	if cfg.CameraDevice, err = strconv.Atoi(getEnv("CAMERA_DEVICE", "0")); err != nil {
		return nil, fmt.Errorf("CAMERA_DEVICE: %w", err)
	}
	if cfg.CameraJPEGQuality, err = strconv.Atoi(getEnv("CAMERA_JPEG_QUALITY", "90")); err != nil {
		return nil, fmt.Errorf("CAMERA_JPEG_QUALITY: %w", err)
	}
	if cfg.ClassifyTimeout, err = time.ParseDuration(getEnv("CLASSIFY_TIMEOUT", classifier.DefaultTimeout.String())); err != nil {
		return nil, fmt.Errorf("CLASSIFY_TIMEOUT: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("STORE_BACKEND: unsupported backend %q", c.StoreBackend)
	}
	if c.CameraJPEGQuality < 1 || c.CameraJPEGQuality > 100 {
		return fmt.Errorf("CAMERA_JPEG_QUALITY: %d is outside 1-100", c.CameraJPEGQuality)
	}
	if c.ClassifyTimeout <= 0 {
		return errors.New("CLASSIFY_TIMEOUT: must be positive")
	}
	return nil
}

// NeedsDatabase reports whether postgres must be opened.
func (c *Config) NeedsDatabase() bool {
	return c.StoreBackend == BackendPostgres || c.HistoryEnabled
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "snapclassify-settings.json"
	}
	return dir + string(os.PathSeparator) + "snapclassify" + string(os.PathSeparator) + "settings.json"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
