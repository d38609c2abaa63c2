// Package config provides application configuration.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port                 string
	GRPCHealthPort       string
	DBPath               string
	NotificationsEnabled bool
	AllowedOrigins       []string
	HealthCheckInterval  time.Duration
	DebugLog             DebugLogConfig
}

// DebugLogConfig controls the encrypted diagnostic log.
type DebugLogConfig struct {
	Path      string
	KeyHex    string // 32-byte key, hex encoded; empty means generate one per run
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("DEBUG_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		GRPCHealthPort:       getEnv("GRPC_HEALTH_PORT", "9090"),
		DBPath:               getEnv("DB_PATH", "./data/surveys.db"),
		NotificationsEnabled: getEnvBool("NOTIFICATIONS_ENABLED", true),
		AllowedOrigins:       getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		HealthCheckInterval:  getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		DebugLog: DebugLogConfig{
			Path:      getEnv("DEBUG_LOG_PATH", "./data/logs/debug.log"),
			KeyHex:    strings.TrimSpace(getEnv("DEBUG_LOG_KEY", "")),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.GRPCHealthPort == "" {
		return fmt.Errorf("GRPC_HEALTH_PORT cannot be empty")
	}
	if c.Port == c.GRPCHealthPort {
		return fmt.Errorf("PORT and GRPC_HEALTH_PORT must differ")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.DebugLog.Path == "" {
		return fmt.Errorf("DEBUG_LOG_PATH cannot be empty")
	}
	if c.DebugLog.QueueSize <= 0 {
		return fmt.Errorf("DEBUG_LOG_QUEUE_SIZE must be > 0")
	}
	if c.DebugLog.KeyHex != "" {
		key, err := hex.DecodeString(c.DebugLog.KeyHex)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("DEBUG_LOG_KEY must be 64 hex characters")
		}
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("HEALTH_CHECK_INTERVAL must be > 0")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	return nil
}

// IsDevelopment returns true when any origin is allowed.
func (c *Config) IsDevelopment() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.Contains(o, "localhost") || strings.Contains(o, "127.0.0.1") {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
