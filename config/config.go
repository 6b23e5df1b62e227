// Package config loads the server configuration from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	Port            int
	DBDriver        string
	DBPath          string
	DatabaseURL     string
	DBDebug         bool
	RedisAddr       string
	MetricsCacheTTL time.Duration
	AllowedOrigins  []string
	NATSPort        int
	ShutdownTimeout time.Duration
	LogLevel        string
}

// Load reads the configuration, falling back to defaults for unset or
// malformed values.
func Load() Config {
	return Config{
		Port:            getEnvInt("PORT", 3000),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:          getEnv("DB_PATH", "taskboard.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBDebug:         getEnvBool("DB_DEBUG", false),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		MetricsCacheTTL: getEnvDuration("METRICS_CACHE_TTL", 60*time.Second),
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		NATSPort:        getEnvInt("NATS_PORT", 4222),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// getEnv returns environment variable or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or default.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
