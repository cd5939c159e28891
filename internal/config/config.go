// Package config reads server settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings. Command-line flags override it.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	LogPath   string

	// RedisAddr selects the Redis lock backend when set; otherwise locks are
	// held in process.
	RedisAddr string
	LockTTL   time.Duration
}

// Load reads the configuration, applying defaults for unset variables.
func Load() Config {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	return Config{
		DBPath:    getEnv("PERSEDIAAN_DB", "persediaan.sqlite3"),
		Addr:      getEnv("PERSEDIAAN_ADDR", ":8080"),
		AdminUser: getEnv("PERSEDIAAN_ADMIN_USER", "Admin"),
		LogPath:   getEnv("PERSEDIAAN_LOG", ""),
		RedisAddr: getEnv("PERSEDIAAN_REDIS_ADDR", ""),
		LockTTL:   getEnvAsDuration("PERSEDIAAN_LOCK_TTL", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or a plain number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(valueStr); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
