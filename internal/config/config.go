// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the server needs.
type Config struct {
	DatabaseURL      string
	ServerPort       string
	RedisAddr        string
	AllowedOrigins   string
	JWTSecret        string
	InventoryLockTTL time.Duration
	JournalLockTTL   time.Duration
	PeriodCloseTTL   time.Duration
	OutboxInterval   time.Duration
	OutboxBatchSize  int
}

// Load reads .env (if present) then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ServerPort:       getenvDefault("SERVER_PORT", "8080"),
		RedisAddr:        getenvDefault("REDIS_ADDR", "localhost:6379"),
		AllowedOrigins:   os.Getenv("ALLOWED_ORIGINS"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		InventoryLockTTL: getenvSeconds("INVENTORY_LOCK_TTL_SECONDS", 30),
		JournalLockTTL:   getenvSeconds("JOURNAL_LOCK_TTL_SECONDS", 30),
		PeriodCloseTTL:   getenvSeconds("PERIOD_CLOSE_LOCK_TTL_SECONDS", 60),
		OutboxInterval:   getenvSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 2),
		OutboxBatchSize:  getenvInt("OUTBOX_BATCH_SIZE", 100),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvSeconds(key string, def int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(def) * time.Second
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
