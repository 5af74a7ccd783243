// Package config loads the environment-supplied configuration surface.
// A .env file is honored when present (godotenv), real environment
// variables win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is everything the process reads from the environment.
type Config struct {
	// Port the HTTP server listens on. PORT, default 8080.
	Port int

	// DatabaseURL selects the PostgreSQL store when set. DATABASE_URL.
	DatabaseURL string

	// DBPath is the SQLite fallback when DATABASE_URL is unset.
	// DB_PATH, default "ledger.db"; ":memory:" runs without a file.
	DBPath string

	// DBPoolSize caps open connections for the PostgreSQL pool.
	// DB_POOL_SIZE, default 25.
	DBPoolSize int

	// KafkaBrokers enables settlement event publishing when non-empty.
	// KAFKA_BROKERS, comma-separated.
	KafkaBrokers []string
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	_ = godotenv.Load() // missing .env is fine

	cfg := Config{
		Port:        8080,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      "ledger.db",
		DBPoolSize:  25,
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = p
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	if v := os.Getenv("DB_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid DB_POOL_SIZE %q", v)
		}
		cfg.DBPoolSize = n
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg, nil
}
