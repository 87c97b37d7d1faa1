package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	LogLevel        slog.Level
	MaxMessageSize  int64
	ShutdownTimeout time.Duration
	MDNSEnabled     bool
	MDNSInstance    string
}

// Load reads .env (if present) into the environment, then builds the
// relay configuration from it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Port:            GetEnv("PORT", "8080"),
		LogLevel:        parseLevel(os.Getenv("LOG_LEVEL")),
		MaxMessageSize:  4096,
		ShutdownTimeout: 10 * time.Second,
	}

	if v := os.Getenv("MAX_MESSAGE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_MESSAGE_SIZE %q", v)
		}
		cfg.MaxMessageSize = n
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %q: %w", v, err)
		}
		cfg.ShutdownTimeout = d
	}

	if v := os.Getenv("MDNS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MDNS_ENABLED %q: %w", v, err)
		}
		cfg.MDNSEnabled = b
	}

	cfg.MDNSInstance = os.Getenv("MDNS_INSTANCE")
	if cfg.MDNSInstance == "" {
		host, _ := os.Hostname()
		cfg.MDNSInstance = "phone-party-" + host
	}

	return cfg, nil
}

// GetEnv returns the value of key, or def when it is unset or empty.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
