// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ledger backends.
const (
	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	HTTPAddr     string
	DeviceID     string
	UserID       string
	Timezone     string

	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	LedgerBackend string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TelegramBotToken string
	AllowedUsers     []int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		return nil, fmt.Errorf("MQTT_BROKER is required")
	}

	cfg := &Config{
		DatabasePath:     getenv("DATABASE_PATH", "./data/feeder.db"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		DeviceID:         getenv("DEVICE_ID", "SNACK-01"),
		UserID:           getenv("USER_ID", "default"),
		Timezone:         getenv("TIMEZONE", "Local"),
		MQTTBroker:       broker,
		MQTTClientID:     getenv("MQTT_CLIENT_ID", "snackloader-"+uuid.NewString()),
		MQTTUsername:     os.Getenv("MQTT_USERNAME"),
		MQTTPassword:     os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix:  getenv("MQTT_TOPIC_PREFIX", "snackloader"),
		LedgerBackend:    getenv("LEDGER_BACKEND", LedgerSQLite),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	switch cfg.LedgerBackend {
	case LedgerSQLite, LedgerRedis:
	default:
		return nil, fmt.Errorf("invalid LEDGER_BACKEND %q, use sqlite or redis", cfg.LedgerBackend)
	}

	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil || db < 0 {
			return nil, fmt.Errorf("invalid REDIS_DB %q", raw)
		}
		cfg.RedisDB = db
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Location returns the time zone feeding schedules and ledger days follow.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// TelegramEnabled reports whether the Telegram bot should run.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
