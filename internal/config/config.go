// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
	}
	Redis struct {
		Host     string
		Port     int
		Password string
		DB       int
		// TTL applied to read-cache entries.
		CacheTTL time.Duration
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	HTTP struct {
		Port int
	}
	JWT struct {
		SecretKey string
		AccessTTL time.Duration
	}
	// Booking policy: when false (the default), rides whose departure time is
	// already in the past cannot be booked. The source system flip-flopped on
	// this rule; it is an explicit toggle here.
	AllowPastRideBooking bool

	Debug bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is honoured if present but never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	cfg.Database.Host = envString("DB_HOST", "localhost")
	cfg.Database.Port = envInt("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")

	cfg.Redis.Host = envString("REDIS_HOST", "localhost")
	cfg.Redis.Port = envInt("REDIS_PORT", 6379)
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = envInt("REDIS_DB", 0)
	cfg.Redis.CacheTTL = envDuration("CACHE_TTL", time.Hour)

	cfg.RabbitMQ.Host = envString("RABBITMQ_HOST", "localhost")
	cfg.RabbitMQ.Port = envInt("RABBITMQ_PORT", 5672)
	cfg.RabbitMQ.User = envString("RABBITMQ_USER", "guest")
	cfg.RabbitMQ.Password = envString("RABBITMQ_PASSWORD", "guest")

	cfg.HTTP.Port = envInt("HTTP_PORT", 3000)

	cfg.JWT.SecretKey = os.Getenv("JWT_SECRET")
	cfg.JWT.AccessTTL = envDuration("JWT_ACCESS_TTL", 2*time.Hour)

	cfg.AllowPastRideBooking = envBool("ALLOW_PAST_RIDE_BOOKING", false)
	cfg.Debug = envBool("DEBUG", false)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "DB_PORT must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "DB_USER is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "DB_PASSWORD is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "DB_NAME is required")
	}

	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		problems = append(problems, "REDIS_PORT must be in 1..65535")
	}
	if c.Redis.CacheTTL <= 0 {
		problems = append(problems, "CACHE_TTL must be positive")
	}

	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "RABBITMQ_PORT must be in 1..65535")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, "HTTP_PORT must be in 1..65535")
	}

	if c.JWT.SecretKey == "" {
		problems = append(problems, "JWT_SECRET is required")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
