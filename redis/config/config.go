// Package config loads the Redis queue configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig holds the connection and worker parameters for the task queue.
type RedisConfig struct {
	Host            string
	Port            int
	Password        string
	DB              int
	Workers         int
	RetryInterval   time.Duration
	MaxRetries      int
	QueuePriorities map[string]int
}

const (
	defaultHost          = "localhost"
	defaultPort          = 6379
	defaultDB            = 0
	defaultWorkers       = 10
	defaultRetryInterval = 5 * time.Minute
	defaultMaxRetries    = 3
)

// DefaultQueuePriorities weights the queues the worker drains.
var DefaultQueuePriorities = map[string]int{
	"critical": 6,
	"default":  3,
	"low":      1,
}

// NewRedisConfig builds a RedisConfig from environment variables. REDIS_URL
// takes precedence over the individual REDIS_HOST/REDIS_PORT/... variables.
func NewRedisConfig() (*RedisConfig, error) {
	cfg := &RedisConfig{
		Host:            envOr("REDIS_HOST", defaultHost),
		Port:            defaultPort,
		Password:        os.Getenv("REDIS_PASSWORD"),
		DB:              defaultDB,
		Workers:         defaultWorkers,
		RetryInterval:   defaultRetryInterval,
		MaxRetries:      defaultMaxRetries,
		QueuePriorities: make(map[string]int),
	}

	for queue, priority := range DefaultQueuePriorities {
		cfg.QueuePriorities[queue] = priority
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := cfg.applyURL(redisURL); err != nil {
			return nil, err
		}

		return cfg, nil
	}

	var err error

	if cfg.Port, err = intEnv("REDIS_PORT", defaultPort); err != nil {
		return nil, err
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("REDIS_PORT must be between 1 and 65535")
	}

	if cfg.DB, err = intEnv("REDIS_DB", defaultDB); err != nil {
		return nil, err
	}

	if cfg.DB < 0 || cfg.DB > 15 {
		return nil, fmt.Errorf("REDIS_DB must be between 0 and 15")
	}

	if cfg.Workers, err = intEnv("REDIS_WORKERS", defaultWorkers); err != nil {
		return nil, err
	}

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("REDIS_WORKERS must be positive")
	}

	if cfg.MaxRetries, err = intEnv("REDIS_MAX_RETRIES", defaultMaxRetries); err != nil {
		return nil, err
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("REDIS_MAX_RETRIES must not be negative")
	}

	if v := os.Getenv("REDIS_RETRY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_RETRY_INTERVAL %q: %w", v, err)
		}

		if d <= 0 {
			return nil, fmt.Errorf("REDIS_RETRY_INTERVAL must be positive")
		}

		cfg.RetryInterval = d
	}

	return cfg, nil
}

func (c *RedisConfig) applyURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	if host := parsed.Hostname(); host != "" {
		c.Host = host
	}

	if port := parsed.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port in REDIS_URL: %w", err)
		}

		c.Port = p
	}

	if password, ok := parsed.User.Password(); ok {
		c.Password = password
	}

	if path := strings.TrimPrefix(parsed.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil {
			return fmt.Errorf("invalid database number in REDIS_URL: %w", err)
		}

		c.DB = db
	}

	return nil
}

// Addr returns the host:port pair for the asynq client options.
func (c *RedisConfig) Addr() string {
	host := c.Host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}

	return fmt.Sprintf("%s:%d", host, c.Port)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}

	return n, nil
}
