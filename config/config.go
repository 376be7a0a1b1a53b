// Package config loads process configuration from environment variables.
// Provider credentials, the vault key and store settings are read once at
// startup; nothing here is reloaded at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr            = ":8080"
	defaultDatabaseDriver  = "sqlite"
	defaultDatabasePath    = "mona.db"
	defaultSyncStaleAfter  = 30 * time.Minute
	defaultSyncInterval    = 15 * time.Minute
	defaultChatbotModel    = "gemma2-9b-it"
	defaultChatHistorySize = 50
)

// OAuthClient holds one provider family's OAuth application credentials.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether the provider credentials are present.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Config is the static process configuration.
type Config struct {
	Addr string

	// DatabaseDriver is "sqlite" or "postgres".
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	// EncryptionKey is the raw 32-byte vault key.
	EncryptionKey []byte

	JWTSecret []byte

	// FrontendURL is the base the OAuth redirect URI is derived from.
	FrontendURL string

	Google    OAuthClient
	Microsoft OAuthClient
	GitHub    OAuthClient
	Slack     OAuthClient
	Calendly  OAuthClient

	SyncRunStaleAfter time.Duration
	SyncInterval      time.Duration

	ChatbotURL      string
	ChatbotAPIKey   string
	ChatbotModel    string
	ChatHistorySize int

	PosthogAPIKey    string
	PosthogEndpoint  string
	DisableTelemetry bool
}

// RedirectURL is the OAuth callback the frontend serves for every provider.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.FrontendURL, "/") + "/integrations/callback"
}

// FromEnv builds a Config from the environment, applying defaults and
// validating what cannot be defaulted.
func FromEnv() (*Config, error) {
	cfg := Config{
		Addr:             envOr("MONA_ADDR", defaultAddr),
		DatabaseDriver:   envOr("MONA_DB_DRIVER", defaultDatabaseDriver),
		DatabasePath:     envOr("MONA_DB_PATH", defaultDatabasePath),
		DatabaseDSN:      os.Getenv("MONA_DB_DSN"),
		EncryptionKey:    []byte(os.Getenv("ENCRYPTION_KEY")),
		JWTSecret:        []byte(os.Getenv("JWT_SECRET")),
		FrontendURL:      envOr("FRONTEND_URL", "http://localhost:3000"),
		Google:           clientFromEnv("GOOGLE"),
		Microsoft:        clientFromEnv("MICROSOFT"),
		GitHub:           clientFromEnv("GITHUB"),
		Slack:            clientFromEnv("SLACK"),
		Calendly:         clientFromEnv("CALENDLY"),
		ChatbotURL:       os.Getenv("CHATBOT_API_URL"),
		ChatbotAPIKey:    os.Getenv("CHATBOT_API_KEY"),
		ChatbotModel:     envOr("CHATBOT_MODEL", defaultChatbotModel),
		ChatHistorySize:  defaultChatHistorySize,
		PosthogAPIKey:    os.Getenv("POSTHOG_API_KEY"),
		PosthogEndpoint:  os.Getenv("POSTHOG_ENDPOINT"),
		DisableTelemetry: boolEnv("DISABLE_TELEMETRY"),
	}

	var err error

	cfg.SyncRunStaleAfter, err = durationEnv("SYNC_RUN_STALE_AFTER", defaultSyncStaleAfter)
	if err != nil {
		return nil, err
	}

	cfg.SyncInterval, err = durationEnv("SYNC_INTERVAL", defaultSyncInterval)
	if err != nil {
		return nil, err
	}

	if n := os.Getenv("CHAT_HISTORY_SIZE"); n != "" {
		size, err := strconv.Atoi(n)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid CHAT_HISTORY_SIZE %q", n)
		}

		cfg.ChatHistorySize = size
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("MONA_DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("MONA_DB_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}

	if len(c.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.SyncRunStaleAfter <= 0 {
		return fmt.Errorf("SYNC_RUN_STALE_AFTER must be positive")
	}

	return nil
}

func clientFromEnv(prefix string) OAuthClient {
	return OAuthClient{
		ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func boolEnv(key string) bool {
	v := os.Getenv(key)

	return strings.EqualFold(v, "true") || v == "1"
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}

	return d, nil
}
