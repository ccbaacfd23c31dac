// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/curhatin/companion/internal/domain"
)

// maxPollWait is the longest a poll may block upstream.
const maxPollWait = 30 * time.Second

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`
	DBPath      string `env:"DB_PATH" envDefault:"./data/curhatin.db"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MaxRequestBodySize int64    `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	Parlant     ParlantConfig
	Turnstile   TurnstileConfig
	Wishlist    WishlistConfig
	RateLimit   RateLimitConfig
	Chat        ChatConfig
	Maintenance MaintenanceConfig
}

// ParlantConfig points at the conversational-agent platform.
type ParlantConfig struct {
	ServerURL      string        `env:"PARLANT_SERVER_URL"`
	AgentIDEnglish string        `env:"PARLANT_AGENT_ID_EN"`
	AgentIDIndo    string        `env:"PARLANT_AGENT_ID_ID"`
	RequestTimeout time.Duration `env:"PARLANT_REQUEST_TIMEOUT" envDefault:"45s"`
}

// TurnstileConfig controls bot verification.
type TurnstileConfig struct {
	SecretKey string `env:"TURNSTILE_SECRET_KEY"`
	SiteKey   string `env:"TURNSTILE_SITE_KEY"`
	VerifyURL string `env:"TURNSTILE_VERIFY_URL" envDefault:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
}

// WishlistConfig controls where wishlist signups are forwarded.
type WishlistConfig struct {
	WebhookURL string `env:"WISHLIST_WEBHOOK_URL"`
}

// RateLimitConfig holds per-endpoint-class request caps.
type RateLimitConfig struct {
	SessionRequests int           `env:"RATE_LIMIT_SESSION_REQUESTS" envDefault:"10"`
	EventRequests   int           `env:"RATE_LIMIT_EVENT_REQUESTS" envDefault:"30"`
	Window          time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
}

// ChatConfig bounds the relay and poller.
type ChatConfig struct {
	PollMaxWait      time.Duration `env:"POLL_MAX_WAIT" envDefault:"30s"`
	MessageMaxLength int           `env:"MESSAGE_MAX_LENGTH" envDefault:"2000"`
}

// MaintenanceConfig drives background jobs.
type MaintenanceConfig struct {
	Schedule         string        `env:"MAINTENANCE_SCHEDULE" envDefault:"@every 5m"`
	SessionRecordTTL time.Duration `env:"SESSION_RECORD_TTL" envDefault:"720h"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyLegacyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyLegacyFallbacks honours the variable names the site's frontend build
// exposed before the backend moved to Go.
func (c *Config) applyLegacyFallbacks() {
	if c.Parlant.ServerURL == "" {
		c.Parlant.ServerURL = os.Getenv("NEXT_PUBLIC_PARLANT_SERVER_URL")
	}
	if c.Parlant.AgentIDEnglish == "" {
		c.Parlant.AgentIDEnglish = os.Getenv("NEXT_PUBLIC_PARLANT_AGENT_ID_EN")
	}
	if c.Parlant.AgentIDIndo == "" {
		c.Parlant.AgentIDIndo = os.Getenv("NEXT_PUBLIC_PARLANT_AGENT_ID_ID")
	}
	if c.Wishlist.WebhookURL == "" {
		c.Wishlist.WebhookURL = os.Getenv("NEXT_PUBLIC_GOOGLE_SCRIPT_URL")
	}
}

// Validate checks that all required configuration fields are set.
// Platform credentials are deliberately not required here: a missing agent id
// fails the affected request, not the process.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RateLimit.SessionRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_SESSION_REQUESTS must be > 0")
	}
	if c.RateLimit.EventRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_EVENT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Chat.PollMaxWait < 0 || c.Chat.PollMaxWait > maxPollWait {
		return fmt.Errorf("POLL_MAX_WAIT must be between 0 and %s", maxPollWait)
	}
	if c.Chat.MessageMaxLength <= 0 {
		return fmt.Errorf("MESSAGE_MAX_LENGTH must be > 0")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	if c.Parlant.RequestTimeout <= c.Chat.PollMaxWait {
		return fmt.Errorf("PARLANT_REQUEST_TIMEOUT (%s) must exceed POLL_MAX_WAIT (%s)", c.Parlant.RequestTimeout, c.Chat.PollMaxWait)
	}
	return nil
}

// AgentIDs maps each language to its configured agent. Languages without an
// agent are omitted.
func (c *Config) AgentIDs() map[domain.Language]string {
	ids := make(map[domain.Language]string, 2)
	if c.Parlant.AgentIDIndo != "" {
		ids[domain.LanguageIndonesian] = c.Parlant.AgentIDIndo
	}
	if c.Parlant.AgentIDEnglish != "" {
		ids[domain.LanguageEnglish] = c.Parlant.AgentIDEnglish
	}
	return ids
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
