package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the application. By centralizing these
// settings, we make the application easier to manage and deploy.
type Config struct {
	// --- Server & Paths ---
	ServerAddr  string `env:"SERVER_ADDR" envDefault:":8080"`
	DataPath    string `env:"DATA_PATH" envDefault:"./data"`
	FrontendURL string `env:"FRONTEND_URL"`
	DbPath      string `env:"-"`
	AvatarPath  string `env:"-"`

	// --- Security ---
	JwtSecret string `env:"JWT_SECRET"`

	// --- Email (SMTP) ---
	// An empty SmtpHost disables email delivery entirely.
	SmtpHost   string `env:"SMTP_HOST"`
	SmtpPort   int    `env:"SMTP_PORT" envDefault:"587"`
	SmtpUser   string `env:"SMTP_USER"`
	SmtpPass   string `env:"SMTP_PASS"`
	SmtpSender string `env:"SMTP_SENDER"`

	// --- Google OAuth 2.0 ---
	GoogleOauthClientID     string `env:"GOOGLE_OAUTH_CLIENT_ID"`
	GoogleOauthClientSecret string `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	GoogleOauthRedirectURL  string `env:"GOOGLE_OAUTH_REDIRECT_URL"`

	// --- AI Assistant ---
	OpenAIAPIKey           string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL          string        `env:"OPENAI_BASE_URL"`
	AssistantModel         string        `env:"ASSISTANT_MODEL" envDefault:"gpt-4o-mini"`
	AssistantMaxTokens     int           `env:"ASSISTANT_MAX_TOKENS" envDefault:"500"`
	AssistantHistoryTurns  int           `env:"ASSISTANT_HISTORY_TURNS" envDefault:"0"`
	AssistantTimeout       time.Duration `env:"ASSISTANT_TIMEOUT" envDefault:"30s"`
	AssistantRatePerMinute int           `env:"ASSISTANT_RATE_PER_MINUTE" envDefault:"10"`

	// --- Club Defaults ---
	DefaultSchoolName   string `env:"DEFAULT_SCHOOL_NAME" envDefault:"School No. 1"`
	DefaultClubImageURL string `env:"DEFAULT_CLUB_IMAGE_URL" envDefault:"https://images.unsplash.com/photo-1522202176988-66273c2fd55f?w=400"`

	// Parsed version of FrontendURL, used for CORS and the SSE origin header.
	ParsedFrontendURL *url.URL `env:"-"`
}

// New creates a new Config instance by loading values from environment variables.
// It validates that critical variables are present and will return an error if
// the configuration is invalid, preventing the server from starting.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	parsedURL, err := url.Parse(cfg.FrontendURL)
	if err != nil {
		return nil, errors.New("FATAL: Invalid FRONTEND_URL format")
	}
	cfg.ParsedFrontendURL = parsedURL

	cfg.DbPath = filepath.Join(cfg.DataPath, "databases")
	cfg.AvatarPath = filepath.Join(cfg.DataPath, "avatars")

	return cfg, nil
}

// validate makes the application "fail fast" when a critical value is missing.
func (c *Config) validate() error {
	if c.JwtSecret == "" {
		return errors.New("FATAL: JWT_SECRET environment variable is not set")
	}
	if c.FrontendURL == "" {
		return errors.New("FATAL: FRONTEND_URL environment variable is not set")
	}
	// Google login is optional, but a half-configured client is a mistake.
	if (c.GoogleOauthClientID == "") != (c.GoogleOauthClientSecret == "") {
		return errors.New("FATAL: Google OAuth credentials are only partially set")
	}
	if c.AssistantMaxTokens <= 0 {
		return errors.New("FATAL: ASSISTANT_MAX_TOKENS must be positive")
	}
	if c.AssistantHistoryTurns < 0 {
		return errors.New("FATAL: ASSISTANT_HISTORY_TURNS must not be negative")
	}
	if c.AssistantRatePerMinute <= 0 {
		return errors.New("FATAL: ASSISTANT_RATE_PER_MINUTE must be positive")
	}
	return nil
}

// GoogleLoginEnabled reports whether the Google OAuth flow is configured.
func (c *Config) GoogleLoginEnabled() bool {
	return c.GoogleOauthClientID != "" && c.GoogleOauthClientSecret != ""
}

// EmailEnabled reports whether SMTP delivery is configured.
func (c *Config) EmailEnabled() bool {
	return c.SmtpHost != ""
}
