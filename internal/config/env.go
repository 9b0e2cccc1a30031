package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envOverrides holds the raw environment values layered over the file config.
type envOverrides struct {
	ClientID        string        `env:"PUBSUBDESK_CLIENT_ID"`
	ClientSecret    string        `env:"PUBSUBDESK_CLIENT_SECRET"`
	RedirectURL     string        `env:"PUBSUBDESK_REDIRECT_URL"`
	Scopes          []string      `env:"PUBSUBDESK_SCOPES" envSeparator:","`
	CallbackTimeout time.Duration `env:"PUBSUBDESK_CALLBACK_TIMEOUT"`
	HTTPTimeout     time.Duration `env:"PUBSUBDESK_HTTP_TIMEOUT"`
	LogLevel        string        `env:"PUBSUBDESK_LOG_LEVEL"`
}

// ApplyEnv overlays PUBSUBDESK_* environment variables onto cfg. Unset
// variables leave the existing value untouched.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.ClientID != "" {
		cfg.OAuth.ClientID = o.ClientID
	}
	if o.ClientSecret != "" {
		cfg.OAuth.ClientSecret = o.ClientSecret
	}
	if o.RedirectURL != "" {
		cfg.OAuth.RedirectURL = o.RedirectURL
	}
	if len(o.Scopes) > 0 {
		cfg.OAuth.Scopes = o.Scopes
	}
	if o.CallbackTimeout != 0 {
		cfg.Auth.CallbackTimeout = o.CallbackTimeout
	}
	if o.HTTPTimeout != 0 {
		cfg.Auth.HTTPTimeout = o.HTTPTimeout
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return nil
}
