package config

import (
	"time"

	"golang.org/x/oauth2/google"
)

const (
	// DefaultRedirectURL is the loopback redirect registered for the desktop client.
	DefaultRedirectURL = "http://localhost:8085/"

	// DefaultUserInfoURL is Google's OpenID Connect userinfo endpoint.
	DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	// PubSubScope grants access to Cloud Pub/Sub.
	PubSubScope = "https://www.googleapis.com/auth/pubsub"

	// DefaultCallbackTimeout is how long to wait for the user to finish in the browser.
	DefaultCallbackTimeout = 5 * time.Minute

	// DefaultHTTPTimeout bounds each outbound call to the identity provider.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"
)

// DefaultScopes returns the scopes requested when none are configured.
func DefaultScopes() []string {
	return []string{"openid", "email", PubSubScope}
}

// GetDefaultConfig returns the default configuration. The client ID is left
// empty: every installation registers its own OAuth client.
func GetDefaultConfig() Config {
	return Config{
		OAuth: OAuthConfig{
			RedirectURL: DefaultRedirectURL,
			Scopes:      DefaultScopes(),
			AuthURL:     google.Endpoint.AuthURL,
			TokenURL:    google.Endpoint.TokenURL,
			UserInfoURL: DefaultUserInfoURL,
		},
		Auth: AuthSettings{
			CallbackTimeout: DefaultCallbackTimeout,
			HTTPTimeout:     DefaultHTTPTimeout,
		},
		Logging: LoggingSettings{
			Level: DefaultLogLevel,
		},
	}
}

// applyDefaults fills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	def := GetDefaultConfig()
	if cfg.OAuth.RedirectURL == "" {
		cfg.OAuth.RedirectURL = def.OAuth.RedirectURL
	}
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = def.OAuth.Scopes
	}
	if cfg.OAuth.AuthURL == "" {
		cfg.OAuth.AuthURL = def.OAuth.AuthURL
	}
	if cfg.OAuth.TokenURL == "" {
		cfg.OAuth.TokenURL = def.OAuth.TokenURL
	}
	if cfg.OAuth.UserInfoURL == "" {
		cfg.OAuth.UserInfoURL = def.OAuth.UserInfoURL
	}
	if cfg.Auth.CallbackTimeout == 0 {
		cfg.Auth.CallbackTimeout = def.Auth.CallbackTimeout
	}
	if cfg.Auth.HTTPTimeout == 0 {
		cfg.Auth.HTTPTimeout = def.Auth.HTTPTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}
