package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config is the top-level configuration structure for pubsubdesk.
type Config struct {
	OAuth   OAuthConfig     `yaml:"oauth"`
	Auth    AuthSettings    `yaml:"auth"`
	Logging LoggingSettings `yaml:"logging"`
}

// OAuthConfig is the static client registration with the identity provider.
// It is loaded once per authentication attempt and treated as immutable.
type OAuthConfig struct {
	ClientID string `yaml:"clientID"`

	// ClientSecret is optional. Desktop ("installed") clients registered with
	// Google still receive a secret, but it is not confidential.
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// RedirectURL is the loopback URL the callback listener serves. Its port
	// is the fixed port bound during authentication.
	RedirectURL string `yaml:"redirectURL"`

	Scopes []string `yaml:"scopes"`

	AuthURL     string `yaml:"authURL,omitempty"`
	TokenURL    string `yaml:"tokenURL,omitempty"`
	UserInfoURL string `yaml:"userInfoURL,omitempty"`
}

// AuthSettings tunes the interactive flow.
type AuthSettings struct {
	// CallbackTimeout bounds how long Authenticate waits for the browser redirect.
	CallbackTimeout time.Duration `yaml:"callbackTimeout,omitempty"`

	// HTTPTimeout bounds each call to the token and userinfo endpoints.
	HTTPTimeout time.Duration `yaml:"httpTimeout,omitempty"`
}

// LoggingSettings configures pkg/logging.
type LoggingSettings struct {
	Level string `yaml:"level,omitempty"`
}

// ParsedRedirectURL parses RedirectURL.
func (c OAuthConfig) ParsedRedirectURL() (*url.URL, error) {
	u, err := url.Parse(c.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %q: %w", c.RedirectURL, err)
	}
	return u, nil
}

// RedirectPort returns the explicit port of RedirectURL.
func (c OAuthConfig) RedirectPort() (int, error) {
	u, err := c.ParsedRedirectURL()
	if err != nil {
		return 0, err
	}
	p := u.Port()
	if p == "" {
		return 0, fmt.Errorf("redirect URL %q has no explicit port", c.RedirectURL)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("redirect URL %q has invalid port %q", c.RedirectURL, p)
	}
	return port, nil
}

// ListenAddr returns the local address the callback listener binds. The
// listener always binds the IPv4 loopback interface, whatever loopback name
// the redirect URL uses.
func (c OAuthConfig) ListenAddr() (string, error) {
	port, err := c.RedirectPort()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), nil
}
