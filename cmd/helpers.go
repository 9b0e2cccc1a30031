package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"pubsubdesk/internal/config"
	"pubsubdesk/internal/oauth"
	"pubsubdesk/pkg/logging"

	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// loadConfig loads and validates the configuration, then switches logging
// to the configured level.
func (a *app) loadConfig(errOut io.Writer) (config.Config, error) {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return cfg, err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.InitForCLI(level, errOut)
	return cfg, nil
}

// newAuthenticator creates an Authenticator wired to this build and config.
// Options in extra are applied last.
func (a *app) newAuthenticator(cfg config.Config, extra ...oauth.Option) (*oauth.Authenticator, error) {
	opts := []oauth.Option{
		oauth.WithHTTPClient(&http.Client{Timeout: cfg.Auth.HTTPTimeout}),
		oauth.WithUserAgent(a.info.UserAgent()),
		oauth.WithCallbackTimeout(cfg.Auth.CallbackTimeout),
	}
	if a.browser != nil {
		opts = append(opts, oauth.WithBrowser(a.browser))
	}
	return oauth.NewAuthenticator(cfg.OAuth, append(opts, extra...)...)
}

func validateOutputFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported output format %q (supported: %v)", format, allowed)
}

// readToken reads a JSON token from path, or from in when path is "-".
func readToken(path string, in io.Reader) (*oauth.Token, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &AuthRequiredError{Reason: fmt.Sprintf("token file %s does not exist", path)}
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var tok oauth.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if tok.AccessToken == "" && !tok.HasRefreshToken() {
		return nil, &AuthRequiredError{Reason: "token has neither an access token nor a refresh token"}
	}
	return &tok, nil
}

// writeStructured prints v as JSON or YAML.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiry formats a token expiry as "in X" or "expired X ago".
func formatExpiry(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "never"
	}
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}

func formatRefresh(tok *oauth.Token) string {
	if tok.HasRefreshToken() {
		return text.FgGreen.Sprint("Available")
	}
	return text.FgYellow.Sprint("Not available (sign in again on expiry)")
}
