package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"pubsubdesk/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	var errs ValidationErrors
	if err := c.OAuth.Validate(); err != nil {
		if ve, ok := err.(ValidationErrors); ok {
			errs = append(errs, ve...)
		} else {
			errs.Add("oauth", err.Error())
		}
	}
	if c.Auth.CallbackTimeout <= 0 {
		errs.Add("auth.callbackTimeout", "must be positive", c.Auth.CallbackTimeout)
	}
	if c.Auth.HTTPTimeout <= 0 {
		errs.Add("auth.httpTimeout", "must be positive", c.Auth.HTTPTimeout)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs.Add("logging.level", err.Error(), c.Logging.Level)
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Validate checks the client registration. The secret is optional.
func (c OAuthConfig) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.ClientID) == "" {
		errs.Add("oauth.clientID", "is required")
	}

	validateRedirectURL(&errs, c)

	if len(c.Scopes) == 0 {
		errs.Add("oauth.scopes", "must have at least one scope")
	}
	for i, s := range c.Scopes {
		if strings.TrimSpace(s) == "" {
			errs.Add(fmt.Sprintf("oauth.scopes[%d]", i), "must not be empty")
		}
	}

	validateEndpoint(&errs, "oauth.authURL", c.AuthURL, true)
	validateEndpoint(&errs, "oauth.tokenURL", c.TokenURL, true)
	validateEndpoint(&errs, "oauth.userInfoURL", c.UserInfoURL, false)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateRedirectURL(errs *ValidationErrors, c OAuthConfig) {
	const field = "oauth.redirectURL"
	if c.RedirectURL == "" {
		errs.Add(field, "is required")
		return
	}
	u, err := url.Parse(c.RedirectURL)
	if err != nil {
		errs.Add(field, "is not a valid URL", c.RedirectURL)
		return
	}
	if u.Scheme != "http" {
		errs.Add(field, "must use the http scheme for a loopback listener", c.RedirectURL)
	}
	if !isLoopbackHost(u.Hostname()) {
		errs.Add(field, "must point at localhost or a loopback address", c.RedirectURL)
	}
	if _, err := c.RedirectPort(); err != nil {
		errs.Add(field, err.Error(), c.RedirectURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		errs.Add(field, "must not carry a query or fragment", c.RedirectURL)
	}
}

func validateEndpoint(errs *ValidationErrors, field, raw string, required bool) {
	if raw == "" {
		if required {
			errs.Add(field, "is required")
		}
		return
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		errs.Add(field, "must be an absolute http(s) URL", raw)
	}
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
