package oauth

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is subtracted from the expiry when checking a token,
// to absorb clock skew and request latency.
const DefaultExpiryMargin = 30 * time.Second

// UnknownIdentity is reported when the authenticated user's email could not
// be resolved.
const UnknownIdentity = "unknown"

// Token is a delegated credential issued by the identity provider. The caller
// owns it; persisting it is the caller's responsibility.
type Token struct {
	AccessToken  string    `json:"access_token" yaml:"accessToken"`
	RefreshToken string    `json:"refresh_token,omitempty" yaml:"refreshToken,omitempty"`
	TokenType    string    `json:"token_type,omitempty" yaml:"tokenType,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty" yaml:"expiry,omitempty"`

	// IDToken is the OpenID Connect ID token, when the openid scope was granted.
	IDToken string `json:"id_token,omitempty" yaml:"idToken,omitempty"`
}

// IsExpired reports whether the token has expired or will within DefaultExpiryMargin.
// Tokens without an expiry never expire.
func (t *Token) IsExpired() bool {
	if t == nil {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(DefaultExpiryMargin).After(t.Expiry)
}

// HasRefreshToken reports whether the token can be refreshed without user interaction.
func (t *Token) HasRefreshToken() bool {
	return t != nil && strings.TrimSpace(t.RefreshToken) != ""
}

// ToOAuth2Token converts to the golang.org/x/oauth2 representation.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	if t == nil {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
	if t.IDToken != "" {
		tok = tok.WithExtra(map[string]interface{}{"id_token": t.IDToken})
	}
	return tok
}

// TokenFromOAuth2 converts a golang.org/x/oauth2 token, carrying over the
// id_token extra when present.
func TokenFromOAuth2(tok *oauth2.Token) *Token {
	if tok == nil {
		return nil
	}
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = id
	}
	return out
}

// String never prints credential material.
func (t *Token) String() string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Token{type=%s, access=[REDACTED], refresh=%t, expiry=%s}",
		t.TokenType, t.HasRefreshToken(), t.Expiry.Format(time.RFC3339))
}

// GoString keeps %#v from leaking credentials too.
func (t *Token) GoString() string {
	return "oauth." + t.String()
}

// AuthenticateResult is the outcome of one Authenticate call. It is never
// modified after Authenticate returns.
type AuthenticateResult struct {
	Success bool

	// Err is set when Success is false. Use KindOf to classify it.
	Err error

	// Token is set when Success is true and always has an access token.
	Token *Token

	// UserEmail is the resolved identity, or UnknownIdentity.
	UserEmail string

	// Code is the authorization code that was exchanged. It is single-use
	// and already spent by the time the result is returned.
	Code string

	// AuthURL is the authorization URL of the attempt, for display when
	// the browser could not be opened.
	AuthURL string
}

// ErrorMessage returns the user-facing error text, or "" on success.
func (r *AuthenticateResult) ErrorMessage() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func failed(err error, authURL string) *AuthenticateResult {
	return &AuthenticateResult{Err: err, AuthURL: authURL}
}

// Phase is a step of a single Authenticate attempt.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGeneratingChallenge
	PhaseListenerStarting
	PhaseAwaitingBrowserRedirect
	PhaseAwaitingCallback
	PhaseExchangingCode
	PhaseResolvingIdentity
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGeneratingChallenge:
		return "generating challenge"
	case PhaseListenerStarting:
		return "starting callback listener"
	case PhaseAwaitingBrowserRedirect:
		return "opening browser"
	case PhaseAwaitingCallback:
		return "waiting for browser sign-in"
	case PhaseExchangingCode:
		return "exchanging authorization code"
	case PhaseResolvingIdentity:
		return "resolving identity"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether p ends an attempt.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}
