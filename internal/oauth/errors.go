package oauth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies authentication failures so callers can decide what to
// tell the user and whether a retry makes sense.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConfig is a malformed OAuthConfig. Fatal, not retried.
	KindConfig
	// KindRandom is a failure of the secure random source.
	KindRandom
	// KindListenerBind means the callback port could not be bound.
	KindListenerBind
	// KindBrowserLaunch means the system browser could not be opened.
	KindBrowserLaunch
	// KindProviderDenied is an error redirect from the provider, e.g. declined consent.
	KindProviderDenied
	// KindStateMismatch is a callback whose state does not match the attempt.
	KindStateMismatch
	// KindTimeout covers callback timeout, cancellation and external stop.
	KindTimeout
	// KindTokenExchange means the provider rejected the code/verifier pair.
	KindTokenExchange
	// KindIdentityLookup is a failed identity lookup. Authenticate absorbs it.
	KindIdentityLookup
	// KindRefresh means the refresh token is missing, invalid or revoked.
	KindRefresh
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindRandom:
		return "random source"
	case KindListenerBind:
		return "listener bind"
	case KindBrowserLaunch:
		return "browser launch"
	case KindProviderDenied:
		return "provider denied"
	case KindStateMismatch:
		return "state mismatch"
	case KindTimeout:
		return "timeout"
	case KindTokenExchange:
		return "token exchange"
	case KindIdentityLookup:
		return "identity lookup"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

var (
	// ErrStateMismatch is wrapped by callback failures whose state did not match.
	ErrStateMismatch = errors.New("state mismatch - possible CSRF attack")

	// ErrListenerStopped is returned by WaitForCallback after Stop.
	ErrListenerStopped = errors.New("callback listener stopped")

	// ErrNoRefreshToken is returned by RefreshToken when there is nothing to refresh with.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// AuthError is a classified authentication failure.
type AuthError struct {
	Kind ErrorKind

	// Op names the step that failed, e.g. "start callback listener".
	Op string

	// Detail is the user-facing message. When empty, Err's text is used.
	Detail string

	Err error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := e.Detail
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	if msg == "" {
		return e.Op + " failed"
	}
	return e.Op + ": " + msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *AuthError) Unwrap() error {
	return e.Err
}

func newAuthError(kind ErrorKind, op string, err error) *AuthError {
	return &AuthError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the ErrorKind of the first AuthError in err's chain.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an AuthError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ProviderError is an error redirect from the authorization endpoint.
type ProviderError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s - %s", e.Code, e.Description)
	}
	return e.Code
}

// IsAccessDenied reports whether the user declined consent.
func (e *ProviderError) IsAccessDenied() bool {
	return e.Code == "access_denied"
}
