package cmd

import "fmt"

// AuthRequiredError indicates the command needs a usable token and has none.
type AuthRequiredError struct {
	// Reason says why the token is unusable.
	Reason string
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf(`Authentication required: %s

To sign in, run:
  pubsubdesk login --output json > token.json`, e.Reason)
}

// AuthFailedError indicates an interactive sign-in did not complete.
type AuthFailedError struct {
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthFailedError) Error() string {
	return fmt.Sprintf(`Sign-in failed: %v

To retry, run:
  pubsubdesk login`, e.Reason)
}

// Unwrap returns the underlying error.
func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}
