// Package logging provides the subsystem-tagged structured logger used across
// pubsubdesk.
//
// It is a thin layer over log/slog with two output modes:
//
//   - CLI mode writes text records to an io.Writer (usually stderr).
//   - GUI mode delivers LogEntry values on a buffered channel so a desktop
//     front end can render them without ever blocking the caller. When the
//     channel is full the entry is dropped and a notice is written to stderr.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("OAuth", "Authentication attempt %s started", attemptID)
//	logging.Warn("CallbackServer", "Ignoring request to %s", r.URL.Path)
//	logging.Error("OAuth", err, "Token exchange failed")
//
// Every record carries a "subsystem" attribute. The subsystems used by the
// authentication flow are OAuth, CallbackServer, ConfigLoader and CLI.
//
// Secrets (authorization codes, PKCE verifiers, state values, tokens) must
// never be passed to this package; log their length instead.
package logging
