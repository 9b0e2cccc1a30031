// Package oauth implements the desktop sign-in flow of pubsubdesk: OAuth 2.0
// authorization code grant with PKCE (RFC 7636) over a loopback redirect
// (RFC 8252).
//
// # Flow
//
// Authenticator.Authenticate performs one attempt:
//
//  1. generate a PKCE verifier/challenge pair and a CSRF state value
//  2. bind the CallbackServer on the fixed port of the configured redirect URL
//  3. open the system browser at the authorization URL (challenge only)
//  4. wait for the redirect, a timeout, or cancellation
//  5. exchange the code together with the verifier at the token endpoint
//  6. resolve the user's email for display, falling back to "unknown"
//
// The listener is bound before the browser is launched and stopped on every
// exit path. Nothing survives an attempt except the immutable configuration.
//
// Authenticator.RefreshToken trades a refresh token for a new access token
// without a listener, browser or user interaction.
//
// # Errors
//
// Failures are *AuthError values classified by ErrorKind. Use KindOf or
// IsKind to branch on them and RequiresReauth after a failed refresh. The
// package never retries on its own; the user decides whether to try again.
//
// # Usage
//
//	auth, err := oauth.NewAuthenticator(cfg.OAuth,
//	    oauth.WithUserAgent(info.UserAgent()),
//	    oauth.WithCallbackTimeout(cfg.Auth.CallbackTimeout),
//	)
//	if err != nil {
//	    return err
//	}
//	res := auth.Authenticate(ctx)
//	if !res.Success {
//	    return res.Err
//	}
//	fmt.Println("signed in as", res.UserEmail)
package oauth
