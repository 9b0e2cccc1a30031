package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"pubsubdesk/pkg/logging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
)

// RefreshToken obtains a new access token with old's refresh token. It
// makes no network call when old has no refresh token. A KindRefresh error
// for which RequiresReauth is true means the caller must run Authenticate.
//
// Concurrent calls with the same refresh token share a single request to
// the token endpoint and receive the same result.
func (a *Authenticator) RefreshToken(ctx context.Context, old *Token) (*Token, error) {
	if !old.HasRefreshToken() {
		return nil, newAuthError(KindRefresh, "refresh token", ErrNoRefreshToken)
	}

	ctx, span := a.tracer.Start(ctx, "oauth.RefreshToken")
	defer span.End()

	sum := sha256.Sum256([]byte(old.RefreshToken))
	key := hex.EncodeToString(sum[:])

	v, err, shared := a.refreshGroup.Do(key, func() (interface{}, error) {
		return a.refresh(a.withHTTPClient(ctx), old)
	})
	span.SetAttributes(attribute.Bool("auth.refresh_shared", shared))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return nil, err
	}

	// Each caller gets its own copy.
	tok := *v.(*Token)
	return &tok, nil
}

func (a *Authenticator) refresh(ctx context.Context, old *Token) (*Token, error) {
	// An empty access token is never valid, so the source always hits the
	// token endpoint with grant_type=refresh_token.
	src := a.oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: old.RefreshToken})

	fresh, err := src.Token()
	if err != nil {
		logging.Warn("OAuth", "Token refresh failed: %s", providerDetail(err))
		return nil, &AuthError{
			Kind:   KindRefresh,
			Op:     "refresh token",
			Detail: providerDetail(err),
			Err:    err,
		}
	}
	if fresh.AccessToken == "" {
		return nil, newAuthError(KindRefresh, "refresh token", errors.New("token response has no access token"))
	}

	tok := TokenFromOAuth2(fresh)
	if tok.RefreshToken == "" {
		tok.RefreshToken = old.RefreshToken
	}
	if tok.IDToken == "" {
		tok.IDToken = old.IDToken
	}
	logging.Debug("OAuth", "Access token refreshed, expires %s", tok.Expiry.Format("15:04:05"))
	return tok, nil
}

// RequiresReauth reports whether err means the refresh token is unusable
// (missing, expired or revoked) and a full Authenticate is needed.
func RequiresReauth(err error) bool {
	if !IsKind(err, KindRefresh) {
		return false
	}
	if errors.Is(err, ErrNoRefreshToken) {
		return true
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "unauthorized_client" {
			return true
		}
		return re.Response != nil && re.Response.StatusCode >= http.StatusBadRequest &&
			re.Response.StatusCode < http.StatusInternalServerError
	}
	return false
}
