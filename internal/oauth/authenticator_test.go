package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"pubsubdesk/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestAuthenticator(t *testing.T, cfg config.OAuthConfig, opts ...Option) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(cfg, opts...)
	require.NoError(t, err)
	return a
}

func authenticate(t *testing.T, a *Authenticator) *AuthenticateResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result := a.Authenticate(ctx)
	require.NotNil(t, result)
	return result
}

func TestNewAuthenticator_InvalidConfig(t *testing.T) {
	p := newFakeProvider(t)

	tests := []struct {
		name   string
		modify func(*config.OAuthConfig)
	}{
		{name: "missing client id", modify: func(c *config.OAuthConfig) { c.ClientID = "" }},
		{name: "non-loopback redirect", modify: func(c *config.OAuthConfig) { c.RedirectURL = "http://example.com:8085/" }},
		{name: "redirect without port", modify: func(c *config.OAuthConfig) { c.RedirectURL = "http://localhost/" }},
		{name: "no scopes", modify: func(c *config.OAuthConfig) { c.Scopes = nil }},
		{name: "relative token url", modify: func(c *config.OAuthConfig) { c.TokenURL = "/token" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testOAuthConfig(t, p)
			tt.modify(&cfg)

			a, err := NewAuthenticator(cfg)
			assert.Nil(t, a)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindConfig))
		})
	}
}

func TestAuthenticate_Success(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	browser := newFakeBrowser(t, p, approve)
	phases := &phaseRecorder{}

	a := newTestAuthenticator(t, cfg,
		WithBrowser(browser),
		WithUserAgent("pubsubdesk/test"),
		WithPhaseObserver(phases.observe),
	)

	result := authenticate(t, a)
	require.True(t, result.Success, result.ErrorMessage())
	assert.NoError(t, result.Err)
	require.NotNil(t, result.Token)
	assert.Equal(t, "access-1", result.Token.AccessToken)
	assert.Equal(t, "refresh-1", result.Token.RefreshToken)
	assert.Equal(t, "Bearer", result.Token.TokenType)
	assert.False(t, result.Token.IsExpired())
	assert.Equal(t, testEmail, result.UserEmail)
	assert.Equal(t, testCode, result.Code)
	assert.Empty(t, result.ErrorMessage())

	assert.Equal(t, []Phase{
		PhaseGeneratingChallenge,
		PhaseListenerStarting,
		PhaseAwaitingBrowserRedirect,
		PhaseAwaitingCallback,
		PhaseExchangingCode,
		PhaseResolvingIdentity,
		PhaseSucceeded,
	}, phases.list())

	forms := p.forms()
	require.Len(t, forms, 1)
	p.mu.Lock()
	assert.Equal(t, "pubsubdesk/test", p.userAgents[0])
	p.mu.Unlock()

	verifier := forms[0].Get("code_verifier")
	require.NotEmpty(t, verifier)
	assert.Equal(t, cfg.ClientID, forms[0].Get("client_id"))
	assert.Equal(t, cfg.RedirectURL, forms[0].Get("redirect_uri"))

	requirePortFree(t, a.listenAddr)
}

func TestAuthenticate_AuthorizationURL(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	browser := newFakeBrowser(t, p, approve)

	result := authenticate(t, newTestAuthenticator(t, cfg, WithBrowser(browser)))
	require.True(t, result.Success, result.ErrorMessage())

	u := browser.lastURL()
	q := u.Query()
	assert.Equal(t, p.URL+"/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, cfg.ClientID, q.Get("client_id"))
	assert.Equal(t, cfg.RedirectURL, q.Get("redirect_uri"))
	assert.Equal(t, strings.Join(cfg.Scopes, " "), q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Len(t, q.Get("state"), 22)
	assert.False(t, q.Has("code_verifier"))
	assert.Equal(t, result.AuthURL, u.String())

	// The challenge is S256 of the verifier that only appears in the exchange.
	verifier := p.forms()[0].Get("code_verifier")
	assert.Equal(t, challengeFor(verifier), q.Get("code_challenge"))
	assert.NotContains(t, u.String(), verifier)
}

func TestAuthenticate_FreshValuesPerAttempt(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	browser := newFakeBrowser(t, p, approve)
	a := newTestAuthenticator(t, cfg, WithBrowser(browser))

	require.True(t, authenticate(t, a).Success)
	first := browser.lastURL().Query()
	require.True(t, authenticate(t, a).Success)
	second := browser.lastURL().Query()

	assert.NotEqual(t, first.Get("state"), second.Get("state"))
	assert.NotEqual(t, first.Get("code_challenge"), second.Get("code_challenge"))
}

func TestAuthenticate_StateMismatch(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	phases := &phaseRecorder{}

	a := newTestAuthenticator(t, cfg,
		WithBrowser(newFakeBrowser(t, p, wrongState)),
		WithPhaseObserver(phases.observe),
	)

	result := authenticate(t, a)
	assert.False(t, result.Success)
	assert.Nil(t, result.Token)
	assert.True(t, IsKind(result.Err, KindStateMismatch))
	assert.Contains(t, result.ErrorMessage(), "state mismatch")
	assert.NotContains(t, result.ErrorMessage(), testCode)
	assert.Zero(t, p.tokenCalls.Load(), "no exchange after a state mismatch")
	assert.Equal(t, PhaseFailed, phases.list()[len(phases.list())-1])

	requirePortFree(t, a.listenAddr)
}

func TestAuthenticate_ProviderDenied(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)

	result := authenticate(t, newTestAuthenticator(t, cfg, WithBrowser(newFakeBrowser(t, p, deny))))
	assert.False(t, result.Success)
	assert.True(t, IsKind(result.Err, KindProviderDenied))
	assert.Contains(t, result.ErrorMessage(), "authentication was not completed")
	assert.Contains(t, result.ErrorMessage(), "access_denied")
	assert.Zero(t, p.tokenCalls.Load())
}

func TestAuthenticate_BrowserFailure(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	browser := newFakeBrowser(t, p, approve)
	browser.openErr = errors.New("failed to open browser: no graphical session")

	a := newTestAuthenticator(t, cfg, WithBrowser(browser))

	start := time.Now()
	result := authenticate(t, a)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.False(t, result.Success)
	assert.True(t, IsKind(result.Err, KindBrowserLaunch))
	require.NotEmpty(t, result.AuthURL)
	assert.Contains(t, result.ErrorMessage(), result.AuthURL)
	assert.Contains(t, result.ErrorMessage(), "no graphical session")

	requirePortFree(t, a.listenAddr)
}

func TestAuthenticate_ManualFallback(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	browser := newFakeBrowser(t, p, approve)
	browser.openErr = errors.New("xdg-open not found")

	var shown string
	a := newTestAuthenticator(t, cfg,
		WithBrowser(browser),
		WithManualURLFallback(func(authURL string) {
			shown = authURL
			// The user opens the URL by hand.
			browser.follow(authURL)
		}),
	)

	result := authenticate(t, a)
	require.True(t, result.Success, result.ErrorMessage())
	assert.Equal(t, result.AuthURL, shown)
	assert.Equal(t, testEmail, result.UserEmail)
}

func TestAuthenticate_CallbackTimeout(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)

	a := newTestAuthenticator(t, cfg,
		WithBrowser(newFakeBrowser(t, p, nil)),
		WithCallbackTimeout(150*time.Millisecond),
	)

	start := time.Now()
	result := authenticate(t, a)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, result.Success)
	assert.True(t, IsKind(result.Err, KindTimeout))
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)

	requirePortFree(t, a.listenAddr)
}

func TestAuthenticate_Cancellation(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	browser := newFakeBrowser(t, p, nil)
	a := newTestAuthenticator(t, cfg, WithBrowser(browser))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *AuthenticateResult, 1)
	go func() { done <- a.Authenticate(ctx) }()

	<-browser.opened
	cancel()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.True(t, IsKind(result.Err, KindTimeout))
		assert.ErrorIs(t, result.Err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Authenticate did not return after cancellation")
	}
	requirePortFree(t, a.listenAddr)
}

func TestAuthenticate_ConcurrentAttemptsConflict(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	browser := newFakeBrowser(t, p, nil)
	a := newTestAuthenticator(t, cfg, WithBrowser(browser))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan *AuthenticateResult, 1)
	go func() { done <- a.Authenticate(ctx) }()
	<-browser.opened

	second := authenticate(t, a)
	assert.False(t, second.Success)
	assert.True(t, IsKind(second.Err, KindListenerBind))
	assert.Contains(t, second.ErrorMessage(), "another sign-in may still be running")

	cancel()
	first := <-done
	assert.True(t, IsKind(first.Err, KindTimeout))
}

func TestAuthenticate_TokenExchangeRejected(t *testing.T) {
	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	browser := newFakeBrowser(t, p, func(u *url.URL) url.Values {
		return url.Values{"code": {"stale-code"}, "state": {u.Query().Get("state")}}
	})

	result := authenticate(t, newTestAuthenticator(t, cfg, WithBrowser(browser)))
	assert.False(t, result.Success)
	assert.Nil(t, result.Token)
	assert.True(t, IsKind(result.Err, KindTokenExchange))
	assert.Contains(t, result.ErrorMessage(), "invalid_grant")
	assert.Contains(t, result.ErrorMessage(), "Malformed auth code.")

	var re *oauth2.RetrieveError
	assert.True(t, errors.As(result.Err, &re))
}

func TestAuthenticate_MissingAccessToken(t *testing.T) {
	p := newFakeProvider(t)
	p.omitAccessToken = true
	cfg := testOAuthConfig(t, p)

	result := authenticate(t, newTestAuthenticator(t, cfg, WithBrowser(newFakeBrowser(t, p, approve))))
	assert.False(t, result.Success)
	assert.True(t, IsKind(result.Err, KindTokenExchange))
}

func TestAuthenticate_IdentityFallsBackToIDToken(t *testing.T) {
	p := newFakeProvider(t)
	p.userinfoStatus = http.StatusInternalServerError
	p.idTokenEmail = "from-id-token@example.com"
	cfg := testOAuthConfig(t, p)

	result := authenticate(t, newTestAuthenticator(t, cfg, WithBrowser(newFakeBrowser(t, p, approve))))
	require.True(t, result.Success, result.ErrorMessage())
	assert.Equal(t, "from-id-token@example.com", result.UserEmail)
	assert.NotEmpty(t, result.Token.IDToken)
}

func TestAuthenticate_IdentityUnknown(t *testing.T) {
	p := newFakeProvider(t)
	p.userinfoStatus = http.StatusInternalServerError
	cfg := testOAuthConfig(t, p)

	result := authenticate(t, newTestAuthenticator(t, cfg, WithBrowser(newFakeBrowser(t, p, approve))))
	require.True(t, result.Success, result.ErrorMessage())
	assert.Equal(t, UnknownIdentity, result.UserEmail)
	assert.Equal(t, "access-1", result.Token.AccessToken)
	assert.Equal(t, int32(1), p.userinfoCalls.Load())
}

func TestAuthenticate_RandomSourceFailure(t *testing.T) {
	original := randReader
	randReader = failingReader{}
	t.Cleanup(func() { randReader = original })

	p := newFakeProvider(t)
	cfg := testOAuthConfig(t, p)
	browser := newFakeBrowser(t, p, approve)

	result := authenticate(t, newTestAuthenticator(t, cfg, WithBrowser(browser)))
	assert.False(t, result.Success)
	assert.True(t, IsKind(result.Err, KindRandom))
	assert.Empty(t, result.AuthURL)
	assert.Empty(t, browser.urls, "browser must not open without a challenge")
}
