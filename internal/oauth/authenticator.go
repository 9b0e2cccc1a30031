package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pubsubdesk/internal/config"
	"pubsubdesk/pkg/logging"
	pstrings "pubsubdesk/pkg/strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const tracerName = "pubsubdesk/internal/oauth"

// Authenticator runs the desktop authorization code flow with PKCE and
// refreshes the tokens it issues. An Authenticator holds no per-attempt
// state; every Authenticate call generates its own PKCE pair, state value
// and callback listener. Concurrent calls share the fixed callback port, so
// the second one fails with KindListenerBind while the first is running.
type Authenticator struct {
	oauth2Config *oauth2.Config
	listenAddr   string
	callbackPath string

	httpClient      *http.Client
	userAgent       string
	browser         BrowserOpener
	identity        IdentityResolver
	callbackTimeout time.Duration
	manualFallback  func(authURL string)
	observer        func(Phase)
	tracer          trace.Tracer

	refreshGroup singleflight.Group
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient sets the client used for the token and userinfo endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authenticator) {
		if c != nil {
			a.httpClient = c
		}
	}
}

// WithUserAgent sets the User-Agent of outbound requests.
func WithUserAgent(ua string) Option {
	return func(a *Authenticator) { a.userAgent = ua }
}

// WithBrowser replaces the system browser launcher.
func WithBrowser(b BrowserOpener) Option {
	return func(a *Authenticator) {
		if b != nil {
			a.browser = b
		}
	}
}

// WithIdentityResolver replaces the userinfo-based identity lookup.
func WithIdentityResolver(r IdentityResolver) Option {
	return func(a *Authenticator) {
		if r != nil {
			a.identity = r
		}
	}
}

// WithCallbackTimeout bounds the wait for the browser redirect.
func WithCallbackTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.callbackTimeout = d
		}
	}
}

// WithManualURLFallback keeps the listener running when the browser cannot
// be opened and hands the authorization URL to fn so the user can open it
// by hand. Without this option Authenticate fails immediately in that case.
func WithManualURLFallback(fn func(authURL string)) Option {
	return func(a *Authenticator) { a.manualFallback = fn }
}

// WithPhaseObserver registers fn to be called synchronously on every phase
// change. fn must return quickly.
func WithPhaseObserver(fn func(Phase)) Option {
	return func(a *Authenticator) { a.observer = fn }
}

// WithTracer sets the OpenTelemetry tracer. The global provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(a *Authenticator) {
		if t != nil {
			a.tracer = t
		}
	}
}

// NewAuthenticator validates cfg and returns an Authenticator for it.
func NewAuthenticator(cfg config.OAuthConfig, opts ...Option) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &AuthError{Kind: KindConfig, Op: "configure authenticator", Err: err}
	}

	listenAddr, err := cfg.ListenAddr()
	if err != nil {
		return nil, &AuthError{Kind: KindConfig, Op: "configure authenticator", Err: err}
	}
	redirect, err := cfg.ParsedRedirectURL()
	if err != nil {
		return nil, &AuthError{Kind: KindConfig, Op: "configure authenticator", Err: err}
	}
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	a := &Authenticator{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       append([]string(nil), cfg.Scopes...),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		listenAddr:      listenAddr,
		callbackPath:    callbackPath,
		httpClient:      &http.Client{Timeout: config.DefaultHTTPTimeout},
		browser:         SystemBrowser{},
		identity:        &UserInfoResolver{Endpoint: cfg.UserInfoURL},
		callbackTimeout: config.DefaultCallbackTimeout,
		tracer:          otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.userAgent != "" {
		client := *a.httpClient
		client.Transport = &userAgentTransport{base: client.Transport, userAgent: a.userAgent}
		a.httpClient = &client
	}
	return a, nil
}

// Authenticate runs one interactive sign-in. It never panics on a failed
// attempt; failures are reported in the result. The callback listener is
// stopped before Authenticate returns on every path.
func (a *Authenticator) Authenticate(ctx context.Context) *AuthenticateResult {
	attemptID := uuid.NewString()
	ctx, span := a.tracer.Start(ctx, "oauth.Authenticate",
		trace.WithAttributes(attribute.String("auth.attempt_id", attemptID)))
	defer span.End()

	logging.Info("OAuth", "Authentication attempt %s started", attemptID)

	result := a.authenticate(a.withHTTPClient(ctx), attemptID)
	if result.Success {
		a.setPhase(PhaseSucceeded)
		span.SetStatus(codes.Ok, "")
		logging.Info("OAuth", "Authentication attempt %s succeeded", attemptID)
		return result
	}

	a.setPhase(PhaseFailed)
	span.RecordError(result.Err)
	span.SetAttributes(attribute.String("auth.error_kind", KindOf(result.Err).String()))
	span.SetStatus(codes.Error, KindOf(result.Err).String())
	return result
}

func (a *Authenticator) authenticate(ctx context.Context, attemptID string) *AuthenticateResult {
	a.setPhase(PhaseGeneratingChallenge)
	pkce, err := GeneratePKCE()
	if err != nil {
		logging.Error("OAuth", err, "Attempt %s: cannot generate PKCE challenge", attemptID)
		return failed(err, "")
	}
	state, err := GenerateState()
	if err != nil {
		logging.Error("OAuth", err, "Attempt %s: cannot generate state", attemptID)
		return failed(err, "")
	}

	a.setPhase(PhaseListenerStarting)
	server := NewCallbackServer(a.listenAddr, a.callbackPath, state)
	if err := server.Start(); err != nil {
		logging.Error("OAuth", err, "Attempt %s: callback listener did not start", attemptID)
		return failed(err, "")
	}
	defer server.Stop()

	authURL := a.authCodeURL(state, pkce)

	a.setPhase(PhaseAwaitingBrowserRedirect)
	if err := a.browser.Open(authURL); err != nil {
		browserErr := &AuthError{
			Kind:   KindBrowserLaunch,
			Op:     "open browser",
			Detail: fmt.Sprintf("could not open a browser (%v); open this URL manually: %s", err, authURL),
			Err:    err,
		}
		if a.manualFallback == nil {
			logging.Warn("OAuth", "Attempt %s: browser could not be opened, giving up: %v", attemptID, err)
			return failed(browserErr, authURL)
		}
		logging.Warn("OAuth", "Attempt %s: browser could not be opened, waiting for manual sign-in: %v", attemptID, err)
		a.manualFallback(authURL)
	}

	a.setPhase(PhaseAwaitingCallback)
	waitCtx, cancel := context.WithTimeout(ctx, a.callbackTimeout)
	defer cancel()

	callback, err := server.WaitForCallback(waitCtx)
	if err != nil {
		a.logCallbackFailure(attemptID, err)
		return failed(err, authURL)
	}

	a.setPhase(PhaseExchangingCode)
	token, err := a.exchangeCode(ctx, callback.Code, pkce.CodeVerifier)
	if err != nil {
		logging.Error("OAuth", err, "Attempt %s: token exchange failed", attemptID)
		return failed(err, authURL)
	}

	a.setPhase(PhaseResolvingIdentity)
	email := a.resolveIdentity(ctx, attemptID, token)

	return &AuthenticateResult{
		Success:   true,
		Token:     TokenFromOAuth2(token),
		UserEmail: email,
		Code:      callback.Code,
		AuthURL:   authURL,
	}
}

// authCodeURL builds the authorization URL for one attempt. Only the S256
// challenge is included; the verifier stays local until the exchange.
func (a *Authenticator) authCodeURL(state string, pkce *PKCEChallenge) string {
	return a.oauth2Config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.CodeChallengeMethod),
	)
}

func (a *Authenticator) exchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx, span := a.tracer.Start(ctx, "oauth.ExchangeCode")
	defer span.End()

	token, err := a.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange failed")
		return nil, &AuthError{
			Kind:   KindTokenExchange,
			Op:     "exchange authorization code",
			Detail: providerDetail(err),
			Err:    err,
		}
	}
	if token.AccessToken == "" {
		err := errors.New("token response has no access token")
		span.SetStatus(codes.Error, err.Error())
		return nil, newAuthError(KindTokenExchange, "exchange authorization code", err)
	}
	return token, nil
}

func (a *Authenticator) resolveIdentity(ctx context.Context, attemptID string, token *oauth2.Token) string {
	ctx, span := a.tracer.Start(ctx, "oauth.ResolveIdentity")
	defer span.End()

	email, err := a.identity.ResolveIdentity(ctx, token)
	if err != nil || email == "" {
		if err == nil {
			err = errors.New("empty identity")
		}
		span.RecordError(err)
		logging.Warn("OAuth", "Attempt %s: could not resolve user identity: %v", attemptID, err)
		return UnknownIdentity
	}
	return email
}

// ResolveIdentity returns the email of the user tok was issued to, using
// the configured resolver and HTTP client.
func (a *Authenticator) ResolveIdentity(ctx context.Context, tok *Token) (string, error) {
	if tok == nil || tok.AccessToken == "" {
		return "", newAuthError(KindIdentityLookup, "resolve identity", errors.New("no access token"))
	}
	return a.identity.ResolveIdentity(a.withHTTPClient(ctx), tok.ToOAuth2Token())
}

func (a *Authenticator) logCallbackFailure(attemptID string, err error) {
	switch KindOf(err) {
	case KindStateMismatch:
		logging.Warn("OAuth", "Attempt %s rejected: callback state did not match (possible CSRF attack or stale redirect)", attemptID)
	case KindProviderDenied:
		logging.Info("OAuth", "Attempt %s not completed by the user: %v", attemptID, err)
	case KindTimeout:
		logging.Info("OAuth", "Attempt %s abandoned: %v", attemptID, err)
	default:
		logging.Error("OAuth", err, "Attempt %s: callback failed", attemptID)
	}
}

func (a *Authenticator) setPhase(p Phase) {
	if a.observer != nil {
		a.observer(p)
	}
}

// withHTTPClient makes golang.org/x/oauth2 use the configured client.
func (a *Authenticator) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// providerDetail extracts the provider's error from a token endpoint failure.
func providerDetail(err error) string {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err.Error()
	}
	if re.ErrorCode != "" {
		if re.ErrorDescription != "" {
			return fmt.Sprintf("provider rejected the request: %s - %s",
				re.ErrorCode, pstrings.SingleLine(re.ErrorDescription, pstrings.MaxProviderTextLen))
		}
		return "provider rejected the request: " + re.ErrorCode
	}
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	return fmt.Sprintf("provider rejected the request with status %d: %s",
		status, pstrings.SingleLine(string(re.Body), pstrings.MaxProviderTextLen))
}
