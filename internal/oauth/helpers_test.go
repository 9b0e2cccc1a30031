package oauth

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pubsubdesk/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "test-client.apps.example.com"
	testCode     = "auth-code-123"
	testEmail    = "user@example.com"
)

// fakeProvider is a minimal identity provider with token and userinfo endpoints.
type fakeProvider struct {
	*httptest.Server

	mu            sync.Mutex
	challenge     string
	tokenForms    []url.Values
	userAgents    []string
	tokenCalls    atomic.Int32
	refreshCalls  atomic.Int32
	userinfoCalls atomic.Int32

	// knobs
	userinfoStatus  int
	idTokenEmail    string
	omitAccessToken bool
	rotateRefresh   bool
	refreshGate     chan struct{}
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{userinfoStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.handleToken)
	mux.HandleFunc("/userinfo", p.handleUserinfo)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) setChallenge(c string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.challenge = c
}

func (p *fakeProvider) forms() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.tokenForms...)
}

func writeOAuthError(w http.ResponseWriter, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": desc})
}

func (p *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", err.Error())
		return
	}
	p.mu.Lock()
	p.tokenForms = append(p.tokenForms, r.PostForm)
	p.userAgents = append(p.userAgents, r.UserAgent())
	challenge := p.challenge
	p.mu.Unlock()

	resp := map[string]interface{}{
		"token_type": "Bearer",
		"expires_in": 3600,
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.tokenCalls.Add(1)
		if r.PostForm.Get("code") != testCode {
			writeOAuthError(w, "invalid_grant", "Malformed auth code.")
			return
		}
		if challengeFor(r.PostForm.Get("code_verifier")) != challenge {
			writeOAuthError(w, "invalid_grant", "Invalid code verifier.")
			return
		}
		resp["access_token"] = "access-1"
		resp["refresh_token"] = "refresh-1"
	case "refresh_token":
		p.refreshCalls.Add(1)
		if p.refreshGate != nil {
			<-p.refreshGate
		}
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			writeOAuthError(w, "invalid_grant", "Token has been expired or revoked.")
			return
		}
		resp["access_token"] = "access-2"
		if p.rotateRefresh {
			resp["refresh_token"] = "refresh-2"
		}
	default:
		writeOAuthError(w, "unsupported_grant_type", "")
		return
	}

	if p.omitAccessToken {
		delete(resp, "access_token")
	}
	if p.idTokenEmail != "" {
		resp["id_token"] = unsignedIDToken(p.idTokenEmail)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (p *fakeProvider) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	p.userinfoCalls.Add(1)
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if p.userinfoStatus != http.StatusOK {
		http.Error(w, "backend error", p.userinfoStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"email": testEmail, "sub": "1234"})
}

// unsignedIDToken builds a JWT carrying an email claim. Signature validation
// is not performed by the client.
func unsignedIDToken(email string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "1234",
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return s
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// requirePortFree fails the test if nothing can bind addr.
func requirePortFree(t *testing.T, addr string) {
	t.Helper()
	l, err := net.Listen("tcp", addr)
	require.NoError(t, err, "port %s should be free after the attempt", addr)
	require.NoError(t, l.Close())
}

func testOAuthConfig(t *testing.T, p *fakeProvider) config.OAuthConfig {
	t.Helper()
	return config.OAuthConfig{
		ClientID:    testClientID,
		RedirectURL: fmt.Sprintf("http://127.0.0.1:%d/", freePort(t)),
		Scopes:      []string{"openid", "email", config.PubSubScope},
		AuthURL:     p.URL + "/auth",
		TokenURL:    p.URL + "/token",
		UserInfoURL: p.URL + "/userinfo",
	}
}

// redirectQuery decides what the fake browser sends back to the listener.
type redirectQuery func(authURL *url.URL) url.Values

func approve(u *url.URL) url.Values {
	return url.Values{"code": {testCode}, "state": {u.Query().Get("state")}}
}

func wrongState(*url.URL) url.Values {
	return url.Values{"code": {testCode}, "state": {"forged-state"}}
}

func deny(u *url.URL) url.Values {
	return url.Values{
		"error":             {"access_denied"},
		"error_description": {"The user denied access"},
		"state":             {u.Query().Get("state")},
	}
}

// fakeBrowser plays the user agent: it records the authorization URL, tells
// the provider about the challenge, and follows the redirect.
type fakeBrowser struct {
	t        *testing.T
	provider *fakeProvider
	query    redirectQuery
	openErr  error

	mu      sync.Mutex
	urls    []string
	opened  chan string
	visited chan *http.Response
}

func newFakeBrowser(t *testing.T, p *fakeProvider, q redirectQuery) *fakeBrowser {
	return &fakeBrowser{
		t:        t,
		provider: p,
		query:    q,
		opened:   make(chan string, 4),
		visited:  make(chan *http.Response, 4),
	}
}

func (b *fakeBrowser) Open(rawURL string) error {
	b.mu.Lock()
	b.urls = append(b.urls, rawURL)
	b.mu.Unlock()
	b.opened <- rawURL

	if b.openErr != nil {
		return b.openErr
	}
	b.follow(rawURL)
	return nil
}

// follow simulates the user signing in and the provider redirecting back.
func (b *fakeBrowser) follow(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		b.t.Errorf("authorization URL does not parse: %v", err)
		return
	}
	b.provider.setChallenge(u.Query().Get("code_challenge"))
	if b.query == nil {
		return
	}

	redirect, err := url.Parse(u.Query().Get("redirect_uri"))
	if err != nil {
		b.t.Errorf("redirect_uri does not parse: %v", err)
		return
	}
	redirect.RawQuery = b.query(u).Encode()

	go func() {
		resp, err := http.Get(redirect.String())
		if err != nil {
			b.t.Logf("redirect request failed: %v", err)
			return
		}
		resp.Body.Close()
		b.visited <- resp
	}()
}

func (b *fakeBrowser) lastURL() *url.URL {
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(b.t, b.urls)
	u, err := url.Parse(b.urls[len(b.urls)-1])
	require.NoError(b.t, err)
	return u
}

type phaseRecorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (r *phaseRecorder) observe(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, p)
}

func (r *phaseRecorder) list() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.phases...)
}
