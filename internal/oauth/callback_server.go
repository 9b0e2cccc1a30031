package oauth

import (
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"pubsubdesk/internal/buildinfo"
	"pubsubdesk/pkg/logging"
	pstrings "pubsubdesk/pkg/strings"

	"github.com/Masterminds/sprig/v3"
)

const (
	// shutdownTimeout bounds how long Stop waits for in-flight responses.
	shutdownTimeout = 2 * time.Second

	readHeaderTimeout = 10 * time.Second

	// maxErrorCodeLen bounds the provider's error code; registered codes are short.
	maxErrorCodeLen = 64
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(
	template.New("pages").Funcs(sprig.HtmlFuncMap()).ParseFS(templateFS, "templates/*.html"),
)

// CallbackResult is a successful authorization redirect.
type CallbackResult struct {
	// Code is the authorization code from the OAuth provider.
	Code string

	// State is the validated state parameter.
	State string
}

type callbackOutcome struct {
	result *CallbackResult
	err    error
}

// CallbackServer is the local, single-use HTTP endpoint that receives the
// provider's redirect. Only the first request carrying OAuth parameters
// decides the outcome; anything else is answered with a "close this window"
// page and ignored.
type CallbackServer struct {
	addr          string
	path          string
	expectedState string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	started  bool

	once     sync.Once
	outcome  chan callbackOutcome
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewCallbackServer creates a listener for one attempt. addr is the fixed
// host:port to bind, path the redirect URL path, and expectedState the value
// generated for the attempt.
func NewCallbackServer(addr, path, expectedState string) *CallbackServer {
	if path == "" {
		path = "/"
	}
	return &CallbackServer{
		addr:          addr,
		path:          path,
		expectedState: expectedState,
		outcome:       make(chan callbackOutcome, 1),
		stopped:       make(chan struct{}),
	}
}

// Start binds the listener and begins serving. A port that is already in use
// is reported as KindListenerBind and never retried.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return newAuthError(KindListenerBind, "start callback listener", errors.New("already started"))
	}
	select {
	case <-s.stopped:
		return newAuthError(KindListenerBind, "start callback listener", ErrListenerStopped)
	default:
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &AuthError{
			Kind:   KindListenerBind,
			Op:     "start callback listener",
			Detail: fmt.Sprintf("cannot listen on %s (another sign-in may still be running): %v", s.addr, err),
			Err:    err,
		}
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           http.HandlerFunc(s.handle),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.started = true

	server := s.server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("CallbackServer", err, "Callback listener on %s failed", s.addr)
			s.deliver(callbackOutcome{err: newAuthError(KindListenerBind, "serve callback listener", err)})
		}
	}()

	logging.Debug("CallbackServer", "Listening for OAuth redirect on %s%s", listener.Addr(), s.path)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// WaitForCallback blocks until the first callback arrives, ctx is done, or
// the server is stopped, whichever happens first.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (*CallbackResult, error) {
	select {
	case o := <-s.outcome:
		return o.result, o.err
	case <-s.stopped:
		// A callback that raced with Stop still wins.
		select {
		case o := <-s.outcome:
			return o.result, o.err
		default:
		}
		return nil, newAuthError(KindTimeout, "wait for callback", ErrListenerStopped)
	case <-ctx.Done():
		return nil, &AuthError{
			Kind:   KindTimeout,
			Op:     "wait for callback",
			Detail: fmt.Sprintf("no sign-in completed in the browser: %v", ctx.Err()),
			Err:    ctx.Err(),
		}
	}
}

// Stop shuts the listener down. It is idempotent and safe to call before
// Start or after the callback arrived.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)

		s.mu.Lock()
		server, listener := s.server, s.listener
		s.mu.Unlock()

		if server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			_ = server.Close()
		}
		_ = listener.Close()
		logging.Debug("CallbackServer", "Callback listener on %s stopped", s.addr)
	})
}

func (s *CallbackServer) deliver(o callbackOutcome) {
	select {
	case s.outcome <- o:
	default:
	}
}

func (s *CallbackServer) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != s.path || !isCallbackRequest(r) {
		renderPage(w, http.StatusOK, "callback_closed.html", nil)
		return
	}

	handled := false
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})
	if !handled {
		logging.Debug("CallbackServer", "Ignoring duplicate callback request")
		renderPage(w, http.StatusOK, "callback_closed.html", nil)
	}
}

// isCallbackRequest distinguishes the provider redirect from favicon and
// similar browser traffic.
func isCallbackRequest(r *http.Request) bool {
	q := r.URL.Query()
	return q.Has("code") || q.Has("state") || q.Has("error")
}

// processCallback runs exactly once via sync.Once.
func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	state := query.Get("state")

	if subtle.ConstantTimeCompare([]byte(state), []byte(s.expectedState)) != 1 {
		logging.Warn("CallbackServer", "OAuth state mismatch detected - possible CSRF attack (expected_state_len=%d received_state_len=%d)",
			len(s.expectedState), len(state))
		renderPage(w, http.StatusBadRequest, "callback_error.html", map[string]string{
			"Error":       "state_mismatch",
			"Description": "This sign-in response does not belong to the current attempt. Start the sign-in again from the application.",
		})
		s.deliver(callbackOutcome{err: &AuthError{
			Kind: KindStateMismatch,
			Op:   "validate callback",
			Err:  ErrStateMismatch,
		}})
		return
	}

	if code := query.Get("error"); code != "" {
		pe := &ProviderError{
			Code:        pstrings.SingleLine(code, maxErrorCodeLen),
			Description: pstrings.SingleLine(query.Get("error_description"), pstrings.MaxProviderTextLen),
		}
		logging.Info("CallbackServer", "Identity provider returned error %q", pe.Code)
		renderPage(w, http.StatusOK, "callback_error.html", map[string]string{
			"Error":       pe.Code,
			"Description": pe.Description,
		})
		s.deliver(callbackOutcome{err: &AuthError{
			Kind:   KindProviderDenied,
			Op:     "authorize",
			Detail: "authentication was not completed: " + pe.Error(),
			Err:    pe,
		}})
		return
	}

	code := query.Get("code")
	if code == "" {
		pe := &ProviderError{Code: "invalid_request", Description: "callback carried no authorization code"}
		renderPage(w, http.StatusBadRequest, "callback_error.html", map[string]string{
			"Error":       pe.Code,
			"Description": pe.Description,
		})
		s.deliver(callbackOutcome{err: &AuthError{
			Kind:   KindProviderDenied,
			Op:     "authorize",
			Detail: "authentication was not completed: " + pe.Error(),
			Err:    pe,
		}})
		return
	}

	renderPage(w, http.StatusOK, "callback_success.html", nil)
	s.deliver(callbackOutcome{result: &CallbackResult{Code: code, State: state}})
}

func renderPage(w http.ResponseWriter, status int, name string, data map[string]string) {
	if data == nil {
		data = map[string]string{}
	}
	data["Product"] = buildinfo.ProductName

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		logging.Error("CallbackServer", err, "Failed to render %s", name)
	}
}
