package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pubsubdesk/internal/buildinfo"
	"pubsubdesk/internal/oauth"

	"github.com/stretchr/testify/require"
)

const testEmail = "dev@example.com"

// newTestProvider serves token and userinfo endpoints. Refresh tokens other
// than "good-refresh" are rejected as revoked.
func newTestProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("grant_type") == "refresh_token" && r.PostForm.Get("refresh_token") != "good-refresh" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh-access",
			"refresh_token": "good-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"email": testEmail})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// writeTestConfig writes a config file pointing at provider and returns its path.
func writeTestConfig(t *testing.T, provider *httptest.Server) string {
	t.Helper()
	content := fmt.Sprintf(`oauth:
  clientID: test-client
  redirectURL: http://127.0.0.1:%d/callback
  scopes: [openid, email]
  authURL: %s/auth
  tokenURL: %s/token
  userInfoURL: %s/userinfo
auth:
  callbackTimeout: 10s
  httpTimeout: 5s
logging:
  level: error
`, freePort(t), provider.URL, provider.URL, provider.URL)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeTokenFile(t *testing.T, tok oauth.Token) string {
	t.Helper()
	data, err := json.Marshal(tok)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// approvingBrowser follows the authorization URL back to the redirect URI
// as if the user had consented.
func approvingBrowser(t *testing.T) oauth.BrowserOpener {
	return oauth.BrowserOpenerFunc(func(rawURL string) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return err
		}
		redirect, err := url.Parse(u.Query().Get("redirect_uri"))
		if err != nil {
			return err
		}
		redirect.RawQuery = url.Values{"code": {"the-code"}, "state": {u.Query().Get("state")}}.Encode()
		go func() {
			resp, err := http.Get(redirect.String())
			if err != nil {
				t.Logf("redirect failed: %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	})
}

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, a *app, stdin string, args ...string) cmdResult {
	t.Helper()
	if a.info.Version == "" {
		a.info = buildinfo.New("1.2.3", "abc123")
	}
	root := newRootCmd(a)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return cmdResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}
