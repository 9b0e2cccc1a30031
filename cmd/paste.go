package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pubsubdesk/internal/config"
	"pubsubdesk/pkg/logging"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"
)

const forwardTimeout = 10 * time.Second

// promptForRedirect lets the user paste the address the browser was
// redirected to when the browser runs on another machine. The pasted query
// is replayed against the local callback listener, which validates it like
// any other redirect. It returns when a redirect was forwarded, the user
// interrupts (which calls abort), or ctx is done.
func promptForRedirect(ctx context.Context, abort context.CancelFunc, in io.Reader, out io.Writer, cfg config.OAuthConfig) {
	listenAddr, path, err := listenerTarget(cfg)
	if err != nil {
		logging.Warn("CLI", "Paste prompt unavailable: %v", err)
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Or paste the address your browser was redirected to: ",
		Stdin:           io.NopCloser(in),
		Stdout:          out,
		Stderr:          out,
		InterruptPrompt: "^C",
	})
	if err != nil {
		logging.Warn("CLI", "Paste prompt unavailable: %v", err)
		return
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			abort()
			return
		}
		if err != nil {
			// EOF, or closed because the attempt finished.
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := forwardRedirect(ctx, listenAddr, path, line); err != nil {
			fmt.Fprintf(out, "%s %v\n", text.FgRed.Sprint("✗"), err)
			continue
		}
		return
	}
}

// forwardRedirect replays the query of a pasted redirect URL against the
// callback listener at listenAddr.
func forwardRedirect(ctx context.Context, listenAddr, path, pasted string) error {
	u, err := url.Parse(pasted)
	if err != nil {
		return fmt.Errorf("not a valid address: %w", err)
	}
	q := u.Query()
	if !q.Has("code") && !q.Has("error") {
		return errors.New("the address has no code or error parameter; copy the full address from the browser's address bar")
	}

	target := url.URL{Scheme: "http", Host: listenAddr, Path: path, RawQuery: u.RawQuery}

	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build listener request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach the local sign-in listener: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// listenerTarget returns the address and path the callback listener serves.
func listenerTarget(cfg config.OAuthConfig) (string, string, error) {
	addr, err := cfg.ListenAddr()
	if err != nil {
		return "", "", err
	}
	u, err := cfg.ParsedRedirectURL()
	if err != nil {
		return "", "", err
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return addr, path, nil
}
