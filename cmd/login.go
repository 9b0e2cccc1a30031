package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"pubsubdesk/internal/oauth"
	"pubsubdesk/pkg/logging"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// errBrowserDisabled is reported by the opener installed by --no-browser.
var errBrowserDisabled = errors.New("browser launch disabled by --no-browser")

type loginOptions struct {
	timeout   time.Duration
	noBrowser bool
	output    string
}

// loginOutput is printed with --output json|yaml so a caller can persist the token.
type loginOutput struct {
	Email string       `json:"email" yaml:"email"`
	Token *oauth.Token `json:"token" yaml:"token"`
}

func newLoginCmd(a *app) *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your Google account",
		Long: `Sign in with your Google account using the browser.

The authorization page is opened in the default browser and the redirect
is received on the loopback address of the configured redirect URL. When
no browser can be opened the authorization URL is printed instead; open
it on any machine and, on a terminal, paste the address the browser was
redirected to.

pubsubdesk does not store tokens. Use --output json or --output yaml to
print the issued token for the calling program to keep.

Examples:
  pubsubdesk login
  pubsubdesk login --no-browser
  pubsubdesk login --output json > token.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLogin(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "how long to wait for the browser sign-in (default from config, 5m)")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputText, "output format (text, json, yaml)")
	return cmd
}

func (a *app) runLogin(cmd *cobra.Command, opts *loginOptions) error {
	if err := validateOutputFormat(opts.output, outputText, outputJSON, outputYAML); err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	cfg, err := a.loadConfig(errOut)
	if err != nil {
		return err
	}
	if opts.timeout > 0 {
		cfg.Auth.CallbackTimeout = opts.timeout
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	// The paste prompt reads the terminal in raw mode, so Ctrl+C reaches
	// it as input rather than as a signal and it aborts through here.
	ctx, abort := context.WithCancel(ctx)
	defer abort()

	// The paste prompt lives only as long as the attempt.
	pasteCtx, cancelPaste := context.WithCancel(ctx)
	defer cancelPaste()

	progress := newLoginProgress(errOut)
	defer progress.stop()

	extra := []oauth.Option{
		oauth.WithPhaseObserver(progress.observe),
		oauth.WithManualURLFallback(func(authURL string) {
			progress.manual()
			printManualInstructions(errOut, authURL, cfg.Auth.CallbackTimeout)
			if a.isTerminal != nil && a.isTerminal() {
				go promptForRedirect(pasteCtx, abort, cmd.InOrStdin(), errOut, cfg.OAuth)
			}
		}),
	}
	if opts.noBrowser {
		extra = append(extra, oauth.WithBrowser(oauth.BrowserOpenerFunc(func(string) error {
			return errBrowserDisabled
		})))
	}

	authenticator, err := a.newAuthenticator(cfg, extra...)
	if err != nil {
		return err
	}

	result := authenticator.Authenticate(ctx)
	cancelPaste()
	progress.stop()

	if !result.Success {
		return &AuthFailedError{Reason: result.Err}
	}
	logging.Debug("CLI", "Signed in as %s", result.UserEmail)

	out := cmd.OutOrStdout()
	if opts.output != outputText {
		return writeStructured(out, opts.output, loginOutput{Email: result.UserEmail, Token: result.Token})
	}

	fmt.Fprintf(out, "%s Signed in as %s\n", text.FgGreen.Sprint("✓"), text.Bold.Sprint(result.UserEmail))
	fmt.Fprintf(out, "  Expires:   %s\n", formatExpiry(result.Token.Expiry))
	fmt.Fprintf(out, "  Refresh:   %s\n", formatRefresh(result.Token))
	return nil
}

func printManualInstructions(w io.Writer, authURL string, timeout time.Duration) {
	fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("Could not open a browser automatically."))
	fmt.Fprintf(w, "\nOpen this URL in a browser to sign in:\n\n  %s\n\n", authURL)
	fmt.Fprintf(w, "Waiting up to %s for the sign-in to complete.\n", formatDuration(timeout))
}

// loginProgress shows the current phase next to a spinner.
type loginProgress struct {
	mu       sync.Mutex
	s        *spinner.Spinner
	isManual bool
}

func newLoginProgress(w io.Writer) *loginProgress {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	return &loginProgress{s: s}
}

func (p *loginProgress) observe(phase oauth.Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if phase.Terminal() {
		p.s.Stop()
		return
	}
	// Keep the printed URL and paste prompt readable.
	if p.isManual {
		return
	}

	p.s.Lock()
	p.s.Suffix = " " + capitalize(phase.String()) + "..."
	p.s.Unlock()
	if !p.s.Active() {
		p.s.Start()
	}
}

func (p *loginProgress) manual() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isManual = true
	p.s.Stop()
}

func (p *loginProgress) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.Stop()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
