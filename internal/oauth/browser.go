package oauth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
)

// BrowserOpener opens a URL in the user's browser. Open must not block on
// the browser process.
type BrowserOpener interface {
	Open(url string) error
}

// BrowserOpenerFunc adapts a function to BrowserOpener.
type BrowserOpenerFunc func(url string) error

// Open calls f(url).
func (f BrowserOpenerFunc) Open(url string) error { return f(url) }

// SystemBrowser opens URLs with the platform's default browser.
type SystemBrowser struct{}

// Open implements BrowserOpener.
func (SystemBrowser) Open(url string) error { return OpenBrowser(url) }

// browserLauncher starts the browser command. Tests replace it so no real
// browser is spawned.
var browserLauncher = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

// hasGraphicalSession reports whether a browser could plausibly be shown.
var hasGraphicalSession = func() bool {
	if runtime.GOOS != "linux" && runtime.GOOS != "freebsd" && runtime.GOOS != "openbsd" {
		return true
	}
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// OpenBrowser opens the specified http(s) URL in the default web browser.
// It supports Linux, the BSDs, macOS, and Windows.
func OpenBrowser(rawURL string) error {
	if rawURL == "" {
		return errors.New("URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q: only http and https are allowed", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("invalid URL: missing host")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		if !hasGraphicalSession() {
			return errors.New("failed to open browser: no graphical session (DISPLAY is not set)")
		}
		cmd = exec.Command("xdg-open", rawURL)
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		// rundll32 keeps "&" in the query intact, unlike "cmd /c start".
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := browserLauncher(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	if cmd.Process != nil {
		// Reap the launcher in the background; its exit status is irrelevant.
		go func() { _ = cmd.Wait() }()
	}
	return nil
}
