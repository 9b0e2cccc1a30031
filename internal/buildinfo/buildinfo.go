// Package buildinfo carries the build-time identity of the pubsubdesk binary.
//
// An Info value is constructed once in main from linker-provided values and
// handed to every consumer that needs it (the CLI version command, the OAuth
// HTTP client user agent). Nothing in this package is mutable at runtime.
package buildinfo

import (
	"fmt"
	"strings"
)

// ProductName is used as the user agent product token and in CLI output.
const ProductName = "pubsubdesk"

// Info describes the running build.
type Info struct {
	// Version is the release version, "dev" for local builds.
	Version string

	// Commit is the VCS revision the binary was built from, if known.
	Commit string
}

// New returns an Info, substituting "dev" for an empty version.
func New(version, commit string) Info {
	version = strings.TrimSpace(version)
	if version == "" {
		version = "dev"
	}
	return Info{Version: version, Commit: strings.TrimSpace(commit)}
}

// UserAgent returns the HTTP User-Agent value for outbound requests.
func (i Info) UserAgent() string {
	v := i.Version
	if v == "" {
		v = "dev"
	}
	return fmt.Sprintf("%s/%s", ProductName, v)
}

// String renders the version line printed by the CLI.
func (i Info) String() string {
	if i.Commit == "" {
		return fmt.Sprintf("%s version %s", ProductName, i.Version)
	}
	return fmt.Sprintf("%s version %s (%s)", ProductName, i.Version, i.Commit)
}
