package main

import (
	"pubsubdesk/cmd"
	"pubsubdesk/internal/buildinfo"
)

// Set during build with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

func main() {
	cmd.Execute(buildinfo.New(version, commit))
}
