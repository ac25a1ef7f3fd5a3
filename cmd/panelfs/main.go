// panelfs - browse and edit a game panel server's files
package main

import (
	"os"

	"github.com/panelfs/panelfs/internal/cli"
	"github.com/panelfs/panelfs/internal/version"
)

// Set via -ldflags "-X main.Version=... -X main.BuildTime=..."
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
