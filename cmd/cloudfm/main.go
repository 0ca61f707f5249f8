// cloudfm uploads folders to S3, Azure Blob or a local directory with live
// terminal progress.
package main

import (
	"os"

	"github.com/rescale/cloudfm/internal/cli"
	"github.com/rescale/cloudfm/internal/version"
)

// Set by ldflags:
//
//	go build -ldflags "-X main.Version=v0.3.0 -X main.BuildTime=$(date -u +%F)" ./cmd/cloudfm
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
