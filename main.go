package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tphakala/genrenet-go/cmd"
	"github.com/tphakala/genrenet-go/internal/buildinfo"
	"github.com/tphakala/genrenet-go/internal/conf"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/telemetry"
)

// buildDate and version are set at build time:
// go build -ldflags "-X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ) -X main.version=$(git describe --tags)"
var (
	buildDate string
	version   string
)

func main() {
	os.Exit(mainWithExitCode())
}

// mainWithExitCode runs the CLI and returns the process exit code, so that
// deferred cleanup runs before os.Exit.
func mainWithExitCode() int {
	build := buildinfo.New(version, buildDate)

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}
	settings.Version = build.GetVersion()
	settings.BuildDate = build.GetBuildDate()

	defer func() {
		telemetry.Flush()
		if err := logger.Global().Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
		}
	}()

	rootCmd := cmd.RootCommand(settings, build)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
