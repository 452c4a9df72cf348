// Package main is the entry point for the e2e-runner CLI.
//
// The binary supervises one end-to-end test session: it installs and
// starts a Selenium server, serves the bundled application, runs
// Nightwatch and exits with Nightwatch's exit code. All functionality
// lives in internal/cli.
//
// Build-time variables (version, commit, date) are injected via ldflags
// by GoReleaser during the release process.
package main

import (
	"github.com/shinji-kodama/e2e-runner/internal/cli"
)

// version, commit, and date are set by GoReleaser at build time
// via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	cli.Execute(cli.NewRootCommand())
}
