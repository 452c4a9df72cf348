// Package cli implements the cobra-based command line for e2e-runner.
//
// The root command takes no arguments: it reads its configuration from
// environment variables and runs one end-to-end session (see run.go).
// Two maintenance subcommands, containers and clean, inspect and remove
// automation server containers left behind by the docker backend.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// Global flag variables shared across all commands.
var (
	// jsonOutput switches error and list output to JSON.
	jsonOutput bool

	// verbose enables debug logging and per-request dev server logs.
	verbose bool
)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// Running the root command performs a full session: install the Selenium
// server, start it, start the dev server, run Nightwatch and exit with
// Nightwatch's exit code.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "e2e-runner",
		Short: "Run an end-to-end test suite against a local dev server",
		Long: `e2e-runner installs and starts a Selenium server, serves the bundled
application with a local dev server, runs Nightwatch against it and exits
with Nightwatch's exit code. The Selenium server is always stopped on exit.

Configuration is read from the environment:
  WEBPACK_CONFIG     bundler configuration (default ./webpack.config.js)
  LOG_DIR            directory for selenium.log (default ./reports)
  REPORT_DIR         Nightwatch output directory (default ./reports/test-e2e)
  NIGHTWATCH_CONFIG  Nightwatch configuration (default ./nightwatch.json)
  PORT               dev server port (default 8080)
  SELENIUM_BACKEND   "local" (java) or "docker" (default local)`,

		// The session is driven entirely by environment variables.
		Args: cobra.NoArgs,

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors lets Execute format errors (text or JSON).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(NewContainersCommand())
	rootCmd.AddCommand(NewCleanCommand())

	return rootCmd
}

// Execute runs the root command and exits the process.
// This is the main entry point called from main.go.
//
// CLIError values carry their own exit code; a CLIError without a
// message only sets the code (the test runner already reported its
// failures). Other errors exit with code 1.
func Execute(rootCmd *cobra.Command) {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(int(model.ExitSuccess))
	}
	os.Exit(int(reportError(os.Stderr, err)))
}

// reportError prints err and returns the exit code it maps to.
func reportError(w io.Writer, err error) model.ExitCode {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Message != "" {
			printError(w, cliErr.Message, cliErr.Err)
		}
		return cliErr.Code
	}

	printError(w, err.Error(), nil)
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
				errMap["kind"] = string(model.KindOf(underlying))
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	// Text format: "Error: <message>" on stderr.
	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}
