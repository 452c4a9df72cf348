// Package testrunner launches the end-to-end test runner (Nightwatch) and
// reports its exit status.
//
// The runner is an independent child process that shares the
// supervisor's standard streams. Its exit code is returned verbatim so
// the supervisor can forward it.
package testrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

const stageName = "test-runner"

// BinaryName is the runner executable looked up when no override is set.
const BinaryName = "nightwatch"

// Environment variables passed to the runner in addition to the
// supervisor's own environment.
const (
	EnvBaseURL      = "E2E_BASE_URL"
	EnvSeleniumPort = "SELENIUM_PORT"
)

// Resolve locates the runner binary. An explicit override wins, then the
// project-local node_modules/.bin, then PATH.
func Resolve(override, workDir string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", model.NewStageError(model.KindSpawn, stageName,
				fmt.Errorf("runner binary %s: %w", override, err))
		}
		return override, nil
	}

	local := filepath.Join(workDir, "node_modules", ".bin", BinaryName)
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local, nil
	}

	found, err := exec.LookPath(BinaryName)
	if err != nil {
		return "", model.NewStageError(model.KindSpawn, stageName,
			fmt.Errorf("%s not found in %s or PATH: %w", BinaryName, filepath.Dir(local), err))
	}
	return found, nil
}

// Runner runs the test runner once.
type Runner struct {
	binary     string
	configPath string
	reportDir  string
	dir        string
	env        []string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithEnv appends KEY=VALUE pairs to the runner's environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithDir sets the runner's working directory.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithStdio replaces the inherited standard streams.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdin = stdin
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithLogger sets the logger for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner invoking binary with --config configPath and
// --output reportDir. Both paths must be absolute.
func New(binary, configPath, reportDir string, opts ...Option) *Runner {
	r := &Runner{
		binary:     binary,
		configPath: configPath,
		reportDir:  reportDir,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Args is the runner's argument list.
func (r *Runner) Args() []string {
	return []string{"--config", r.configPath, "--output", r.reportDir}
}

// Run creates the report directory, runs the runner to completion and
// returns its exit code. Cancelling ctx kills the runner.
//
// A non-nil error means the runner could not be started (KindSpawn) or
// ended without an exit status (KindRunnerProcess); the code is then -1.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(r.reportDir, 0o755); err != nil {
		return -1, model.NewStageError(model.KindSpawn, stageName,
			fmt.Errorf("create report directory: %w", err))
	}

	cmd := exec.CommandContext(ctx, r.binary, r.Args()...)
	cmd.Dir = r.dir
	cmd.Env = append(cmd.Environ(), r.env...)
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	if err := cmd.Start(); err != nil {
		return -1, model.NewStageError(model.KindSpawn, stageName,
			fmt.Errorf("start %s: %w", r.binary, err))
	}
	r.logger.Info("test runner started", "pid", cmd.Process.Pid, "binary", r.binary)

	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	if ctx.Err() != nil {
		err = fmt.Errorf("%w (%v)", ctx.Err(), err)
	}
	return -1, model.NewStageError(model.KindRunnerProcess, stageName, err)
}
