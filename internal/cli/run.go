// Package cli — run.go wires the configuration into the orchestrator
// stages and runs one session.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shinji-kodama/e2e-runner/internal/automation"
	"github.com/shinji-kodama/e2e-runner/internal/config"
	"github.com/shinji-kodama/e2e-runner/internal/devserver"
	"github.com/shinji-kodama/e2e-runner/internal/docker"
	"github.com/shinji-kodama/e2e-runner/internal/install"
	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/model"
	"github.com/shinji-kodama/e2e-runner/internal/orchestrator"
	"github.com/shinji-kodama/e2e-runner/internal/testrunner"
)

// readyPollInterval is how often the opt-in readiness probe polls.
const readyPollInterval = 500 * time.Millisecond

// session is everything resolved before the first stage runs.
type session struct {
	cfg     config.Config
	bundle  *devserver.BundleConfig
	runner  config.RunnerConfig
	binary  string
	runID   string
	logger  *slog.Logger
	closers []io.Closer
}

// runSession resolves configuration and runs the orchestrator. The
// returned CLIError carries the exit code.
func runSession(ctx context.Context, stderr io.Writer) error {
	// Step 1: Resolve everything that can fail before any process starts.
	s, err := prepareSession(stderr)
	if err != nil {
		return err
	}
	defer s.close()

	// Step 2: Build the stages for the selected backend.
	stages, err := s.stages()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to set up automation server", err)
	}

	// Step 3: Run. The orchestrator owns teardown.
	o := orchestrator.New(stages,
		orchestrator.WithLogger(s.logger),
		orchestrator.WithRunID(s.runID))

	code, err := o.Run(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitCode(code), "run aborted", err)
	}
	if code != int(model.ExitSuccess) {
		return model.NewCLIError(model.ExitCode(code), "")
	}
	return nil
}

// prepareSession loads the configuration, the bundle configuration and
// the runner configuration, and locates the runner binary.
func prepareSession(stderr io.Writer) (*session, error) {
	cfg, err := config.FromEnvironment()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "invalid configuration", err)
	}

	level := cfg.LogLevel
	if verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewWithWriter(stderr, level)

	bundle, err := devserver.LoadBundleConfig(cfg.BundleConfigPath, cfg.WorkDir, os.Environ())
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to load bundle configuration", err)
	}
	VerboseLog("Loaded bundle configuration from %s", bundle.Source)

	if err := os.MkdirAll(cfg.ReportDir, 0o755); err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to create report directory", err)
	}

	rc, err := config.ResolveRunnerConfig(cfg.RunnerConfigPath, cfg.ReportDir, os.Environ())
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to prepare runner configuration", err)
	}
	if rc.FellBack {
		logger.Warn("falling back to default runner configuration",
			"requested", cfg.RunnerConfigPath, "using", rc.Path, "reason", rc.Reason)
	}

	binary, err := testrunner.Resolve(cfg.RunnerBinary, cfg.WorkDir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to locate test runner", err)
	}

	runID := uuid.NewString()
	return &session{
		cfg:    cfg,
		bundle: bundle,
		runner: rc,
		binary: binary,
		runID:  runID,
		logger: logger.With("backend", cfg.Selenium.Backend.String()),
	}, nil
}

// stages builds the orchestrator stages for the configured backend.
func (s *session) stages() (orchestrator.Stages, error) {
	installer, launcher, err := s.backend()
	if err != nil {
		return orchestrator.Stages{}, err
	}

	stages := orchestrator.Stages{
		Installer: installer,
		Launcher:  launcher,
		DevServer: orchestrator.DevServerStarterFunc(s.startDevServer),
		Runners:   orchestrator.RunnerFactoryFunc(s.newRunner),
		LogDir:    s.cfg.LogDir,
		LogFile:   config.LogFileName,
	}

	if s.cfg.Selenium.WaitReady {
		url := automation.StatusURL(s.cfg.Selenium.Port)
		stages.Ready = func(ctx context.Context, h automation.Handle) error {
			s.logger.Info("waiting for automation server", "url", url)
			return automation.WaitReady(ctx, nil, url, h, readyPollInterval)
		}
	}
	return stages, nil
}

// backend returns the installer and launcher for the selected backend.
func (s *session) backend() (orchestrator.Installer, automation.Launcher, error) {
	sel := s.cfg.Selenium

	switch sel.Backend {
	case model.BackendDocker:
		cli, err := docker.NewClient()
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, cli)
		VerboseLog("Connected to Docker daemon")

		return docker.NewImageInstaller(cli, sel.Image, s.logger),
			automation.NewContainer(cli, sel.Image, sel.Port, s.runID, s.logger),
			nil

	case model.BackendLocal:
		return install.NewLocal(install.DefaultArtifacts(sel), install.WithLogger(s.logger)),
			automation.NewLocalServer(sel,
				automation.WithDir(s.cfg.WorkDir),
				automation.WithLogger(s.logger)),
			nil
	}
	return nil, nil, fmt.Errorf("unsupported backend %q", sel.Backend)
}

func (s *session) startDevServer(ctx context.Context) (orchestrator.DevServer, error) {
	srv, err := devserver.Start(ctx, s.bundle, s.cfg.Host, s.cfg.Port,
		devserver.WithLogger(s.logger),
		devserver.WithQuiet(!verbose))
	if err != nil {
		return nil, err
	}
	return srv, nil
}

func (s *session) newRunner(baseURL string) (orchestrator.Runner, error) {
	return testrunner.New(s.binary, s.runner.Path, s.cfg.ReportDir,
		testrunner.WithDir(s.cfg.WorkDir),
		testrunner.WithLogger(s.logger),
		testrunner.WithEnv(
			testrunner.EnvBaseURL+"="+baseURL,
			testrunner.EnvSeleniumPort+"="+strconv.Itoa(s.cfg.Selenium.Port),
		)), nil
}

func (s *session) close() {
	for _, c := range s.closers {
		_ = c.Close()
	}
}
