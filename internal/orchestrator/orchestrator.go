// Package orchestrator sequences one end-to-end run: install the
// automation server, start it, start the dev server, run the test runner
// and forward its exit code.
//
// Stages run strictly one after another. Whatever happens (a stage error,
// a panic, the automation server dying, or the supervisor being
// interrupted) the run ends on a single teardown path that terminates the
// automation server exactly once.
//
// A panic is recovered only on the goroutine calling Run. Go cannot
// recover a panic raised on another goroutine, so one in a stage's own
// goroutines (output pumps, exit waiters, signal and server watchers)
// still ends the process without teardown. Those goroutines are kept to
// plain copies, waits and channel sends.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/shinji-kodama/e2e-runner/internal/automation"
	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/logsink"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// DefaultShutdownGrace bounds how long teardown waits for the automation
// server to exit after it was interrupted.
const DefaultShutdownGrace = 5 * time.Second

// Installer ensures the automation server is available locally.
type Installer interface {
	Install(ctx context.Context) error
}

// DevServer is a running development server.
type DevServer interface {
	URL() string
	Close(ctx context.Context) error
}

// DevServerStarter binds the development server.
type DevServerStarter interface {
	Start(ctx context.Context) (DevServer, error)
}

// DevServerStarterFunc adapts a function to DevServerStarter.
type DevServerStarterFunc func(ctx context.Context) (DevServer, error)

// Start calls f(ctx).
func (f DevServerStarterFunc) Start(ctx context.Context) (DevServer, error) {
	return f(ctx)
}

// Runner runs the test suite once and returns its exit code.
type Runner interface {
	Run(ctx context.Context) (int, error)
}

// RunnerFactory builds the Runner once the dev server URL is known.
type RunnerFactory interface {
	NewRunner(baseURL string) (Runner, error)
}

// RunnerFactoryFunc adapts a function to RunnerFactory.
type RunnerFactoryFunc func(baseURL string) (Runner, error)

// NewRunner calls f(baseURL).
func (f RunnerFactoryFunc) NewRunner(baseURL string) (Runner, error) {
	return f(baseURL)
}

// ReadinessFunc blocks until the automation server accepts sessions.
type ReadinessFunc func(ctx context.Context, h automation.Handle) error

// Stages are the collaborators of one run. All fields except Ready are
// required.
type Stages struct {
	Installer Installer
	Launcher  automation.Launcher
	DevServer DevServerStarter
	Runners   RunnerFactory

	// LogDir receives the automation server's output as selenium.log.
	LogDir  string
	LogFile string

	// Ready, when set, gates SERVER_STARTED on a readiness probe.
	Ready ReadinessFunc
}

// Orchestrator drives a single run. It is not reusable.
type Orchestrator struct {
	stages  Stages
	logger  *slog.Logger
	runID   string
	signals []os.Signal
	grace   time.Duration

	mu    sync.Mutex
	state model.State

	handle    automation.Handle
	sink      io.Closer
	devServer DevServer
	teardown  sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Every line carries the run ID.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithSignals replaces the signals that abort the run. No signals
// disables signal handling.
func WithSignals(sigs ...os.Signal) Option {
	return func(o *Orchestrator) {
		o.signals = sigs
	}
}

// WithShutdownGrace sets how long teardown waits for the automation
// server to exit.
func WithShutdownGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.grace = d
	}
}

// New creates an Orchestrator in state INSTALLING.
func New(stages Stages, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stages:  stages,
		logger:  logging.NewNop(),
		runID:   uuid.NewString(),
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
		grace:   DefaultShutdownGrace,
		state:   model.StateInstalling,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.stages.LogFile == "" {
		o.stages.LogFile = "selenium.log"
	}
	o.logger = o.logger.With("run_id", o.runID)
	return o
}

// RunID identifies this run in logs and container labels.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// State is the current lifecycle state.
func (o *Orchestrator) State() model.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run executes the stages and returns the process exit code: the test
// runner's code when the run reaches DONE, otherwise 1 together with the
// error that aborted it.
func (o *Orchestrator) Run(ctx context.Context) (code int, err error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stopSignals := o.watchSignals(cancel)
	defer stopSignals()

	defer o.shutdown()
	defer func() {
		if r := recover(); r != nil {
			code, err = o.abort(model.NewStageError(model.KindUncaught, o.State().String(),
				fmt.Errorf("panic: %v", r)))
		}
	}()

	o.logger.Info("run started", "state", o.State())

	if err := o.stages.Installer.Install(ctx); err != nil {
		return o.abort(o.cause(ctx, err))
	}

	o.transition(model.StateServerStarting)
	sink, err := logsink.Open(o.stages.LogDir, o.stages.LogFile)
	if err != nil {
		return o.abort(model.NewStageError(model.KindSpawn, "selenium", err))
	}
	o.sink = sink

	handle, err := o.stages.Launcher.Start(ctx, sink)
	if err != nil {
		return o.abort(o.cause(ctx, err))
	}
	o.handle = handle
	o.logger.Info("automation server spawned", "server", handle.String(), "log", sink.Path())

	if o.stages.Ready != nil {
		if err := o.stages.Ready(ctx, handle); err != nil {
			return o.abort(o.cause(ctx, model.NewStageError(model.KindSpawn, "selenium", err)))
		}
	}

	o.transition(model.StateServerStarted)
	stopWatch := o.watchServer(handle, cancel)
	defer stopWatch()

	o.transition(model.StateDevServerStarting)
	dev, err := o.stages.DevServer.Start(ctx)
	if err != nil {
		return o.abort(o.cause(ctx, err))
	}
	o.devServer = dev

	o.transition(model.StateDevServerStarted)
	runner, err := o.stages.Runners.NewRunner(dev.URL())
	if err != nil {
		return o.abort(o.cause(ctx, err))
	}

	o.transition(model.StateRunnerRunning)
	code, err = runner.Run(ctx)
	if ctx.Err() != nil {
		return o.abort(context.Cause(ctx))
	}
	if err != nil {
		return o.abort(err)
	}

	o.transition(model.StateDone)
	o.logger.Info("test runner finished", "exit_code", code)
	return code, nil
}

// transition moves to next, panicking on an edge the state machine does
// not allow. The panic is turned into an uncaught-fault abort by Run.
func (o *Orchestrator) transition(next model.State) {
	o.mu.Lock()
	prev := o.state
	if !prev.CanTransition(next) {
		o.mu.Unlock()
		panic(fmt.Sprintf("illegal state transition %s -> %s", prev, next))
	}
	o.state = next
	o.mu.Unlock()

	o.logger.Info("state changed", "from", prev, "state", next)
}

// abort records err and moves to ABORTED.
func (o *Orchestrator) abort(err error) (int, error) {
	o.mu.Lock()
	prev := o.state
	if !prev.IsTerminal() {
		o.state = model.StateAborted
	}
	o.mu.Unlock()

	o.logger.Error("run aborted", "from", prev, "state", model.StateAborted,
		"kind", model.KindOf(err), "error", err)
	return int(model.ExitGeneralError), err
}

// cause prefers the reason ctx was cancelled over the error a stage
// returned because of that cancellation.
func (o *Orchestrator) cause(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if c := context.Cause(ctx); c != nil && !errors.Is(c, context.Canceled) {
			return c
		}
	}
	return err
}

// watchSignals cancels the run when one of the configured signals
// arrives.
func (o *Orchestrator) watchSignals(cancel context.CancelCauseFunc) func() {
	if len(o.signals) == 0 {
		return func() {}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, o.signals...)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			o.logger.Warn("received signal", "signal", sig.String())
			cancel(fmt.Errorf("interrupted by %s", sig))
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// watchServer cancels the run if the automation server exits before
// teardown.
func (o *Orchestrator) watchServer(h automation.Handle, cancel context.CancelCauseFunc) func() {
	done := make(chan struct{})

	go func() {
		select {
		case <-h.Done():
			cancel(model.NewStageError(model.KindServerExited, "selenium", h.Err()))
		case <-done:
		}
	}()

	return func() { close(done) }
}

// shutdown is the single teardown path: terminate the automation server
// once, give it a moment to flush its log, then release the rest.
func (o *Orchestrator) shutdown() {
	o.teardown.Do(func() {
		if o.handle != nil {
			if err := o.handle.Terminate(); err != nil {
				o.logger.Warn("failed to interrupt automation server", "server", o.handle.String(), "error", err)
			}

			timer := time.NewTimer(o.grace)
			select {
			case <-o.handle.Done():
			case <-timer.C:
				o.logger.Warn("automation server still running after interrupt", "server", o.handle.String())
			}
			timer.Stop()
		}

		if o.devServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), o.grace)
			if err := o.devServer.Close(ctx); err != nil {
				o.logger.Debug("dev server close", "error", err)
			}
			cancel()
		}

		if o.sink != nil {
			_ = o.sink.Close()
		}
	})
}
