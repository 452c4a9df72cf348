package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/e2e-runner/internal/config"
	"github.com/shinji-kodama/e2e-runner/internal/install"
	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// stageName labels errors and log lines produced by this package.
const stageName = "selenium"

// DebugFlag is the Selenium server's debug-mode flag.
const DebugFlag = "-debug"

// Process runs the automation server as a child process.
type Process struct {
	command string
	args    []string
	env     []string
	dir     string
	logger  *slog.Logger
}

// ProcessOption configures a Process launcher.
type ProcessOption func(*Process)

// WithEnv appends KEY=VALUE pairs to the child's inherited environment.
func WithEnv(env ...string) ProcessOption {
	return func(p *Process) {
		p.env = append(p.env, env...)
	}
}

// WithDir sets the child's working directory.
func WithDir(dir string) ProcessOption {
	return func(p *Process) {
		p.dir = dir
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) ProcessOption {
	return func(p *Process) {
		p.logger = logger
	}
}

// NewProcess creates a launcher for command with args.
func NewProcess(command string, args []string, opts ...ProcessOption) *Process {
	p := &Process{
		command: command,
		args:    args,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewLocalServer builds the launcher for the installed standalone jar:
//
//	java -Dwebdriver.chrome.driver=<driver> -jar <jar> -port <port> -debug
func NewLocalServer(sel config.Selenium, opts ...ProcessOption) *Process {
	args := []string{
		"-Dwebdriver.chrome.driver=" + install.ChromeDriverPath(sel),
		"-jar", install.ServerJarPath(sel),
		"-port", strconv.Itoa(sel.Port),
		DebugFlag,
	}
	return NewProcess(sel.JavaBin, args, opts...)
}

// Start spawns the process and begins copying its output into sink.
//
// exec.Command is used rather than CommandContext: the server must only
// ever be stopped through Terminate's interrupt, never by a context kill.
func (p *Process) Start(ctx context.Context, sink io.Writer) (Handle, error) {
	cmd := exec.Command(p.command, p.args...)
	cmd.Dir = p.dir
	cmd.Env = append(cmd.Environ(), p.env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, model.NewStageError(model.KindSpawn, stageName, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, model.NewStageError(model.KindSpawn, stageName, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, model.NewStageError(model.KindSpawn, stageName,
			fmt.Errorf("start %s: %w", p.command, err))
	}

	h := newHandle(fmt.Sprintf("pid %d", cmd.Process.Pid), func() error {
		return interrupt(cmd.Process)
	})
	p.logger.Info("automation server started", "pid", cmd.Process.Pid, "command", p.command)

	var pumps errgroup.Group
	pumps.Go(func() error {
		_, err := io.Copy(sink, stdout)
		return err
	})
	pumps.Go(func() error {
		_, err := io.Copy(sink, stderr)
		return err
	})

	go func() {
		// Pipes must be drained before Wait closes them.
		pumpErr := pumps.Wait()
		waitErr := cmd.Wait()
		if waitErr == nil && pumpErr != nil && !errors.Is(pumpErr, os.ErrClosed) {
			waitErr = fmt.Errorf("copy output: %w", pumpErr)
		}
		if waitErr == nil {
			waitErr = errors.New("exit status 0")
		}
		h.exited(fmt.Errorf("automation server (%s) exited: %w", h.name, waitErr))
	}()

	return h, nil
}

// interrupt sends SIGINT. Windows has no interrupt for other processes,
// so the process is killed there.
func interrupt(p *os.Process) error {
	var err error
	if runtime.GOOS == "windows" {
		err = p.Kill()
	} else {
		err = p.Signal(os.Interrupt)
	}
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
