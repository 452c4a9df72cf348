package automation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/e2e-runner/internal/docker"
	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/model"
	"github.com/shinji-kodama/e2e-runner/internal/port"
)

// interruptSignal is what Terminate sends to the container's main process.
const interruptSignal = "SIGINT"

// Container runs the automation server in a Docker container.
type Container struct {
	client  *docker.Client
	image   string
	port    int
	runID   string
	scanner *port.Scanner
	logger  *slog.Logger
	now     func() time.Time
}

// NewContainer creates a launcher for image, publishing the server on
// hostPort. runID tags the container so later runs can clean it up.
func NewContainer(cli *docker.Client, image string, hostPort int, runID string, logger *slog.Logger) *Container {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Container{
		client:  cli,
		image:   image,
		port:    hostPort,
		runID:   runID,
		scanner: port.NewScanner(),
		logger:  logger,
		now:     time.Now,
	}
}

// Start removes containers left by earlier runs, starts a fresh one and
// follows its logs into sink.
func (c *Container) Start(ctx context.Context, sink io.Writer) (Handle, error) {
	removed, err := docker.RemoveStale(ctx, c.client, docker.RoleSelenium)
	if err != nil {
		return nil, model.NewStageError(model.KindSpawn, stageName, err)
	}
	if removed > 0 {
		c.logger.Warn("removed stale automation containers", "count", removed)
	}

	if !c.scanner.IsPortAvailable(c.port, "tcp") {
		return nil, model.NewStageError(model.KindSpawn, stageName,
			fmt.Errorf("port %d is already in use", c.port))
	}

	spec := docker.SeleniumSpec{
		Image:    c.image,
		Name:     docker.ContainerName(docker.RoleSelenium, c.runID),
		HostPort: c.port,
		Args:     []string{DebugFlag},
		Labels:   docker.BuildLabels(c.runID, docker.RoleSelenium, c.now()),
	}
	id, err := docker.CreateAndStart(ctx, c.client, spec)
	if err != nil {
		return nil, model.NewStageError(model.KindSpawn, stageName, err)
	}

	// The log follower and the waiter outlive the start context; they end
	// when the container stops.
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))

	h := newHandle(fmt.Sprintf("container %s", shortID(id)), func() error {
		// The container is created with AutoRemove, so the daemon deletes
		// it once the interrupt has stopped it.
		return docker.KillContainer(bg, c.client, id, interruptSignal)
	})
	c.logger.Info("automation server started", "container", spec.Name, "image", c.image, "port", c.port)

	var g errgroup.Group
	g.Go(func() error {
		return docker.FollowLogs(bg, c.client, id, sink, sink)
	})

	go func() {
		code, waitErr := docker.WaitExit(bg, c.client, id)
		if logErr := g.Wait(); logErr != nil {
			c.logger.Debug("automation server log stream broke off", "container", shortID(id), "error", logErr)
		}
		cancel()
		if waitErr == nil {
			waitErr = fmt.Errorf("exit status %d", code)
		}
		h.exited(fmt.Errorf("automation server (%s) exited: %w", h.name, waitErr))
	}()

	return h, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
