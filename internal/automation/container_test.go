package automation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/e2e-runner/internal/docker"
	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// daemon is a minimal fake Docker daemon for the container launcher.
type daemon struct {
	mu      sync.Mutex
	stale   []container.Summary
	created []*container.Config
	kills   []string
	removed []string
	exit    chan container.WaitResponse

	// logsErr, when set, ends the log stream with an error after the
	// first frame.
	logsErr error
}

var _ docker.API = (*daemon)(nil)

func newDaemon() *daemon {
	return &daemon{exit: make(chan container.WaitResponse, 1)}
}

func (d *daemon) Ping(context.Context) (types.Ping, error) { return types.Ping{}, nil }

func (d *daemon) ImageInspect(context.Context, string, ...client.ImageInspectOption) (image.InspectResponse, error) {
	return image.InspectResponse{}, errdefs.ErrNotFound
}

func (d *daemon) ImagePull(context.Context, string, image.PullOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (d *daemon) ContainerList(context.Context, container.ListOptions) ([]container.Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stale, nil
}

func (d *daemon) ContainerCreate(_ context.Context, cfg *container.Config, _ *container.HostConfig,
	_ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created = append(d.created, cfg)
	return container.CreateResponse{ID: "0123456789abcdef0123"}, nil
}

func (d *daemon) ContainerStart(context.Context, string, container.StartOptions) error { return nil }

func (d *daemon) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte("Selenium Server is up and running\n"))
	if d.logsErr != nil {
		return io.NopCloser(io.MultiReader(&buf, iotest.ErrReader(d.logsErr))), nil
	}
	return io.NopCloser(&buf), nil
}

func (d *daemon) ContainerWait(ctx context.Context, _ string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	out := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		select {
		case st := <-d.exit:
			out <- st
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()
	return out, errCh
}

func (d *daemon) ContainerKill(_ context.Context, id, signal string) error {
	d.mu.Lock()
	d.kills = append(d.kills, signal)
	d.mu.Unlock()
	d.exit <- container.WaitResponse{StatusCode: 130}
	return nil
}

func (d *daemon) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, id)
	return nil
}

func (d *daemon) Close() error { return nil }

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	p := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return p
}

// TestContainer_StartAndTerminateOnce verifies stale cleanup, labels, log
// capture, and that repeated Terminate calls send a single interrupt.
func TestContainer_StartAndTerminateOnce(t *testing.T) {
	d := newDaemon()
	d.stale = []container.Summary{{ID: "stale-1"}}
	sink := &syncBuffer{}

	launcher := NewContainer(docker.NewClientFromAPI(d), "selenium/standalone-chrome", freePort(t), "run-abc", nil)
	h, err := launcher.Start(context.Background(), sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"stale-1"}, d.removed)
	require.Len(t, d.created, 1)
	assert.Equal(t, "run-abc", d.created[0].Labels[docker.LabelRunID])
	assert.Contains(t, d.created[0].Env, "SE_OPTS=-debug")
	assert.Equal(t, "container 0123456789ab", h.String())

	require.Eventually(t, func() bool {
		return strings.Contains(sink.String(), "up and running")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Terminate())
	require.NoError(t, h.Terminate())

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("container handle never reported exit")
	}
	assert.Equal(t, []string{"SIGINT"}, d.kills)
	assert.Contains(t, h.Err().Error(), "exit status 130")
}

// TestContainer_UnexpectedExit verifies a container that dies on its own
// closes Done.
func TestContainer_UnexpectedExit(t *testing.T) {
	d := newDaemon()
	h, err := NewContainer(docker.NewClientFromAPI(d), "img", freePort(t), "run", nil).
		Start(context.Background(), &syncBuffer{})
	require.NoError(t, err)

	d.exit <- container.WaitResponse{StatusCode: 1}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("exit not observed")
	}
	assert.Contains(t, h.Err().Error(), "exit status 1")
	assert.NoError(t, h.Terminate())
	assert.Empty(t, d.kills)
}

// TestContainer_LogStreamErrorIsLogged keeps what was captured and reports
// the broken stream at debug level once the container exits.
func TestContainer_LogStreamErrorIsLogged(t *testing.T) {
	d := newDaemon()
	d.logsErr = errors.New("connection reset by peer")
	sink := &syncBuffer{}
	logs := &syncBuffer{}

	launcher := NewContainer(docker.NewClientFromAPI(d), "img", freePort(t), "run",
		logging.NewWithWriter(logs, slog.LevelDebug))
	h, err := launcher.Start(context.Background(), sink)
	require.NoError(t, err)

	d.exit <- container.WaitResponse{StatusCode: 1}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("exit not observed")
	}
	assert.Contains(t, sink.String(), "up and running")
	assert.Contains(t, logs.String(), "log stream broke off")
	assert.Contains(t, logs.String(), "connection reset by peer")
}

// TestContainer_PortInUse is a spawn error and creates nothing.
func TestContainer_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	d := newDaemon()
	_, err = NewContainer(docker.NewClientFromAPI(d), "img", l.Addr().(*net.TCPAddr).Port, "run", nil).
		Start(context.Background(), &syncBuffer{})

	require.Error(t, err)
	assert.Equal(t, model.KindSpawn, model.KindOf(err))
	assert.Empty(t, d.created)
}
