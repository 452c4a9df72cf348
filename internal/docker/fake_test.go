package docker

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeAPI is an in-memory stand-in for the Docker daemon. It records every
// call so tests can assert on the exact lifecycle.
type fakeAPI struct {
	mu sync.Mutex

	pingErr    error
	images     map[string]bool
	pulls      []string
	containers []container.Summary

	createErr error
	startErr  error
	created   []*container.Config
	hostCfgs  []*container.HostConfig
	names     []string
	started   []string
	killed    []string
	removed   []string

	stdout, stderr string
	waitCh         chan container.WaitResponse
}

var _ API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		images: map[string]bool{},
		waitCh: make(chan container.WaitResponse, 1),
	}
}

func (f *fakeAPI) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, f.pingErr
}

func (f *fakeAPI) ImageInspect(ctx context.Context, ref string, _ ...client.ImageInspectOption) (image.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.images[ref] {
		return image.InspectResponse{ID: "sha256:" + ref}, nil
	}
	return image.InspectResponse{}, errdefs.ErrNotFound
}

func (f *fakeAPI) ImagePull(ctx context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, ref)
	f.images[ref] = true
	return io.NopCloser(bytes.NewBufferString(`{"status":"Downloaded newer image"}`)), nil
}

func (f *fakeAPI) ContainerList(ctx context.Context, _ container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]container.Summary(nil), f.containers...), nil
}

func (f *fakeAPI) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig,
	_ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.created = append(f.created, cfg)
	f.hostCfgs = append(f.hostCfgs, hostCfg)
	f.names = append(f.names, name)
	return container.CreateResponse{ID: "cid-" + name}, nil
}

func (f *fakeAPI) ContainerStart(ctx context.Context, id string, _ container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeAPI) ContainerLogs(ctx context.Context, id string, _ container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout))
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr))
	return io.NopCloser(&buf), nil
}

func (f *fakeAPI) ContainerWait(ctx context.Context, id string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	errCh := make(chan error, 1)
	out := make(chan container.WaitResponse, 1)
	go func() {
		select {
		case st := <-f.waitCh:
			out <- st
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()
	return out, errCh
}

func (f *fakeAPI) ContainerKill(ctx context.Context, id, signal string) error {
	f.mu.Lock()
	f.killed = append(f.killed, id+":"+signal)
	f.mu.Unlock()
	// The real daemon reports the container's exit once it dies.
	select {
	case f.waitCh <- container.WaitResponse{StatusCode: 130}:
	default:
	}
	return nil
}

func (f *fakeAPI) ContainerRemove(ctx context.Context, id string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeAPI) Close() error { return nil }
