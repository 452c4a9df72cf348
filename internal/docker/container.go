// container.go implements the Selenium container lifecycle for the docker
// automation backend: create, start, follow logs, wait, kill, remove.
//
// All managed containers are identified by the "e2e-runner.managed-by"
// label, which lets a new run find and remove containers that an earlier,
// abnormally terminated run left behind.
package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// seleniumContainerPort is the port the Selenium images listen on.
const seleniumContainerPort = 4444

// seleniumShmSize is the /dev/shm size recommended for Chrome in a
// container; the 64MB default makes the browser crash.
const seleniumShmSize = 2 << 30

// ContainerInfo holds runtime information about a managed container.
type ContainerInfo struct {
	ContainerID   string `json:"containerId"`
	ContainerName string `json:"containerName"`

	// Status is the Docker container state (e.g., "running", "exited").
	Status string `json:"status"`

	Labels map[string]string `json:"labels,omitempty"`
}

// SeleniumSpec describes the automation server container to run.
type SeleniumSpec struct {
	Image string
	Name  string

	// HostPort is the host port 4444 is published on.
	HostPort int

	// Args are passed to the server through SE_OPTS (e.g. "-debug").
	Args []string

	Labels map[string]string
}

// ListManagedContainers returns every container (including stopped ones)
// that carries the managed-by label and the given role.
func ListManagedContainers(ctx context.Context, cli *Client, role string) ([]ContainerInfo, error) {
	// Docker performs the label filtering server-side.
	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: ManagedFilter(role),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Docker containers: %w", err)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}
	return result, nil
}

// containerToInfo converts a Docker API container summary to ContainerInfo.
// The Docker API returns names with a leading "/" which is stripped here.
func containerToInfo(c container.Summary) ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	return ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		Status:        c.State,
		Labels:        c.Labels,
	}
}

// RemoveStale force-removes managed containers of the given role left by
// earlier runs. It returns how many containers were removed.
func RemoveStale(ctx context.Context, cli *Client, role string) (int, error) {
	stale, err := ListManagedContainers(ctx, cli, role)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, c := range stale {
		if err := RemoveContainer(ctx, cli, c.ContainerID, true); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// buildSeleniumConfig maps a SeleniumSpec onto the SDK's create structs.
func buildSeleniumConfig(spec SeleniumSpec) (*container.Config, *container.HostConfig) {
	containerPort := nat.Port(strconv.Itoa(seleniumContainerPort) + "/tcp")

	cfg := &container.Config{
		Image:        spec.Image,
		Labels:       spec.Labels,
		ExposedPorts: nat.PortSet{containerPort: struct{}{}},
	}
	if len(spec.Args) > 0 {
		cfg.Env = []string{"SE_OPTS=" + strings.Join(spec.Args, " ")}
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(spec.HostPort),
			}},
		},
		ShmSize:    seleniumShmSize,
		AutoRemove: true,
	}

	return cfg, hostCfg
}

// CreateAndStart creates the Selenium container and starts it. If the
// start fails the created container is removed so nothing is leaked.
func CreateAndStart(ctx context.Context, cli *Client, spec SeleniumSpec) (string, error) {
	cfg, hostCfg := buildSeleniumConfig(spec)

	resp, err := cli.Inner().ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %q: %w", spec.Name, err)
	}

	if err := cli.Inner().ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = RemoveContainer(context.WithoutCancel(ctx), cli, resp.ID, true)
		return "", fmt.Errorf("failed to start container %q: %w", spec.Name, err)
	}

	return resp.ID, nil
}

// FollowLogs copies the container's stdout and stderr into the writers
// until the container stops or ctx is cancelled. The container runs
// without a TTY, so the stream is multiplexed and demuxed with stdcopy.
func FollowLogs(ctx context.Context, cli *Client, containerID string, stdout, stderr io.Writer) error {
	rc, err := cli.Inner().ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to follow logs of %q: %w", containerID, err)
	}
	defer func() { _ = rc.Close() }()

	_, err = stdcopy.StdCopy(stdout, stderr, rc)
	return err
}

// WaitExit blocks until the container is no longer running and returns
// its exit status.
func WaitExit(ctx context.Context, cli *Client, containerID string) (int64, error) {
	statusCh, errCh := cli.Inner().ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("failed to wait for container %q: %w", containerID, err)
	case st := <-statusCh:
		if st.Error != nil && st.Error.Message != "" {
			return st.StatusCode, fmt.Errorf("container %q: %s", containerID, st.Error.Message)
		}
		return st.StatusCode, nil
	}
}

// KillContainer sends signal to the container's main process. A container
// that is already gone is not an error.
func KillContainer(ctx context.Context, cli *Client, containerID, signal string) error {
	err := cli.Inner().ContainerKill(ctx, containerID, signal)
	if err != nil && !errdefs.IsNotFound(err) && !errdefs.IsConflict(err) {
		return fmt.Errorf("failed to signal container %q: %w", containerID, err)
	}
	return nil
}

// RemoveContainer removes a container by its ID. When force is true Docker
// kills the container first. A container that is already gone is not an
// error.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %q: %w", containerID, err)
	}
	return nil
}
