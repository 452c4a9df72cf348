package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"

	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// EnsureImage pulls ref unless it is already present locally. It reports
// whether a pull happened.
func EnsureImage(ctx context.Context, cli *Client, ref string) (bool, error) {
	_, err := cli.Inner().ImageInspect(ctx, ref)
	if err == nil {
		return false, nil
	}
	if !errdefs.IsNotFound(err) {
		return false, fmt.Errorf("failed to inspect image %q: %w", ref, err)
	}

	rc, err := cli.Inner().ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to pull image %q: %w", ref, err)
	}
	defer func() { _ = rc.Close() }()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return false, fmt.Errorf("failed to pull image %q: %w", ref, err)
	}
	return true, nil
}

// ImageInstaller is the docker backend's dependency installer: it makes
// sure the Selenium image exists locally.
type ImageInstaller struct {
	client *Client
	ref    string
	logger *slog.Logger
}

// NewImageInstaller creates an installer for ref. A nil logger discards
// output.
func NewImageInstaller(cli *Client, ref string, logger *slog.Logger) *ImageInstaller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ImageInstaller{client: cli, ref: ref, logger: logger}
}

// Install verifies the daemon is reachable and pulls the image if needed.
func (i *ImageInstaller) Install(ctx context.Context) error {
	if err := i.client.Ping(ctx); err != nil {
		return model.NewStageError(model.KindInstall, "selenium-image", err)
	}

	pulled, err := EnsureImage(ctx, i.client, i.ref)
	if err != nil {
		return model.NewStageError(model.KindInstall, "selenium-image", err)
	}
	if pulled {
		i.logger.Info("pulled selenium image", "image", i.ref)
	} else {
		i.logger.Debug("selenium image already present", "image", i.ref)
	}
	return nil
}
