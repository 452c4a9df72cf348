// Package install ensures the automation server and its browser driver are
// present locally before the first run.
//
// Installation is idempotent: an artifact whose destination already exists
// is never downloaded again. Failures are not retried; a network or disk
// error aborts the whole run.
package install

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shinji-kodama/e2e-runner/internal/config"
	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// stageName labels errors and log lines produced by this package.
const stageName = "selenium-install"

// Installer ensures the automation server dependency exists locally.
type Installer interface {
	Install(ctx context.Context) error
}

// Artifact describes one file to install.
type Artifact struct {
	// Name is used in logs and errors.
	Name string

	URL string

	// Path is the final location on disk. Its presence means "installed".
	Path string

	// Archive is "" for a plain file or "zip" for a zip archive.
	Archive string

	// Member is the base name of the file to extract from the archive.
	Member string

	// Executable marks the installed file 0755.
	Executable bool
}

// Local downloads artifacts over HTTP.
type Local struct {
	artifacts []Artifact
	client    *http.Client
	logger    *slog.Logger
}

// Option configures a Local installer.
type Option func(*Local)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Local) {
		l.client = c
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Local) {
		l.logger = logger
	}
}

// NewLocal creates an installer for the given artifacts.
func NewLocal(artifacts []Artifact, opts ...Option) *Local {
	l := &Local{
		artifacts: artifacts,
		client:    http.DefaultClient,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Install downloads every missing artifact. The first failure stops the
// installation and is returned as a KindInstall StageError.
func (l *Local) Install(ctx context.Context) error {
	for _, a := range l.artifacts {
		if _, err := os.Stat(a.Path); err == nil {
			l.logger.Debug("artifact already installed", "artifact", a.Name, "path", a.Path)
			continue
		}

		l.logger.Info("installing artifact", "artifact", a.Name, "url", a.URL)
		if err := l.installOne(ctx, a); err != nil {
			return model.NewStageError(model.KindInstall, stageName,
				fmt.Errorf("install %s: %w", a.Name, err))
		}
	}
	return nil
}

func (l *Local) installOne(ctx context.Context, a Artifact) error {
	dir := filepath.Dir(a.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Download next to the destination so the final rename stays on one
	// filesystem and a half-written file is never mistaken for an install.
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := l.download(ctx, a.URL, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	src := tmp.Name()
	if a.Archive == "zip" {
		extracted, err := extractZipMember(src, a.Member, dir)
		if err != nil {
			return err
		}
		defer func() { _ = os.Remove(extracted) }()
		src = extracted
	} else if a.Archive != "" {
		return fmt.Errorf("unsupported archive type %q", a.Archive)
	}

	mode := os.FileMode(0o644)
	if a.Executable {
		mode = 0o755
	}
	if err := os.Chmod(src, mode); err != nil {
		return err
	}
	return os.Rename(src, a.Path)
}

func (l *Local) download(ctx context.Context, url string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	_, err = io.Copy(dst, resp.Body)
	return err
}

// extractZipMember copies the entry whose base name is member out of the
// archive into a temp file in dir and returns the temp file's path.
func extractZipMember(archive, member, dir string) (string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || filepath.Base(f.Name) != member {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer func() { _ = rc.Close() }()

		out, err := os.CreateTemp(dir, ".extract-*")
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, rc); err != nil {
			_ = out.Close()
			_ = os.Remove(out.Name())
			return "", err
		}
		if err := out.Close(); err != nil {
			_ = os.Remove(out.Name())
			return "", err
		}
		return out.Name(), nil
	}

	return "", fmt.Errorf("member %q not found in archive", member)
}

// ServerJarPath is where the Selenium standalone jar is installed.
// The layout follows selenium-standalone's so an existing install is reused.
func ServerJarPath(sel config.Selenium) string {
	return filepath.Join(sel.InstallDir, "selenium-server", sel.Version+"-server.jar")
}

// ChromeDriverPath is where the chromedriver binary is installed.
func ChromeDriverPath(sel config.Selenium) string {
	name := sel.DriverVersion + "-x64-chromedriver"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(sel.InstallDir, "chromedriver", name)
}

// DefaultArtifacts returns the Selenium server jar and chromedriver for the
// current platform.
func DefaultArtifacts(sel config.Selenium) []Artifact {
	member := "chromedriver"
	if runtime.GOOS == "windows" {
		member = "chromedriver.exe"
	}

	return []Artifact{
		{
			Name: "selenium-server",
			URL: fmt.Sprintf("%s/%s/selenium-server-standalone-%s.jar",
				sel.BaseURL, releaseLine(sel.Version), sel.Version),
			Path: ServerJarPath(sel),
		},
		{
			Name: "chromedriver",
			URL: fmt.Sprintf("%s/%s/chromedriver_%s.zip",
				sel.DriverBaseURL, sel.DriverVersion, driverPlatform(runtime.GOOS)),
			Path:       ChromeDriverPath(sel),
			Archive:    "zip",
			Member:     member,
			Executable: true,
		},
	}
}

// releaseLine returns the "major.minor" directory the release bucket
// groups jars by ("3.141.59" -> "3.141").
func releaseLine(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

func driverPlatform(goos string) string {
	switch goos {
	case "darwin":
		return "mac64"
	case "windows":
		return "win32"
	default:
		return "linux64"
	}
}
