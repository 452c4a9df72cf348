package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// Environment variable names. The first five are the supervisor's public
// contract; the rest tune the automation backend.
const (
	EnvBundleConfig  = "WEBPACK_CONFIG"
	EnvLogDir        = "LOG_DIR"
	EnvReportDir     = "REPORT_DIR"
	EnvRunnerConfig  = "NIGHTWATCH_CONFIG"
	EnvPort          = "PORT"
	EnvHost          = "DEV_SERVER_HOST"
	EnvRunnerBinary  = "NIGHTWATCH_BIN"
	EnvBackend       = "SELENIUM_BACKEND"
	EnvInstallDir    = "SELENIUM_INSTALL_DIR"
	EnvSeleniumVer   = "SELENIUM_VERSION"
	EnvSeleniumURL   = "SELENIUM_BASE_URL"
	EnvDriverVer     = "CHROMEDRIVER_VERSION"
	EnvDriverURL     = "CHROMEDRIVER_BASE_URL"
	EnvSeleniumImage = "SELENIUM_IMAGE"
	EnvSeleniumPort  = "SELENIUM_PORT"
	EnvWaitReady     = "SELENIUM_WAIT_READY"
	EnvJavaBin       = "JAVA_BIN"
	EnvLogLevel      = "LOG_LEVEL"
)

// Defaults mirror the layout of a typical front-end project: configs at
// the project root, reports under ./reports.
const (
	DefaultBundleConfig     = "webpack.config.js"
	DefaultLogDir           = "reports"
	DefaultRunnerConfigFile = "nightwatch.json"
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 8080
	DefaultInstallDir       = ".selenium"
	DefaultSeleniumVer      = "3.141.59"
	DefaultSeleniumURL      = "https://selenium-release.storage.googleapis.com"
	DefaultDriverVer        = "2.46"
	DefaultDriverURL        = "https://chromedriver.storage.googleapis.com"
	DefaultSeleniumImage    = "selenium/standalone-chrome:3.141.59"
	DefaultSeleniumPort     = 4444
	DefaultJavaBin          = "java"

	// LogFileName is the automation server's log file inside LogDir.
	LogFileName = "selenium.log"
)

// DefaultReportDir is relative to the working directory.
var DefaultReportDir = filepath.Join("reports", "test-e2e")

// Selenium groups the automation server settings.
type Selenium struct {
	Backend model.Backend

	// InstallDir holds the downloaded jar and driver (local backend).
	InstallDir    string
	Version       string
	BaseURL       string
	DriverVersion string
	DriverBaseURL string

	// Image is the container image (docker backend).
	Image string

	// Port is the port the server listens on (and is published on).
	Port int

	// WaitReady enables the readiness probe after spawn.
	WaitReady bool

	JavaBin string
}

// Config is the resolved, immutable configuration of one run.
// All paths are absolute.
type Config struct {
	WorkDir string

	// BundleConfigPath is the dev server's bundle configuration.
	BundleConfigPath string

	// LogDir receives selenium.log.
	LogDir string

	// ReportDir is passed to the test runner as --output.
	ReportDir string

	// RunnerConfigPath is the requested runner config. It may not exist;
	// see ResolveRunnerConfig.
	RunnerConfigPath string

	// RunnerBinary overrides binary resolution when non-empty.
	RunnerBinary string

	Host string
	Port int

	Selenium Selenium

	LogLevel slog.Level
}

// LogFilePath returns the path of the automation server log.
func (c Config) LogFilePath() string {
	return filepath.Join(c.LogDir, LogFileName)
}

// FromEnvironment resolves Config from the process environment and the
// current working directory.
func FromEnvironment() (Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("resolve working directory: %w", err)
	}
	return Load(os.Getenv, wd)
}

// Load resolves Config from getenv, resolving relative paths against cwd.
// It is a pure function of its inputs so tests can pass a map lookup.
func Load(getenv func(string) string, cwd string) (Config, error) {
	lookup := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(cwd, p)
	}

	port, err := parsePort(EnvPort, lookup(EnvPort, ""), DefaultPort)
	if err != nil {
		return Config{}, err
	}
	seleniumPort, err := parsePort(EnvSeleniumPort, lookup(EnvSeleniumPort, ""), DefaultSeleniumPort)
	if err != nil {
		return Config{}, err
	}
	backend, err := model.ParseBackend(getenv(EnvBackend))
	if err != nil {
		return Config{}, err
	}

	runnerBin := lookup(EnvRunnerBinary, "")
	if runnerBin != "" && strings.ContainsRune(runnerBin, filepath.Separator) {
		runnerBin = abs(runnerBin)
	}

	return Config{
		WorkDir:          cwd,
		BundleConfigPath: abs(lookup(EnvBundleConfig, DefaultBundleConfig)),
		LogDir:           abs(lookup(EnvLogDir, DefaultLogDir)),
		ReportDir:        abs(lookup(EnvReportDir, DefaultReportDir)),
		RunnerConfigPath: abs(lookup(EnvRunnerConfig, DefaultRunnerConfigFile)),
		RunnerBinary:     runnerBin,
		Host:             lookup(EnvHost, DefaultHost),
		Port:             port,
		Selenium: Selenium{
			Backend:       backend,
			InstallDir:    abs(lookup(EnvInstallDir, DefaultInstallDir)),
			Version:       lookup(EnvSeleniumVer, DefaultSeleniumVer),
			BaseURL:       strings.TrimRight(lookup(EnvSeleniumURL, DefaultSeleniumURL), "/"),
			DriverVersion: lookup(EnvDriverVer, DefaultDriverVer),
			DriverBaseURL: strings.TrimRight(lookup(EnvDriverURL, DefaultDriverURL), "/"),
			Image:         lookup(EnvSeleniumImage, DefaultSeleniumImage),
			Port:          seleniumPort,
			WaitReady:     parseBool(getenv(EnvWaitReady)),
			JavaBin:       lookup(EnvJavaBin, DefaultJavaBin),
		},
		LogLevel: logging.ParseLevel(getenv(EnvLogLevel)),
	}, nil
}

// parsePort returns def for an empty value and rejects anything outside
// 0-65535. Port 0 lets the OS choose.
func parsePort(key, value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	p, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if p < 0 || p > 65535 {
		return 0, fmt.Errorf("invalid %s %d: out of range (0-65535)", key, p)
	}
	return p, nil
}

func parseBool(value string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && b
}
