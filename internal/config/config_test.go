package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// envMap adapts a map to the getenv signature Load expects.
func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// TestLoad_Defaults verifies every default resolves against the working
// directory when no variable is set.
func TestLoad_Defaults(t *testing.T) {
	cwd := t.TempDir()

	cfg, err := Load(envMap(nil), cwd)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cwd, "webpack.config.js"), cfg.BundleConfigPath)
	assert.Equal(t, filepath.Join(cwd, "reports"), cfg.LogDir)
	assert.Equal(t, filepath.Join(cwd, "reports", "test-e2e"), cfg.ReportDir)
	assert.Equal(t, filepath.Join(cwd, "nightwatch.json"), cfg.RunnerConfigPath)
	assert.Equal(t, filepath.Join(cwd, "reports", "selenium.log"), cfg.LogFilePath())
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, model.BackendLocal, cfg.Selenium.Backend)
	assert.Equal(t, 4444, cfg.Selenium.Port)
	assert.False(t, cfg.Selenium.WaitReady)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.RunnerBinary)
}

// TestLoad_Overrides verifies relative overrides are resolved against cwd
// and absolute overrides are kept.
func TestLoad_Overrides(t *testing.T) {
	cwd := t.TempDir()
	absReports := filepath.Join(t.TempDir(), "out")

	cfg, err := Load(envMap(map[string]string{
		EnvBundleConfig: "config/webpack.e2e.js",
		EnvLogDir:       "logs",
		EnvReportDir:    absReports,
		EnvRunnerConfig: "test/nightwatch.json",
		EnvPort:         "9090",
		EnvHost:         "127.0.0.1",
		EnvBackend:      "docker",
		EnvSeleniumPort: "14444",
		EnvWaitReady:    "true",
		EnvSeleniumURL:  "http://mirror.local/selenium/",
		EnvRunnerBinary: "bin/nightwatch",
		EnvLogLevel:     "debug",
	}), cwd)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cwd, "config", "webpack.e2e.js"), cfg.BundleConfigPath)
	assert.Equal(t, filepath.Join(cwd, "logs"), cfg.LogDir)
	assert.Equal(t, absReports, cfg.ReportDir)
	assert.Equal(t, filepath.Join(cwd, "test", "nightwatch.json"), cfg.RunnerConfigPath)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, model.BackendDocker, cfg.Selenium.Backend)
	assert.Equal(t, 14444, cfg.Selenium.Port)
	assert.True(t, cfg.Selenium.WaitReady)
	assert.Equal(t, "http://mirror.local/selenium", cfg.Selenium.BaseURL)
	assert.Equal(t, filepath.Join(cwd, "bin", "nightwatch"), cfg.RunnerBinary)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

// TestLoad_BareRunnerBinary keeps a bare command name for PATH lookup.
func TestLoad_BareRunnerBinary(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{EnvRunnerBinary: "nightwatch"}), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "nightwatch", cfg.RunnerBinary)
}

// TestLoad_InvalidValues verifies invalid ports and backends are rejected.
func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric port", map[string]string{EnvPort: "http"}},
		{"port too large", map[string]string{EnvPort: "70000"}},
		{"negative selenium port", map[string]string{EnvSeleniumPort: "-1"}},
		{"unknown backend", map[string]string{EnvBackend: "vm"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(envMap(tt.env), t.TempDir())
			assert.Error(t, err)
		})
	}
}

// TestFromEnvironment verifies the os-backed entry point reads variables.
func TestFromEnvironment(t *testing.T) {
	t.Setenv(EnvPort, "8181")
	t.Setenv(EnvReportDir, "custom-reports")

	cfg, err := FromEnvironment()
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Port)
	assert.Equal(t, filepath.Join(wd, "custom-reports"), cfg.ReportDir)
}
