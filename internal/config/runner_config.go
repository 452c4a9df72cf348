package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/e2e-runner/internal/jsconfig"
)

// defaultRunnerConfig is used when the project's own runner configuration
// cannot be read or parsed.
//
//go:embed nightwatch.default.json
var defaultRunnerConfig []byte

// DefaultRunnerConfigName is the file the embedded default is written to
// inside the report directory.
const DefaultRunnerConfigName = ".nightwatch.default.json"

// DefaultRunnerConfig returns a copy of the embedded runner configuration.
func DefaultRunnerConfig() []byte {
	out := make([]byte, len(defaultRunnerConfig))
	copy(out, defaultRunnerConfig)
	return out
}

// ValidateRunnerConfig reads path and checks that it holds a configuration
// object. A .js or .cjs file is evaluated as a CommonJS module with
// environ as process.env; anything else must be JSON, allowing comments
// and trailing commas.
func ValidateRunnerConfig(path string, environ []string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".cjs":
		return validateRunnerScript(path, environ)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read runner config: %w", err)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(jsonc.ToJSON(data), &obj); err != nil {
		return fmt.Errorf("parse runner config %s: %w", path, err)
	}
	if obj == nil {
		return fmt.Errorf("parse runner config %s: not a JSON object", path)
	}
	return nil
}

func validateRunnerScript(path string, environ []string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("read runner config: %w", err)
	}
	exported, err := jsconfig.Eval(path, filepath.Dir(path), environ)
	if err != nil {
		return fmt.Errorf("parse runner config %s: %w", path, err)
	}
	if _, ok := exported.(map[string]interface{}); !ok {
		return fmt.Errorf("parse runner config %s: module does not export an object", path)
	}
	return nil
}

// RunnerConfig is the outcome of ResolveRunnerConfig.
type RunnerConfig struct {
	// Path is the configuration file handed to the test runner.
	Path string

	// FellBack is set when Path is the embedded default.
	FellBack bool

	// Reason explains why the requested file was rejected.
	Reason error
}

// ResolveRunnerConfig returns the runner configuration to hand to the test
// runner. If path is usable it is returned unchanged. Otherwise the
// embedded default is written into fallbackDir and that path is returned.
// Only a failure to write the default is an error.
func ResolveRunnerConfig(path, fallbackDir string, environ []string) (RunnerConfig, error) {
	reason := ValidateRunnerConfig(path, environ)
	if reason == nil {
		return RunnerConfig{Path: path}, nil
	}

	if err := os.MkdirAll(fallbackDir, 0o755); err != nil {
		return RunnerConfig{}, fmt.Errorf("create %s: %w", fallbackDir, err)
	}
	resolved := filepath.Join(fallbackDir, DefaultRunnerConfigName)
	if err := os.WriteFile(resolved, defaultRunnerConfig, 0o644); err != nil {
		return RunnerConfig{}, fmt.Errorf("write default runner config: %w", err)
	}
	return RunnerConfig{Path: resolved, FellBack: true, Reason: reason}, nil
}
