// Package devserver serves the bundled front-end application while the
// end-to-end suite runs against it.
//
// The bundler's configuration file (webpack.config.js by default) is read
// for the handful of settings that decide what the development server
// exposes: where the bundle is written, the public path it is served
// under, extra static directories, response headers and history API
// fallback. JavaScript configurations are evaluated by package jsconfig;
// JSON and YAML configurations are decoded directly. Assets are served as
// they are on disk; nothing is compiled.
package devserver

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/e2e-runner/internal/jsconfig"
)

// DefaultIndex is the document served by history API fallback.
const DefaultIndex = "index.html"

// BundleConfig is the subset of a bundler configuration the dev server
// understands. Unknown keys are ignored.
type BundleConfig struct {
	// Source is the absolute path of the file the configuration came from.
	Source string `mapstructure:"-"`

	Output    OutputConfig    `mapstructure:"output"`
	DevServer DevServerConfig `mapstructure:"devServer"`
}

// OutputConfig describes where the bundle is written and served.
type OutputConfig struct {
	Path       string `mapstructure:"path"`
	PublicPath string `mapstructure:"publicPath"`
}

// DevServerConfig holds the devServer section.
type DevServerConfig struct {
	ContentBase []string          `mapstructure:"contentBase"`
	Headers     map[string]string `mapstructure:"headers"`
	Host        string            `mapstructure:"host"`
	Port        int               `mapstructure:"port"`

	// HistoryAPIFallback is either a bool or an object with an "index" key.
	HistoryAPIFallback any `mapstructure:"historyApiFallback"`
}

// FallbackIndex returns the URL path served for unmatched HTML requests,
// or "" when history API fallback is disabled.
func (d DevServerConfig) FallbackIndex() string {
	switch v := d.HistoryAPIFallback.(type) {
	case bool:
		if v {
			return "/" + DefaultIndex
		}
	case map[string]any:
		if idx, ok := v["index"].(string); ok && idx != "" {
			return path.Join("/", idx)
		}
		return "/" + DefaultIndex
	}
	return ""
}

// LoadBundleConfig reads the configuration at file and resolves every
// relative path against workDir. environ supplies process.env for
// JavaScript configurations.
func LoadBundleConfig(file, workDir string, environ []string) (*BundleConfig, error) {
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workDir, abs)
	}

	var raw any
	var err error
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".js", ".cjs":
		raw, err = jsconfig.Eval(abs, workDir, environ)
	case ".json", ".yaml", ".yml":
		raw, err = readData(abs)
	default:
		return nil, fmt.Errorf("unsupported bundle config %s: expected .js, .cjs, .json, .yaml or .yml", abs)
	}
	if err != nil {
		return nil, err
	}

	cfg, err := decodeBundleConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("decode bundle config %s: %w", abs, err)
	}
	cfg.Source = abs
	cfg.resolve(workDir)
	return cfg, nil
}

func readData(file string) (any, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read bundle config: %w", err)
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse bundle config %s: %w", file, err)
	}
	return raw, nil
}

// decodeBundleConfig maps a decoded document onto BundleConfig. A
// multi-compiler configuration (a list) uses its first entry.
func decodeBundleConfig(raw any) (*BundleConfig, error) {
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("empty configuration list")
		}
		raw = list[0]
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, fmt.Errorf("configuration must be an object, got %T", raw)
	}

	var cfg BundleConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       contentBaseHook,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// contentBaseHook turns `contentBase: false` into an empty list instead
// of the weakly typed ["0"].
func contentBaseHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.Bool && to.Kind() == reflect.Slice {
		if b, _ := data.(bool); !b {
			return []string{}, nil
		}
		return []string{"."}, nil
	}
	return data, nil
}

// resolve applies defaults and makes paths absolute.
func (c *BundleConfig) resolve(workDir string) {
	if c.Output.Path == "" {
		c.Output.Path = "dist"
	}
	c.Output.Path = absPath(workDir, c.Output.Path)

	pub := c.Output.PublicPath
	if pub == "" || strings.Contains(pub, "://") || strings.HasPrefix(pub, "//") {
		// Absolute URLs point at a CDN; serve the bundle at the root.
		pub = "/"
	}
	pub = path.Clean("/" + pub)
	if pub != "/" {
		pub += "/"
	}
	c.Output.PublicPath = pub

	if c.DevServer.ContentBase == nil {
		c.DevServer.ContentBase = []string{workDir}
	}
	for i, dir := range c.DevServer.ContentBase {
		c.DevServer.ContentBase[i] = absPath(workDir, dir)
	}
}

func absPath(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
