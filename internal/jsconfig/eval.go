// Package jsconfig evaluates CommonJS configuration files, such as
// webpack.config.js and nightwatch.conf.js, without a Node.js runtime.
//
// A file is run in github.com/dop251/goja with the globals configuration
// scripts rely on: require, module, exports, __filename, __dirname and a
// minimal process object. require resolves relative files and the path
// module; any other package name yields a placeholder so plugin
// constructors and helpers evaluate without node_modules. The exported
// value is reduced to plain Go maps, slices and scalars.
package jsconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dop251/goja"
	"gopkg.in/yaml.v3"
)

// stubModuleSource evaluates to a factory for placeholder modules. Any
// property of a placeholder is another placeholder, calling one returns a
// placeholder and constructing one returns a plain object, so
// `new (require('html-webpack-plugin'))({...})` evaluates without the
// package being installed.
const stubModuleSource = `(function () {
	var handler = {
		get: function (target, prop) {
			if (typeof prop === 'symbol' || prop === 'toJSON' || prop === 'then') {
				return undefined;
			}
			return stub();
		},
		apply: function () { return stub(); },
		construct: function () { return {}; }
	};
	function stub() { return new Proxy(function () {}, handler); }
	return stub;
})()`

// moduleLoader implements require() for a configuration script.
type moduleLoader struct {
	vm      *goja.Runtime
	workDir string
	cache   map[string]*goja.Object
	stub    goja.Callable
	path    *goja.Object
}

// Eval runs a CommonJS configuration file and returns its exported
// configuration as plain Go values. workDir backs process.cwd() and
// path.resolve; environ supplies process.env. A function export is called
// with (env, argv) and a settled promise is unwrapped.
func Eval(file, workDir string, environ []string) (any, error) {
	vm := goja.New()
	l := &moduleLoader{
		vm:      vm,
		workDir: workDir,
		cache:   map[string]*goja.Object{},
	}
	if err := l.setup(environ); err != nil {
		return nil, err
	}

	exported, err := l.load(file)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", file, err)
	}

	value := goja.Value(exported)
	if fn, ok := goja.AssertFunction(value); ok {
		value, err = fn(goja.Undefined(), vm.NewObject(), vm.NewObject())
		if err != nil {
			return nil, fmt.Errorf("call exported function in %s: %w", file, err)
		}
	}

	if p, ok := value.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			value = p.Result()
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("%s: exported promise rejected: %v", file, p.Result())
		default:
			return nil, fmt.Errorf("%s: exported promise never settled", file)
		}
	}

	return toPlain(vm, value)
}

// setup installs the globals a configuration script expects.
func (l *moduleLoader) setup(environ []string) error {
	stubFactory, err := l.vm.RunString(stubModuleSource)
	if err != nil {
		return fmt.Errorf("initialise module stubs: %w", err)
	}
	stub, ok := goja.AssertFunction(stubFactory)
	if !ok {
		return errors.New("initialise module stubs: factory is not a function")
	}
	l.stub = stub

	env := l.vm.NewObject()
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			_ = env.Set(k, v)
		}
	}

	process := l.vm.NewObject()
	_ = process.Set("env", env)
	_ = process.Set("platform", runtime.GOOS)
	_ = process.Set("argv", []string{})
	_ = process.Set("cwd", func() string { return l.workDir })
	if err := l.vm.Set("process", process); err != nil {
		return err
	}

	l.path = l.pathModule()
	return nil
}

// pathModule provides the parts of Node's path module that configuration
// scripts use.
func (l *moduleLoader) pathModule() *goja.Object {
	m := l.vm.NewObject()
	_ = m.Set("sep", string(filepath.Separator))
	_ = m.Set("delimiter", string(filepath.ListSeparator))
	_ = m.Set("join", func(parts ...string) string {
		return filepath.Join(parts...)
	})
	_ = m.Set("resolve", func(parts ...string) string {
		resolved := l.workDir
		for _, p := range parts {
			if filepath.IsAbs(p) {
				resolved = p
			} else {
				resolved = filepath.Join(resolved, p)
			}
		}
		return filepath.Clean(resolved)
	})
	_ = m.Set("dirname", filepath.Dir)
	_ = m.Set("extname", filepath.Ext)
	_ = m.Set("isAbsolute", filepath.IsAbs)
	_ = m.Set("normalize", filepath.Clean)
	_ = m.Set("basename", func(p string, ext ...string) string {
		base := filepath.Base(p)
		if len(ext) > 0 && ext[0] != base {
			base = strings.TrimSuffix(base, ext[0])
		}
		return base
	})
	_ = m.Set("relative", func(from, to string) string {
		rel, err := filepath.Rel(from, to)
		if err != nil {
			return to
		}
		return rel
	})
	return m
}

// load evaluates a JavaScript or JSON module and returns module.exports.
func (l *moduleLoader) load(file string) (*goja.Object, error) {
	if cached, ok := l.cache[file]; ok {
		return cached, nil
	}

	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(file), ".json") {
		var data any
		if err := yaml.Unmarshal(src, &data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		if data == nil {
			return nil, fmt.Errorf("%s: empty document", file)
		}
		obj := l.vm.ToValue(data).ToObject(l.vm)
		l.cache[file] = obj
		return obj, nil
	}

	wrapped := "(function (exports, require, module, __filename, __dirname) {" +
		string(src) + "\n})"
	prg, err := goja.Compile(file, wrapped, false)
	if err != nil {
		return nil, err
	}
	fnValue, err := l.vm.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, fmt.Errorf("%s: module wrapper is not a function", file)
	}

	module := l.vm.NewObject()
	exports := l.vm.NewObject()
	_ = module.Set("exports", exports)
	_ = module.Set("filename", file)
	// Cache before running so circular requires see partial exports.
	l.cache[file] = exports

	if _, err := fn(exports, exports, l.vm.ToValue(l.requireFrom(filepath.Dir(file))),
		module, l.vm.ToValue(file), l.vm.ToValue(filepath.Dir(file))); err != nil {
		return nil, err
	}

	out := module.Get("exports")
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return nil, fmt.Errorf("%s: module.exports is empty", file)
	}
	result := out.ToObject(l.vm)
	l.cache[file] = result
	return result, nil
}

// requireFrom returns a require function resolving relative names
// against dir.
func (l *moduleLoader) requireFrom(dir string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()

		switch {
		case name == "path" || name == "node:path":
			return l.path
		case strings.HasPrefix(name, "./"), strings.HasPrefix(name, "../"), filepath.IsAbs(name):
			target := name
			if !filepath.IsAbs(target) {
				target = filepath.Join(dir, name)
			}
			resolved, err := resolveFile(target)
			if err != nil {
				panic(l.vm.NewGoError(err))
			}
			exports, err := l.load(resolved)
			if err != nil {
				panic(l.vm.NewGoError(err))
			}
			return exports
		default:
			v, err := l.stub(goja.Undefined())
			if err != nil {
				panic(l.vm.NewGoError(err))
			}
			return v
		}
	}
}

// resolveFile applies Node's file extension and index.js lookup.
func resolveFile(target string) (string, error) {
	candidates := []string{
		target,
		target + ".js",
		target + ".json",
		filepath.Join(target, "index.js"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("cannot find module %q", target)
}

// toPlain converts a JavaScript value to Go maps, slices and scalars by
// round-tripping it through JSON.stringify, which drops functions and
// placeholder modules.
func toPlain(vm *goja.Runtime, value goja.Value) (any, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, errors.New("module does not export a configuration")
	}

	jsonObj := vm.Get("JSON").ToObject(vm)
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return nil, errors.New("JSON.stringify is unavailable")
	}
	text, err := stringify(jsonObj, value)
	if err != nil {
		return nil, fmt.Errorf("serialise exports: %w", err)
	}
	if goja.IsUndefined(text) {
		return nil, errors.New("module does not export a configuration")
	}

	var out any
	if err := yaml.Unmarshal([]byte(text.String()), &out); err != nil {
		return nil, fmt.Errorf("decode exports: %w", err)
	}
	return out, nil
}
