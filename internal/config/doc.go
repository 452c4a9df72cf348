// Package config resolves the supervisor's configuration from environment
// variables and validates the test runner's configuration file.
//
// Environment-derived values are resolved exactly once into an immutable
// Config value at startup and passed explicitly to each stage. Nothing in
// the supervisor re-reads the environment afterwards.
//
// The runner configuration (nightwatch.json) is commonly written as JSONC,
// so this package uses github.com/tidwall/jsonc to strip comments before
// validating it with encoding/json. A nightwatch.conf.js is evaluated with
// package jsconfig instead. An unreadable or invalid file is the
// only recoverable failure in the whole run: the embedded default
// configuration is written next to the reports and used in its place.
package config
