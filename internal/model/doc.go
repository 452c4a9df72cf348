// Package model defines the domain types and value objects for the
// e2e-runner supervisor.
//
// This package contains pure data structures with no external dependencies.
// All entities (State, Stage, StageError, etc.) are transient: they exist
// only for the lifetime of one supervised run and nothing is persisted.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
