// Package model defines the domain types for the e2e-runner supervisor.
//
// These types are shared by the orchestrator and the stage supervisors
// (installer, automation server, dev server, test runner). They carry no
// behavior beyond validation and formatting.
package model

import (
	"fmt"
	"strings"
)

// State represents the lifecycle state of one orchestrated run.
// The state transitions are:
//
//	INSTALLING → SERVER_STARTING → SERVER_STARTED → DEVSERVER_STARTING
//	  → DEVSERVER_STARTED → RUNNER_RUNNING → DONE
//	any non-terminal state → ABORTED
type State string

const (
	// StateInstalling is the initial state: the automation server binary
	// (or image) is being ensured locally.
	StateInstalling State = "INSTALLING"

	// StateServerStarting indicates the automation server is being spawned.
	StateServerStarting State = "SERVER_STARTING"

	// StateServerStarted indicates the automation server was spawned
	// successfully. No readiness check is implied.
	StateServerStarted State = "SERVER_STARTED"

	// StateDevServerStarting indicates the dev server is loading its bundle
	// configuration and binding its listener.
	StateDevServerStarting State = "DEVSERVER_STARTING"

	// StateDevServerStarted indicates the dev server listener is accepting
	// connections.
	StateDevServerStarted State = "DEVSERVER_STARTED"

	// StateRunnerRunning indicates the test runner process was spawned and
	// the orchestrator is waiting for it to close.
	StateRunnerRunning State = "RUNNER_RUNNING"

	// StateDone is terminal: the runner closed and its exit code is final.
	StateDone State = "DONE"

	// StateAborted is terminal: some stage failed and the run exits with 1.
	StateAborted State = "ABORTED"
)

// transitions lists the forward edges of the state machine. ABORTED is
// handled separately because it is reachable from every non-terminal state.
var transitions = map[State]State{
	StateInstalling:        StateServerStarting,
	StateServerStarting:    StateServerStarted,
	StateServerStarted:     StateDevServerStarting,
	StateDevServerStarting: StateDevServerStarted,
	StateDevServerStarted:  StateRunnerRunning,
	StateRunnerRunning:     StateDone,
}

// String returns the string representation of State.
func (s State) String() string {
	return string(s)
}

// IsValid checks whether the State value is one of the predefined states.
func (s State) IsValid() bool {
	if s == StateDone || s == StateAborted {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateAborted
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() || !s.IsValid() {
		return false
	}
	if next == StateAborted {
		return true
	}
	return transitions[s] == next
}

// ParseState converts a string to a State.
// Returns an error if the string does not match any valid state.
func ParseState(s string) (State, error) {
	state := State(strings.ToUpper(s))
	if !state.IsValid() {
		return "", fmt.Errorf("invalid orchestrator state: %q", s)
	}
	return state, nil
}

// Backend selects how the automation server is provided.
type Backend string

const (
	// BackendLocal runs the Selenium standalone jar as a child process.
	BackendLocal Backend = "local"

	// BackendDocker runs the Selenium server inside a Docker container.
	BackendDocker Backend = "docker"
)

// String returns the string representation of Backend.
func (b Backend) String() string {
	return string(b)
}

// ParseBackend converts a string to a Backend. An empty string selects
// BackendLocal.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendLocal, nil
	case BackendLocal, BackendDocker:
		return b, nil
	default:
		return "", fmt.Errorf("invalid automation backend: %q (valid: local, docker)", s)
	}
}

// ExitCode defines the process exit codes of the supervisor.
// Any value other than the ones below is the test runner's own exit code,
// forwarded verbatim.
type ExitCode int

const (
	// ExitSuccess indicates all tests passed.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an orchestration-level failure: install,
	// spawn, bind, runner process fault, or an uncaught fault.
	ExitGeneralError ExitCode = 1
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
