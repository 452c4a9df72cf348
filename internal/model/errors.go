package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies orchestration failures. Every kind is terminal:
// none of them is retried or recovered in place.
type ErrorKind string

const (
	// KindInstall: the automation server dependency could not be installed.
	KindInstall ErrorKind = "install"

	// KindSpawn: the automation server or the test runner failed to launch.
	KindSpawn ErrorKind = "spawn"

	// KindBind: the dev server could not load its config or listen.
	KindBind ErrorKind = "bind"

	// KindRunnerProcess: the runner process faulted in a way that is not
	// an exit status (wait failure, killed by a signal).
	KindRunnerProcess ErrorKind = "runner-process"

	// KindServerExited: the automation server exited before teardown.
	KindServerExited ErrorKind = "server-exited"

	// KindUncaught: any other runtime fault, including recovered panics
	// and termination signals received by the supervisor.
	KindUncaught ErrorKind = "uncaught"
)

// StageError is the error returned by every stage supervisor.
// It records which kind of failure happened so callers can tell a spawn
// failure apart from a runner outcome.
type StageError struct {
	Kind ErrorKind

	// Stage names the component that failed (e.g. "selenium", "dev-server").
	Stage string

	Err error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err as a StageError of the given kind.
func NewStageError(kind ErrorKind, stage string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the ErrorKind of the first StageError in err's chain,
// or KindUncaught if there is none.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUncaught
}
