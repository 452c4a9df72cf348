// Package automation supervises the browser-automation (Selenium) server.
//
// A Launcher starts the server and returns a Handle. The server's stdout
// and stderr are copied into a caller-supplied sink for the lifetime of
// the server. The Handle is owned by the orchestrator, which terminates it
// exactly once during teardown; Terminate is idempotent so that every
// teardown path can call it safely.
package automation

import (
	"context"
	"io"
	"sync"
)

// Handle is a running automation server.
type Handle interface {
	// Terminate asks the server to stop by sending it an interrupt.
	// Only the first call signals; later calls return the first result.
	Terminate() error

	// Done is closed once the server has exited, for any reason.
	Done() <-chan struct{}

	// Err describes why the server exited. It is only meaningful after
	// Done is closed.
	Err() error

	// String identifies the server in logs (pid or container id).
	String() string
}

// Launcher starts an automation server whose output goes to sink.
type Launcher interface {
	Start(ctx context.Context, sink io.Writer) (Handle, error)
}

// handle implements the bookkeeping shared by every backend.
type handle struct {
	name      string
	terminate func() error

	once    sync.Once
	termErr error

	done chan struct{}
	mu   sync.Mutex
	err  error
}

func newHandle(name string, terminate func() error) *handle {
	return &handle{
		name:      name,
		terminate: terminate,
		done:      make(chan struct{}),
	}
}

func (h *handle) Terminate() error {
	h.once.Do(func() {
		select {
		case <-h.done:
			// Already gone; nothing to signal.
		default:
			h.termErr = h.terminate()
		}
	})
	return h.termErr
}

func (h *handle) Done() <-chan struct{} {
	return h.done
}

func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *handle) String() string {
	return h.name
}

// exited records the exit reason and closes done. It must be called once.
func (h *handle) exited(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}
