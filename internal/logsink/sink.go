// Package logsink opens the append-only file that captures the automation
// server's output.
package logsink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink is an append-only file target. Writes are serialized so the stdout
// and stderr pumps of a child process can share one Sink.
type Sink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open creates dir if needed and opens dir/name for appending.
func Open(dir, name string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}

	return &Sink{file: f, path: path}, nil
}

// Path returns the absolute or relative path the sink was opened with.
func (s *Sink) Path() string {
	return s.path
}

// Write appends p to the log file.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return 0, os.ErrClosed
	}
	return s.file.Write(p)
}

// Close flushes and closes the file. Close is safe to call multiple times.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
