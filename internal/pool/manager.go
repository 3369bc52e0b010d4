// Package pool manages the shared worker pool that executes vectored-read
// tasks. The pool is created lazily on first submission and shut down once,
// with a bounded wait, by the owning file system.
package pool

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	concpool "github.com/sourcegraph/conc/pool"
)

// ErrClosed reports a submission after Shutdown.
var ErrClosed = errors.New("pool: worker pool is shut down")

// Manager owns a bounded set of workers. Submissions block while all workers
// are busy; Shutdown waits for in-flight tasks up to a deadline.
type Manager struct {
	mu     sync.Mutex
	pl     *concpool.Pool
	size   int
	closed bool
	logger *slog.Logger
}

// NewManager creates a manager for a pool of size workers. No goroutines are
// started until the first Go call.
func NewManager(size int) *Manager {
	return &Manager{
		size:   size,
		logger: slog.Default().With("component", "read-pool"),
	}
}

// Go submits a task for execution. It blocks while all workers are busy and
// returns ErrClosed after Shutdown.
func (m *Manager) Go(task func()) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.pl == nil {
		m.logger.Debug("Starting vectored read worker pool", "size", m.size)
		m.pl = concpool.New().WithMaxGoroutines(m.size)
	}
	pl := m.pl
	m.mu.Unlock()

	pl.Go(task)
	return nil
}

// Shutdown stops accepting tasks and waits up to timeout for in-flight tasks
// to finish. Tasks still running after the deadline are abandoned; they fail
// fast once the storage client is closed. Idempotent.
func (m *Manager) Shutdown(timeout time.Duration) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pl := m.pl
	m.pl = nil
	m.mu.Unlock()

	if pl == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		pl.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("Timeout waiting for in-flight read tasks during shutdown", "timeout", timeout)
	}
}
