package server

import (
	"context"
	"sync"
)

// RunManager tracks in-flight runs so they can be cancelled.
type RunManager struct {
	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

// NewRunManager creates an empty RunManager.
func NewRunManager() *RunManager {
	return &RunManager{runs: make(map[string]context.CancelFunc)}
}

// Start derives a cancellable context for run id. The returned done func must
// be called when the run finishes.
func (m *RunManager) Start(ctx context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.runs[id] = cancel
	m.mu.Unlock()

	return ctx, func() {
		m.mu.Lock()
		delete(m.runs, id)
		m.mu.Unlock()
		cancel()
	}
}

// Cancel stops run id. It reports false when the run is not in flight.
func (m *RunManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.runs[id]
	if ok {
		cancel()
	}
	return ok
}

// Active returns the number of in-flight runs.
func (m *RunManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// IDs returns the in-flight run IDs in no particular order.
func (m *RunManager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	return ids
}

// CancelAll cancels every in-flight run.
func (m *RunManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.runs {
		cancel()
	}
}
