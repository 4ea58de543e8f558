// Package checkpoint records which documents an indexing run has finished,
// so an interrupted run can resume without re-inserting pages.
package checkpoint

import (
	"context"
	"maps"
	"sync"
)

// Memory is a process-local checkpoint.
type Memory struct {
	mu   sync.Mutex
	done map[string]struct{}
}

// NewMemory creates an empty checkpoint.
func NewMemory() *Memory {
	return &Memory{done: make(map[string]struct{})}
}

// Indexed returns the documents marked so far.
func (m *Memory) Indexed(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.done), nil
}

// MarkIndexed records document as finished.
func (m *Memory) MarkIndexed(_ context.Context, document string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[document] = struct{}{}
	return nil
}

// Reset forgets every document.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.done)
	return nil
}
