package emit

import (
	"context"
	"sort"
	"sync"

	"github.com/drblury/scriptflow/internal/runtime/errors"
)

// StoredArtifact is an artifact held by a MemorySink.
type StoredArtifact struct {
	ID         string
	Body       []byte
	Executable bool
	written    bool
}

// MemorySink keeps artifacts in process memory. It backs dry runs and tests.
type MemorySink struct {
	mu        sync.Mutex
	artifacts map[string]*StoredArtifact
	order     []string
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{artifacts: make(map[string]*StoredArtifact)}
}

// Reserve marks ids as taken, simulating pre-existing sink state.
func (m *MemorySink) Reserve(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, ok := m.artifacts[id]; !ok {
			m.artifacts[id] = &StoredArtifact{ID: id}
		}
	}
}

func (m *MemorySink) Claim(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.artifacts[id]; taken {
		return false, nil
	}
	m.artifacts[id] = &StoredArtifact{ID: id}
	return true, nil
}

func (m *MemorySink) Write(ctx context.Context, id string, body []byte, executable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	art, ok := m.artifacts[id]
	if !ok {
		return errors.ErrNotClaimed
	}
	art.Body = append([]byte(nil), body...)
	art.Executable = executable
	if !art.written {
		art.written = true
		m.order = append(m.order, id)
	}
	return nil
}

func (m *MemorySink) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if art, ok := m.artifacts[id]; ok && !art.written {
		delete(m.artifacts, id)
	}
	return nil
}

// Get returns a written artifact.
func (m *MemorySink) Get(id string) (StoredArtifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	art, ok := m.artifacts[id]
	if !ok || !art.written {
		return StoredArtifact{}, false
	}
	return *art, true
}

// Written returns written identifiers in write order.
func (m *MemorySink) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// IDs returns every written identifier, sorted.
func (m *MemorySink) IDs() []string {
	ids := m.Written()
	sort.Strings(ids)
	return ids
}
