package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	errorskg "github.com/sweetpotato0/crashguide/errors"
)

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, id string) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, errorskg.ErrNotFound)
	}
	return s.Clone(), nil
}

// AppendTurn implements Store.
func (m *MemoryStore) AppendTurn(ctx context.Context, id string, t Turn) (*State, error) {
	return Append(ctx, m, id, t)
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, s *State) error {
	if s == nil || s.ID == "" {
		return errorskg.NewValidationError("conversation_id", "must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if cur, ok := m.states[s.ID]; ok {
		stored = cur.Version
	}
	if s.Version != stored {
		return fmt.Errorf("conversation %s at version %d, have %d: %w", s.ID, stored, s.Version, errorskg.ErrVersionConflict)
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	m.states[s.ID] = s.Clone()
	return nil
}

// IDs lists stored conversation ids in sorted order.
func (m *MemoryStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.states))
	for id := range m.states {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
