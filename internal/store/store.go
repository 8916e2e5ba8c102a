package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Document names.
const (
	KeyActions          = "actions"
	KeyActionHistory    = "action_history"
	KeyLearningFeedback = "learning_feedback"
	KeyLearningEntries  = "learning_entries"
	KeyLearningHistory  = "learning_history"
	KeyScheduleState    = "schedule_state"
	KeySnapshot         = "latest_snapshot"
	KeyApprovalSession  = "approval_session"
)

// ErrEmptyKey is returned for operations on an empty document name.
var ErrEmptyKey = errors.New("store: empty key")

// Store reads and writes whole JSON documents by name.
type Store interface {
	// Load decodes the named document into v. It reports false with a nil
	// error when the document does not exist.
	Load(ctx context.Context, key string, v any) (bool, error)

	// Save replaces the named document with the JSON encoding of v.
	Save(ctx context.Context, key string, v any) error
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, key string, v any) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	m.mu.RLock()
	data, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, key string, v any) error {
	if key == "" {
		return ErrEmptyKey
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	m.mu.Lock()
	m.docs[key] = data
	m.mu.Unlock()
	return nil
}

// Raw returns the stored bytes for key. Tests use it to assert on the
// persisted JSON shape.
func (m *Memory) Raw(key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.docs[key]...)
}
