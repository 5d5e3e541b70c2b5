// Package journal records every committed engine invocation in order. The
// engine rebuilds its state by replaying the entries through the same code
// that produced them.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrSequenceConflict means another writer already appended at this sequence.
var ErrSequenceConflict = errors.New("journal sequence conflict")

// Entry is one committed invocation.
type Entry struct {
	Seq    uint64          `json:"seq"`
	Op     string          `json:"op"`
	Caller string          `json:"caller,omitempty"`
	Args   json.RawMessage `json:"args"`
	At     time.Time       `json:"at"`
}

// Journal is an append-only log of entries. Sequences start at 1 and have no
// gaps.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	Entries(ctx context.Context) ([]Entry, error)
}

// Memory is an in-process Journal.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemory returns an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{}
}

// Append implements Journal.
func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Seq != uint64(len(m.entries))+1 {
		return ErrSequenceConflict
	}
	e.Args = append(json.RawMessage(nil), e.Args...)
	m.entries = append(m.entries, e)
	return nil
}

// Entries implements Journal.
func (m *Memory) Entries(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...), nil
}
