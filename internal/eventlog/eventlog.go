// Package eventlog is the append-only event buffer that feeds catalog
// assembly. Events are kept in arrival order; an id is stored once.
package eventlog

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// Log is implemented by Memory and by the Postgres store.
type Log interface {
	// Append stores events not yet seen and returns how many were new.
	Append(ctx context.Context, events []nostr.Event) (int64, error)
	// Snapshot returns every stored event in arrival order.
	Snapshot(ctx context.Context) ([]nostr.Event, error)
	Ready(ctx context.Context) error
}

// Memory is an in-process Log. Its contents are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	events []nostr.Event
	seen   map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

func (m *Memory) Append(ctx context.Context, events []nostr.Event) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var added int64
	for _, ev := range events {
		if _, dup := m.seen[ev.ID]; dup {
			continue
		}
		m.seen[ev.ID] = struct{}{}
		m.events = append(m.events, ev)
		added++
	}
	return added, nil
}

func (m *Memory) Snapshot(ctx context.Context) ([]nostr.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]nostr.Event, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *Memory) Ready(context.Context) error { return nil }

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
