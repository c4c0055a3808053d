package store

import (
	"context"
	"sync"
)

// Memory is a map-backed Store.
type Memory struct {
	mu     sync.RWMutex
	events map[string]EventRecord
	closed bool
}

func NewMemory(recs ...EventRecord) *Memory {
	m := &Memory{events: make(map[string]EventRecord, len(recs))}
	for _, r := range recs {
		m.events[r.ID] = r
	}
	return m
}

func (m *Memory) Get(_ context.Context, id string) (EventRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return EventRecord{}, false, ErrClosed
	}
	rec, ok := m.events[id]
	return rec, ok, nil
}

func (m *Memory) All(_ context.Context) (map[string]EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]EventRecord, len(m.events))
	for id, rec := range m.events {
		out[id] = rec
	}
	return out, nil
}

func (m *Memory) Put(_ context.Context, rec EventRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.events[rec.ID] = rec
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.events[id]
	delete(m.events, id)
	return ok, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
