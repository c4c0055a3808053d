package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindd/pkg/logx"
)

// fileStore keeps all events in one JSON object:
//
//	{"<id>": {"name": "...", "date": "2026-10-20T18:00:00"}, ...}
//
// Every read goes back to disk so that edits by other processes are seen.
// Writes replace the file atomically (temp file + rename).
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex // serializes read-modify-write cycles from this process
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

// Path returns the backing file; used by Watch.
func (s *fileStore) Path() string { return s.path }

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) Get(ctx context.Context, id string) (EventRecord, bool, error) {
	m, err := s.All(ctx)
	if err != nil {
		return EventRecord{}, false, err
	}
	rec, ok := m[id]
	return rec, ok, nil
}

func (s *fileStore) All(ctx context.Context) (map[string]EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.readLocked()
}

func (s *fileStore) Put(ctx context.Context, rec EventRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	m, err := s.readLocked()
	if err != nil {
		return err
	}
	m[rec.ID] = rec
	return s.writeLocked(m)
}

func (s *fileStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	m, err := s.readLocked()
	if err != nil {
		return false, err
	}
	if _, ok := m[id]; !ok {
		return false, nil
	}
	delete(m, id)
	return true, s.writeLocked(m)
}

func (s *fileStore) readLocked() (map[string]EventRecord, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]EventRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return map[string]EventRecord{}, nil
	}
	var m map[string]EventRecord
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, s.path, err)
	}
	if m == nil {
		m = map[string]EventRecord{}
	}
	for id, rec := range m {
		rec.ID = id
		m[id] = rec
	}
	return m, nil
}

func (s *fileStore) writeLocked(m map[string]EventRecord) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Debug("events file written", logx.String("path", s.path), logx.Int("events", len(m)))
	return nil
}
