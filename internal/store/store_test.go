package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindd/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{"memory": NewMemory()}

	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "events.json")}, logx.Nop())
	require.NoError(t, err)
	out["file"] = fs

	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "events.db")}, logx.Nop())
	require.NoError(t, err)
	out["sqlite"] = sq

	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func TestDriversRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			all, err := s.All(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			require.NoError(t, s.Put(ctx, EventRecord{ID: "E1", Name: "Standup", Date: "2026-10-20T09:00:00"}))
			require.NoError(t, s.Put(ctx, EventRecord{ID: "E2", Name: "Review", Date: "2026-10-21T15:30:00+02:00"}))
			require.NoError(t, s.Put(ctx, EventRecord{ID: "E1", Name: "Standup (moved)", Date: "2026-10-20T10:00:00"}))

			rec, ok, err := s.Get(ctx, "E1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, EventRecord{ID: "E1", Name: "Standup (moved)", Date: "2026-10-20T10:00:00"}, rec)

			all, err = s.All(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
			assert.Equal(t, "E2", all["E2"].ID)

			removed, err := s.Delete(ctx, "E1")
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = s.Delete(ctx, "E1")
			require.NoError(t, err)
			assert.False(t, removed)

			_, ok, err = s.Get(ctx, "E1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPutValidates(t *testing.T) {
	ctx := context.Background()
	for name, s := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Put(ctx, EventRecord{ID: "", Date: "2026-10-20"}), ErrInvalidID)
			assert.ErrorIs(t, s.Put(ctx, EventRecord{ID: "E1", Date: "next tuesday"}), ErrInvalidDate)
		})
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "events.json")}, logx.Nop())
	require.NoError(t, err)
	all, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStoreCorruptIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)

	_, err = s.All(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	_, _, err = s.Get(context.Background(), "E1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFileStoreReadsOriginalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	raw := `{"abc": {"name": "Dentist", "date": "2026-11-02T14:00:00"}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	s, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)

	rec, ok, err := s.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", rec.ID)
	assert.Equal(t, "Dentist", rec.Name)
}

func TestClosedStore(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	_, err := m.All(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2026-10-20T18:00:00Z", time.Date(2026, 10, 20, 18, 0, 0, 0, time.UTC)},
		{"2026-10-20T18:00:00+02:00", time.Date(2026, 10, 20, 16, 0, 0, 0, time.UTC)},
		{"2026-10-20T18:00:00", time.Date(2026, 10, 20, 18, 0, 0, 0, berlin)},
		{"2026-10-20T18:00:00.250", time.Date(2026, 10, 20, 18, 0, 0, 250e6, berlin)},
		{"2026-10-20 18:00", time.Date(2026, 10, 20, 18, 0, 0, 0, berlin)},
		{"2026-10-20", time.Date(2026, 10, 20, 0, 0, 0, 0, berlin)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseDate(tt.raw, berlin)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}

	for _, bad := range []string{"", "tomorrow", "2026-13-01", "20/10/2026"} {
		_, err := ParseDate(bad, berlin)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestWatchFiresOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	s, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	wp, ok := WatchPath(s)
	require.True(t, ok)
	assert.Equal(t, path, wp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, logx.Nop(), func() { changes.Add(1) }) }()

	// Give the watcher a moment to register, then write until a change is observed.
	require.Eventually(t, func() bool {
		_ = s.Put(context.Background(), EventRecord{ID: "E1", Name: "x", Date: "2026-10-20"})
		return changes.Load() > 0
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}

	_, ok = WatchPath(NewMemory())
	assert.False(t, ok)
}
