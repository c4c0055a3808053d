package store

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"remindd/pkg/logx"
)

const (
	watchDebounce           = 250 * time.Millisecond
	watchRestartBackoffBase = 250 * time.Millisecond
	watchRestartBackoffMax  = 5 * time.Second
)

// WatchPath returns the file backing s, if s is file-based.
func WatchPath(s Store) (string, bool) {
	fs, ok := s.(*fileStore)
	if !ok {
		return "", false
	}
	return fs.Path(), true
}

// Watch calls onChange (debounced) whenever the file at path is written, created,
// renamed or removed. It watches the parent directory so atomic replaces are seen,
// and recreates the watcher with backoff if it breaks. Returns nil when ctx is done.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func()) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	backoff := watchRestartBackoffBase

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			log.Debug("events file changed", logx.String("path", path))
			onChange()
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	sleep := func() bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff *= 2
		if backoff > watchRestartBackoffMax {
			backoff = watchRestartBackoffMax
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			log.Warn("store watch init failed", logx.Err(err), logx.String("dir", dir))
			if !sleep() {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			log.Warn("store watch add failed", logx.Err(err), logx.String("dir", dir))
			if !sleep() {
				return nil
			}
			continue
		}
		backoff = watchRestartBackoffBase
		log.Debug("store watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means events were missed; resync once and keep going.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					log.Warn("store watch overflow; forcing resync", logx.Err(err))
					debounce()
					continue
				}
				log.Warn("store watch error", logx.Err(err), logx.String("dir", dir))
			}
		}
		_ = w.Close()
		log.Warn("store watcher stopped; restarting", logx.String("dir", dir))
		if !sleep() {
			return nil
		}
	}
	return nil
}
