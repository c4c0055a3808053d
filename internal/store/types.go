package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnavailable means persisted state could not be read (corrupt file, closed db).
	// Bulk loaders treat it as an empty set.
	ErrUnavailable = errors.New("event store unavailable")
	// ErrInvalidDate means an event date could not be parsed.
	ErrInvalidDate = errors.New("invalid event date")
	ErrInvalidID   = errors.New("event id required")
	ErrClosed      = errors.New("event store closed")
)

// EventRecord is one persisted event. Date keeps the stored ISO-8601 text;
// use Time to interpret it.
type EventRecord struct {
	ID   string `json:"-"`
	Name string `json:"name"`
	Date string `json:"date"`
}

// Time parses Date. Dates without a UTC offset are read in loc.
func (r EventRecord) Time(loc *time.Location) (time.Time, error) {
	return ParseDate(r.Date, loc)
}

// Store is the persistence API used by the scheduler and the CLI.
type Store interface {
	// Get returns the event with the given id; ok is false if it does not exist.
	Get(ctx context.Context, id string) (rec EventRecord, ok bool, err error)
	// All returns every event keyed by id. A store with no state yet returns an empty map.
	All(ctx context.Context) (map[string]EventRecord, error)
	Put(ctx context.Context, rec EventRecord) error
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

// Config configures the store.
//
// If Driver is empty, "file" is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

var dateLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses an ISO-8601 date. RFC 3339 values keep their offset;
// values without one are interpreted in loc (time.Local if nil).
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

func validate(rec EventRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return ErrInvalidID
	}
	if _, err := ParseDate(rec.Date, time.UTC); err != nil {
		return err
	}
	return nil
}
