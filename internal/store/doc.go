// Package store is the event store adapter: the only place that knows how events
// are persisted.
//
// Drivers:
//   - "file": a single JSON object mapping event id -> {"name", "date"}
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
//   - "memory": process-local map, for tests and dry runs
//
// The scheduling core only reads snapshots through Store; it never mutates events.
package store
