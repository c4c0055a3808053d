// Package reminder turns event dates into one-shot reminder triggers and fires them.
//
// Every event gets up to two triggers, one for each Offset (24 hours and 1 hour
// before the event). Trigger IDs are deterministic, so scheduling the same
// event again replaces its pending triggers instead of duplicating them.
// Offsets whose instant is not strictly in the future are dropped and never
// fired late.
//
// The Engine keeps pending triggers in a min-heap ordered by fire time and runs
// a single timing loop (Run) that sleeps until the next deadline or until a new
// trigger is admitted. Due triggers are removed from the pending set before
// their callback is dispatched, which is what makes firing exactly-once.
//
// The Dispatcher is the fire callback used in production: it re-reads the
// event from the store and hands a notification to the notifier.
package reminder
