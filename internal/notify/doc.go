// Package notify delivers reminder notifications.
//
// A Notification is produced when a reminder trigger fires and the event still
// exists. The Service queues it and fans it out to every configured Sink
// (console, Telegram) with a shared rate limit and per-sink retry.
//
// # Delivery modes
//
// Notify is asynchronous and never blocks: it either queues the notification or
// returns ErrDisabled, ErrQueueFull or ErrStopped. Deliver performs the same
// work synchronously on the caller's goroutine; callers use it as the fallback
// when Notify rejects, so a fired reminder is not silently lost.
//
// # History
//
// The service keeps a small in-memory history of delivered notifications for
// the CLI and debugging.
package notify
