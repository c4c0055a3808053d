// Package metrics records scheduler and notifier counters.
package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations must not block or propagate errors.
type Sink interface {
	// Engine metrics
	TriggerAdmitted(tag string)
	TriggerDropped(tag string)
	TriggerSuperseded(tag string)
	TriggerFired(tag string, lateness time.Duration)
	PendingUpdate(n int)
	SchedulingFailed(reason string)
	RehydrateCompleted(events, failed int, duration time.Duration)

	// Dispatcher / notifier metrics
	FireOutcome(outcome string)
	NotificationOutcome(outcome string)
	NotificationRetry()
}

// Outcome constants for FireOutcome.
const (
	FireDelivered = "delivered"
	FireMissing   = "missing"
	FireError     = "error"
)

// Outcome constants for NotificationOutcome.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
	OutcomeAbandoned = "abandoned"
)

// Reasons for SchedulingFailed.
const (
	ReasonCapacity    = "capacity"
	ReasonInvalidDate = "invalid_date"
	ReasonInternal    = "internal"
)
