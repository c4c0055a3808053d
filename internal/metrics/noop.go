package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TriggerAdmitted(tag string)                                  {}
func (n *NoopSink) TriggerDropped(tag string)                                   {}
func (n *NoopSink) TriggerSuperseded(tag string)                                {}
func (n *NoopSink) TriggerFired(tag string, lateness time.Duration)             {}
func (n *NoopSink) PendingUpdate(count int)                                     {}
func (n *NoopSink) SchedulingFailed(reason string)                              {}
func (n *NoopSink) RehydrateCompleted(events, failed int, dur time.Duration)    {}
func (n *NoopSink) FireOutcome(outcome string)                                  {}
func (n *NoopSink) NotificationOutcome(outcome string)                          {}
func (n *NoopSink) NotificationRetry()                                          {}
