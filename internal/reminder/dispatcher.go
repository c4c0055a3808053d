package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindd/internal/metrics"
	"remindd/internal/notify"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

// Notifier accepts reminder notifications. *notify.Service satisfies it.
type Notifier interface {
	// Notify queues n without blocking.
	Notify(ctx context.Context, n notify.Notification) error
	// Deliver sends n synchronously.
	Deliver(ctx context.Context, n notify.Notification) error
}

// Dispatcher is the production fire callback: it re-reads the event and
// emits a notification for it.
type Dispatcher struct {
	store    store.Store
	notifier Notifier
	log      logx.Logger
	metrics  metrics.Sink
	clock    func() time.Time
}

func NewDispatcher(st store.Store, n Notifier, log logx.Logger, m metrics.Sink) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if m == nil {
		m = metrics.NewNoopSink()
	}
	return &Dispatcher{
		store:    st,
		notifier: n,
		log:      log.With(logx.String("comp", "dispatcher")),
		metrics:  m,
		clock:    time.Now,
	}
}

// Fire emits the reminder for eventID. A missing event is a no-op; a store
// read failure or an unknown tag is returned. The reminder is never re-queued.
func (d *Dispatcher) Fire(ctx context.Context, eventID, tag string) error {
	id := TriggerID(eventID, tag)
	if _, ok := OffsetByTag(tag); !ok {
		d.metrics.FireOutcome(metrics.FireError)
		return fmt.Errorf("fire %s: %w %q", id, ErrUnknownTag, tag)
	}
	rec, ok, err := d.store.Get(ctx, eventID)
	if err != nil {
		d.metrics.FireOutcome(metrics.FireError)
		d.log.Warn("reminder fire: event lookup failed", logx.String("trigger", id), logx.Err(err))
		return fmt.Errorf("fire %s: %w", id, err)
	}
	if !ok {
		d.metrics.FireOutcome(metrics.FireMissing)
		d.log.Debug("reminder fire: event no longer exists", logx.String("trigger", id))
		return nil
	}

	n := notify.Notification{
		TriggerID: id,
		Tag:       tag,
		EventID:   eventID,
		EventName: rec.Name,
		EventDate: rec.Date,
		FiredAt:   d.clock(),
	}
	err = d.notifier.Notify(ctx, n)
	switch {
	case err == nil:
	case errors.Is(err, notify.ErrDisabled), errors.Is(err, notify.ErrQueueFull), errors.Is(err, notify.ErrStopped):
		// Async intake refused; deliver on this goroutine instead of losing the reminder.
		if derr := d.notifier.Deliver(ctx, n); derr != nil {
			d.metrics.FireOutcome(metrics.FireError)
			return fmt.Errorf("fire %s: %w", id, derr)
		}
	default:
		d.metrics.FireOutcome(metrics.FireError)
		d.log.Warn("reminder fire: notify failed", logx.String("trigger", id), logx.Err(err))
		return fmt.Errorf("fire %s: %w", id, err)
	}
	d.metrics.FireOutcome(metrics.FireDelivered)
	return nil
}

// FireTrigger adapts Fire to FireFunc.
func (d *Dispatcher) FireTrigger(ctx context.Context, t Trigger) error {
	return d.Fire(ctx, t.EventID, t.Offset.Tag)
}
