package reminder

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"remindd/internal/eventbus"
	"remindd/internal/metrics"
	"remindd/internal/store"
	"remindd/internal/task/engine"
	"remindd/pkg/logx"
)

// FireFunc is invoked once per trigger when it becomes due.
type FireFunc func(ctx context.Context, t Trigger) error

// Executor runs fire callbacks off the timing loop. *engine.Service satisfies it.
type Executor interface {
	Enqueue(t engine.Task) error
}

// Config bounds the engine.
type Config struct {
	// MaxPending caps the pending set. 0 means unlimited.
	MaxPending int
	// Location interprets event dates without a UTC offset. nil means time.Local.
	Location *time.Location
	// FireTimeout bounds one callback when it runs on the executor. 0 means none.
	FireTimeout time.Duration
}

// Options carries the engine's collaborators. Only Fire is required.
type Options struct {
	Fire     FireFunc
	Clock    func() time.Time
	Executor Executor
	Log      logx.Logger
	Bus      eventbus.Bus
	Metrics  metrics.Sink
}

// Admission summarizes one Schedule call.
type Admission struct {
	Admitted   []Trigger
	Dropped    []Trigger
	Superseded int
}

// RehydrateReport summarizes a Rehydrate pass.
type RehydrateReport struct {
	Events     int
	Admitted   int
	Dropped    int
	Superseded int
	Failed     map[string]error
}

// TriggerEvent is published on the bus for each trigger lifecycle transition.
type TriggerEvent struct {
	ID      string    `json:"id"`
	EventID string    `json:"event_id"`
	Tag     string    `json:"tag"`
	FireAt  time.Time `json:"fire_at"`
}

// Engine owns the pending trigger set and the timing loop.
type Engine struct {
	cfg     Config
	fire    FireFunc
	clock   func() time.Time
	exec    Executor
	log     logx.Logger
	bus     eventbus.Bus
	metrics metrics.Sink

	mu      sync.Mutex
	heap    triggerHeap
	pending map[string]*item
	seq     uint64

	wake    chan struct{}
	running atomic.Bool
}

func NewEngine(cfg Config, opts Options) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxPending < 0 {
		cfg.MaxPending = 0
	}
	e := &Engine{
		cfg:     cfg,
		fire:    opts.Fire,
		clock:   opts.Clock,
		exec:    opts.Executor,
		log:     opts.Log,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		pending: make(map[string]*item),
		wake:    make(chan struct{}, 1),
	}
	if e.fire == nil {
		e.fire = func(context.Context, Trigger) error { return nil }
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	e.log = e.log.With(logx.String("comp", "reminder"))
	if e.metrics == nil {
		e.metrics = metrics.NewNoopSink()
	}
	return e
}

// Location returns the zone used for dates without an offset.
func (e *Engine) Location() *time.Location { return e.cfg.Location }

// Schedule derives the event's triggers at the current time and admits the future ones.
//
// Pending triggers of the same event are replaced: a trigger with the same ID is
// superseded by its new instance, and one whose new fire time has passed is
// superseded without replacement unless it is itself already due, in which case
// it stays pending and fires. If admission would exceed MaxPending nothing
// changes and the error wraps ErrSchedulingFailure and ErrCapacity.
func (e *Engine) Schedule(eventID string, date time.Time) (Admission, error) {
	if eventID == "" {
		e.metrics.SchedulingFailed(metrics.ReasonInternal)
		return Admission{}, fmt.Errorf("%w: %w", ErrSchedulingFailure, store.ErrInvalidID)
	}

	now := e.clock()
	var adm Admission
	for _, t := range plan(eventID, date) {
		if t.FireAt.After(now) {
			adm.Admitted = append(adm.Admitted, t)
		} else {
			adm.Dropped = append(adm.Dropped, t)
		}
	}

	var superseded []Trigger
	e.mu.Lock()
	if e.cfg.MaxPending > 0 {
		next := len(e.pending)
		for _, t := range adm.Admitted {
			if _, ok := e.pending[t.ID]; !ok {
				next++
			}
		}
		for _, t := range adm.Dropped {
			if it, ok := e.pending[t.ID]; ok && it.trigger.FireAt.After(now) {
				next--
			}
		}
		if next > e.cfg.MaxPending {
			size := len(e.pending)
			e.mu.Unlock()
			e.metrics.SchedulingFailed(metrics.ReasonCapacity)
			return Admission{}, fmt.Errorf("%w: event %q needs %d pending, limit %d (have %d): %w",
				ErrSchedulingFailure, eventID, next, e.cfg.MaxPending, size, ErrCapacity)
		}
	}
	for _, t := range adm.Dropped {
		// A pending trigger that is already due stays for the loop to fire.
		if it, ok := e.pending[t.ID]; ok && it.trigger.FireAt.After(now) {
			e.removeLocked(t.ID)
			superseded = append(superseded, it.trigger)
		}
	}
	for _, t := range adm.Admitted {
		if old := e.removeLocked(t.ID); old != nil {
			superseded = append(superseded, old.trigger)
		}
		e.seq++
		it := &item{trigger: t, seq: e.seq}
		heap.Push(&e.heap, it)
		e.pending[t.ID] = it
	}
	size := len(e.pending)
	e.mu.Unlock()

	adm.Superseded = len(superseded)
	e.metrics.PendingUpdate(size)
	for _, t := range superseded {
		e.metrics.TriggerSuperseded(t.Offset.Tag)
		e.publish("reminder.superseded", t)
	}
	for _, t := range adm.Dropped {
		e.metrics.TriggerDropped(t.Offset.Tag)
		e.publish("reminder.dropped", t)
		e.log.Debug("reminder dropped: fire time passed", logx.String("trigger", t.ID), logx.Time("fire_at", t.FireAt))
	}
	for _, t := range adm.Admitted {
		e.metrics.TriggerAdmitted(t.Offset.Tag)
		e.publish("reminder.admitted", t)
		e.log.Debug("reminder admitted", logx.String("trigger", t.ID), logx.Time("fire_at", t.FireAt))
	}
	if len(adm.Admitted) > 0 || len(superseded) > 0 {
		e.signal()
	}
	return adm, nil
}

// ScheduleEvent parses rec.Date in the engine location and calls Schedule.
func (e *Engine) ScheduleEvent(rec store.EventRecord) (Admission, error) {
	date, err := rec.Time(e.cfg.Location)
	if err != nil {
		e.metrics.SchedulingFailed(metrics.ReasonInvalidDate)
		return Admission{}, fmt.Errorf("event %q: %w", rec.ID, err)
	}
	return e.Schedule(rec.ID, date)
}

// Rehydrate schedules every event. A failing event is logged and recorded in the
// report; it never stops the others. An event whose date no longer parses loses
// its pending triggers that are not yet due.
func (e *Engine) Rehydrate(events map[string]store.EventRecord) RehydrateReport {
	start := time.Now()
	ids := make([]string, 0, len(events))
	for id := range events {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rep := RehydrateReport{Events: len(ids)}
	for _, id := range ids {
		rec := events[id]
		if rec.ID == "" {
			rec.ID = id
		}
		adm, err := e.ScheduleEvent(rec)
		if err != nil {
			if rep.Failed == nil {
				rep.Failed = make(map[string]error)
			}
			rep.Failed[id] = err
			if errors.Is(err, store.ErrInvalidDate) {
				rep.Superseded += e.withdraw(id)
			}
			e.log.Error("rehydrate: event not scheduled", logx.String("event", id), logx.Err(err))
			continue
		}
		rep.Admitted += len(adm.Admitted)
		rep.Dropped += len(adm.Dropped)
		rep.Superseded += adm.Superseded
	}
	e.metrics.RehydrateCompleted(rep.Events, len(rep.Failed), time.Since(start))
	e.log.Info("rehydrate complete",
		logx.Int("events", rep.Events),
		logx.Int("admitted", rep.Admitted),
		logx.Int("dropped", rep.Dropped),
		logx.Int("failed", len(rep.Failed)),
		logx.Int("pending", e.Len()),
	)
	return rep
}

// Pending returns a snapshot of pending triggers ordered by fire time, then id.
func (e *Engine) Pending() []Trigger {
	e.mu.Lock()
	out := make([]Trigger, 0, len(e.heap))
	for _, it := range e.heap {
		out = append(out, it.trigger)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of pending triggers.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Next returns the earliest pending fire time.
func (e *Engine) Next() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.heap) == 0 {
		return time.Time{}, false
	}
	return e.heap[0].trigger.FireAt, true
}

// Run is the timing loop. It fires due triggers, then sleeps until the next
// deadline or until Schedule admits a trigger. It returns nil when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	e.log.Info("reminder loop started", logx.Int("pending", e.Len()))
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		next, ok := e.fireDue(ctx)

		var timerC <-chan time.Time
		if ok {
			d := next.Sub(e.clock())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			e.log.Info("reminder loop stopped", logx.Int("pending", e.Len()))
			return nil
		case <-e.wake:
		case <-timerC:
		}
		timer.Stop()
	}
}

// fireDue pops and dispatches every trigger due at the current clock reading,
// in heap order. It returns the next deadline, if any.
func (e *Engine) fireDue(ctx context.Context) (time.Time, bool) {
	now := e.clock()

	var due []Trigger
	e.mu.Lock()
	for len(e.heap) > 0 && !e.heap[0].trigger.FireAt.After(now) {
		it := heap.Pop(&e.heap).(*item)
		delete(e.pending, it.trigger.ID)
		due = append(due, it.trigger)
	}
	var (
		next time.Time
		ok   bool
	)
	if len(e.heap) > 0 {
		next, ok = e.heap[0].trigger.FireAt, true
	}
	size := len(e.pending)
	e.mu.Unlock()

	if len(due) > 0 {
		e.metrics.PendingUpdate(size)
	}
	for _, t := range due {
		e.dispatch(ctx, t, now)
	}
	return next, ok
}

func (e *Engine) dispatch(ctx context.Context, t Trigger, now time.Time) {
	lateness := now.Sub(t.FireAt)
	e.metrics.TriggerFired(t.Offset.Tag, lateness)
	e.publish("reminder.fired", t)
	e.log.Debug("reminder due", logx.String("trigger", t.ID), logx.Duration("lateness", lateness))

	if e.exec == nil {
		e.runFire(ctx, t)
		return
	}
	err := e.exec.Enqueue(engine.Task{
		ID:      t.ID,
		Name:    "reminder.fire",
		Timeout: e.cfg.FireTimeout,
		Run:     func(c context.Context) error { return e.fire(c, t) },
	})
	if err == nil {
		return
	}
	// The trigger is already out of the pending set; it must still fire once.
	e.log.Warn("executor rejected reminder; firing on a detached goroutine", logx.String("trigger", t.ID), logx.Err(err))
	go e.runFire(ctx, t)
}

func (e *Engine) runFire(ctx context.Context, t Trigger) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("reminder callback panicked", logx.String("trigger", t.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	if err := e.fire(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		e.log.Warn("reminder callback failed", logx.String("trigger", t.ID), logx.Err(err))
	}
}

// withdraw supersedes the event's pending triggers that are not yet due.
// Due ones stay for the loop to fire.
func (e *Engine) withdraw(eventID string) int {
	now := e.clock()
	var gone []Trigger
	e.mu.Lock()
	for _, o := range Offsets() {
		id := TriggerID(eventID, o.Tag)
		if it, ok := e.pending[id]; ok && it.trigger.FireAt.After(now) {
			e.removeLocked(id)
			gone = append(gone, it.trigger)
		}
	}
	size := len(e.pending)
	e.mu.Unlock()

	if len(gone) == 0 {
		return 0
	}
	e.metrics.PendingUpdate(size)
	for _, t := range gone {
		e.metrics.TriggerSuperseded(t.Offset.Tag)
		e.publish("reminder.superseded", t)
		e.log.Debug("reminder withdrawn: event date no longer valid", logx.String("trigger", t.ID))
	}
	return len(gone)
}

func (e *Engine) removeLocked(id string) *item {
	it, ok := e.pending[id]
	if !ok {
		return nil
	}
	heap.Remove(&e.heap, it.index)
	delete(e.pending, id)
	return it
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) publish(typ string, t Trigger) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type: typ,
		Time: e.clock(),
		Data: TriggerEvent{ID: t.ID, EventID: t.EventID, Tag: t.Offset.Tag, FireAt: t.FireAt},
	})
}
