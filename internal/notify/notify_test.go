package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"remindd/internal/eventbus"
	"remindd/pkg/logx"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []Notification
	fail int32 // number of leading calls that fail
	call atomic.Int32
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Emit(_ context.Context, n Notification) error {
	if r.call.Add(1) <= r.fail {
		return errors.New("transient")
	}
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) received() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func sample() Notification {
	return Notification{TriggerID: "E1_1-hour", Tag: "1-hour", EventID: "E1", EventName: "Standup", EventDate: "2026-10-20T09:00:00"}
}

func TestNotificationText(t *testing.T) {
	assert.Equal(t, "[REMINDER] 1-hour reminder for event 'Standup' on 2026-10-20T09:00:00", sample().Text())
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf)
	require.NoError(t, s.Emit(context.Background(), sample()))
	assert.Equal(t, sample().Text()+"\n", buf.String())
}

func TestNotifyAsyncDelivers(t *testing.T) {
	rec := &recordingSink{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(Config{Enabled: true, Workers: 1, RatePerSec: 100}, []Sink{rec}, logx.Nop(), bus, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	require.NoError(t, s.Notify(context.Background(), sample()))
	require.Eventually(t, func() bool { return len(rec.received()) == 1 }, 2*time.Second, 5*time.Millisecond)

	got := rec.received()[0]
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, "E1_1-hour", got.TriggerID)

	types := map[string]bool{}
	timeout := time.After(time.Second)
	for !types["notifier.sent"] || !types["notifier.queued"] {
		select {
		case ev := <-events:
			types[ev.Type] = true
		case <-timeout:
			t.Fatalf("missing lifecycle events, saw %v", types)
		}
	}
	require.Len(t, s.History(), 1)
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	rec := &recordingSink{fail: 2}
	s := New(Config{Enabled: true, RatePerSec: 100, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, []Sink{rec}, logx.Nop(), nil, nil)

	require.NoError(t, s.Deliver(context.Background(), sample()))
	assert.Len(t, rec.received(), 1)
	assert.Equal(t, int32(3), rec.call.Load())
}

func TestDeliverReportsFailingSink(t *testing.T) {
	rec := &recordingSink{}
	bad := SinkFunc{SinkName: "bad", Fn: func(context.Context, Notification) error { return errors.New("down") }}
	s := New(Config{Enabled: true, RatePerSec: 100, RetryMax: 1, RetryBase: time.Millisecond}, []Sink{bad, rec}, logx.Nop(), nil, nil)

	err := s.Deliver(context.Background(), sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	// The healthy sink still received it.
	assert.Len(t, rec.received(), 1)
	h := s.History()
	require.Len(t, h, 1)
	assert.NotEmpty(t, h[0].Error)
}

func TestNotifyStates(t *testing.T) {
	rec := &recordingSink{}
	disabled := New(Config{}, []Sink{rec}, logx.Nop(), nil, nil)
	assert.ErrorIs(t, disabled.Notify(context.Background(), sample()), ErrDisabled)
	// Synchronous delivery still works while disabled.
	require.NoError(t, disabled.Deliver(context.Background(), sample()))
	assert.Len(t, rec.received(), 1)

	notStarted := New(Config{Enabled: true}, []Sink{rec}, logx.Nop(), nil, nil)
	assert.ErrorIs(t, notStarted.Notify(context.Background(), sample()), ErrStopped)

	none := New(Config{Enabled: true}, nil, logx.Nop(), nil, nil)
	assert.ErrorIs(t, none.Deliver(context.Background(), sample()), ErrNoSinks)
}

func TestNotifyQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	block := SinkFunc{SinkName: "block", Fn: func(ctx context.Context, n Notification) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}
	s := New(Config{Enabled: true, Workers: 1, QueueSize: 1, RatePerSec: 100}, []Sink{block}, logx.Nop(), nil, nil)
	s.Start(context.Background())

	require.NoError(t, s.Notify(context.Background(), sample()))
	<-started
	require.NoError(t, s.Notify(context.Background(), sample()))
	assert.ErrorIs(t, s.Notify(context.Background(), sample()), ErrQueueFull)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.ErrorIs(t, s.Notify(context.Background(), sample()), ErrStopped)
}

type fakeSender struct {
	to   tele.Recipient
	what interface{}
	opts []interface{}
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.to, f.what, f.opts = to, what, opts
	if f.err != nil {
		return nil, f.err
	}
	return &tele.Message{ID: 1}, nil
}

func TestTelegramSink(t *testing.T) {
	fs := &fakeSender{}
	sink := newTelegramSink(TelegramConfig{ChatID: -100123, ThreadID: 7}, fs, logx.Nop())

	require.NoError(t, sink.Emit(context.Background(), sample()))
	assert.Equal(t, "-100123", fs.to.Recipient())
	assert.Equal(t, sample().Text(), fs.what)
	require.Len(t, fs.opts, 1)
	opt, ok := fs.opts[0].(*tele.SendOptions)
	require.True(t, ok)
	assert.Equal(t, 7, opt.ThreadID)

	fs.err = errors.New("forbidden")
	assert.EqualError(t, sink.Emit(context.Background(), sample()), "forbidden")
}

func TestNewTelegramSinkValidates(t *testing.T) {
	_, err := NewTelegramSink(TelegramConfig{ChatID: 1}, logx.Nop())
	assert.Error(t, err)
	_, err = NewTelegramSink(TelegramConfig{Token: "x"}, logx.Nop())
	assert.Error(t, err)
}

func TestRetryDelayCapped(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt < 6; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	}
}
