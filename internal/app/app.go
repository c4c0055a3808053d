package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"remindd/internal/config"
	"remindd/internal/eventbus"
	"remindd/internal/metrics"
	"remindd/internal/notify"
	"remindd/internal/reminder"
	"remindd/internal/runtime/supervisor"
	"remindd/internal/store"
	"remindd/internal/task/engine"
	"remindd/pkg/logx"
)

const defaultMetricsAddr = "127.0.0.1:9310"

// App owns every long-lived component of the daemon.
type App struct {
	cfg *config.Config

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    store.Store
	registry *prometheus.Registry
	metrics  metrics.Sink

	tasks  *engine.Service
	notif  *notify.Service
	disp   *reminder.Dispatcher
	engine *reminder.Engine

	sdNotify func(state string) (bool, error)

	mu       sync.Mutex
	sup      *supervisor.Supervisor
	cron     *cron.Cron
	httpSrv  *http.Server
	httpAddr string
	resyncMu sync.Mutex
}

// Option customizes New. Tests use them to swap collaborators.
type Option func(*options)

type options struct {
	store    store.Store
	sinks    []notify.Sink
	sinksSet bool
	log      *logx.Logger
	clock    func() time.Time
	sdNotify func(state string) (bool, error)
}

// WithStore uses st instead of opening the configured store. The app closes it on Stop.
func WithStore(st store.Store) Option { return func(o *options) { o.store = st } }

// WithSinks replaces the configured notification sinks.
func WithSinks(sinks ...notify.Sink) Option {
	return func(o *options) { o.sinks, o.sinksSet = sinks, true }
}

// WithLogger uses log instead of building one from the logging config.
func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = &log } }

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option { return func(o *options) { o.clock = now } }

// WithSdNotify overrides the systemd notification hook.
func WithSdNotify(fn func(state string) (bool, error)) Option {
	return func(o *options) { o.sdNotify = fn }
}

// NewFromFile loads and validates the config at path, then calls New.
func NewFromFile(path string, opts ...Option) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// New wires the daemon. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	var (
		logSvc *logx.Service
		log    logx.Logger
	)
	if o.log != nil {
		log = *o.log
	} else {
		logSvc, log = logx.New(mapLoggingConfig(cfg))
	}
	log = log.With(logx.String("comp", "app"))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	registry := prometheus.NewRegistry()
	var sink metrics.Sink = metrics.NewNoopSink()
	if cfg.Metrics.Enabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sink = metrics.NewPrometheusSink(registry, log.With(logx.String("comp", "metrics")))
	}

	st := o.store
	if st == nil {
		sc, err := mapStoreConfig(cfg)
		if err != nil {
			return nil, err
		}
		st, err = store.Open(sc, log.With(logx.String("comp", "store")))
		if err != nil {
			return nil, err
		}
		log.Info("store opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	sinks := o.sinks
	if !o.sinksSet {
		sinks, err = buildSinks(cfg, log)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	tasks := engine.New(mapTaskEngineConfig(cfg), log, bus)
	notif := notify.New(ncfg, sinks, log, bus, sink)
	disp := reminder.NewDispatcher(st, notif, log, sink)
	eng := reminder.NewEngine(reminder.Config{
		MaxPending: cfg.Scheduler.MaxPending,
		Location:   loc,
	}, reminder.Options{
		Fire:     disp.FireTrigger,
		Clock:    o.clock,
		Executor: tasks,
		Log:      log,
		Bus:      bus,
		Metrics:  sink,
	})

	sd := o.sdNotify
	if sd == nil {
		sd = func(state string) (bool, error) { return daemon.SdNotify(false, state) }
	}

	return &App{
		cfg:      cfg,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    st,
		registry: registry,
		metrics:  sink,
		tasks:    tasks,
		notif:    notif,
		disp:     disp,
		engine:   eng,
		sdNotify: sd,
	}, nil
}

func (a *App) Engine() *reminder.Engine { return a.engine }

func (a *App) Store() store.Store { return a.store }

// Status is the /status payload.
type Status struct {
	Pending       int                  `json:"pending"`
	NextFireAt    *time.Time           `json:"next_fire_at,omitempty"`
	Tasks         engine.Snapshot      `json:"tasks"`
	Notifications []notify.HistoryItem `json:"notifications"`
}

// Status reports the pending set, the worker pool and recent notifications.
func (a *App) Status() Status {
	st := Status{
		Pending:       a.engine.Len(),
		Tasks:         a.tasks.Snapshot(),
		Notifications: a.notif.History(),
	}
	if next, ok := a.engine.Next(); ok {
		st.NextFireAt = &next
	}
	if st.Notifications == nil {
		st.Notifications = []notify.HistoryItem{}
	}
	return st
}

// MetricsAddr returns the bound metrics listener address, if running.
func (a *App) MetricsAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.httpAddr
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Err()
}

// Start launches the workers and the timing loop, rehydrates pending reminders
// from the store, then starts resync, store watch and the metrics listener.
func (a *App) Start(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.mu.Lock()
	a.sup = sup
	a.mu.Unlock()

	a.tasks.Start(sup.Context())
	if a.notif.Enabled() {
		a.notif.Start(sup.Context())
	}

	sup.GoRestart("reminder.loop", a.engine.Run, supervisor.WithPublishFirstError(true))

	a.Resync(sup.Context())

	if err := a.startResync(sup); err != nil {
		return err
	}
	a.startWatch(sup)
	if err := a.startMetrics(sup); err != nil {
		return err
	}

	// Log lifecycle events for debugging.
	events, unsub := a.bus.Subscribe(128)
	sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if sent, err := a.sdNotify(daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started", logx.Int("pending", a.engine.Len()))
	return nil
}

// Resync loads every event from the store and schedules it. An unreadable store
// counts as empty. Re-running it is safe: triggers are replaced by ID and fired
// triggers are never re-derived.
func (a *App) Resync(ctx context.Context) reminder.RehydrateReport {
	a.resyncMu.Lock()
	defer a.resyncMu.Unlock()

	events, err := a.store.All(ctx)
	if err != nil {
		a.log.Warn("event store unavailable; treating as empty", logx.Err(err))
		events = map[string]store.EventRecord{}
	}
	return a.engine.Rehydrate(events)
}

// OnEventCreated schedules reminders for a new or updated event. It reports
// false on any failure and never panics.
func (a *App) OnEventCreated(eventID, date string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("scheduling panicked", logx.String("event", eventID), logx.Any("panic", r))
			ok = false
		}
	}()

	a.log.Info("event created", logx.String("event", eventID), logx.String("date", date))
	when, err := store.ParseDate(date, a.engine.Location())
	if err != nil {
		a.metrics.SchedulingFailed(metrics.ReasonInvalidDate)
		a.log.Error("scheduling failed", logx.String("event", eventID), logx.Err(err))
		return false
	}
	adm, err := a.engine.Schedule(eventID, when)
	if err != nil {
		a.log.Error("scheduling failed", logx.String("event", eventID), logx.Err(err))
		return false
	}
	a.log.Info("reminders scheduled",
		logx.String("event", eventID),
		logx.Int("admitted", len(adm.Admitted)),
		logx.Int("dropped", len(adm.Dropped)),
		logx.Int("superseded", adm.Superseded),
	)
	return true
}

func (a *App) startResync(sup *supervisor.Supervisor) error {
	spec := strings.TrimSpace(a.cfg.Scheduler.Resync)
	if spec == "" {
		return nil
	}
	c := cron.New(cron.WithParser(config.CronParser), cron.WithLocation(a.engine.Location()))
	if _, err := c.AddFunc(spec, func() {
		rep := a.Resync(sup.Context())
		a.log.Debug("periodic resync", logx.Int("events", rep.Events), logx.Int("admitted", rep.Admitted))
	}); err != nil {
		return fmt.Errorf("scheduler.resync: %w", err)
	}
	c.Start()
	a.mu.Lock()
	a.cron = c
	a.mu.Unlock()
	a.log.Info("periodic resync enabled", logx.String("spec", spec))
	return nil
}

func (a *App) startWatch(sup *supervisor.Supervisor) {
	if !a.cfg.Scheduler.Watch {
		return
	}
	path, ok := store.WatchPath(a.store)
	if !ok {
		a.log.Warn("scheduler.watch ignored: store is not file-based")
		return
	}
	sup.Go("store.watch", func(c context.Context) error {
		return store.Watch(c, path, a.log.With(logx.String("comp", "store.watch")), func() {
			a.Resync(c)
		})
	})
}

func (a *App) startMetrics(sup *supervisor.Supervisor) error {
	if !a.cfg.Metrics.Enabled {
		return nil
	}
	addr := strings.TrimSpace(a.cfg.Metrics.Addr)
	if addr == "" {
		addr = defaultMetricsAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(a.Status()); err != nil {
			a.log.Debug("status encode failed", logx.Err(err))
		}
	})
	if a.cfg.Metrics.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	a.mu.Lock()
	a.httpSrv = srv
	a.httpAddr = ln.Addr().String()
	a.mu.Unlock()

	sup.Go("metrics.http", func(c context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	a.log.Info("metrics listener started", logx.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts every component down. Each step is bounded so one stuck component
// can't stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.mu.Lock()
	sup := a.sup
	c := a.cron
	srv := a.httpSrv
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := a.sdNotify(daemon.SdNotifyStopping); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	// Cancel first so the timing loop stops firing before its workers go away.
	sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			max = time.Millisecond
		}
		stepCtx, cancel := context.WithTimeout(stepCtx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Err(stepCtx.Err()))
		}
	}

	step("resync", time.Second, func(context.Context) error {
		if c != nil {
			<-c.Stop().Done()
		}
		return nil
	})
	step("metrics", time.Second, func(sc context.Context) error {
		if srv != nil {
			return srv.Shutdown(sc)
		}
		return nil
	})
	step("taskengine", 2*time.Second, func(sc context.Context) error { a.tasks.Stop(sc); return nil })
	step("notifier", 2*time.Second, func(sc context.Context) error { a.notif.Stop(sc); return nil })
	step("supervisor", 2*time.Second, func(sc context.Context) error {
		if err := sup.Wait(sc); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	step("store", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped", logx.Int("pending_dropped", a.engine.Len()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
