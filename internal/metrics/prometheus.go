package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"remindd/pkg/logx"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	log logx.Logger

	// Engine metrics
	admittedTotal     *prometheus.CounterVec
	droppedTotal      *prometheus.CounterVec
	supersededTotal   *prometheus.CounterVec
	firedTotal        *prometheus.CounterVec
	fireLateness      prometheus.Histogram
	pending           prometheus.Gauge
	failuresTotal     *prometheus.CounterVec
	rehydrateEvents   prometheus.Gauge
	rehydrateFailed   prometheus.Gauge
	rehydrateDuration prometheus.Histogram

	// Dispatcher / notifier metrics
	fireOutcomesTotal   *prometheus.CounterVec
	notifyOutcomesTotal *prometheus.CounterVec
	notifyRetriesTotal  prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// Metrics that fail to register still work; they are just not exported.
func NewPrometheusSink(reg prometheus.Registerer, log logx.Logger) *PrometheusSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &PrometheusSink{log: log}
	s.initEngineMetrics(reg)
	s.initNotifyMetrics(reg)
	return s
}

func (s *PrometheusSink) initEngineMetrics(reg prometheus.Registerer) {
	s.admittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_triggers_admitted_total",
		Help: "Total number of reminder triggers admitted to the pending set.",
	}, []string{"tag"})
	s.droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_triggers_dropped_total",
		Help: "Total number of reminder triggers dropped because their fire time had passed.",
	}, []string{"tag"})
	s.supersededTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_triggers_superseded_total",
		Help: "Total number of pending triggers replaced by a re-schedule.",
	}, []string{"tag"})
	s.firedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_triggers_fired_total",
		Help: "Total number of reminder triggers fired.",
	}, []string{"tag"})
	s.fireLateness = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "remindd_trigger_fire_lateness_seconds",
		Help:    "Delay between a trigger's fire time and its dispatch.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 30},
	})
	s.pending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "remindd_triggers_pending",
		Help: "Current number of pending triggers.",
	})
	s.failuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_scheduling_failures_total",
		Help: "Total number of events that could not be scheduled.",
	}, []string{"reason"})
	s.rehydrateEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "remindd_rehydrate_events",
		Help: "Number of events processed by the last rehydration.",
	})
	s.rehydrateFailed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "remindd_rehydrate_failed_events",
		Help: "Number of events that failed in the last rehydration.",
	})
	s.rehydrateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "remindd_rehydrate_duration_seconds",
		Help:    "Duration of a rehydration pass.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	s.register(reg, s.admittedTotal, "remindd_triggers_admitted_total")
	s.register(reg, s.droppedTotal, "remindd_triggers_dropped_total")
	s.register(reg, s.supersededTotal, "remindd_triggers_superseded_total")
	s.register(reg, s.firedTotal, "remindd_triggers_fired_total")
	s.register(reg, s.fireLateness, "remindd_trigger_fire_lateness_seconds")
	s.register(reg, s.pending, "remindd_triggers_pending")
	s.register(reg, s.failuresTotal, "remindd_scheduling_failures_total")
	s.register(reg, s.rehydrateEvents, "remindd_rehydrate_events")
	s.register(reg, s.rehydrateFailed, "remindd_rehydrate_failed_events")
	s.register(reg, s.rehydrateDuration, "remindd_rehydrate_duration_seconds")
}

func (s *PrometheusSink) initNotifyMetrics(reg prometheus.Registerer) {
	s.fireOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_fire_outcomes_total",
		Help: "Total number of fire callbacks by outcome.",
	}, []string{"outcome"})
	s.notifyOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remindd_notifications_total",
		Help: "Total number of notifications by final outcome.",
	}, []string{"outcome"})
	s.notifyRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remindd_notification_retries_total",
		Help: "Total number of notification retry attempts (excludes first attempt).",
	})

	s.register(reg, s.fireOutcomesTotal, "remindd_fire_outcomes_total")
	s.register(reg, s.notifyOutcomesTotal, "remindd_notifications_total")
	s.register(reg, s.notifyRetriesTotal, "remindd_notification_retries_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if reg == nil {
		return
	}
	if err := reg.Register(c); err != nil {
		s.log.Warn("metrics: failed to register collector", logx.String("name", name), logx.Err(err))
	}
}

func (s *PrometheusSink) TriggerAdmitted(tag string) {
	s.admittedTotal.WithLabelValues(tag).Inc()
}

func (s *PrometheusSink) TriggerDropped(tag string) {
	s.droppedTotal.WithLabelValues(tag).Inc()
}

func (s *PrometheusSink) TriggerSuperseded(tag string) {
	s.supersededTotal.WithLabelValues(tag).Inc()
}

func (s *PrometheusSink) TriggerFired(tag string, lateness time.Duration) {
	s.firedTotal.WithLabelValues(tag).Inc()
	if lateness < 0 {
		lateness = 0
	}
	s.fireLateness.Observe(lateness.Seconds())
}

func (s *PrometheusSink) PendingUpdate(n int) {
	s.pending.Set(float64(n))
}

func (s *PrometheusSink) SchedulingFailed(reason string) {
	s.failuresTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) RehydrateCompleted(events, failed int, duration time.Duration) {
	s.rehydrateEvents.Set(float64(events))
	s.rehydrateFailed.Set(float64(failed))
	s.rehydrateDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) FireOutcome(outcome string) {
	s.fireOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) NotificationOutcome(outcome string) {
	s.notifyOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) NotificationRetry() {
	s.notifyRetriesTotal.Inc()
}
