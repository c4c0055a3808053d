package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindd/pkg/logx"
)

var _ Sink = (*NoopSink)(nil)
var _ Sink = (*PrometheusSink)(nil)

func TestNoopSinkDoesNotPanic(t *testing.T) {
	s := NewNoopSink()
	s.TriggerAdmitted("1-hour")
	s.TriggerDropped("24-hour")
	s.TriggerSuperseded("1-hour")
	s.TriggerFired("1-hour", time.Second)
	s.PendingUpdate(3)
	s.SchedulingFailed(ReasonCapacity)
	s.RehydrateCompleted(2, 1, time.Millisecond)
	s.FireOutcome(FireDelivered)
	s.NotificationOutcome(OutcomeSuccess)
	s.NotificationRetry()
}

func TestPrometheusSinkCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg, logx.Nop())

	s.TriggerAdmitted("24-hour")
	s.TriggerAdmitted("24-hour")
	s.TriggerAdmitted("1-hour")
	s.TriggerDropped("24-hour")
	s.TriggerFired("1-hour", 20*time.Millisecond)
	s.PendingUpdate(2)
	s.SchedulingFailed(ReasonCapacity)
	s.FireOutcome(FireMissing)
	s.NotificationOutcome(OutcomeFailed)
	s.NotificationRetry()
	s.NotificationRetry()

	assert.Equal(t, 2.0, testutil.ToFloat64(s.admittedTotal.WithLabelValues("24-hour")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.admittedTotal.WithLabelValues("1-hour")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.droppedTotal.WithLabelValues("24-hour")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.firedTotal.WithLabelValues("1-hour")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.failuresTotal.WithLabelValues(ReasonCapacity)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.fireOutcomesTotal.WithLabelValues(FireMissing)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.notifyOutcomesTotal.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.notifyRetriesTotal))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["remindd_triggers_admitted_total"])
	assert.True(t, names["remindd_trigger_fire_lateness_seconds"])
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheusSink(reg, logx.Nop())

	// A second sink on the same registry must still be usable.
	s := NewPrometheusSink(reg, logx.Nop())
	s.TriggerAdmitted("1-hour")
	s.PendingUpdate(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.pending))
}
