package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		until time.Duration
		want  []string
	}{
		{"more than a day ahead", 25 * time.Hour, []string{"E_24-hour", "E_1-hour"}},
		{"exactly a day ahead", 24 * time.Hour, []string{"E_1-hour"}},
		{"between an hour and a day", 2 * time.Hour, []string{"E_1-hour"}},
		{"just over an hour", time.Hour + time.Second, []string{"E_1-hour"}},
		{"exactly an hour ahead", time.Hour, nil},
		{"thirty minutes ahead", 30 * time.Minute, nil},
		{"in the past", -time.Hour, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date := now.Add(tt.until)
			got := Derive("E", date, now)
			var ids []string
			for _, tr := range got {
				ids = append(ids, tr.ID)
				assert.Equal(t, "E", tr.EventID)
				assert.Equal(t, date.Add(-tr.Offset.Before), tr.FireAt)
				assert.True(t, tr.FireAt.After(now))
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestDeriveIsPure(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	date := now.Add(48 * time.Hour)
	assert.Equal(t, Derive("E", date, now), Derive("E", date, now))
}

func TestOffsets(t *testing.T) {
	assert.Equal(t, []Offset{OneDayBefore, OneHourBefore}, Offsets())

	o, ok := OffsetByTag("1-hour")
	assert.True(t, ok)
	assert.Equal(t, time.Hour, o.Before)
	_, ok = OffsetByTag("week")
	assert.False(t, ok)

	assert.Equal(t, "abc_24-hour", TriggerID("abc", OneDayBefore.Tag))
}
