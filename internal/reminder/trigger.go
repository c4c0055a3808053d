package reminder

import "time"

// Offset is a fixed delta before an event's date at which a reminder fires.
type Offset struct {
	Tag    string
	Before time.Duration
}

var (
	OneDayBefore  = Offset{Tag: "24-hour", Before: 24 * time.Hour}
	OneHourBefore = Offset{Tag: "1-hour", Before: time.Hour}
)

// Offsets returns the reminder offsets in derivation order.
func Offsets() []Offset {
	return []Offset{OneDayBefore, OneHourBefore}
}

// OffsetByTag looks up an offset by its tag.
func OffsetByTag(tag string) (Offset, bool) {
	for _, o := range Offsets() {
		if o.Tag == tag {
			return o, true
		}
	}
	return Offset{}, false
}

// Trigger is one pending reminder.
type Trigger struct {
	ID      string
	EventID string
	Offset  Offset
	FireAt  time.Time
}

// TriggerID returns the deterministic id for an event's reminder.
func TriggerID(eventID, tag string) string {
	return eventID + "_" + tag
}

// Derive returns the triggers for an event whose fire time is strictly after now,
// in Offsets order. It is pure.
func Derive(eventID string, date, now time.Time) []Trigger {
	var out []Trigger
	for _, t := range plan(eventID, date) {
		if t.FireAt.After(now) {
			out = append(out, t)
		}
	}
	return out
}

// plan returns every candidate trigger, due or not.
func plan(eventID string, date time.Time) []Trigger {
	offsets := Offsets()
	out := make([]Trigger, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, Trigger{
			ID:      TriggerID(eventID, o.Tag),
			EventID: eventID,
			Offset:  o,
			FireAt:  date.Add(-o.Before),
		})
	}
	return out
}
