package slots

import (
	"sort"
	"time"

	"github.com/wolfman30/citas/internal/citas"
)

const dateLayout = time.DateOnly

// EnabledDates returns the distinct window dates in ascending order.
func EnabledDates(windows []citas.AvailabilityWindow) []string {
	seen := make(map[string]struct{}, len(windows))
	out := make([]string, 0, len(windows))
	for _, w := range windows {
		if w.Date == "" {
			continue
		}
		if _, ok := seen[w.Date]; ok {
			continue
		}
		seen[w.Date] = struct{}{}
		out = append(out, w.Date)
	}
	sort.Strings(out)
	return out
}

// Calendar is the date picker configuration for one doctor: the dates that
// carry windows plus a booking horizon starting today.
type Calendar struct {
	Enabled []string
	Min     time.Time
	Max     time.Time

	enabled map[string]struct{}
}

// NewCalendar builds a calendar for windows, open from today for days days.
func NewCalendar(windows []citas.AvailabilityWindow, today time.Time, days int) Calendar {
	first := dateOnly(today)
	dates := EnabledDates(windows)
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return Calendar{
		Enabled: dates,
		Min:     first,
		Max:     first.AddDate(0, 0, days),
		enabled: set,
	}
}

// Selectable reports whether date may be picked. Dates outside the horizon
// never are. When the doctor has no windows at all every date inside the
// horizon is selectable and simply yields no slots.
func (c Calendar) Selectable(date string) bool {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return false
	}
	if t.Before(c.Min) || t.After(c.Max) {
		return false
	}
	if len(c.enabled) == 0 {
		return true
	}
	_, ok := c.enabled[date]
	return ok
}

// Marked is the per-day marker: true for dates that carry windows.
func (c Calendar) Marked(date string) bool {
	_, ok := c.enabled[date]
	return ok
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
