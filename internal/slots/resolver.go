// Package slots turns a doctor's availability windows and existing
// appointments into the bookable hour slots of one date.
package slots

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wolfman30/citas/internal/citas"
)

// Slot is one bookable hour inside an availability window.
type Slot struct {
	Hour     int  `json:"hour"`
	Occupied bool `json:"occupied"`
}

// Label renders the slot hour the way the API stores it, e.g. "09:00".
func (s Slot) Label() string { return FormatHour(s.Hour) }

// Available reports whether the slot can be selected.
func (s Slot) Available() bool { return !s.Occupied }

// Resolve returns the slots of date, ascending by hour.
//
// Every window on date contributes each hour of [start, end). An hour
// covered by more than one window appears once. A slot is occupied when a
// non-cancelled appointment holds the same date and HH:00 hour. Windows
// whose hours cannot be parsed contribute nothing. Resolve has no side
// effects and returns an empty slice when no window matches.
func Resolve(windows []citas.AvailabilityWindow, appointments []citas.Appointment, date string) []Slot {
	taken := make(map[string]struct{}, len(appointments))
	for _, a := range appointments {
		if a.Date != date || a.IsCancelled() {
			continue
		}
		taken[normalizeClock(a.Hour)] = struct{}{}
	}

	seen := make(map[int]struct{})
	out := make([]Slot, 0)
	for _, w := range windows {
		if w.Date != date {
			continue
		}
		start, err := ParseHour(w.StartTime)
		if err != nil {
			continue
		}
		end, err := ParseHour(w.EndTime)
		if err != nil {
			continue
		}
		for h := start; h < end; h++ {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			_, occupied := taken[FormatHour(h)]
			out = append(out, Slot{Hour: h, Occupied: occupied})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out
}

// Find returns the slot for hour, if present.
func Find(slots []Slot, hour int) (Slot, bool) {
	for _, s := range slots {
		if s.Hour == hour {
			return s, true
		}
	}
	return Slot{}, false
}

// Counts returns the number of available and occupied slots.
func Counts(slots []Slot) (available, occupied int) {
	for _, s := range slots {
		if s.Occupied {
			occupied++
		} else {
			available++
		}
	}
	return available, occupied
}

// ParseHour extracts the hour of an "HH:MM" (or bare "HH") clock string.
func ParseHour(clock string) (int, error) {
	hh, _, _ := strings.Cut(strings.TrimSpace(clock), ":")
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("slots: invalid hour %q: %w", clock, err)
	}
	if h < 0 || h > 24 {
		return 0, fmt.Errorf("slots: hour %d out of range", h)
	}
	return h, nil
}

// FormatHour renders an hour as "HH:00".
func FormatHour(h int) string {
	return fmt.Sprintf("%02d:00", h)
}

// normalizeClock turns "9:00" into "09:00"; unparseable values are kept as is
// so they never match a generated label by accident.
func normalizeClock(clock string) string {
	clock = strings.TrimSpace(clock)
	hh, mm, ok := strings.Cut(clock, ":")
	if !ok {
		return clock
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil {
		return clock
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}
