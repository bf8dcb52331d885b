package booking

import (
	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/internal/slots"
)

// View is an immutable snapshot of the session for rendering.
type View struct {
	SessionID    string
	User         *citas.User
	Specialties  []string
	Specialty    string
	Doctors      []citas.Doctor
	Doctor       *citas.Doctor
	EnabledDates []string
	Date         string
	Slots        []slots.Slot
	SelectedHour *int
	Appointments []citas.Appointment
	Notice       string
	Alert        string
	Disabled     []Control
}

// IsDisabled reports whether c has a command in flight.
func (v View) IsDisabled(c Control) bool {
	for _, d := range v.Disabled {
		if d == c {
			return true
		}
	}
	return false
}

// Selected returns the selected slot, if any.
func (v View) Selected() (slots.Slot, bool) {
	if v.SelectedHour == nil {
		return slots.Slot{}, false
	}
	return slots.Find(v.Slots, *v.SelectedHour)
}
