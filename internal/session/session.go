// Package session holds the state of one patient's booking session: the
// logged-in user, the chosen specialty, doctor and date, the fetched
// availability and the selected hour.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/internal/slots"
)

var (
	// ErrSlotOccupied is returned when selecting an hour that is already booked.
	ErrSlotOccupied = errors.New("session: slot is occupied")
	// ErrSlotUnavailable is returned when selecting an hour outside every window.
	ErrSlotUnavailable = errors.New("session: slot is not available")
)

// Session is the client-side state of one booking session.
type Session struct {
	ID                 string                     `json:"id"`
	User               *citas.User                `json:"user,omitempty"`
	Specialties        []string                   `json:"specialties,omitempty"`
	Specialty          string                     `json:"specialty,omitempty"`
	Doctors            []citas.Doctor             `json:"doctors,omitempty"`
	DoctorID           citas.ID                   `json:"doctor_id,omitempty"`
	Windows            []citas.AvailabilityWindow `json:"windows,omitempty"`
	DoctorAppointments []citas.Appointment        `json:"doctor_appointments,omitempty"`
	MyAppointments     []citas.Appointment        `json:"my_appointments,omitempty"`
	Date               string                     `json:"date,omitempty"`
	SelectedHour       *int                       `json:"selected_hour,omitempty"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

// New returns an empty session with a fresh id.
func New() *Session {
	return &Session{ID: uuid.New().String(), UpdatedAt: time.Now().UTC()}
}

// LoggedIn reports whether a user is attached.
func (s *Session) LoggedIn() bool { return s.User != nil }

// Document returns the logged-in user's document, or "".
func (s *Session) Document() string {
	if s.User == nil {
		return ""
	}
	return s.User.Document
}

// Login attaches u and drops any state left from a previous user.
func (s *Session) Login(u citas.User) {
	s.Logout()
	s.User = &u
}

// Logout clears everything but the session id.
func (s *Session) Logout() {
	*s = Session{ID: s.ID, UpdatedAt: s.UpdatedAt}
}

// SetSpecialty records the specialty and its doctors. The doctor, date,
// availability and selection are cleared.
func (s *Session) SetSpecialty(specialty string, doctors []citas.Doctor) {
	s.Specialty = specialty
	s.Doctors = doctors
	s.DoctorID = ""
	s.Date = ""
	s.ResetAvailability()
}

// Doctor returns the selected doctor. Only the id is set when the doctor is
// not among the loaded doctors.
func (s *Session) Doctor() (citas.Doctor, bool) {
	if s.DoctorID.IsZero() {
		return citas.Doctor{}, false
	}
	for _, d := range s.Doctors {
		if d.ID == s.DoctorID {
			return d, true
		}
	}
	return citas.Doctor{ID: s.DoctorID}, true
}

// SetDoctor switches doctor. Availability, date and selection are cleared
// until the caller loads the new doctor's data.
func (s *Session) SetDoctor(id citas.ID) {
	s.DoctorID = id
	s.Date = ""
	s.ResetAvailability()
}

// SetAvailability stores the doctor's windows and appointments together.
// A selection that no longer points at an available slot is dropped.
func (s *Session) SetAvailability(windows []citas.AvailabilityWindow, appointments []citas.Appointment) {
	s.Windows = windows
	s.DoctorAppointments = appointments
	if s.SelectedHour == nil {
		return
	}
	if slot, ok := slots.Find(s.Slots(), *s.SelectedHour); !ok || slot.Occupied {
		s.SelectedHour = nil
	}
}

// ResetAvailability empties both availability lists and the selection.
func (s *Session) ResetAvailability() {
	s.Windows = nil
	s.DoctorAppointments = nil
	s.SelectedHour = nil
}

// SetDate switches date and clears the selection.
func (s *Session) SetDate(date string) {
	s.Date = date
	s.SelectedHour = nil
}

// Slots resolves the slots of the selected date.
func (s *Session) Slots() []slots.Slot {
	if s.Date == "" {
		return []slots.Slot{}
	}
	return slots.Resolve(s.Windows, s.DoctorAppointments, s.Date)
}

// Calendar builds the date picker configuration for the current doctor.
func (s *Session) Calendar(today time.Time, days int) slots.Calendar {
	return slots.NewCalendar(s.Windows, today, days)
}

// Select makes hour the selected slot. Occupied or unknown hours are
// rejected and the previous selection is kept.
func (s *Session) Select(hour int) error {
	slot, ok := slots.Find(s.Slots(), hour)
	if !ok {
		return ErrSlotUnavailable
	}
	if slot.Occupied {
		return ErrSlotOccupied
	}
	h := slot.Hour
	s.SelectedHour = &h
	return nil
}

// Selected returns the selected slot, if any.
func (s *Session) Selected() (slots.Slot, bool) {
	if s.SelectedHour == nil {
		return slots.Slot{}, false
	}
	return slots.Find(s.Slots(), *s.SelectedHour)
}

// ClearSelection drops the selected slot.
func (s *Session) ClearSelection() { s.SelectedHour = nil }

// SetMyAppointments stores the patient's appointments with their status
// defaulted for display.
func (s *Session) SetMyAppointments(appointments []citas.Appointment) {
	out := make([]citas.Appointment, len(appointments))
	for i, a := range appointments {
		a.Status = a.EffectiveStatus()
		out[i] = a
	}
	s.MyAppointments = out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	c := *s
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	if s.SelectedHour != nil {
		h := *s.SelectedHour
		c.SelectedHour = &h
	}
	c.Specialties = append([]string(nil), s.Specialties...)
	c.Doctors = append([]citas.Doctor(nil), s.Doctors...)
	c.Windows = append([]citas.AvailabilityWindow(nil), s.Windows...)
	c.DoctorAppointments = append([]citas.Appointment(nil), s.DoctorAppointments...)
	c.MyAppointments = append([]citas.Appointment(nil), s.MyAppointments...)
	return &c
}
