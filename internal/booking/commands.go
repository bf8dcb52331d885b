// Package booking runs the patient booking flow. A Dispatcher owns one
// session and applies commands to it sequentially from a single loop,
// mirroring how a UI thread handles clicks.
package booking

import "github.com/wolfman30/citas/internal/citas"

// Control names the UI control a command belongs to. Only one command per
// control can be in flight at a time.
type Control string

const (
	ControlLogin        Control = "login"
	ControlLogout       Control = "logout"
	ControlSpecialties  Control = "specialties"
	ControlSpecialty    Control = "specialty"
	ControlDoctor       Control = "doctor"
	ControlDate         Control = "date"
	ControlSlot         Control = "slot"
	ControlBook         Control = "book"
	ControlCancel       Control = "cancel"
	ControlAppointments Control = "appointments"
	ControlSession      Control = "session"
)

// Command is one user action.
type Command interface {
	Control() Control
}

// Login authenticates a patient by document and birth date.
type Login struct {
	Document  string
	BirthDate string
}

// Logout ends the session.
type Logout struct{}

// LoadSpecialties reloads the specialty list.
type LoadSpecialties struct{}

// SelectSpecialty loads the doctors of a specialty.
type SelectSpecialty struct {
	Specialty string
}

// SelectDoctor switches doctor and loads their availability.
type SelectDoctor struct {
	DoctorID citas.ID
}

// SelectDate picks the calendar date (YYYY-MM-DD).
type SelectDate struct {
	Date string
}

// SelectSlot picks an hour on the selected date.
type SelectSlot struct {
	Hour int
}

// Book books the selected slot.
type Book struct {
	Reason string
}

// Cancel deletes one of the patient's appointments.
type Cancel struct {
	AppointmentID citas.ID
}

// RefreshAppointments reloads the patient's appointments.
type RefreshAppointments struct{}

type resume struct {
	id string
}

func (Login) Control() Control               { return ControlLogin }
func (Logout) Control() Control              { return ControlLogout }
func (LoadSpecialties) Control() Control     { return ControlSpecialties }
func (SelectSpecialty) Control() Control     { return ControlSpecialty }
func (SelectDoctor) Control() Control        { return ControlDoctor }
func (SelectDate) Control() Control          { return ControlDate }
func (SelectSlot) Control() Control          { return ControlSlot }
func (Book) Control() Control                { return ControlBook }
func (Cancel) Control() Control              { return ControlCancel }
func (RefreshAppointments) Control() Control { return ControlAppointments }
func (resume) Control() Control              { return ControlSession }
