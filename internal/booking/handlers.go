package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/internal/forms"
	"github.com/wolfman30/citas/internal/session"
	"github.com/wolfman30/citas/internal/slots"
)

var (
	// ErrNotLoggedIn is returned for commands that need a patient.
	ErrNotLoggedIn = errors.New("log in first")
	// ErrNoDoctor is returned when a doctor must be selected first.
	ErrNoDoctor = errors.New("select a doctor first")
	// ErrUnknownDoctor is returned for a doctor outside the loaded list.
	ErrUnknownDoctor = errors.New("doctor is not in the current specialty")
	// ErrDateNotSelectable is returned for dates the calendar does not offer.
	ErrDateNotSelectable = errors.New("date is not available for this doctor")
	// ErrNoSelection is returned when booking without a date and hour.
	ErrNoSelection = errors.New("select a date and hour")
)

func (d *Dispatcher) handle(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case Login:
		return d.login(ctx, c)
	case Logout:
		return d.logout(ctx)
	case LoadSpecialties:
		return d.loadSpecialties(ctx)
	case SelectSpecialty:
		return d.selectSpecialty(ctx, c)
	case SelectDoctor:
		return d.selectDoctor(ctx, c)
	case SelectDate:
		return d.selectDate(ctx, c)
	case SelectSlot:
		return d.selectSlot(c)
	case Book:
		return d.book(ctx, c)
	case Cancel:
		return d.cancel(ctx, c)
	case RefreshAppointments:
		return d.refreshAppointments(ctx)
	case resume:
		return d.resume(ctx, c)
	default:
		return fmt.Errorf("booking: unknown command %T", cmd)
	}
}

func (d *Dispatcher) login(ctx context.Context, c Login) error {
	form := loginForm{Document: strings.TrimSpace(c.Document), BirthDate: strings.TrimSpace(c.BirthDate)}
	if err := forms.Check(form, loginLabels); err != nil {
		return err
	}
	birth, _ := forms.NormalizeBirthDate(form.BirthDate)

	user, err := d.api.Login(ctx, citas.LoginRequest{Document: form.Document, BirthDate: birth})
	if err != nil {
		d.alert = citas.UserMessage(err, "login failed")
		return err
	}
	d.sess.Login(*user)
	d.notice = fmt.Sprintf("Welcome, %s", user.Name)
	d.logger.Info("patient logged in", "session_id", d.sess.ID, "document", user.Document)

	if err := d.fetchSpecialties(ctx); err != nil {
		d.logger.Warn("specialties load failed", "session_id", d.sess.ID, "error", err)
	}
	if err := d.fetchMyAppointments(ctx); err != nil {
		d.logger.Warn("appointments load failed", "session_id", d.sess.ID, "error", err)
	}
	return nil
}

func (d *Dispatcher) logout(ctx context.Context) error {
	if err := d.store.Delete(ctx, d.sess.ID); err != nil {
		d.logger.Warn("session delete failed", "session_id", d.sess.ID, "error", err)
	}
	d.sess.Logout()
	d.notice = "Logged out"
	return nil
}

func (d *Dispatcher) loadSpecialties(ctx context.Context) error {
	if !d.sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	if err := d.fetchSpecialties(ctx); err != nil {
		d.alert = citas.UserMessage(err, "could not load specialties")
		return err
	}
	return nil
}

func (d *Dispatcher) selectSpecialty(ctx context.Context, c SelectSpecialty) error {
	if !d.sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	specialty := strings.TrimSpace(c.Specialty)
	if specialty == "" {
		return forms.Invalid("Specialty", "specialty is required")
	}
	doctors, err := d.api.ListDoctors(ctx, specialty)
	if err != nil {
		d.sess.SetSpecialty(specialty, nil)
		d.alert = citas.UserMessage(err, "could not load doctors")
		return err
	}
	d.sess.SetSpecialty(specialty, doctors)
	if len(doctors) == 0 {
		d.notice = "No doctors for " + specialty
	}
	return nil
}

func (d *Dispatcher) selectDoctor(ctx context.Context, c SelectDoctor) error {
	if !d.sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	if c.DoctorID.IsZero() {
		return forms.Invalid("DoctorID", "doctor is required")
	}
	if len(d.sess.Doctors) > 0 && !hasDoctor(d.sess.Doctors, c.DoctorID) {
		return ErrUnknownDoctor
	}
	d.sess.SetDoctor(c.DoctorID)
	d.refreshAvailability(ctx)
	if len(d.sess.Windows) == 0 {
		d.notice = "No availability for this doctor"
	}
	return nil
}

func (d *Dispatcher) selectDate(ctx context.Context, c SelectDate) error {
	if d.sess.DoctorID.IsZero() {
		return ErrNoDoctor
	}
	date := strings.TrimSpace(c.Date)
	if err := forms.Check(dateForm{Date: date}, dateLabels); err != nil {
		return err
	}
	if !d.sess.Calendar(d.now(), d.days).Selectable(date) {
		return ErrDateNotSelectable
	}
	d.sess.SetDate(date)
	d.refreshAvailability(ctx)
	if len(d.sess.Slots()) == 0 {
		d.notice = "No hours available"
	}
	return nil
}

func (d *Dispatcher) selectSlot(c SelectSlot) error {
	if d.sess.Date == "" {
		return ErrNoSelection
	}
	if err := d.sess.Select(c.Hour); err != nil {
		switch {
		case errors.Is(err, session.ErrSlotOccupied):
			d.alert = fmt.Sprintf("%s is already taken", slots.FormatHour(c.Hour))
		case errors.Is(err, session.ErrSlotUnavailable):
			d.alert = fmt.Sprintf("%s is not offered on %s", slots.FormatHour(c.Hour), d.sess.Date)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) book(ctx context.Context, c Book) error {
	if !d.sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	hour := ""
	if slot, ok := d.sess.Selected(); ok {
		hour = slot.Label()
	}
	form := bookingForm{
		Document: d.sess.Document(),
		DoctorID: d.sess.DoctorID.String(),
		Date:     d.sess.Date,
		Hour:     hour,
	}
	if form.Date == "" || form.Hour == "" {
		return ErrNoSelection
	}
	if err := forms.Check(form, bookingLabels); err != nil {
		return err
	}

	created, err := d.api.CreateAppointment(ctx, citas.CreateAppointmentRequest{
		PatientDocument: form.Document,
		DoctorID:        d.sess.DoctorID,
		Date:            form.Date,
		Hour:            form.Hour,
		Reason:          strings.TrimSpace(c.Reason),
	})
	if err != nil {
		d.alert = citas.UserMessage(err, "booking failed")
		return err
	}
	d.notice = "Appointment booked"
	d.logger.Info("appointment booked", "session_id", d.sess.ID, "appointment_id", created.ID, "doctor_id", form.DoctorID, "date", form.Date, "hour", form.Hour)
	d.refreshAfterChange(ctx)
	return nil
}

func (d *Dispatcher) cancel(ctx context.Context, c Cancel) error {
	if !d.sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	if c.AppointmentID.IsZero() {
		return forms.Invalid("AppointmentID", "appointment id is required")
	}
	msg, err := d.api.DeleteAppointment(ctx, c.AppointmentID, d.sess.Document())
	if err != nil {
		d.alert = citas.UserMessage(err, "cancel failed")
		return err
	}
	d.notice = "Appointment cancelled"
	if msg != "" {
		d.notice = msg
	}
	d.logger.Info("appointment cancelled", "session_id", d.sess.ID, "appointment_id", c.AppointmentID)
	d.refreshAfterChange(ctx)
	return nil
}

func (d *Dispatcher) refreshAppointments(ctx context.Context) error {
	if !d.sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	if err := d.fetchMyAppointments(ctx); err != nil {
		d.alert = citas.UserMessage(err, "could not load appointments")
		return err
	}
	return nil
}

func (d *Dispatcher) resume(ctx context.Context, c resume) error {
	s, err := d.store.Load(ctx, c.id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			d.alert = "session not found"
		}
		return err
	}
	d.sess = s
	if d.sess.LoggedIn() {
		if err := d.fetchMyAppointments(ctx); err != nil {
			d.logger.Warn("appointments refresh failed", "session_id", d.sess.ID, "error", err)
		}
	}
	// Stored windows and appointments may be stale; slots come from a fresh fetch.
	d.refreshAvailability(ctx)
	d.notice = "Session resumed"
	return nil
}

// refreshAfterChange reloads the patient's appointments, then the doctor's
// availability. Slots are recomputed once both availability lists are in.
func (d *Dispatcher) refreshAfterChange(ctx context.Context) {
	if err := d.fetchMyAppointments(ctx); err != nil {
		d.logger.Warn("appointments refresh failed", "session_id", d.sess.ID, "error", err)
	}
	d.refreshAvailability(ctx)
}

// refreshAvailability loads windows and appointments for the selected
// doctor. On any failure both lists are emptied rather than left stale.
func (d *Dispatcher) refreshAvailability(ctx context.Context) {
	if d.sess.DoctorID.IsZero() {
		d.sess.ResetAvailability()
		return
	}
	windows, err := d.api.ListAvailability(ctx, d.sess.DoctorID)
	if err != nil {
		d.logger.Warn("availability fetch failed", "session_id", d.sess.ID, "doctor_id", d.sess.DoctorID, "error", err)
		d.sess.ResetAvailability()
		return
	}
	appts, err := d.api.ListAppointments(ctx, citas.AppointmentFilter{DoctorID: d.sess.DoctorID})
	if err != nil {
		d.logger.Warn("doctor appointments fetch failed", "session_id", d.sess.ID, "doctor_id", d.sess.DoctorID, "error", err)
		d.sess.ResetAvailability()
		return
	}
	d.sess.SetAvailability(windows, appts)
	if d.sess.Date != "" {
		d.metrics.ObserveSlots(slots.Counts(d.sess.Slots()))
	}
}

func (d *Dispatcher) fetchSpecialties(ctx context.Context) error {
	specialties, err := d.api.ListSpecialties(ctx)
	if err != nil {
		return err
	}
	d.sess.Specialties = specialties
	return nil
}

func (d *Dispatcher) fetchMyAppointments(ctx context.Context) error {
	appts, err := d.api.ListAppointments(ctx, citas.AppointmentFilter{PatientDocument: d.sess.Document()})
	if err != nil {
		return err
	}
	d.sess.SetMyAppointments(appts)
	return nil
}

func hasDoctor(doctors []citas.Doctor, id citas.ID) bool {
	for _, doc := range doctors {
		if doc.ID == id {
			return true
		}
	}
	return false
}
