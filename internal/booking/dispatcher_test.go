package booking

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/internal/citas/citastest"
	"github.com/wolfman30/citas/internal/forms"
	"github.com/wolfman30/citas/internal/session"
	"github.com/wolfman30/citas/internal/slots"
	"github.com/wolfman30/citas/pkg/logging"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }

type harness struct {
	srv    *citastest.Server
	d      *Dispatcher
	doctor citas.ID
	store  *session.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := citastest.New(t)
	srv.AddUser("1001", "Ana", "1990-05-04", "paciente")
	site := srv.AddSite("Norte", "Calle 1")
	doctor := srv.AddDoctor("Dr. Ruiz", "Cardiología", site)
	srv.AddDoctor("Dr. Paz", "Pediatría", site)
	srv.AddWindow(doctor, "2024-06-10", "09:00", "12:00")
	srv.AddAppointment(citas.Appointment{PatientDocument: "2002", DoctorID: doctor, Date: "2024-06-10", Hour: "10:00"})

	store := session.NewMemoryStore()
	d := startDispatcher(t, citas.NewClient(srv.URL, logging.Discard()), Config{Store: store})
	return &harness{srv: srv, d: d, doctor: doctor, store: store}
}

func startDispatcher(t *testing.T, api API, cfg Config) *Dispatcher {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	cfg.Now = fixedNow
	d := NewDispatcher(api, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d
}

func (h *harness) login(t *testing.T) View {
	t.Helper()
	v, err := h.d.Do(context.Background(), Login{Document: "1001", BirthDate: "04/05/1990"})
	require.NoError(t, err)
	return v
}

func (h *harness) pickDate(t *testing.T) View {
	t.Helper()
	ctx := context.Background()
	h.login(t)
	_, err := h.d.Do(ctx, SelectSpecialty{Specialty: "Cardiología"})
	require.NoError(t, err)
	_, err = h.d.Do(ctx, SelectDoctor{DoctorID: h.doctor})
	require.NoError(t, err)
	v, err := h.d.Do(ctx, SelectDate{Date: "2024-06-10"})
	require.NoError(t, err)
	return v
}

func TestDispatcher_LoginValidatesBeforeNetwork(t *testing.T) {
	h := newHarness(t)
	v, err := h.d.Do(context.Background(), Login{Document: "", BirthDate: "1990-13-40"})

	require.Error(t, err)
	assert.True(t, forms.IsValidation(err))
	assert.Contains(t, v.Alert, "document is required")
	assert.Contains(t, v.Alert, "birth date must be")
	assert.Zero(t, h.srv.CountRequests(http.MethodPost, "/api/login"))
}

func TestDispatcher_LoginLoadsSpecialtiesAndAppointments(t *testing.T) {
	h := newHarness(t)
	h.srv.AddAppointment(citas.Appointment{PatientDocument: "1001", DoctorID: h.doctor, Date: "2024-06-10", Hour: "11:00"})

	v := h.login(t)
	require.NotNil(t, v.User)
	assert.Equal(t, "Ana", v.User.Name)
	assert.Equal(t, "Welcome, Ana", v.Notice)
	assert.Equal(t, []string{"Cardiología", "Pediatría"}, v.Specialties)
	require.Len(t, v.Appointments, 1)
	assert.Equal(t, citas.StatusScheduled, v.Appointments[0].Status)
}

func TestDispatcher_LoginRejected(t *testing.T) {
	h := newHarness(t)
	v, err := h.d.Do(context.Background(), Login{Document: "1001", BirthDate: "1999-01-01"})

	require.Error(t, err)
	assert.True(t, citas.IsUnauthorized(err))
	assert.Equal(t, "Credenciales inválidas", v.Alert)
	assert.Nil(t, v.User)
}

func TestDispatcher_RequiresLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.d.Do(ctx, SelectSpecialty{Specialty: "Cardiología"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	v, err := h.d.Do(ctx, Book{})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, "log in first", v.Alert)
}

func TestDispatcher_SelectDoctorLoadsAvailability(t *testing.T) {
	h := newHarness(t)
	v := h.pickDate(t)

	require.NotNil(t, v.Doctor)
	assert.Equal(t, "Dr. Ruiz", v.Doctor.Name)
	assert.Equal(t, []string{"2024-06-10"}, v.EnabledDates)
	assert.Equal(t, []slots.Slot{{Hour: 9}, {Hour: 10, Occupied: true}, {Hour: 11}}, v.Slots)
}

func TestDispatcher_SelectDateOutsideCalendar(t *testing.T) {
	h := newHarness(t)
	h.pickDate(t)

	_, err := h.d.Do(context.Background(), SelectDate{Date: "2024-06-11"})
	assert.ErrorIs(t, err, ErrDateNotSelectable)
	_, err = h.d.Do(context.Background(), SelectDate{Date: "10/06/2024"})
	assert.True(t, forms.IsValidation(err))
}

func TestDispatcher_SelectSlot(t *testing.T) {
	h := newHarness(t)
	h.pickDate(t)
	ctx := context.Background()

	v, err := h.d.Do(ctx, SelectSlot{Hour: 9})
	require.NoError(t, err)
	sel, ok := v.Selected()
	require.True(t, ok)
	assert.Equal(t, 9, sel.Hour)

	v, err = h.d.Do(ctx, SelectSlot{Hour: 10})
	assert.ErrorIs(t, err, session.ErrSlotOccupied)
	assert.Equal(t, "10:00 is already taken", v.Alert)
	sel, _ = v.Selected()
	assert.Equal(t, 9, sel.Hour)

	_, err = h.d.Do(ctx, SelectSlot{Hour: 15})
	assert.ErrorIs(t, err, session.ErrSlotUnavailable)

	v, err = h.d.Do(ctx, SelectSlot{Hour: 11})
	require.NoError(t, err)
	assert.Equal(t, 11, *v.SelectedHour)
}

func TestDispatcher_BookRefreshesInOrder(t *testing.T) {
	h := newHarness(t)
	h.pickDate(t)
	ctx := context.Background()
	_, err := h.d.Do(ctx, SelectSlot{Hour: 9})
	require.NoError(t, err)
	before := len(h.srv.Requests())

	v, err := h.d.Do(ctx, Book{Reason: "control"})
	require.NoError(t, err)
	assert.Equal(t, "Appointment booked", v.Notice)
	assert.Nil(t, v.SelectedHour)
	assert.Equal(t, []slots.Slot{{Hour: 9, Occupied: true}, {Hour: 10, Occupied: true}, {Hour: 11}}, v.Slots)
	require.Len(t, v.Appointments, 1)
	assert.Equal(t, "09:00", v.Appointments[0].Hour)

	reqs := h.srv.Requests()[before:]
	require.Len(t, reqs, 4)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "1001", reqs[0].User)
	assert.Equal(t, "/api/citas", reqs[1].Path)
	assert.Contains(t, reqs[1].Query, "paciente_doc=1001")
	assert.Equal(t, "/api/disponibilidad", reqs[2].Path)
	assert.Equal(t, "/api/citas", reqs[3].Path)
	assert.Contains(t, reqs[3].Query, "doctor_id=")

	stored := h.srv.Appointments()
	require.Len(t, stored, 2)
	assert.Equal(t, "control", stored[1].Reason)
}

func TestDispatcher_BookWithoutSelection(t *testing.T) {
	h := newHarness(t)
	h.pickDate(t)

	v, err := h.d.Do(context.Background(), Book{})
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Equal(t, "select a date and hour", v.Alert)
	assert.Zero(t, h.srv.CountRequests(http.MethodPost, "/api/citas"))
}

func TestDispatcher_BookConflictShowsServerMessage(t *testing.T) {
	h := newHarness(t)
	h.pickDate(t)
	ctx := context.Background()
	_, err := h.d.Do(ctx, SelectSlot{Hour: 11})
	require.NoError(t, err)
	h.srv.AddAppointment(citas.Appointment{PatientDocument: "2002", DoctorID: h.doctor, Date: "2024-06-10", Hour: "11:00"})

	v, err := h.d.Do(ctx, Book{})
	require.Error(t, err)
	assert.Equal(t, "Esa hora ya está ocupada", v.Alert)
}

func TestDispatcher_FetchFailureResetsAvailability(t *testing.T) {
	h := newHarness(t)
	h.pickDate(t)
	ctx := context.Background()
	_, err := h.d.Do(ctx, SelectSlot{Hour: 9})
	require.NoError(t, err)

	h.srv.Fail(http.MethodGet, "/api/disponibilidad", http.StatusInternalServerError)
	v, err := h.d.Do(ctx, SelectDate{Date: "2024-06-10"})
	require.NoError(t, err)
	assert.Empty(t, v.Slots)
	assert.Nil(t, v.SelectedHour)
	assert.Empty(t, v.EnabledDates)
	assert.Empty(t, v.Alert)
}

func TestDispatcher_AppointmentsFailureAlsoResets(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()
	_, err := h.d.Do(ctx, SelectSpecialty{Specialty: "Cardiología"})
	require.NoError(t, err)

	h.srv.Fail(http.MethodGet, "/api/citas", http.StatusBadGateway)
	v, err := h.d.Do(ctx, SelectDoctor{DoctorID: h.doctor})
	require.NoError(t, err)
	assert.Empty(t, v.EnabledDates)
	assert.Equal(t, "No availability for this doctor", v.Notice)
}

func TestDispatcher_CancelRefreshes(t *testing.T) {
	h := newHarness(t)
	id := h.srv.AddAppointment(citas.Appointment{PatientDocument: "1001", DoctorID: h.doctor, Date: "2024-06-10", Hour: "11:00"})
	h.pickDate(t)
	ctx := context.Background()

	v, err := h.d.Do(ctx, Cancel{AppointmentID: id})
	require.NoError(t, err)
	assert.Equal(t, "Cita eliminada", v.Notice)
	assert.Empty(t, v.Appointments)
	slot, ok := slots.Find(v.Slots, 11)
	require.True(t, ok)
	assert.False(t, slot.Occupied)
}

func TestDispatcher_CancelForeignAppointment(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	foreign := h.srv.Appointments()[0].ID

	v, err := h.d.Do(context.Background(), Cancel{AppointmentID: foreign})
	assert.True(t, citas.IsNotFound(err))
	assert.Equal(t, "Cita no encontrada o no autorizado", v.Alert)
	assert.Len(t, h.srv.Appointments(), 1)
}

func TestDispatcher_SessionPersistedAndResumed(t *testing.T) {
	h := newHarness(t)
	v := h.pickDate(t)
	ctx := context.Background()

	stored, err := h.store.Load(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-10", stored.Date)

	other := startDispatcher(t, citas.NewClient(h.srv.URL, logging.Discard()), Config{Store: h.store})
	resumed, err := other.Resume(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, v.SessionID, resumed.SessionID)
	require.NotNil(t, resumed.User)
	assert.Equal(t, v.Slots, resumed.Slots)

	_, err = h.d.Do(ctx, Logout{})
	require.NoError(t, err)
	_, err = h.store.Load(ctx, v.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = other.Resume(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestDispatcher_ResumeRefetchesAvailability(t *testing.T) {
	h := newHarness(t)
	v := h.pickDate(t)
	ctx := context.Background()
	slot, ok := slots.Find(v.Slots, 9)
	require.True(t, ok)
	require.False(t, slot.Occupied)

	h.srv.AddAppointment(citas.Appointment{PatientDocument: "3003", DoctorID: h.doctor, Date: "2024-06-10", Hour: "09:00"})

	other := startDispatcher(t, citas.NewClient(h.srv.URL, logging.Discard()), Config{Store: h.store})
	resumed, err := other.Resume(ctx, v.SessionID)
	require.NoError(t, err)
	slot, ok = slots.Find(resumed.Slots, 9)
	require.True(t, ok)
	assert.True(t, slot.Occupied)

	_, err = other.Do(ctx, SelectSlot{Hour: 9})
	assert.ErrorIs(t, err, session.ErrSlotOccupied)
}

func TestDispatcher_ResumeResetsOnFetchFailure(t *testing.T) {
	h := newHarness(t)
	v := h.pickDate(t)
	ctx := context.Background()
	require.NotEmpty(t, v.Slots)

	h.srv.Fail(http.MethodGet, "/api/disponibilidad", http.StatusInternalServerError)
	other := startDispatcher(t, citas.NewClient(h.srv.URL, logging.Discard()), Config{Store: h.store})
	resumed, err := other.Resume(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Empty(t, resumed.Slots)
}

type recordingRenderer struct {
	views chan View
	errs  chan error
}

func (r *recordingRenderer) Render(v View, err error) {
	r.views <- v
	r.errs <- err
}

func TestDispatcher_SubmitRendersView(t *testing.T) {
	srv := citastest.New(t)
	srv.AddUser("1001", "Ana", "1990-05-04", "paciente")
	rr := &recordingRenderer{views: make(chan View, 1), errs: make(chan error, 1)}
	d := startDispatcher(t, citas.NewClient(srv.URL, logging.Discard()), Config{Renderer: rr})

	require.NoError(t, d.Submit(Login{Document: "1001", BirthDate: "1990-05-04"}))
	select {
	case v := <-rr.views:
		assert.NoError(t, <-rr.errs)
		require.NotNil(t, v.User)
		assert.Equal(t, "1001", v.User.Document)
	case <-time.After(5 * time.Second):
		t.Fatal("renderer not called")
	}
}

type stubAPI struct {
	login func(ctx context.Context, req citas.LoginRequest) (*citas.User, error)
}

func (s *stubAPI) Login(ctx context.Context, req citas.LoginRequest) (*citas.User, error) {
	return s.login(ctx, req)
}
func (s *stubAPI) ListSpecialties(context.Context) ([]string, error) { return nil, nil }
func (s *stubAPI) ListDoctors(context.Context, string) ([]citas.Doctor, error) {
	return nil, nil
}
func (s *stubAPI) ListAvailability(context.Context, citas.ID) ([]citas.AvailabilityWindow, error) {
	return nil, nil
}
func (s *stubAPI) ListAppointments(context.Context, citas.AppointmentFilter) ([]citas.Appointment, error) {
	return nil, nil
}
func (s *stubAPI) CreateAppointment(context.Context, citas.CreateAppointmentRequest) (*citas.CreatedAppointment, error) {
	return nil, errors.New("not implemented")
}
func (s *stubAPI) DeleteAppointment(context.Context, citas.ID, string) (string, error) {
	return "", errors.New("not implemented")
}

func TestDispatcher_InFlightGuard(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &stubAPI{login: func(ctx context.Context, req citas.LoginRequest) (*citas.User, error) {
		close(entered)
		<-release
		return &citas.User{Document: req.Document, Name: "Ana"}, nil
	}}
	d := startDispatcher(t, api, Config{})
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := d.Do(ctx, Login{Document: "1001", BirthDate: "1990-05-04"})
		first <- err
	}()
	<-entered

	_, err := d.Do(ctx, Login{Document: "1001", BirthDate: "1990-05-04"})
	assert.ErrorIs(t, err, ErrInFlight)
	assert.True(t, d.Snapshot().IsDisabled(ControlLogin))
	assert.False(t, d.Snapshot().IsDisabled(ControlBook))

	close(release)
	require.NoError(t, <-first)
	assert.False(t, d.Snapshot().IsDisabled(ControlLogin))

	v, err := d.Do(ctx, RefreshAppointments{})
	require.NoError(t, err)
	assert.Equal(t, "Ana", v.User.Name)
}

func TestDispatcher_PanicReleasesGuard(t *testing.T) {
	calls := 0
	api := &stubAPI{login: func(ctx context.Context, req citas.LoginRequest) (*citas.User, error) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return &citas.User{Document: req.Document}, nil
	}}
	d := startDispatcher(t, api, Config{})
	ctx := context.Background()

	_, err := d.Do(ctx, Login{Document: "1001", BirthDate: "1990-05-04"})
	require.Error(t, err)

	v, err := d.Do(ctx, Login{Document: "1001", BirthDate: "1990-05-04"})
	require.NoError(t, err)
	assert.NotNil(t, v.User)
}

func TestDispatcher_CommandTimeout(t *testing.T) {
	api := &stubAPI{login: func(ctx context.Context, req citas.LoginRequest) (*citas.User, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d := startDispatcher(t, api, Config{CommandTimeout: 20 * time.Millisecond})

	v, err := d.Do(context.Background(), Login{Document: "1001", BirthDate: "1990-05-04"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "login failed", v.Alert)
}

func TestDispatcher_StoppedLoopReleasesQueuedControls(t *testing.T) {
	d := NewDispatcher(&stubAPI{}, Config{Logger: logging.Discard(), Now: fixedNow})

	require.NoError(t, d.Submit(Logout{}))
	assert.True(t, d.Snapshot().IsDisabled(ControlLogout))

	close(d.done)
	d.drain()
	assert.Empty(t, d.Snapshot().Disabled)
	assert.ErrorIs(t, d.Submit(Logout{}), ErrStopped)
	assert.Empty(t, d.Snapshot().Disabled)
}

func TestDispatcher_SubmitAfterStop(t *testing.T) {
	d := NewDispatcher(&stubAPI{}, Config{Logger: logging.Discard(), Now: fixedNow})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = d.Run(ctx)
	}()
	cancel()
	<-stopped

	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, d.Submit(RefreshAppointments{}), ErrStopped)
	}
	_, err := d.Do(context.Background(), Logout{})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Empty(t, d.Snapshot().Disabled)
}
