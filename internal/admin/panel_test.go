package admin

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/internal/citas/citastest"
	"github.com/wolfman30/citas/internal/forms"
	"github.com/wolfman30/citas/pkg/logging"
)

func newPanel(t *testing.T) (*citastest.Server, *Panel) {
	t.Helper()
	srv := citastest.New(t)
	srv.AddUser("9000", "Root", "1980-01-01", citas.RoleAdmin)
	srv.AddUser("1001", "Ana", "1990-05-04", "paciente")
	return srv, NewPanel(citas.NewClient(srv.URL, logging.Discard()), logging.Discard())
}

func loggedIn(t *testing.T) (*citastest.Server, *Panel) {
	t.Helper()
	srv, p := newPanel(t)
	_, err := p.Login(context.Background(), LoginForm{Document: "9000", BirthDate: "01/01/1980"})
	require.NoError(t, err)
	return srv, p
}

func TestPanel_RequiresLogin(t *testing.T) {
	_, p := newPanel(t)
	ctx := context.Background()

	_, err := p.ListSites(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = p.CreateSite(ctx, SiteForm{Name: "Norte", Address: "Calle 1"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = p.CreateAvailability(ctx, AvailabilityForm{})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Nil(t, p.Admin())
}

func TestPanel_LoginRejectsPatients(t *testing.T) {
	_, p := newPanel(t)

	_, err := p.Login(context.Background(), LoginForm{Document: "1001", BirthDate: "1990-05-04"})
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.Nil(t, p.Admin())

	_, err = p.Login(context.Background(), LoginForm{Document: "9000"})
	assert.True(t, forms.IsValidation(err))
}

func TestPanel_CreateSiteAndDoctor(t *testing.T) {
	srv, p := loggedIn(t)
	ctx := context.Background()

	_, err := p.CreateSite(ctx, SiteForm{Name: "Norte"})
	assert.True(t, forms.IsValidation(err))

	site, err := p.CreateSite(ctx, SiteForm{Name: " Norte ", Address: "Calle 1"})
	require.NoError(t, err)
	assert.Equal(t, "Norte", site.Name)

	_, err = p.CreateDoctor(ctx, DoctorForm{Name: "Dr. Paz", Specialty: "Pediatría", SiteID: "abc"})
	assert.True(t, forms.IsValidation(err))

	doctor, err := p.CreateDoctor(ctx, DoctorForm{Name: "Dr. Paz", Specialty: "Pediatría", SiteID: site.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, site.ID, doctor.SiteID)

	doctors, err := p.ListDoctors(ctx, "Pediatría")
	require.NoError(t, err)
	assert.Len(t, doctors, 1)

	reqs := srv.Requests()
	for _, r := range reqs {
		if r.Method == http.MethodPost && r.Path != "/api/login" {
			assert.Equal(t, "9000", r.User)
		}
	}
}

func TestPanel_CreateAvailability(t *testing.T) {
	srv, p := loggedIn(t)
	ctx := context.Background()
	doctor := srv.AddDoctor("Dr. Ruiz", "Cardiología", "")
	srv.AddWindow(doctor, "2024-06-10", "09:00", "12:00")

	_, err := p.CreateAvailability(ctx, AvailabilityForm{DoctorID: doctor.String(), Date: "2024-06-10", Start: "14:00", End: "14:00"})
	assert.True(t, forms.IsValidation(err))
	assert.EqualError(t, err, "end time must be after start time")

	_, err = p.CreateAvailability(ctx, AvailabilityForm{DoctorID: doctor.String(), Date: "2024-06-10", Start: "15:00", End: "15:30"})
	assert.True(t, forms.IsValidation(err))
	assert.EqualError(t, err, "window must reach the next hour")

	_, err = p.CreateAvailability(ctx, AvailabilityForm{DoctorID: doctor.String(), Date: "2024-06-10", Start: "9", End: "10:00"})
	assert.True(t, forms.IsValidation(err))

	_, err = p.CreateAvailability(ctx, AvailabilityForm{DoctorID: doctor.String(), Date: "2024-06-10", Start: "11:00", End: "13:00"})
	assert.ErrorIs(t, err, ErrWindowOverlap)

	id, err := p.CreateAvailability(ctx, AvailabilityForm{DoctorID: doctor.String(), Date: "2024-06-10", Start: "12:00", End: "14:00"})
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	assert.Len(t, srv.Windows(), 2)

	id, err = p.CreateAvailability(ctx, AvailabilityForm{DoctorID: doctor.String(), Date: "2024-06-11", Start: "15:30", End: "16:00"})
	require.NoError(t, err)
	assert.False(t, id.IsZero())
}

func TestPanel_CreateAvailabilityUnknownDoctor(t *testing.T) {
	_, p := loggedIn(t)

	_, err := p.CreateAvailability(context.Background(), AvailabilityForm{DoctorID: "999", Date: "2024-06-10", Start: "08:00", End: "09:00"})
	require.Error(t, err)
	assert.True(t, citas.IsNotFound(err))
	assert.Equal(t, "Doctor no encontrado", citas.UserMessage(err, ""))
}

func TestPanel_APIErrorsPassThrough(t *testing.T) {
	srv, p := loggedIn(t)
	srv.Fail(http.MethodGet, "/api/sedes", http.StatusInternalServerError)

	_, err := p.ListSites(context.Background())
	var apiErr *citas.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}
