// Package admin drives the administrator operations of the booking API:
// sites, doctors and availability windows.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/internal/forms"
	"github.com/wolfman30/citas/pkg/logging"
)

var (
	// ErrNotLoggedIn is returned for operations before a successful Login.
	ErrNotLoggedIn = errors.New("admin: log in first")
	// ErrNotAdmin is returned when the credentials belong to a non-admin.
	ErrNotAdmin = errors.New("admin: user is not an administrator")
	// ErrWindowOverlap is returned when a new window overlaps an existing one.
	ErrWindowOverlap = errors.New("admin: window overlaps existing availability")
)

// API is the subset of the booking API the panel calls.
type API interface {
	Login(ctx context.Context, req citas.LoginRequest) (*citas.User, error)
	ListSites(ctx context.Context) ([]citas.Site, error)
	ListDoctors(ctx context.Context, specialty string) ([]citas.Doctor, error)
	ListAvailability(ctx context.Context, doctorID citas.ID) ([]citas.AvailabilityWindow, error)
	CreateSite(ctx context.Context, admin string, req citas.CreateSiteRequest) (*citas.Site, error)
	CreateDoctor(ctx context.Context, admin string, req citas.CreateDoctorRequest) (*citas.Doctor, error)
	CreateAvailability(ctx context.Context, admin string, req citas.CreateAvailabilityRequest) (citas.ID, error)
}

// LoginForm holds admin credentials.
type LoginForm struct {
	Document  string `validate:"required"`
	BirthDate string `validate:"required,birthdate"`
}

// SiteForm creates a site.
type SiteForm struct {
	Name    string `validate:"required"`
	Address string `validate:"required"`
}

// DoctorForm creates a doctor.
type DoctorForm struct {
	Name      string `validate:"required"`
	Specialty string `validate:"required"`
	SiteID    string `validate:"required,numeric"`
}

// AvailabilityForm opens a booking window; End must be after Start.
type AvailabilityForm struct {
	DoctorID string `validate:"required,numeric"`
	Date     string `validate:"required,datetime=2006-01-02"`
	Start    string `validate:"required,clock"`
	End      string `validate:"required,clock"`
}

var labels = map[string]string{
	"BirthDate": "birth date",
	"SiteID":    "site id",
	"DoctorID":  "doctor id",
}

// Panel is an authenticated admin session.
type Panel struct {
	api    API
	logger *logging.Logger

	mu    sync.RWMutex
	admin *citas.User
}

// NewPanel returns a panel that is not yet logged in.
func NewPanel(api API, logger *logging.Logger) *Panel {
	if logger == nil {
		logger = logging.Default()
	}
	return &Panel{api: api, logger: logger}
}

// Login authenticates and keeps the admin document for later calls.
func (p *Panel) Login(ctx context.Context, form LoginForm) (*citas.User, error) {
	form.Document = strings.TrimSpace(form.Document)
	form.BirthDate = strings.TrimSpace(form.BirthDate)
	if err := forms.Check(form, labels); err != nil {
		return nil, err
	}
	birth, _ := forms.NormalizeBirthDate(form.BirthDate)

	user, err := p.api.Login(ctx, citas.LoginRequest{Document: form.Document, BirthDate: birth})
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		p.logger.Warn("admin login rejected", "document", user.Document, "role", user.Role)
		return nil, ErrNotAdmin
	}

	p.mu.Lock()
	p.admin = user
	p.mu.Unlock()
	p.logger.Info("admin logged in", "document", user.Document)
	return user, nil
}

// Admin returns the logged-in admin, or nil.
func (p *Panel) Admin() *citas.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.admin == nil {
		return nil
	}
	u := *p.admin
	return &u
}

func (p *Panel) document() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.admin == nil {
		return "", ErrNotLoggedIn
	}
	return p.admin.Document, nil
}

// CreateSite registers a site.
func (p *Panel) CreateSite(ctx context.Context, form SiteForm) (*citas.Site, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}
	form.Name, form.Address = strings.TrimSpace(form.Name), strings.TrimSpace(form.Address)
	if err := forms.Check(form, labels); err != nil {
		return nil, err
	}
	site, err := p.api.CreateSite(ctx, doc, citas.CreateSiteRequest{Name: form.Name, Address: form.Address})
	if err != nil {
		return nil, err
	}
	p.logger.Info("site created", "site_id", site.ID, "name", site.Name)
	return site, nil
}

// CreateDoctor registers a doctor at a site.
func (p *Panel) CreateDoctor(ctx context.Context, form DoctorForm) (*citas.Doctor, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}
	form.Name = strings.TrimSpace(form.Name)
	form.Specialty = strings.TrimSpace(form.Specialty)
	form.SiteID = strings.TrimSpace(form.SiteID)
	if err := forms.Check(form, labels); err != nil {
		return nil, err
	}
	doctor, err := p.api.CreateDoctor(ctx, doc, citas.CreateDoctorRequest{
		Name:      form.Name,
		Specialty: form.Specialty,
		SiteID:    citas.ID(form.SiteID),
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("doctor created", "doctor_id", doctor.ID, "specialty", doctor.Specialty)
	return doctor, nil
}

// CreateAvailability opens a window after checking that it does not
// overlap one the doctor already has on that date.
func (p *Panel) CreateAvailability(ctx context.Context, form AvailabilityForm) (citas.ID, error) {
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	form.DoctorID = strings.TrimSpace(form.DoctorID)
	form.Date = strings.TrimSpace(form.Date)
	form.Start = strings.TrimSpace(form.Start)
	form.End = strings.TrimSpace(form.End)
	if err := forms.Check(form, labels); err != nil {
		return "", err
	}
	start, _ := forms.ClockMinutes(form.Start)
	end, _ := forms.ClockMinutes(form.End)
	if end <= start {
		return "", forms.Invalid("End", "end time must be after start time")
	}
	// Slots are whole hours, so the end hour must pass the start hour.
	if end/60 <= start/60 {
		return "", forms.Invalid("End", "window must reach the next hour")
	}

	doctorID := citas.ID(form.DoctorID)
	existing, err := p.api.ListAvailability(ctx, doctorID)
	if err != nil {
		return "", fmt.Errorf("admin: check existing availability: %w", err)
	}
	for _, w := range existing {
		if w.Date != form.Date {
			continue
		}
		ws, okS := forms.ClockMinutes(w.StartTime)
		we, okE := forms.ClockMinutes(w.EndTime)
		if okS && okE && start < we && ws < end {
			return "", fmt.Errorf("%w: %s %s-%s", ErrWindowOverlap, w.Date, w.StartTime, w.EndTime)
		}
	}

	id, err := p.api.CreateAvailability(ctx, doc, citas.CreateAvailabilityRequest{
		DoctorID:  doctorID,
		Date:      form.Date,
		StartTime: form.Start,
		EndTime:   form.End,
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("availability created", "window_id", id, "doctor_id", doctorID, "date", form.Date)
	return id, nil
}

// ListSites returns every site.
func (p *Panel) ListSites(ctx context.Context) ([]citas.Site, error) {
	if _, err := p.document(); err != nil {
		return nil, err
	}
	return p.api.ListSites(ctx)
}

// ListDoctors returns doctors, optionally for one specialty.
func (p *Panel) ListDoctors(ctx context.Context, specialty string) ([]citas.Doctor, error) {
	if _, err := p.document(); err != nil {
		return nil, err
	}
	return p.api.ListDoctors(ctx, specialty)
}
