package citas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/citas/internal/observability/metrics"
	"github.com/wolfman30/citas/pkg/logging"
)

const (
	defaultBaseURL = "http://127.0.0.1:5000"
	defaultTimeout = 10 * time.Second

	// HeaderUser carries the acting document for authorization.
	HeaderUser = "X-User"
)

// Client wraps the REST calls made by the patient and admin front ends.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
	metrics    *metrics.ClientMetrics
	tracer     trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a booking API client.
func NewClient(baseURL string, logger *logging.Logger, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
		tracer:     otel.Tracer("citas.internal.citas"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks API liveness.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.doJSON(ctx, "health", http.MethodGet, "/api/health", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates a patient or admin.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*User, error) {
	var out User
	if err := c.doJSON(ctx, "login", http.MethodPost, "/api/login", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSites returns every site.
func (c *Client) ListSites(ctx context.Context) ([]Site, error) {
	var out []Site
	if err := c.doJSON(ctx, "list_sites", http.MethodGet, "/api/sedes", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDoctors returns doctors, optionally narrowed to one specialty.
func (c *Client) ListDoctors(ctx context.Context, specialty string) ([]Doctor, error) {
	path := "/api/doctores"
	if s := strings.TrimSpace(specialty); s != "" {
		path += "?" + url.Values{"especialidad": {s}}.Encode()
	}
	var out []Doctor
	if err := c.doJSON(ctx, "list_doctors", http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSpecialties returns the distinct specialties of all doctors in the
// order the API lists them.
func (c *Client) ListSpecialties(ctx context.Context) ([]string, error) {
	doctors, err := c.ListDoctors(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(doctors))
	out := make([]string, 0, len(doctors))
	for _, d := range doctors {
		if d.Specialty == "" {
			continue
		}
		if _, ok := seen[d.Specialty]; ok {
			continue
		}
		seen[d.Specialty] = struct{}{}
		out = append(out, d.Specialty)
	}
	return out, nil
}

// ListAvailability returns the availability windows of one doctor.
func (c *Client) ListAvailability(ctx context.Context, doctorID ID) ([]AvailabilityWindow, error) {
	path := "/api/disponibilidad?" + url.Values{"doctor_id": {doctorID.String()}}.Encode()
	var out []AvailabilityWindow
	if err := c.doJSON(ctx, "list_availability", http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAppointments returns appointments matching filter. When a doctor is
// given the result is also narrowed locally, so servers ignoring the
// doctor_id parameter still yield only that doctor's appointments.
func (c *Client) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error) {
	q := url.Values{}
	if !filter.DoctorID.IsZero() {
		q.Set("doctor_id", filter.DoctorID.String())
	}
	if s := strings.TrimSpace(filter.PatientDocument); s != "" {
		q.Set("paciente_doc", s)
	}
	path := "/api/citas"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []Appointment
	if err := c.doJSON(ctx, "list_appointments", http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	if filter.DoctorID.IsZero() {
		return out, nil
	}
	narrowed := out[:0]
	for _, a := range out {
		if a.DoctorID == filter.DoctorID {
			narrowed = append(narrowed, a)
		}
	}
	return narrowed, nil
}

// CreateAppointment books one hour for a patient.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*CreatedAppointment, error) {
	var out CreatedAppointment
	if err := c.doJSON(ctx, "create_appointment", http.MethodPost, "/api/citas", req.PatientDocument, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAppointment cancels an appointment on behalf of user.
func (c *Client) DeleteAppointment(ctx context.Context, id ID, user string) (string, error) {
	path := "/api/citas/" + url.PathEscape(id.String())
	var out messageBody
	if err := c.doJSON(ctx, "delete_appointment", http.MethodDelete, path, user, nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// CreateSite registers a site. admin is the acting admin document.
func (c *Client) CreateSite(ctx context.Context, admin string, req CreateSiteRequest) (*Site, error) {
	var out Site
	if err := c.doJSON(ctx, "create_site", http.MethodPost, "/api/admin/sedes", admin, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDoctor registers a doctor.
func (c *Client) CreateDoctor(ctx context.Context, admin string, req CreateDoctorRequest) (*Doctor, error) {
	var out Doctor
	if err := c.doJSON(ctx, "create_doctor", http.MethodPost, "/api/admin/doctores", admin, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAvailability opens a booking window and returns its id.
func (c *Client) CreateAvailability(ctx context.Context, admin string, req CreateAvailabilityRequest) (ID, error) {
	var out createdID
	if err := c.doJSON(ctx, "create_availability", http.MethodPost, "/api/admin/disponibilidad", admin, req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path, user string, body interface{}, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "citas."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("citas.path", path),
	)

	start := time.Now()
	status := 0
	defer func() {
		c.metrics.ObserveRequest(op, status, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var bodyReader io.Reader
	if body != nil {
		payload, mErr := json.Marshal(body)
		if mErr != nil {
			return fmt.Errorf("citas: %s: marshal request: %w", op, mErr)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("citas: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(HeaderUser, user)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("citas API request failed", "operation", op, "path", path, "error", err)
		return fmt.Errorf("citas: %s: http request: %w", op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("citas: %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Operation: op, StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
		c.logger.Warn("citas API non-2xx response", "operation", op, "status", resp.StatusCode, "path", path, "message", apiErr.Message)
		return apiErr
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("citas: %s: decode response: %w", op, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
