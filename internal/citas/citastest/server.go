// Package citastest provides an in-memory fake of the booking API for tests.
// It reproduces the server's observable rules: login by document and birth
// date, admin checks via X-User, bookings only inside a window and never on
// an hour already taken, deletes limited to the owner unless admin.
package citastest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/citas/internal/citas"
	"github.com/wolfman30/citas/internal/forms"
)

// RecordedRequest is one request the fake received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	User   string
}

type user struct {
	document  string
	name      string
	birthDate string
	role      string
}

// Server is a running fake API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int64
	users    map[string]user
	sites    []citas.Site
	doctors  []citas.Doctor
	windows  []citas.AvailabilityWindow
	appts    []citas.Appointment
	failures map[string]int
	requests []RecordedRequest
}

// New starts a fake API that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		users:    make(map[string]user),
		failures: make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "memory"})
	})
	r.Post("/api/login", s.login)
	r.Get("/api/sedes", s.listSites)
	r.Get("/api/doctores", s.listDoctors)
	r.Get("/api/disponibilidad", s.listWindows)
	r.Get("/api/citas", s.listAppointments)
	r.Post("/api/citas", s.createAppointment)
	r.Delete("/api/citas/{id}", s.deleteAppointment)
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/sedes", s.createSite)
		r.Post("/doctores", s.createDoctor)
		r.Post("/disponibilidad", s.createWindow)
	})
	return r
}

// AddUser registers a user. birthDate is YYYY-MM-DD.
func (s *Server) AddUser(document, name, birthDate, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[document] = user{document: document, name: name, birthDate: birthDate, role: role}
}

// AddSite seeds a site and returns its id.
func (s *Server) AddSite(name, address string) citas.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.sites = append(s.sites, citas.Site{ID: id, Name: name, Address: address})
	return id
}

// AddDoctor seeds a doctor and returns its id.
func (s *Server) AddDoctor(name, specialty string, siteID citas.ID) citas.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.doctors = append(s.doctors, citas.Doctor{ID: id, Name: name, Specialty: specialty, SiteID: siteID})
	return id
}

// AddWindow seeds an availability window and returns its id.
func (s *Server) AddWindow(doctorID citas.ID, date, start, end string) citas.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.windows = append(s.windows, citas.AvailabilityWindow{ID: id, DoctorID: doctorID, Date: date, StartTime: start, EndTime: end})
	return id
}

// AddAppointment seeds an appointment and returns its id.
func (s *Server) AddAppointment(a citas.Appointment) citas.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.newID()
	s.appts = append(s.appts, a)
	return a.ID
}

// Appointments returns a copy of the stored appointments.
func (s *Server) Appointments() []citas.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]citas.Appointment(nil), s.appts...)
}

// Windows returns a copy of the stored availability windows.
func (s *Server) Windows() []citas.AvailabilityWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]citas.AvailabilityWindow(nil), s.windows...)
}

// Fail makes every request to method+path answer with status until Recover.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// Recover removes a failure set with Fail.
func (s *Server) Recover(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, method+" "+path)
}

// Requests returns the requests received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// CountRequests counts received requests for method+path.
func (s *Server) CountRequests(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) newID() citas.ID {
	s.nextID++
	return citas.ID(strconv.FormatInt(s.nextID, 10))
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			User:   r.Header.Get(citas.HeaderUser),
		})
		status, fail := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()
		if fail {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAdmin(r.Header.Get(citas.HeaderUser)) {
			writeError(w, http.StatusUnauthorized, "No autorizado")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isAdmin(document string) bool {
	if document == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[document]
	return ok && u.role == citas.RoleAdmin
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req citas.LoginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	document := strings.TrimSpace(req.Document)
	birth := strings.TrimSpace(req.BirthDate)
	if document == "" || birth == "" {
		writeError(w, http.StatusBadRequest, "Documento y fecha requeridos")
		return
	}
	normalized, ok := forms.NormalizeBirthDate(birth)
	if !ok {
		writeError(w, http.StatusBadRequest, "Formato de fecha inválido")
		return
	}

	s.mu.Lock()
	u, found := s.users[document]
	s.mu.Unlock()
	if !found || u.birthDate != normalized {
		writeError(w, http.StatusUnauthorized, "Credenciales inválidas")
		return
	}
	writeJSON(w, http.StatusOK, citas.User{Document: u.document, Name: u.name, Role: u.role})
}

func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]citas.Site{}, s.sites...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listDoctors(w http.ResponseWriter, r *http.Request) {
	specialty := r.URL.Query().Get("especialidad")
	s.mu.Lock()
	out := make([]citas.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		if specialty == "" || d.Specialty == specialty {
			out = append(out, d)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listWindows(w http.ResponseWriter, r *http.Request) {
	doctorID := citas.ID(r.URL.Query().Get("doctor_id"))
	s.mu.Lock()
	out := make([]citas.AvailabilityWindow, 0, len(s.windows))
	for _, win := range s.windows {
		if doctorID.IsZero() || win.DoctorID == doctorID {
			out = append(out, win)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doctorID := citas.ID(q.Get("doctor_id"))
	patient := q.Get("paciente_doc")
	if patient == "" {
		patient = r.Header.Get(citas.HeaderUser)
	}

	s.mu.Lock()
	out := make([]citas.Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		switch {
		case !doctorID.IsZero():
			if a.DoctorID != doctorID {
				continue
			}
		case patient != "":
			if a.PatientDocument != patient {
				continue
			}
		}
		out = append(out, a)
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Hour < out[j].Hour
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req citas.CreateAppointmentRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.PatientDocument == "" {
		req.PatientDocument = r.Header.Get(citas.HeaderUser)
	}
	if req.PatientDocument == "" || req.DoctorID.IsZero() || req.Date == "" || req.Hour == "" {
		writeError(w, http.StatusBadRequest, "paciente_doc, doctor_id, fecha y hora requeridos")
		return
	}
	hour, ok := clockMinutes(req.Hour)
	if !ok {
		writeError(w, http.StatusBadRequest, "hora inválida")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.users[req.PatientDocument]; !found {
		writeError(w, http.StatusBadRequest, "Paciente no registrado")
		return
	}

	covered := false
	for _, win := range s.windows {
		if win.DoctorID != req.DoctorID || win.Date != req.Date {
			continue
		}
		start, okStart := clockMinutes(win.StartTime)
		end, okEnd := clockMinutes(win.EndTime)
		if okStart && okEnd && start <= hour && hour < end {
			covered = true
			break
		}
	}
	if !covered {
		writeError(w, http.StatusBadRequest, "No hay disponibilidad para ese doctor en la fecha/hora indicada")
		return
	}
	for _, a := range s.appts {
		if a.DoctorID == req.DoctorID && a.Date == req.Date && a.Hour == req.Hour {
			writeError(w, http.StatusBadRequest, "Esa hora ya está ocupada")
			return
		}
	}

	id := s.newID()
	s.appts = append(s.appts, citas.Appointment{
		ID:              id,
		PatientDocument: req.PatientDocument,
		DoctorID:        req.DoctorID,
		Date:            req.Date,
		Hour:            req.Hour,
		Reason:          req.Reason,
	})
	writeJSON(w, http.StatusOK, citas.CreatedAppointment{ID: id, Message: "Cita creada"})
}

func (s *Server) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id := citas.ID(chi.URLParam(r, "id"))
	actor := r.Header.Get(citas.HeaderUser)
	admin := s.isAdmin(actor)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.appts {
		if a.ID != id {
			continue
		}
		if !admin && a.PatientDocument != actor {
			break
		}
		s.appts = append(s.appts[:i], s.appts[i+1:]...)
		writeJSON(w, http.StatusOK, map[string]string{"mensaje": "Cita eliminada"})
		return
	}
	writeError(w, http.StatusNotFound, "Cita no encontrada o no autorizado")
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req citas.CreateSiteRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "nombre requerido")
		return
	}
	writeJSON(w, http.StatusOK, citas.Site{ID: s.AddSite(req.Name, req.Address), Name: req.Name, Address: req.Address})
}

func (s *Server) createDoctor(w http.ResponseWriter, r *http.Request) {
	var req citas.CreateDoctorRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Name == "" || req.Specialty == "" {
		writeError(w, http.StatusBadRequest, "nombre y especialidad requeridos")
		return
	}
	id := s.AddDoctor(req.Name, req.Specialty, req.SiteID)
	writeJSON(w, http.StatusOK, citas.Doctor{ID: id, Name: req.Name, Specialty: req.Specialty, SiteID: req.SiteID})
}

func (s *Server) createWindow(w http.ResponseWriter, r *http.Request) {
	var req citas.CreateAvailabilityRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.DoctorID.IsZero() || req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		writeError(w, http.StatusBadRequest, "doctor_id, fecha, hora_inicio y hora_fin requeridos")
		return
	}
	if _, err := time.Parse(time.DateOnly, req.Date); err != nil {
		writeError(w, http.StatusBadRequest, "fecha debe ser YYYY-MM-DD")
		return
	}

	s.mu.Lock()
	found := false
	for _, d := range s.doctors {
		if d.ID == req.DoctorID {
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "Doctor no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]citas.ID{"id": s.AddWindow(req.DoctorID, req.Date, req.StartTime, req.EndTime)})
}

func clockMinutes(v string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, false
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil {
		return 0, false
	}
	return h*60 + m, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
