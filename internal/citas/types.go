// Package citas contains the REST client for the medical appointment API
// and the wire types it exchanges.
package citas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	RoleAdmin = "admin"

	StatusScheduled = "scheduled"
)

// ID is an opaque identifier assigned by the API. The server emits numeric
// ids but echoes back whatever form the client sent, so both JSON numbers
// and strings are accepted.
type ID string

// UnmarshalJSON accepts a JSON number, a JSON string or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("citas: decode id: %w", err)
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("citas: decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes integer ids as numbers so the server stores them with
// the same type it assigned.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// User is the authenticated patient or administrator.
type User struct {
	Document string `json:"documento"`
	Name     string `json:"nombre,omitempty"`
	Role     string `json:"rol"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Site is a clinic location (sede).
type Site struct {
	ID      ID     `json:"id"`
	Name    string `json:"nombre"`
	Address string `json:"direccion,omitempty"`
}

// Doctor is a bookable practitioner.
type Doctor struct {
	ID        ID     `json:"id"`
	Name      string `json:"nombre"`
	Specialty string `json:"especialidad"`
	SiteID    ID     `json:"sede_id,omitempty"`
}

// AvailabilityWindow is a doctor's open booking window on one date.
// StartTime and EndTime are wire strings in HH:MM form.
type AvailabilityWindow struct {
	ID        ID     `json:"id,omitempty"`
	DoctorID  ID     `json:"doctor_id"`
	Date      string `json:"fecha"`
	StartTime string `json:"hora_inicio"`
	EndTime   string `json:"hora_fin"`
}

// Appointment is one booked hour for a doctor and a patient.
type Appointment struct {
	ID              ID     `json:"id"`
	PatientDocument string `json:"paciente_doc"`
	DoctorID        ID     `json:"doctor_id"`
	Date            string `json:"fecha"`
	Hour            string `json:"hora"`
	Reason          string `json:"motivo,omitempty"`
	Status          string `json:"estado,omitempty"`
}

// EffectiveStatus returns the status, defaulting to scheduled when absent.
func (a Appointment) EffectiveStatus() string {
	if s := strings.TrimSpace(a.Status); s != "" {
		return s
	}
	return StatusScheduled
}

// IsCancelled reports whether the appointment no longer holds its hour.
func (a Appointment) IsCancelled() bool {
	switch strings.ToLower(strings.TrimSpace(a.Status)) {
	case "cancelled", "canceled", "cancelada":
		return true
	}
	return false
}

// Health is the API liveness payload.
type Health struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
}

// LoginRequest authenticates by document and birth date.
type LoginRequest struct {
	Document  string `json:"documento"`
	BirthDate string `json:"fecha_nacimiento"`
}

// AppointmentFilter narrows GET /api/citas. Zero value lists everything.
type AppointmentFilter struct {
	PatientDocument string
	DoctorID        ID
}

// CreateAppointmentRequest books one hour.
type CreateAppointmentRequest struct {
	PatientDocument string `json:"paciente_doc"`
	DoctorID        ID     `json:"doctor_id"`
	Date            string `json:"fecha"`
	Hour            string `json:"hora"`
	Reason          string `json:"motivo"`
}

// CreatedAppointment is returned by a successful booking.
type CreatedAppointment struct {
	ID      ID     `json:"id"`
	Message string `json:"mensaje,omitempty"`
}

// CreateSiteRequest is the admin payload for a new site.
type CreateSiteRequest struct {
	Name    string `json:"nombre"`
	Address string `json:"direccion"`
}

// CreateDoctorRequest is the admin payload for a new doctor.
type CreateDoctorRequest struct {
	Name      string `json:"nombre"`
	Specialty string `json:"especialidad"`
	SiteID    ID     `json:"sede_id"`
}

// CreateAvailabilityRequest is the admin payload for a new window.
type CreateAvailabilityRequest struct {
	DoctorID  ID     `json:"doctor_id"`
	Date      string `json:"fecha"`
	StartTime string `json:"hora_inicio"`
	EndTime   string `json:"hora_fin"`
}

type createdID struct {
	ID ID `json:"id"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"mensaje"`
}

type messageBody struct {
	Message string `json:"mensaje"`
}
