// Package appointments holds the scheduling domain model and the stores that
// persist it. Stores own the no-double-booking guarantee: CreateBooked checks
// and inserts atomically, so two racing bookings for the same doctor can never
// both commit an overlapping interval.
package appointments

import (
	"strings"
	"time"

	"github.com/wolfman30/medbook-agent/internal/clinic"
)

// Role distinguishes the two kinds of account.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// User is read-only to the scheduling core.
type User struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is the appointment lifecycle state.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// CanTransitionTo reports whether moving from s to next is allowed.
// Only booked appointments move, and only to a terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusBooked && (next == StatusCancelled || next == StatusCompleted)
}

// DefaultSymptoms is stored when the patient gives none.
const DefaultSymptoms = "No symptoms provided"

// Appointment is one booked (or formerly booked) slot.
type Appointment struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctor_id"`
	PatientID string    `json:"patient_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Status    Status    `json:"status"`
	Symptoms  string    `json:"symptoms"`
	CreatedAt time.Time `json:"created_at"`

	// PatientName is filled by report queries that join users.
	PatientName string `json:"patient_name,omitempty"`
}

// Interval returns the appointment's half-open time range.
func (a Appointment) Interval() clinic.Interval {
	return clinic.Interval{Start: a.StartAt, End: a.EndAt}
}

// NewAppointment is the input to Store.CreateBooked.
type NewAppointment struct {
	DoctorID  string
	PatientID string
	StartAt   time.Time
	EndAt     time.Time
	Symptoms  string
}

// Validate checks the request and applies the symptom default.
func (n *NewAppointment) Validate() error {
	if strings.TrimSpace(n.DoctorID) == "" || strings.TrimSpace(n.PatientID) == "" {
		return ErrMissingParticipant
	}
	if !n.StartAt.Before(n.EndAt) {
		return ErrInvalidInterval
	}
	n.Symptoms = strings.TrimSpace(n.Symptoms)
	if n.Symptoms == "" {
		n.Symptoms = DefaultSymptoms
	}
	return nil
}

// Query narrows appointment listings. Window is half-open and matches on
// start time; Keyword, when set, is a case-insensitive symptom substring.
type Query struct {
	DoctorID string
	Window   clinic.Interval
	Keyword  string
}
