package appointments

import (
	"context"

	"github.com/wolfman30/medbook-agent/internal/clinic"
)

// Store defines the persistence the scheduling core relies on.
type Store interface {
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsersByRole(ctx context.Context, role Role) ([]User, error)
	SearchUsersByName(ctx context.Context, role Role, fragment string) ([]User, error)

	// ListBookedOverlapping returns booked appointments of the doctor that
	// intersect window, ordered by start.
	ListBookedOverlapping(ctx context.Context, doctorID string, window clinic.Interval) ([]Appointment, error)
	// ListBooked returns booked appointments whose start falls in q.Window,
	// ordered by start, with PatientName populated.
	ListBooked(ctx context.Context, q Query) ([]Appointment, error)

	// CreateBooked re-checks for overlap and inserts in one atomic step.
	// It returns ErrSlotTaken when another booking got there first.
	CreateBooked(ctx context.Context, req NewAppointment) (*Appointment, error)
	UpdateStatus(ctx context.Context, id string, next Status) error
}
