package appointments

import "errors"

var (
	// ErrNotFound is returned when a user or appointment does not exist
	ErrNotFound = errors.New("appointments: not found")

	// ErrSlotTaken is returned when the doctor already has a booked appointment overlapping the interval
	ErrSlotTaken = errors.New("appointments: slot already booked")

	// ErrInvalidInterval is returned when start is not before end
	ErrInvalidInterval = errors.New("appointments: start must be before end")

	// ErrMissingParticipant is returned when doctor or patient id is blank
	ErrMissingParticipant = errors.New("appointments: doctor and patient are required")

	// ErrInvalidID is returned when an id is not in the store's id format
	ErrInvalidID = errors.New("appointments: malformed id")

	// ErrInvalidTransition is returned for a status change the lifecycle forbids
	ErrInvalidTransition = errors.New("appointments: invalid status transition")
)
