// Package availability computes a doctor's free slots for a day.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/clinic"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

// Status is the tagged outcome of a free-slot lookup.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusFullyBooked     Status = "fully_booked"
	StatusOutOfRange      Status = "out_of_range"
	StatusValidationError Status = "validation_error"
	StatusSystemError     Status = "system_error"
)

// Slot is a bookable interval. ISOStart is the exact value callers must
// echo back when booking.
type Slot struct {
	Start    time.Time `json:"-"`
	End      time.Time `json:"-"`
	ISOStart string    `json:"iso_start"`
	Time     string    `json:"time"`
	Display  string    `json:"display"`
}

// Result is returned for every lookup; Status says which fields matter.
type Result struct {
	Status  Status `json:"status"`
	Date    string `json:"date,omitempty"`
	Summary string `json:"summary,omitempty"`
	Message string `json:"message,omitempty"`
	Slots   []Slot `json:"slots"`
}

// Engine answers "when is this doctor free".
type Engine struct {
	store  appointments.Store
	hours  clinic.Hours
	logger *logging.Logger
}

func NewEngine(store appointments.Store, hours clinic.Hours, logger *logging.Logger) *Engine {
	if store == nil {
		panic("availability: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{store: store, hours: hours, logger: logger}
}

// FreeSlots lists the doctor's free slots on date (YYYY-MM-DD, clinic-local).
// Slots on today that have already started are not offered.
func (e *Engine) FreeSlots(ctx context.Context, doctorID, date string) Result {
	day, err := e.hours.ParseDate(date)
	if err != nil {
		return Result{Status: StatusValidationError, Message: "Invalid date format. Please use YYYY-MM-DD.", Slots: []Slot{}}
	}
	dateLabel := day.Format("2006-01-02")

	now := e.hours.CurrentTime()
	today := clinic.StartOfDay(now)
	if day.Before(today) {
		return Result{
			Status:  StatusOutOfRange,
			Date:    dateLabel,
			Message: fmt.Sprintf("%s is in the past. Please choose today or a future date.", dateLabel),
			Slots:   []Slot{},
		}
	}

	window := e.hours.WorkingWindow(day)
	booked, err := e.store.ListBookedOverlapping(ctx, doctorID, window)
	if errors.Is(err, appointments.ErrInvalidID) {
		return Result{Status: StatusValidationError, Date: dateLabel, Message: "Unknown doctor id. Look the doctor up by name first.", Slots: []Slot{}}
	}
	if err != nil {
		e.logger.Error("availability lookup failed", "doctor_id", doctorID, "date", dateLabel, "error", err)
		return Result{Status: StatusSystemError, Date: dateLabel, Message: "Could not load the doctor's schedule. Please try again.", Slots: []Slot{}}
	}

	isToday := day.Equal(today)
	slots := make([]Slot, 0, len(e.hours.Slots(day)))
	for _, candidate := range e.hours.Slots(day) {
		if isToday && !now.Before(candidate.Start) {
			continue
		}
		if overlapsAny(candidate, booked) {
			continue
		}
		slots = append(slots, e.toSlot(candidate))
	}

	if len(slots) == 0 {
		msg := fmt.Sprintf("No slots available on %s.", dateLabel)
		if isToday {
			msg = "The doctor is fully booked for today."
		}
		return Result{Status: StatusFullyBooked, Date: dateLabel, Message: msg, Slots: slots}
	}

	labels := make([]string, len(slots))
	for i, s := range slots {
		labels[i] = s.Time
	}
	return Result{
		Status:  StatusSuccess,
		Date:    dateLabel,
		Summary: fmt.Sprintf("On %s, the following slots are available: %s", dateLabel, strings.Join(labels, ", ")),
		Slots:   slots,
	}
}

func (e *Engine) toSlot(iv clinic.Interval) Slot {
	loc := e.hours.Location
	if loc == nil {
		loc = time.UTC
	}
	start, end := iv.Start.In(loc), iv.End.In(loc)
	return Slot{
		Start:    start,
		End:      end,
		ISOStart: start.Format(time.RFC3339),
		Time:     start.Format(clinic.ClockLayout),
		Display:  start.Format(clinic.ClockLayout) + " - " + end.Format(clinic.ClockLayout),
	}
}

func overlapsAny(iv clinic.Interval, booked []appointments.Appointment) bool {
	for _, a := range booked {
		if iv.Overlaps(a.Interval()) {
			return true
		}
	}
	return false
}
