// Package bookings turns a patient's chosen slot into a stored appointment.
// The store decides conflicts; email and calendar run only after the row is
// committed and can degrade the outcome but never undo it.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/calendar"
	"github.com/wolfman30/medbook-agent/internal/clinic"
	"github.com/wolfman30/medbook-agent/internal/compliance"
	"github.com/wolfman30/medbook-agent/internal/notify"
	"github.com/wolfman30/medbook-agent/internal/observability/metrics"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

var bookingsTracer = otel.Tracer("medbook.internal.bookings")

// Kind tags a booking outcome.
type Kind string

const (
	KindSuccess         Kind = "success"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindValidationError Kind = "validation_error"
	KindSystemError     Kind = "system_error"
)

// WarningExternalServiceDegraded marks a side effect that failed after commit.
const WarningExternalServiceDegraded = "external_service_degraded"

const defaultSideEffectTimeout = 15 * time.Second

// BookingRequest is what the patient tool hands in. StartAt is the ISO start
// echoed from the availability listing.
type BookingRequest struct {
	DoctorID  string
	PatientID string
	StartAt   string
	Symptoms  string
}

// Warning describes a degraded side effect on an otherwise successful booking.
type Warning struct {
	Kind    string `json:"kind"`
	Service string `json:"service"`
	Message string `json:"message"`
}

// Outcome is the tagged result of Book. Which is set for KindNotFound.
type Outcome struct {
	Kind          Kind      `json:"status"`
	Message       string    `json:"message"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Which         string    `json:"which,omitempty"`
	CalendarLink  string    `json:"calendar_link,omitempty"`
	Warnings      []Warning `json:"warnings,omitempty"`
}

// Deps wires the collaborators of a Service. Email, Calendar, Audit and
// Metrics are optional.
type Deps struct {
	Store    appointments.Store
	Hours    clinic.Hours
	Email    notify.EmailSender
	Calendar calendar.Creator
	Audit    compliance.Recorder
	Metrics  *metrics.BookingMetrics
	Logger   *logging.Logger

	SideEffectTimeout time.Duration
}

// Service books appointments.
type Service struct {
	store    appointments.Store
	hours    clinic.Hours
	email    notify.EmailSender
	calendar calendar.Creator
	audit    compliance.Recorder
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger

	sideEffectTimeout time.Duration
}

// NewService constructs a bookings service.
func NewService(d Deps) *Service {
	if d.Store == nil {
		panic("bookings: store required")
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.SideEffectTimeout <= 0 {
		d.SideEffectTimeout = defaultSideEffectTimeout
	}
	return &Service{
		store:             d.Store,
		hours:             d.Hours,
		email:             d.Email,
		calendar:          d.Calendar,
		audit:             d.Audit,
		metrics:           d.Metrics,
		logger:            d.Logger,
		sideEffectTimeout: d.SideEffectTimeout,
	}
}

// Book validates the request, stores the appointment and then attempts the
// confirmation email and calendar entry.
func (s *Service) Book(ctx context.Context, req BookingRequest) Outcome {
	ctx, span := bookingsTracer.Start(ctx, "bookings.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("medbook.doctor_id", req.DoctorID),
		attribute.String("medbook.patient_id", req.PatientID),
	)

	out := s.book(ctx, req)
	span.SetAttributes(attribute.String("medbook.booking_outcome", string(out.Kind)))
	s.metrics.ObserveBooking(string(out.Kind))
	return out
}

func (s *Service) book(ctx context.Context, req BookingRequest) Outcome {
	start, err := s.hours.ParseInstant("", strings.TrimSpace(req.StartAt))
	if err != nil {
		return Outcome{Kind: KindValidationError, Message: "Invalid date/time format. Please use ISO format."}
	}
	start = start.In(s.hours.CurrentTime().Location())
	slot := clinic.Interval{Start: start, End: start.Add(s.hours.SlotLength)}

	if !slot.Start.After(s.hours.CurrentTime()) {
		return Outcome{Kind: KindValidationError, Message: "Cannot book an appointment in the past. Please choose a future slot."}
	}
	if !s.hours.WithinWorkingHours(slot) {
		window := s.hours.WorkingWindow(slot.Start)
		return Outcome{
			Kind: KindValidationError,
			Message: fmt.Sprintf("Appointments can only be booked between %s and %s.",
				s.hours.FormatClock(window.Start), s.hours.FormatClock(window.End)),
		}
	}

	doctor, out, ok := s.resolve(ctx, req.DoctorID, appointments.RoleDoctor)
	if !ok {
		return out
	}
	patient, out, ok := s.resolve(ctx, req.PatientID, appointments.RolePatient)
	if !ok {
		return out
	}

	conflict := s.conflictOutcome(slot.Start)
	existing, err := s.store.ListBookedOverlapping(ctx, doctor.ID, slot)
	if err != nil {
		s.logger.Error("booking overlap check failed", "doctor_id", doctor.ID, "error", err)
		return systemError()
	}
	for _, appt := range existing {
		if slot.Overlaps(appt.Interval()) {
			return conflict
		}
	}

	appt, err := s.store.CreateBooked(ctx, appointments.NewAppointment{
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
		StartAt:   slot.Start,
		EndAt:     slot.End,
		Symptoms:  req.Symptoms,
	})
	switch {
	case errors.Is(err, appointments.ErrSlotTaken):
		s.logger.Info("booking lost race", "doctor_id", doctor.ID, "start_at", slot.Start)
		return conflict
	case err != nil:
		s.logger.Error("booking insert failed", "doctor_id", doctor.ID, "patient_id", patient.ID, "error", err)
		return systemError()
	}
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "doctor_id", doctor.ID, "patient_id", patient.ID, "start_at", appt.StartAt)

	return s.afterCommit(ctx, appt, doctor, patient, slot)
}

func (s *Service) resolve(ctx context.Context, id string, role appointments.Role) (*appointments.User, Outcome, bool) {
	which := string(role)
	notFound := Outcome{
		Kind:    KindNotFound,
		Which:   which,
		Message: fmt.Sprintf("%s not found. Please verify the %s ID.", strings.ToUpper(which[:1])+which[1:], which),
	}
	if strings.TrimSpace(id) == "" {
		return nil, notFound, false
	}
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, appointments.ErrNotFound) {
		return nil, notFound, false
	}
	if err != nil {
		s.logger.Error("booking user lookup failed", "user_id", id, "role", which, "error", err)
		return nil, systemError(), false
	}
	if user.Role != role {
		return nil, notFound, false
	}
	return user, Outcome{}, true
}

func (s *Service) afterCommit(ctx context.Context, appt *appointments.Appointment, doctor, patient *appointments.User, slot clinic.Interval) Outcome {
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
	defer cancel()

	loc := s.hours.CurrentTime().Location()
	start, end := slot.Start.In(loc), slot.End.In(loc)
	out := Outcome{Kind: KindSuccess, AppointmentID: appt.ID}

	emailErr := s.sendConfirmation(sideCtx, notify.Confirmation{
		PatientEmail: patient.Email,
		PatientName:  patient.FullName,
		DoctorName:   doctor.FullName,
		Start:        start,
		End:          end,
	})
	s.recordSideEffect(sideCtx, "email", compliance.EventConfirmationEmail, appt.ID, patient.ID, emailErr, nil)
	if emailErr != nil {
		out.Warnings = append(out.Warnings, Warning{
			Kind:    WarningExternalServiceDegraded,
			Service: "email",
			Message: "The confirmation email could not be sent.",
		})
	}

	link, calErr := s.createEvent(sideCtx, calendar.Event{
		DoctorName:  doctor.FullName,
		PatientName: patient.FullName,
		Start:       start,
		End:         end,
		Symptoms:    appt.Symptoms,
	})
	s.recordSideEffect(sideCtx, "calendar", compliance.EventCalendarEvent, appt.ID, patient.ID, calErr, map[string]string{"link": link})
	if calErr != nil {
		out.Warnings = append(out.Warnings, Warning{
			Kind:    WarningExternalServiceDegraded,
			Service: "calendar",
			Message: "The calendar event could not be created.",
		})
	}
	out.CalendarLink = link

	out.Message = fmt.Sprintf("Appointment successfully booked with %s for %s.", doctor.FullName, start.Format("January 02 at 03:04 PM"))
	if emailErr == nil {
		out.Message += " Confirmation email sent."
	} else {
		out.Message += " The confirmation email could not be sent."
	}
	return out
}

func (s *Service) sendConfirmation(ctx context.Context, c notify.Confirmation) error {
	if s.email == nil {
		return errors.New("bookings: email sender not configured")
	}
	return notify.SendConfirmation(ctx, s.email, c)
}

func (s *Service) createEvent(ctx context.Context, ev calendar.Event) (string, error) {
	if s.calendar == nil {
		return "", errors.New("bookings: calendar not configured")
	}
	return s.calendar.CreateEvent(ctx, ev)
}

func (s *Service) recordSideEffect(ctx context.Context, effect string, eventType compliance.AuditEventType, apptID, actorID string, err error, details map[string]string) {
	s.metrics.ObserveSideEffect(effect, err)
	if err != nil {
		s.logger.Warn("booking side effect failed", "effect", effect, "appointment_id", apptID, "error", err)
	}
	if s.audit == nil {
		return
	}
	if details != nil && details["link"] == "" {
		details = nil
	}
	if auditErr := s.audit.LogEvent(ctx, compliance.SideEffect(eventType, apptID, actorID, err, details)); auditErr != nil {
		s.logger.Error("side effect audit failed", "effect", effect, "appointment_id", apptID, "error", auditErr)
	}
}

func (s *Service) conflictOutcome(start time.Time) Outcome {
	return Outcome{
		Kind: KindConflict,
		Message: fmt.Sprintf("The slot starting at %s is no longer available. Please select another time.",
			s.hours.FormatClock(start)),
	}
}

func systemError() Outcome {
	return Outcome{Kind: KindSystemError, Message: "A technical error occurred while processing your booking. Please try again later."}
}
