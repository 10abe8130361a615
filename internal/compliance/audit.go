// Package compliance keeps an append-only record of the external side effects
// triggered by bookings and reports, so a degraded email or calendar call is
// visible after the fact even though it never fails the booking.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the kind of side effect.
type AuditEventType string

const (
	// EventConfirmationEmail is logged after attempting the patient confirmation email.
	EventConfirmationEmail AuditEventType = "booking.confirmation_email"
	// EventCalendarEvent is logged after attempting the calendar entry.
	EventCalendarEvent AuditEventType = "booking.calendar_event"
	// EventChatReport is logged after attempting a chat (Slack) report delivery.
	EventChatReport AuditEventType = "report.chat_delivery"
)

// Outcome is the result of one side-effect attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

// AuditEvent represents an immutable side-effect record.
type AuditEvent struct {
	ID            string          `json:"id"`
	EventType     AuditEventType  `json:"event_type"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	ActorID       string          `json:"actor_id,omitempty"`
	Outcome       Outcome         `json:"outcome"`
	Error         string          `json:"error,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Recorder is what the booking and tool layers depend on.
type Recorder interface {
	LogEvent(ctx context.Context, event AuditEvent) error
}

// SideEffect builds an event from an attempt's error (nil means delivered).
func SideEffect(eventType AuditEventType, appointmentID, actorID string, err error, details map[string]string) AuditEvent {
	event := AuditEvent{
		EventType:     eventType,
		AppointmentID: appointmentID,
		ActorID:       actorID,
		Outcome:       OutcomeDelivered,
	}
	if err != nil {
		event.Outcome = OutcomeFailed
		event.Error = err.Error()
	}
	if len(details) > 0 {
		event.Details, _ = json.Marshal(details)
	}
	return event
}

// AuditService writes audit events through database/sql.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO side_effect_audit_events (
			id, event_type, appointment_id, actor_id, outcome, error, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.AppointmentID),
		nullString(event.ActorID),
		event.Outcome,
		nullString(event.Error),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// AuditFilter narrows QueryEvents.
type AuditFilter struct {
	AppointmentID string
	EventType     AuditEventType
	Outcome       Outcome
	Since         time.Time
	Limit         int
}

// QueryEvents retrieves audit events, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, appointment_id, actor_id, outcome, error, details, created_at
		FROM side_effect_audit_events
		WHERE 1 = 1
	`
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}
	if filter.AppointmentID != "" {
		add("appointment_id =", filter.AppointmentID)
	}
	if filter.EventType != "" {
		add("event_type =", filter.EventType)
	}
	if filter.Outcome != "" {
		add("outcome =", filter.Outcome)
	}
	if !filter.Since.IsZero() {
		add("created_at >=", filter.Since)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var apptID, actorID, errText sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &apptID, &actorID, &e.Outcome, &errText, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.AppointmentID = apptID.String
		e.ActorID = actorID.String
		e.Error = errText.String
		e.Details = json.RawMessage(details)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to iterate audit events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Recorder = (*AuditService)(nil)
