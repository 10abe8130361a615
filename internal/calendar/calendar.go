// Package calendar mirrors booked appointments into an external calendar.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/medbook-agent/pkg/logging"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Event is the calendar entry created for a booking.
type Event struct {
	DoctorName  string
	PatientName string
	Start       time.Time
	End         time.Time
	Symptoms    string
}

// Summary is the event title shown in the calendar.
func (e Event) Summary() string {
	doctor := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(e.DoctorName), "Dr."))
	return fmt.Sprintf("Doctor Appointment: %s with Dr. %s", e.PatientName, doctor)
}

// Creator creates calendar events and returns a link to the new event.
type Creator interface {
	CreateEvent(ctx context.Context, ev Event) (string, error)
}

// GoogleConfig configures the Google Calendar client.
type GoogleConfig struct {
	// ServiceAccount is a path to a service-account key file or the JSON itself.
	ServiceAccount string
	CalendarID     string
	Timezone       string
	// Options are appended after credentials; tests use them to point at a fake endpoint.
	Options []option.ClientOption
}

// GoogleCalendar inserts events with a service account.
type GoogleCalendar struct {
	events     *gcal.EventsService
	calendarID string
	timezone   string
	logger     *logging.Logger
}

// NewGoogleCalendar builds the Calendar v3 client.
func NewGoogleCalendar(ctx context.Context, cfg GoogleConfig, logger *logging.Logger) (*GoogleCalendar, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(cfg.ServiceAccount); creds != "" {
		if strings.HasPrefix(creds, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
		opts = append(opts, option.WithScopes(gcal.CalendarEventsScope))
	}
	opts = append(opts, cfg.Options...)

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return &GoogleCalendar{
		events:     svc.Events,
		calendarID: cfg.CalendarID,
		timezone:   cfg.Timezone,
		logger:     logger,
	}, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, ev Event) (string, error) {
	if !ev.Start.Before(ev.End) {
		return "", fmt.Errorf("calendar: start must be before end")
	}
	body := &gcal.Event{
		Summary:     ev.Summary(),
		Description: "Symptoms: " + ev.Symptoms,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: g.timezone},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: g.timezone},
	}
	created, err := g.events.Insert(g.calendarID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	g.logger.Info("calendar event created", "event_id", created.Id, "start", body.Start.DateTime)
	return created.HtmlLink, nil
}

// Stub records events without calling any API.
type Stub struct {
	logger *logging.Logger
	mu     sync.Mutex
	events []Event
}

func NewStub(logger *logging.Logger) *Stub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Stub{logger: logger}
}

func (s *Stub) CreateEvent(ctx context.Context, ev Event) (string, error) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	n := len(s.events)
	s.mu.Unlock()
	s.logger.Info("stub calendar: would create event", "summary", ev.Summary(), "start", ev.Start)
	return fmt.Sprintf("stub://calendar/events/%d", n), nil
}

// Events returns every recorded event.
func (s *Stub) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

var (
	_ Creator = (*GoogleCalendar)(nil)
	_ Creator = (*Stub)(nil)
)
