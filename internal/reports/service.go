// Package reports answers the read-only questions doctors and patients ask:
// a doctor's schedule over a date range, symptom searches, and doctor
// discovery. It also delivers doctor summaries to chat.
package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/clinic"
	"github.com/wolfman30/medbook-agent/internal/compliance"
	"github.com/wolfman30/medbook-agent/internal/notify"
	"github.com/wolfman30/medbook-agent/internal/observability/metrics"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

// Status tags a report result.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusEmpty           Status = "empty"
	StatusNotFound        Status = "not_found"
	StatusValidationError Status = "validation_error"
	StatusSystemError     Status = "system_error"
)

const minKeywordLength = 3
const minDoctorQueryLength = 2

// Entry is one appointment line in a schedule.
type Entry struct {
	Time          string `json:"time"`
	PatientName   string `json:"patient_name"`
	Symptoms      string `json:"symptoms"`
	AppointmentID string `json:"appointment_id"`
}

// DaySchedule keeps the per-day grouping in date order.
type DaySchedule struct {
	Date    string  `json:"date"`
	Entries []Entry `json:"entries"`
}

type RangeReport struct {
	Status     Status             `json:"status"`
	Range      string             `json:"range,omitempty"`
	TotalCount int                `json:"total_count"`
	Summary    string             `json:"summary,omitempty"`
	Message    string             `json:"message,omitempty"`
	Schedule   map[string][]Entry `json:"schedule"`
	Days       []DaySchedule      `json:"-"`
}

// Match is one symptom search hit.
type Match struct {
	Date          string `json:"date"`
	Time          string `json:"time"`
	PatientName   string `json:"patient_name"`
	Symptoms      string `json:"symptoms"`
	AppointmentID string `json:"appointment_id"`
}

type SymptomReport struct {
	Status     Status  `json:"status"`
	TotalCount int     `json:"total_count"`
	Summary    string  `json:"summary,omitempty"`
	Message    string  `json:"message,omitempty"`
	Results    []Match `json:"results"`
}

type Doctor struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

type DoctorList struct {
	Status     Status   `json:"status"`
	TotalCount int      `json:"total_count"`
	Message    string   `json:"message,omitempty"`
	Note       string   `json:"note,omitempty"`
	Doctors    []Doctor `json:"doctors"`
}

// Delivery is the result of pushing a summary to chat. ErrorCode carries
// the provider's code when it rejected the message.
type Delivery struct {
	Status    Status `json:"status"`
	Recipient string `json:"recipient,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
}

// Service runs report queries against the store.
type Service struct {
	store    appointments.Store
	hours    clinic.Hours
	notifier notify.ChatNotifier
	audit    compliance.Recorder
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier sets the chat adapter used by DeliverSummary.
func WithNotifier(n notify.ChatNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithAudit records chat deliveries.
func WithAudit(r compliance.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store appointments.Store, hours clinic.Hours, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("reports: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{store: store, hours: hours, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppointmentsInRange lists the doctor's booked appointments from the start
// of startDate through the end of endDate, grouped by day.
func (s *Service) AppointmentsInRange(ctx context.Context, doctorID, startDate, endDate string) RangeReport {
	window, msg := s.dateRange(startDate, endDate)
	if msg != "" {
		return RangeReport{Status: StatusValidationError, Message: msg, Schedule: map[string][]Entry{}}
	}

	appts, err := s.store.ListBooked(ctx, appointments.Query{DoctorID: doctorID, Window: window})
	if err != nil {
		s.logger.Error("appointment range query failed", "doctor_id", doctorID, "error", err)
		return RangeReport{
			Status:   StatusSystemError,
			Message:  "Failed to retrieve the appointment schedule due to a database error.",
			Schedule: map[string][]Entry{},
		}
	}

	report := RangeReport{
		Status:     StatusSuccess,
		Range:      fmt.Sprintf("%s to %s", startDate, endDate),
		TotalCount: len(appts),
		Schedule:   make(map[string][]Entry),
	}
	if len(appts) == 0 {
		report.Message = fmt.Sprintf("You have no appointments scheduled between %s and %s.", startDate, endDate)
		return report
	}

	for _, a := range appts {
		start := s.local(a.StartAt)
		key := start.Format(clinic.DayKeyLayout)
		entry := Entry{
			Time:          start.Format(clinic.ClockLayout),
			PatientName:   a.PatientName,
			Symptoms:      symptomsOrDefault(a.Symptoms),
			AppointmentID: a.ID,
		}
		if _, seen := report.Schedule[key]; !seen {
			report.Days = append(report.Days, DaySchedule{Date: key})
		}
		report.Schedule[key] = append(report.Schedule[key], entry)
		last := &report.Days[len(report.Days)-1]
		last.Entries = append(last.Entries, entry)
	}
	report.Summary = fmt.Sprintf("I found %d appointments for this period.", len(appts))
	return report
}

// AppointmentsMatchingSymptom finds booked appointments in the range whose
// symptoms contain keyword, case-insensitively.
func (s *Service) AppointmentsMatchingSymptom(ctx context.Context, doctorID, keyword, startDate, endDate string) SymptomReport {
	keyword = strings.TrimSpace(keyword)
	if len([]rune(keyword)) < minKeywordLength {
		return SymptomReport{
			Status:  StatusValidationError,
			Message: "Please provide a symptom keyword with at least 3 characters for a valid search.",
			Results: []Match{},
		}
	}
	window, msg := s.dateRange(startDate, endDate)
	if msg != "" {
		return SymptomReport{Status: StatusValidationError, Message: msg, Results: []Match{}}
	}

	appts, err := s.store.ListBooked(ctx, appointments.Query{DoctorID: doctorID, Window: window, Keyword: keyword})
	if err != nil {
		s.logger.Error("symptom search failed", "doctor_id", doctorID, "keyword", keyword, "error", err)
		return SymptomReport{
			Status:  StatusSystemError,
			Message: "An error occurred while searching patient records. Please try again later.",
			Results: []Match{},
		}
	}
	if len(appts) == 0 {
		return SymptomReport{
			Status:  StatusSuccess,
			Message: fmt.Sprintf("I couldn't find any appointments mentioning symptoms like '%s' between %s and %s.", keyword, startDate, endDate),
			Results: []Match{},
		}
	}

	results := make([]Match, 0, len(appts))
	for _, a := range appts {
		start := s.local(a.StartAt)
		results = append(results, Match{
			Date:          start.Format(clinic.DayKeyLayout),
			Time:          start.Format(clinic.ClockLayout),
			PatientName:   a.PatientName,
			Symptoms:      a.Symptoms,
			AppointmentID: a.ID,
		})
	}
	return SymptomReport{
		Status:     StatusSuccess,
		TotalCount: len(results),
		Summary:    fmt.Sprintf("Found %d patients with symptoms matching '%s'.", len(results), keyword),
		Results:    results,
	}
}

// ListDoctors returns every doctor, sorted by name.
func (s *Service) ListDoctors(ctx context.Context) DoctorList {
	users, err := s.store.ListUsersByRole(ctx, appointments.RoleDoctor)
	if err != nil {
		s.logger.Error("list doctors failed", "error", err)
		return DoctorList{
			Status:  StatusSystemError,
			Message: "I encountered a technical issue while fetching the doctor list. Please notify the administrator.",
			Doctors: []Doctor{},
		}
	}
	if len(users) == 0 {
		return DoctorList{
			Status:  StatusEmpty,
			Message: "There are currently no doctors registered in the system. Please try again later.",
			Doctors: []Doctor{},
		}
	}
	return DoctorList{Status: StatusSuccess, TotalCount: len(users), Doctors: toDoctors(users)}
}

// FindDoctors searches doctors by a name fragment. A leading "Dr." is ignored.
func (s *Service) FindDoctors(ctx context.Context, name string) DoctorList {
	clean := cleanDoctorQuery(name)
	if len([]rune(clean)) < minDoctorQueryLength {
		return DoctorList{
			Status:  StatusValidationError,
			Message: "The search query is too short. Please provide at least 2 characters of the doctor's name.",
			Doctors: []Doctor{},
		}
	}

	users, err := s.store.SearchUsersByName(ctx, appointments.RoleDoctor, clean)
	if err != nil {
		s.logger.Error("doctor search failed", "query", name, "error", err)
		return DoctorList{
			Status:  StatusSystemError,
			Message: "The search service is temporarily unavailable. Please try again in a few moments.",
			Doctors: []Doctor{},
		}
	}
	if len(users) == 0 {
		s.logger.Info("no doctor matched", "query", name)
		return DoctorList{
			Status:  StatusNotFound,
			Message: fmt.Sprintf("I couldn't find any doctor matching '%s'. Would you like to see a list of all available doctors?", name),
			Doctors: []Doctor{},
		}
	}

	out := DoctorList{Status: StatusSuccess, TotalCount: len(users), Doctors: toDoctors(users)}
	if len(users) > 1 {
		out.Note = "If multiple doctors are returned, please ask the user to specify."
	}
	return out
}

// DeliverSummary sends content to the doctor's chat inbox, addressed by the
// doctor's email.
func (s *Service) DeliverSummary(ctx context.Context, doctorID, content string) Delivery {
	if s.notifier == nil {
		return Delivery{Status: StatusSystemError, ErrorCode: "config_error", Message: "Chat notifications are not configured."}
	}
	if strings.TrimSpace(content) == "" {
		return Delivery{Status: StatusValidationError, Message: "The report content is empty."}
	}

	doctor, err := s.store.GetUser(ctx, doctorID)
	if err != nil || doctor.Role != appointments.RoleDoctor {
		if err != nil {
			s.logger.Warn("summary recipient lookup failed", "doctor_id", doctorID, "error", err)
		}
		return Delivery{Status: StatusNotFound, Message: "Doctor not found. Please verify the doctor ID."}
	}
	if strings.TrimSpace(doctor.Email) == "" {
		return Delivery{Status: StatusValidationError, Message: "The doctor has no email address on file."}
	}

	err = s.notifier.Notify(ctx, doctor.Email, content)
	s.metrics.ObserveSideEffect("chat", err)
	if s.audit != nil {
		event := compliance.SideEffect(compliance.EventChatReport, "", doctor.ID, err, map[string]string{"recipient": doctor.Email})
		if auditErr := s.audit.LogEvent(ctx, event); auditErr != nil {
			s.logger.Error("chat delivery audit failed", "doctor_id", doctor.ID, "error", auditErr)
		}
	}
	if err != nil {
		s.logger.Warn("summary delivery failed", "doctor_id", doctor.ID, "error", err)
		out := Delivery{Status: StatusSystemError, Recipient: doctor.Email, Message: notify.DescribeChatError(err)}
		if code := notify.ChatErrorCode(err); code != "" {
			out.ErrorCode = code
		}
		return out
	}
	return Delivery{Status: StatusSuccess, Recipient: doctor.Email, Message: "Report delivered successfully."}
}

// dateRange turns inclusive YYYY-MM-DD bounds into a half-open window.
func (s *Service) dateRange(startDate, endDate string) (clinic.Interval, string) {
	start, err := s.hours.ParseDate(startDate)
	if err != nil {
		return clinic.Interval{}, "Invalid date format. Please use YYYY-MM-DD."
	}
	end, err := s.hours.ParseDate(endDate)
	if err != nil {
		return clinic.Interval{}, "Invalid date format. Please use YYYY-MM-DD."
	}
	if start.After(end) {
		return clinic.Interval{}, "The start date cannot be after the end date."
	}
	return clinic.Interval{Start: start, End: end.AddDate(0, 0, 1)}, ""
}

func (s *Service) local(t time.Time) time.Time {
	return t.In(s.hours.CurrentTime().Location())
}

func cleanDoctorQuery(name string) string {
	q := strings.ToLower(name)
	q = strings.ReplaceAll(q, "dr.", "")
	q = strings.ReplaceAll(q, "dr ", "")
	return strings.TrimSpace(q)
}

func symptomsOrDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}

func toDoctors(users []appointments.User) []Doctor {
	out := make([]Doctor, len(users))
	for i, u := range users {
		out[i] = Doctor{ID: u.ID, FullName: u.FullName}
	}
	return out
}
