package tools

import (
	"context"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/availability"
	"github.com/wolfman30/medbook-agent/internal/bookings"
	"github.com/wolfman30/medbook-agent/internal/reports"
)

// DoctorDirectory resolves doctors for patients.
type DoctorDirectory interface {
	ListDoctors(ctx context.Context) reports.DoctorList
	FindDoctors(ctx context.Context, name string) reports.DoctorList
}

type SlotFinder interface {
	FreeSlots(ctx context.Context, doctorID, date string) availability.Result
}

type Booker interface {
	Book(ctx context.Context, req bookings.BookingRequest) bookings.Outcome
}

// Reporter answers doctor-side questions.
type Reporter interface {
	AppointmentsInRange(ctx context.Context, doctorID, startDate, endDate string) reports.RangeReport
	AppointmentsMatchingSymptom(ctx context.Context, doctorID, keyword, startDate, endDate string) reports.SymptomReport
	DeliverSummary(ctx context.Context, doctorID, content string) reports.Delivery
}

// Deps are the cores the clinic tools call into.
type Deps struct {
	Directory    DoctorDirectory
	Availability SlotFinder
	Bookings     Booker
	Reports      Reporter
}

// NewClinicRegistry builds the patient and doctor tool tables.
func NewClinicRegistry(d Deps) *Registry {
	r := NewRegistry()
	r.MustRegister(appointments.RolePatient,
		&getDoctorsTool{dir: d.Directory},
		&findDoctorTool{dir: d.Directory},
		&availableSlotsTool{slots: d.Availability},
		&bookAppointmentTool{bookings: d.Bookings},
	)
	r.MustRegister(appointments.RoleDoctor,
		&appointmentsByRangeTool{reports: d.Reports},
		&symptomSearchTool{reports: d.Reports},
		&slackReportTool{reports: d.Reports},
	)
	return r
}

type getDoctorsTool struct{ dir DoctorDirectory }

func (t *getDoctorsTool) Name() string { return "get_doctors" }

func (t *getDoctorsTool) Description() string {
	return "Fetches a list of all registered doctors in the system. Use this tool when the user wants to see which doctors are available."
}

func (t *getDoctorsTool) Parameters() Schema { return ObjectSchema(nil) }

func (t *getDoctorsTool) Execute(ctx context.Context, _ map[string]any) (any, error) {
	return t.dir.ListDoctors(ctx), nil
}

type findDoctorTool struct{ dir DoctorDirectory }

func (t *findDoctorTool) Name() string { return "find_doctor" }

func (t *findDoctorTool) Description() string {
	return "Finds a doctor's unique ID using their name. Use this as soon as the user mentions a doctor by name. " +
		"You must have the doctor_id returned by this tool before checking slots or booking."
}

func (t *findDoctorTool) Parameters() Schema {
	return ObjectSchema(map[string]Property{
		"name": StringProperty("The doctor's name or part of it, e.g. 'Dr. Rao' or 'Asha'."),
	}, "name")
}

func (t *findDoctorTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	return t.dir.FindDoctors(ctx, name), nil
}

type availableSlotsTool struct{ slots SlotFinder }

func (t *availableSlotsTool) Name() string { return "get_available_slots" }

func (t *availableSlotsTool) Description() string {
	return "Retrieves available 1-hour appointment windows for a doctor on a date. " +
		"Use it when the user picks a doctor and asks when they are free."
}

func (t *availableSlotsTool) Parameters() Schema {
	return ObjectSchema(map[string]Property{
		"doctor_id": StringProperty("The UUID of the doctor, from find_doctor or get_doctors."),
		"date_str":  StringProperty("The date in YYYY-MM-DD format, clinic local time."),
	}, "doctor_id", "date_str")
}

func (t *availableSlotsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	doctorID, err := stringArg(args, "doctor_id")
	if err != nil {
		return nil, err
	}
	date, err := stringArg(args, "date_str")
	if err != nil {
		return nil, err
	}
	return t.slots.FreeSlots(ctx, doctorID, date), nil
}

type bookAppointmentTool struct{ bookings Booker }

func (t *bookAppointmentTool) Name() string { return "book_new_appointment" }

func (t *bookAppointmentTool) Description() string {
	return "Books an appointment for the current patient. Use this only after the user has confirmed a specific slot from get_available_slots."
}

func (t *bookAppointmentTool) Parameters() Schema {
	return ObjectSchema(map[string]Property{
		"doctor_id": StringProperty("The UUID of the doctor."),
		"start_at":  StringProperty("The iso_start value of the chosen slot, e.g. '2026-01-25T14:00:00+05:30'."),
		"symptoms":  StringProperty("A brief description of the patient's condition."),
	}, "doctor_id", "start_at")
}

func (t *bookAppointmentTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	caller, err := requireCaller(ctx, appointments.RolePatient)
	if err != nil {
		return nil, err
	}
	doctorID, err := stringArg(args, "doctor_id")
	if err != nil {
		return nil, err
	}
	startAt, err := stringArg(args, "start_at")
	if err != nil {
		return nil, err
	}
	symptoms, _ := optionalStringArg(args, "symptoms")
	return t.bookings.Book(ctx, bookings.BookingRequest{
		DoctorID:  doctorID,
		PatientID: caller.UserID,
		StartAt:   startAt,
		Symptoms:  symptoms,
	}), nil
}

type appointmentsByRangeTool struct{ reports Reporter }

func (t *appointmentsByRangeTool) Name() string { return "get_doctor_appointments_by_date_range" }

func (t *appointmentsByRangeTool) Description() string {
	return "Fetches your appointments within a date range, grouped by date with times, patient names and symptoms. " +
		"Use this when asked 'What does my week look like?' or 'List my appointments for today'."
}

func (t *appointmentsByRangeTool) Parameters() Schema {
	return ObjectSchema(map[string]Property{
		"start_date_str": StringProperty("The start date in YYYY-MM-DD format."),
		"end_date_str":   StringProperty("The end date in YYYY-MM-DD format, inclusive."),
	}, "start_date_str", "end_date_str")
}

func (t *appointmentsByRangeTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	caller, err := requireCaller(ctx, appointments.RoleDoctor)
	if err != nil {
		return nil, err
	}
	start, err := stringArg(args, "start_date_str")
	if err != nil {
		return nil, err
	}
	end, err := stringArg(args, "end_date_str")
	if err != nil {
		return nil, err
	}
	return t.reports.AppointmentsInRange(ctx, caller.UserID, start, end), nil
}

type symptomSearchTool struct{ reports Reporter }

func (t *symptomSearchTool) Name() string { return "search_appointments_by_symptom_keyword" }

func (t *symptomSearchTool) Description() string {
	return "Searches your appointments whose symptoms mention a keyword, e.g. 'How many patients with fever did I see this month?'."
}

func (t *symptomSearchTool) Parameters() Schema {
	return ObjectSchema(map[string]Property{
		"symptom_keyword": StringProperty("The keyword to look for in symptoms, at least 3 characters (e.g. 'fever')."),
		"start_date_str":  StringProperty("The start date in YYYY-MM-DD format."),
		"end_date_str":    StringProperty("The end date in YYYY-MM-DD format, inclusive."),
	}, "symptom_keyword", "start_date_str", "end_date_str")
}

func (t *symptomSearchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	caller, err := requireCaller(ctx, appointments.RoleDoctor)
	if err != nil {
		return nil, err
	}
	keyword, err := stringArg(args, "symptom_keyword")
	if err != nil {
		return nil, err
	}
	start, err := stringArg(args, "start_date_str")
	if err != nil {
		return nil, err
	}
	end, err := stringArg(args, "end_date_str")
	if err != nil {
		return nil, err
	}
	return t.reports.AppointmentsMatchingSymptom(ctx, caller.UserID, keyword, start, end), nil
}

type slackReportTool struct{ reports Reporter }

func (t *slackReportTool) Name() string { return "send_summary_report_to_slack" }

func (t *slackReportTool) Description() string {
	return "Sends a summary, schedule or patient report to your Slack. Use this only when explicitly asked to send to Slack or to notify you."
}

func (t *slackReportTool) Parameters() Schema {
	return ObjectSchema(map[string]Property{
		"content": StringProperty("The report text to send."),
	}, "content")
}

func (t *slackReportTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	caller, err := requireCaller(ctx, appointments.RoleDoctor)
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	return t.reports.DeliverSummary(ctx, caller.UserID, content), nil
}
