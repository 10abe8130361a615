package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/calendar"
	appconfig "github.com/wolfman30/medbook-agent/internal/config"
	"github.com/wolfman30/medbook-agent/internal/conversation"
	"github.com/wolfman30/medbook-agent/internal/notify"
	"github.com/wolfman30/medbook-agent/internal/tools"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

type scriptedLLM struct {
	responses []conversation.LLMResponse
	n         int
}

func (s *scriptedLLM) Complete(context.Context, conversation.LLMRequest) (conversation.LLMResponse, error) {
	r := s.responses[s.n]
	if s.n < len(s.responses)-1 {
		s.n++
	}
	return r, nil
}

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		ClinicTimezone:  "Asia/Kolkata",
		ClinicOpenHour:  10,
		ClinicCloseHour: 17,
		SlotMinutes:     60,
		AgentMaxRounds:  5,
		EmailProvider:   "stub",
	}
}

func TestBuildAppWiresAgentToStore(t *testing.T) {
	logger := logging.Discard()
	store := appointments.NewMemoryStore()
	doctor := store.AddUser(appointments.User{Role: appointments.RoleDoctor, FullName: "Dr. Asha Rao", Email: "asha@clinic.test"})
	patient := store.AddUser(appointments.User{Role: appointments.RolePatient, FullName: "Ravi Kumar", Email: "ravi@example.test"})

	llm := &scriptedLLM{responses: []conversation.LLMResponse{
		{ToolCalls: []conversation.ToolCall{{ID: "1", Name: "get_doctors", Arguments: map[string]any{}}}},
		{Text: "Dr. Asha Rao is available."},
	}}
	app, err := BuildApp(context.Background(), testConfig(), Overrides{
		Store:      store,
		LLM:        llm,
		Email:      notify.NewStubEmailSender(logger),
		Calendar:   calendar.NewStub(logger),
		Chat:       notify.NewStubChatNotifier(logger),
		Registerer: prometheus.NewRegistry(),
	}, logger)
	require.NoError(t, err)
	defer app.Close()

	names := func(role appointments.Role) []string {
		var out []string
		for _, tl := range app.Tools.ForRole(role) {
			out = append(out, tl.Name())
		}
		return out
	}
	assert.Equal(t, []string{"get_doctors", "find_doctor", "get_available_slots", "book_new_appointment"}, names(appointments.RolePatient))
	assert.Equal(t, []string{"get_doctor_appointments_by_date_range", "search_appointments_by_symptom_keyword", "send_summary_report_to_slack"}, names(appointments.RoleDoctor))

	resp, err := app.Agent.Run(context.Background(), conversation.ChatRequest{
		Message: "who can I see?",
		Caller:  tools.Caller{UserID: patient.ID, Role: appointments.RolePatient, Name: patient.FullName},
	})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Asha Rao is available.", resp.Answer)
	require.Len(t, resp.ToolCalls, 1)
	assert.Contains(t, resp.ToolCalls[0].Result, doctor.FullName)
}

func TestBuildAppRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ClinicOpenHour = 18
	_, err := BuildApp(context.Background(), cfg, Overrides{Store: appointments.NewMemoryStore(), LLM: &scriptedLLM{}, Registerer: prometheus.NewRegistry()}, logging.Discard())
	require.Error(t, err)
}

func TestBuildAppWithoutLLMFails(t *testing.T) {
	_, err := BuildApp(context.Background(), testConfig(), Overrides{Store: appointments.NewMemoryStore(), Registerer: prometheus.NewRegistry()}, logging.Discard())
	require.ErrorIs(t, err, ErrNoLLMProvider)
}

func TestBuildCoreNeedsNoLLM(t *testing.T) {
	app, err := BuildCore(context.Background(), testConfig(), Overrides{Store: appointments.NewMemoryStore(), Registerer: prometheus.NewRegistry()}, logging.Discard())
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.Agent)
	assert.NotNil(t, app.Bookings)
	assert.Len(t, app.Tools.ForRole(appointments.RolePatient), 4)
}

func TestBuildRedisClient(t *testing.T) {
	logger := logging.Discard()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, logger, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	require.NotNil(t, client)
	_ = client.Close()

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true))
}

func TestBuildHoursAndStoreDefaults(t *testing.T) {
	hours, err := BuildHours(testConfig())
	require.NoError(t, err)
	assert.Equal(t, time.Hour, hours.SlotLength)

	_, ok := BuildStore(nil, logging.Discard()).(*appointments.MemoryStore)
	assert.True(t, ok)
	assert.Nil(t, BuildLedgerDB(nil))
}

func TestBuildSideEffectAdaptersFallBackToStubs(t *testing.T) {
	logger := logging.Discard()
	cfg := testConfig()
	cfg.EmailProvider = "sendgrid"

	_, ok := BuildEmailSender(cfg, nil, logger).(*notify.StubEmailSender)
	assert.True(t, ok, "sendgrid without a key should fall back to the stub")

	_, ok = BuildCalendar(context.Background(), cfg, logger).(*calendar.Stub)
	assert.True(t, ok)

	assert.Nil(t, BuildChatNotifier(cfg, logger))
	cfg.SlackBotToken = "xoxb-test"
	assert.NotNil(t, BuildChatNotifier(cfg, logger))
}
