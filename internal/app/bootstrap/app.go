package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/availability"
	"github.com/wolfman30/medbook-agent/internal/bookings"
	"github.com/wolfman30/medbook-agent/internal/calendar"
	"github.com/wolfman30/medbook-agent/internal/clinic"
	"github.com/wolfman30/medbook-agent/internal/compliance"
	appconfig "github.com/wolfman30/medbook-agent/internal/config"
	"github.com/wolfman30/medbook-agent/internal/conversation"
	"github.com/wolfman30/medbook-agent/internal/notify"
	"github.com/wolfman30/medbook-agent/internal/observability/metrics"
	"github.com/wolfman30/medbook-agent/internal/reports"
	"github.com/wolfman30/medbook-agent/internal/tools"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

// Overrides replaces pieces BuildApp would otherwise construct from config.
// The CLI and tests use them; the API server passes the zero value.
type Overrides struct {
	Store      appointments.Store
	LLM        conversation.LLMClient
	Email      notify.EmailSender
	Calendar   calendar.Creator
	Chat       notify.ChatNotifier
	AWS        *aws.Config
	Registerer prometheus.Registerer
}

// App is the assembled scheduling core plus the agent on top of it.
type App struct {
	Hours        clinic.Hours
	Store        appointments.Store
	Pool         *pgxpool.Pool
	Availability *availability.Engine
	Bookings     *bookings.Service
	Reports      *reports.Service
	Tools        *tools.Registry
	Agent        *conversation.Agent
	Provider     string

	closers []func() error
}

// Close releases pools and provider clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildApp wires stores, side-effect adapters, the tool registry and the agent.
func BuildApp(ctx context.Context, cfg *appconfig.Config, ov Overrides, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	app, err := BuildCore(ctx, cfg, ov, logger)
	if err != nil {
		return nil, err
	}

	llm := ov.LLM
	app.Provider = "custom"
	if llm == nil {
		clients, err := BuildLLMClients(ctx, cfg, ov.AWS, logger)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		llm = clients.Client
		app.Provider = clients.Provider
		app.closers = append(app.closers, clients.Close)
	}

	app.Agent = conversation.NewAgent(llm, app.Tools, app.Hours, AgentConfig(cfg, app.Provider), metrics.NewAgentMetrics(ov.Registerer), logger)
	logger.Info("medbook core wired",
		"timezone", cfg.ClinicTimezone,
		"llm_provider", app.Provider,
		"max_rounds", cfg.AgentMaxRounds,
	)
	return app, nil
}

// BuildCore wires everything below the agent. App.Agent stays nil.
func BuildCore(ctx context.Context, cfg *appconfig.Config, ov Overrides, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hours, err := BuildHours(cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Hours: hours}

	store := ov.Store
	var audit compliance.Recorder
	if store == nil {
		pool, err := BuildPool(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if pool != nil {
			app.Pool = pool
			app.closers = append(app.closers, func() error { pool.Close(); return nil })
			audit = compliance.NewAuditService(BuildLedgerDB(pool))
		}
		store = BuildStore(pool, logger)
	}
	app.Store = store

	email := ov.Email
	if email == nil {
		email = BuildEmailSender(cfg, ov.AWS, logger)
	}
	cal := ov.Calendar
	if cal == nil {
		cal = BuildCalendar(ctx, cfg, logger)
	}
	chat := ov.Chat
	if chat == nil {
		chat = BuildChatNotifier(cfg, logger)
	}

	bookingMetrics := metrics.NewBookingMetrics(ov.Registerer)

	app.Availability = availability.NewEngine(store, hours, logger)
	app.Bookings = bookings.NewService(bookings.Deps{
		Store:    store,
		Hours:    hours,
		Email:    email,
		Calendar: cal,
		Audit:    audit,
		Metrics:  bookingMetrics,
		Logger:   logger,
	})
	reportOpts := []reports.Option{reports.WithMetrics(bookingMetrics)}
	if chat != nil {
		reportOpts = append(reportOpts, reports.WithNotifier(chat))
	}
	if audit != nil {
		reportOpts = append(reportOpts, reports.WithAudit(audit))
	}
	app.Reports = reports.NewService(store, hours, logger, reportOpts...)

	app.Tools = tools.NewClinicRegistry(tools.Deps{
		Directory:    app.Reports,
		Availability: app.Availability,
		Bookings:     app.Bookings,
		Reports:      app.Reports,
	})

	return app, nil
}
