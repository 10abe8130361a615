package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/medbook-agent/internal/app/bootstrap"
	"github.com/wolfman30/medbook-agent/internal/appointments"
	appconfig "github.com/wolfman30/medbook-agent/internal/config"
	"github.com/wolfman30/medbook-agent/internal/conversation"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

type staticLLM struct{}

func (staticLLM) Complete(context.Context, conversation.LLMRequest) (conversation.LLMResponse, error) {
	return conversation.LLMResponse{Text: "ok"}, nil
}

func testApp(t *testing.T, reg *prometheus.Registry) (*appconfig.Config, *bootstrap.App) {
	t.Helper()
	cfg := &appconfig.Config{
		ClinicTimezone:     "Asia/Kolkata",
		ClinicOpenHour:     10,
		ClinicCloseHour:    17,
		SlotMinutes:        60,
		AgentMaxRounds:     5,
		EmailProvider:      "stub",
		JWTSecret:          "secret",
		HTTPRateLimitRPS:   10,
		HTTPRateLimitBurst: 10,
		ChatRateLimit:      5,
	}
	app, err := bootstrap.BuildApp(context.Background(), cfg, bootstrap.Overrides{
		Store:      appointments.NewMemoryStore(),
		LLM:        staticLLM{},
		Registerer: reg,
	}, logging.Discard())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return cfg, app
}

func TestBuildHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg, app := testApp(t, reg)
	handler := buildHandler(cfg, app, nil, reg, logging.Discard())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "medbook_agent_rounds") {
		t.Fatalf("expected agent metrics to be exported")
	}
}

func TestBuildHandlerHealthIncludesRedis(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg, app := testApp(t, reg)
	mr := miniredis.RunT(t)
	cfg.RedisAddr = mr.Addr()
	client := bootstrap.BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	if client == nil {
		t.Fatal("expected redis client")
	}
	defer client.Close()

	rr := httptest.NewRecorder()
	buildHandler(cfg, app, client, reg, logging.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"redis":"ok"`) {
		t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}
}

func TestLoadAWSSkippedWithoutAWSProviders(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "stub"}
	if got := loadAWS(context.Background(), cfg, logging.Discard()); got != nil {
		t.Fatalf("expected nil aws config, got %#v", got)
	}
}
