// Package conversation runs the tool-calling chat loop between a signed-in
// user, an LLM provider and the clinic tools available to the user's role.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medbook-agent/internal/clinic"
	"github.com/wolfman30/medbook-agent/internal/observability/metrics"
	"github.com/wolfman30/medbook-agent/internal/tools"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

var conversationTracer = otel.Tracer("medbook.internal.conversation")

const (
	defaultMaxRounds        = 5
	defaultMaxParallelTools = 4
	maxToolResultBytes      = 16 << 10
)

// ErrUnknownRole is returned when the caller's role has no tool table.
var ErrUnknownRole = errors.New("conversation: unknown caller role")

// ChatRequest is one user turn.
type ChatRequest struct {
	Message string
	History []ChatMessage
	Caller  tools.Caller
}

// ToolCallRecord keeps one tool invocation for the duration of a turn.
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result"`
	Err       string         `json:"error,omitempty"`
}

// ChatResponse is the outcome of a turn. Capped means the round limit was
// reached while the model still wanted tools. Guarded means the message was
// refused or the answer replaced by the input/output screens.
type ChatResponse struct {
	Answer    string           `json:"answer"`
	Rounds    int              `json:"rounds"`
	Capped    bool             `json:"capped"`
	Guarded   bool             `json:"guarded,omitempty"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
}

// AgentConfig tunes the loop.
type AgentConfig struct {
	Provider         string
	Model            string
	MaxRounds        int
	MaxParallelTools int
	MaxTokens        int32
	Temperature      float32
}

// Agent drives the loop. It is safe for concurrent turns.
type Agent struct {
	llm      LLMClient
	registry *tools.Registry
	hours    clinic.Hours
	cfg      AgentConfig
	metrics  *metrics.AgentMetrics
	logger   *logging.Logger
}

func NewAgent(llm LLMClient, registry *tools.Registry, hours clinic.Hours, cfg AgentConfig, m *metrics.AgentMetrics, logger *logging.Logger) *Agent {
	if llm == nil {
		panic("conversation: llm client required")
	}
	if registry == nil {
		panic("conversation: tool registry required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.MaxParallelTools <= 0 {
		cfg.MaxParallelTools = defaultMaxParallelTools
	}
	if cfg.Provider == "" {
		cfg.Provider = "llm"
	}
	return &Agent{llm: llm, registry: registry, hours: hours, cfg: cfg, metrics: m, logger: logger}
}

// Run answers one user message. Each provider request is one round; tool
// calls from a round run in parallel and their results are appended in the
// order the model issued them. Provider errors end the turn.
func (a *Agent) Run(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	caller := req.Caller
	if !caller.Role.Valid() {
		return ChatResponse{}, fmt.Errorf("%w: %q", ErrUnknownRole, caller.Role)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ChatResponse{}, errors.New("conversation: message is required")
	}

	ctx, span := conversationTracer.Start(ctx, "conversation.run")
	defer span.End()
	span.SetAttributes(attribute.String("medbook.role", string(caller.Role)))

	verdict := ScreenInput(caller.Role, message)
	if verdict.Blocked {
		a.logger.Warn("message blocked by input screen", "role", caller.Role, "user_id", caller.UserID, "signals", verdict.Signals)
		a.finish(span, caller, "blocked", 0)
		return ChatResponse{Answer: guardReply, Guarded: true}, nil
	}
	message = verdict.Message

	ctx = tools.WithCaller(ctx, caller)
	available := a.registry.ForRole(caller.Role)
	defs := make([]ToolDefinition, 0, len(available))
	for _, t := range available {
		defs = append(defs, ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}

	system := BuildSystemPrompt(caller, a.hours.CurrentTime())
	turn := append(append(make([]ChatMessage, 0, len(req.History)+1), req.History...), ChatMessage{Role: ChatRoleUser, Content: message})
	transcript := sanitizeHistory(turn)

	var resp ChatResponse
	var lastProse string
	for round := 1; round <= a.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			a.finish(span, caller, "cancelled", resp.Rounds)
			return resp, err
		}
		resp.Rounds = round

		out, err := a.complete(ctx, round, LLMRequest{
			Model:       a.cfg.Model,
			System:      system,
			Messages:    transcript,
			Tools:       defs,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				a.finish(span, caller, "cancelled", round)
				return resp, ctxErr
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "provider error")
			a.finish(span, caller, "provider_error", round)
			return resp, fmt.Errorf("conversation: provider request failed: %w", err)
		}
		if out.Text != "" {
			lastProse = out.Text
		}
		if len(out.ToolCalls) == 0 {
			a.screenAnswer(&resp, caller, out.Text)
			a.finish(span, caller, "answered", round)
			return resp, nil
		}

		calls := assignCallIDs(out.ToolCalls, round)
		transcript = append(transcript, ChatMessage{Role: ChatRoleAssistant, Content: out.Text, ToolCalls: calls})

		records := a.executeTools(ctx, caller, calls)
		for _, rec := range records {
			transcript = append(transcript, ChatMessage{
				Role:       ChatRoleTool,
				Content:    rec.Result,
				ToolCallID: rec.ID,
				ToolName:   rec.Name,
				IsError:    rec.Err != "",
			})
		}
		resp.ToolCalls = append(resp.ToolCalls, records...)
	}

	resp.Capped = true
	a.screenAnswer(&resp, caller, lastProse)
	a.logger.Warn("agent round limit reached", "role", caller.Role, "rounds", resp.Rounds)
	a.finish(span, caller, "capped", resp.Rounds)
	return resp, nil
}

func (a *Agent) complete(ctx context.Context, round int, req LLMRequest) (LLMResponse, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.round")
	defer span.End()
	span.SetAttributes(attribute.Int("medbook.round", round))

	started := time.Now()
	out, err := a.llm.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	a.metrics.ObserveLLMLatency(a.cfg.Provider, status, time.Since(started).Seconds())
	a.logger.Debug("llm round complete", "round", round, "status", status, "tool_calls", len(out.ToolCalls),
		"input_tokens", out.Usage.InputTokens, "output_tokens", out.Usage.OutputTokens)
	return out, err
}

func (a *Agent) executeTools(ctx context.Context, caller tools.Caller, calls []ToolCall) []ToolCallRecord {
	records := make([]ToolCallRecord, len(calls))
	var g errgroup.Group
	g.SetLimit(a.cfg.MaxParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			records[i] = a.executeTool(ctx, caller, call)
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (a *Agent) executeTool(ctx context.Context, caller tools.Caller, call ToolCall) (rec ToolCallRecord) {
	rec = ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	fail := func(status string, err error) ToolCallRecord {
		rec.Err = err.Error()
		rec.Result = "Error: " + err.Error()
		a.metrics.ObserveToolCall(call.Name, status)
		a.logger.Warn("tool call failed", "tool", call.Name, "role", caller.Role, "error", err)
		return rec
	}
	defer func() {
		if r := recover(); r != nil {
			rec = fail("panic", fmt.Errorf("tool %s panicked: %v", call.Name, r))
		}
	}()

	tool, err := a.registry.Lookup(caller.Role, call.Name)
	if err != nil {
		return fail("forbidden", err)
	}
	if err := ctx.Err(); err != nil {
		return fail("cancelled", err)
	}
	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		return fail("error", err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fail("error", fmt.Errorf("encode result: %w", err))
	}
	if len(payload) > maxToolResultBytes {
		cut := maxToolResultBytes
		for cut > 0 && !utf8.RuneStart(payload[cut]) {
			cut--
		}
		payload = append(payload[:cut], []byte("…")...)
	}
	rec.Result = string(payload)
	a.metrics.ObserveToolCall(call.Name, "ok")
	a.logger.Info("tool call executed", "tool", call.Name, "role", caller.Role)
	return rec
}

func (a *Agent) screenAnswer(resp *ChatResponse, caller tools.Caller, answer string) {
	v := ScreenOutput(caller.Role, answer)
	if v.Leaked {
		a.logger.Warn("answer replaced by output screen", "role", caller.Role, "signals", v.Signals)
		resp.Guarded = true
	}
	resp.Answer = v.Answer
}

func (a *Agent) finish(span interface{ SetAttributes(...attribute.KeyValue) }, caller tools.Caller, outcome string, rounds int) {
	span.SetAttributes(attribute.String("medbook.turn_outcome", outcome), attribute.Int("medbook.rounds", rounds))
	a.metrics.ObserveTurn(string(caller.Role), outcome, rounds)
}

// sanitizeHistory keeps prior user and assistant prose only. Tool traffic
// from earlier turns is not replayed. The result starts with a user turn and
// alternates roles: leading assistant turns (a UI greeting) are dropped and
// adjacent turns of the same role are joined.
func sanitizeHistory(history []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if m.Role != ChatRoleUser && m.Role != ChatRoleAssistant {
			continue
		}
		if len(out) == 0 && m.Role == ChatRoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + content
			continue
		}
		out = append(out, ChatMessage{Role: m.Role, Content: content})
	}
	return out
}

func assignCallIDs(calls []ToolCall, round int) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		if strings.TrimSpace(c.ID) == "" {
			c.ID = fmt.Sprintf("call_%d_%d", round, i+1)
		}
		if c.Arguments == nil {
			c.Arguments = map[string]any{}
		}
		out[i] = c
	}
	return out
}
