package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/medbook-agent/internal/tools"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

const maxChatBodyBytes = 1 << 20

// Runner is the part of Agent the HTTP handler needs.
type Runner interface {
	Run(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Handler wires HTTP chat requests to the agent.
type Handler struct {
	agent  Runner
	logger *logging.Logger
}

// NewHandler creates a chat handler.
func NewHandler(agent Runner, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{agent: agent, logger: logger}
}

type historyItem struct {
	Role    string `json:"role"`
	Text    string `json:"text"`
	Content string `json:"content"`
}

// chatRequestBody accepts prior turns as history, or as messages from the
// bundled web UI.
type chatRequestBody struct {
	Message  string        `json:"message"`
	History  []historyItem `json:"history"`
	Messages []historyItem `json:"messages"`
}

type chatResponseBody struct {
	Answer  string `json:"answer"`
	Reply   string `json:"reply"`
	Rounds  int    `json:"rounds"`
	Capped  bool   `json:"capped"`
	Guarded bool   `json:"guarded,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Chat handles POST /agent/chat. The caller comes from the identity
// middleware, never from the body.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	caller, ok := tools.CallerFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}

	var body chatRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&body); err != nil {
		h.logger.Warn("failed to decode chat request", "error", err)
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	message := strings.TrimSpace(body.Message)
	if message == "" {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "message is required"})
		return
	}

	prior := body.History
	if len(prior) == 0 {
		prior = body.Messages
	}
	resp, err := h.agent.Run(r.Context(), ChatRequest{
		Message: message,
		History: historyFromBody(prior),
		Caller:  caller,
	})
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			h.logger.Info("chat turn cancelled", "user_id", caller.UserID, "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "request cancelled"})
		case errors.Is(err, ErrUnknownRole):
			h.writeJSON(w, http.StatusForbidden, errorBody{Error: "role not permitted"})
		default:
			h.logger.Error("chat turn failed", "user_id", caller.UserID, "role", caller.Role, "error", err)
			h.writeJSON(w, http.StatusBadGateway, errorBody{Error: "the assistant is temporarily unavailable"})
		}
		return
	}

	h.writeJSON(w, http.StatusOK, chatResponseBody{
		Answer:  resp.Answer,
		Reply:   resp.Answer,
		Rounds:  resp.Rounds,
		Capped:  resp.Capped,
		Guarded: resp.Guarded,
	})
}

func historyFromBody(items []historyItem) []ChatMessage {
	out := make([]ChatMessage, 0, len(items))
	for _, item := range items {
		text := item.Text
		if strings.TrimSpace(text) == "" {
			text = item.Content
		}
		var role string
		switch strings.ToLower(strings.TrimSpace(item.Role)) {
		case "user":
			role = ChatRoleUser
		case "assistant", "model", "ai":
			role = ChatRoleAssistant
		default:
			continue
		}
		out = append(out, ChatMessage{Role: role, Content: text})
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
