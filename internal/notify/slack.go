package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/wolfman30/medbook-agent/pkg/logging"
)

// ChatNotifier delivers a free-form report to a person identified by email.
type ChatNotifier interface {
	Notify(ctx context.Context, recipientEmail, content string) error
}

// SlackError is a Web API failure reported with ok=false.
type SlackError struct {
	Code string
}

func (e *SlackError) Error() string {
	return "notify: slack api error: " + e.Code
}

var slackErrorMessages = map[string]string{
	"users_not_found": "The email is not associated with any Slack account in this workspace.",
	"invalid_auth":    "Slack authentication failed. Please check the Bot Token.",
	"ratelimited":     "Slack API rate limit exceeded. Try again later.",
}

// Message is a human-readable explanation suitable for the agent.
func (e *SlackError) Message() string {
	if msg, ok := slackErrorMessages[e.Code]; ok {
		return msg
	}
	return "Slack API Error: " + e.Code
}

// DescribeChatError turns a notifier error into text safe to show a user.
func DescribeChatError(err error) string {
	var slackErr *SlackError
	if errors.As(err, &slackErr) {
		return slackErr.Message()
	}
	return err.Error()
}

// ChatErrorCode returns the provider error code, or "" for transport errors.
func ChatErrorCode(err error) string {
	var slackErr *SlackError
	if errors.As(err, &slackErr) {
		return slackErr.Code
	}
	return ""
}

// SlackConfig configures the Slack Web API notifier. BaseURL and HTTPClient
// are for tests.
type SlackConfig struct {
	BotToken   string
	BaseURL    string
	HTTPClient *http.Client
}

// SlackNotifier sends direct messages through the Slack Web API.
type SlackNotifier struct {
	api    *slack.Client
	logger *logging.Logger
}

// NewSlackNotifier creates a Slack notifier.
func NewSlackNotifier(cfg SlackConfig, logger *logging.Logger) (*SlackNotifier, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	opts := []slack.Option{slack.OptionHTTPClient(client)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimRight(base, "/")+"/"))
	}
	return &SlackNotifier{api: slack.New(cfg.BotToken, opts...), logger: logger}, nil
}

// Notify looks the recipient up by email and DMs them a report block.
func (s *SlackNotifier) Notify(ctx context.Context, recipientEmail, content string) error {
	user, err := s.api.GetUserByEmailContext(ctx, recipientEmail)
	if err != nil {
		return s.apiError("users.lookupByEmail", err)
	}
	if user == nil || user.ID == "" {
		return &SlackError{Code: "users_not_found"}
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Appointment Summary Report", false, false)),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Recipient:* %s\n\n%s", recipientEmail, content), false, false),
			nil, nil,
		),
		slack.NewDividerBlock(),
	}
	if _, _, err := s.api.PostMessageContext(ctx, user.ID,
		slack.MsgOptionText("New Clinical Report", false),
		slack.MsgOptionBlocks(blocks...),
	); err != nil {
		return s.apiError("chat.postMessage", err)
	}
	s.logger.Info("slack report delivered", "recipient", recipientEmail)
	return nil
}

// apiError maps slack-go failures onto SlackError codes. Transport failures
// are wrapped unchanged.
func (s *SlackNotifier) apiError(method string, err error) error {
	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		s.logger.Warn("slack api error", "method", method, "code", apiErr.Err)
		return &SlackError{Code: apiErr.Err}
	}
	var limited *slack.RateLimitedError
	if errors.As(err, &limited) {
		s.logger.Warn("slack rate limited", "method", method, "retry_after", limited.RetryAfter)
		return &SlackError{Code: "ratelimited"}
	}
	return fmt.Errorf("notify: slack %s: %w", method, err)
}

// StubChatNotifier logs reports instead of delivering them.
type StubChatNotifier struct {
	logger *logging.Logger
	mu     sync.Mutex
	sent   []string
}

func NewStubChatNotifier(logger *logging.Logger) *StubChatNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubChatNotifier{logger: logger}
}

func (s *StubChatNotifier) Notify(ctx context.Context, recipientEmail, content string) error {
	s.logger.Info("stub chat notifier: would send report", "recipient", recipientEmail, "length", len(content))
	s.mu.Lock()
	s.sent = append(s.sent, recipientEmail+": "+content)
	s.mu.Unlock()
	return nil
}

// Sent returns "recipient: content" for every report.
func (s *StubChatNotifier) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

var (
	_ ChatNotifier = (*SlackNotifier)(nil)
	_ ChatNotifier = (*StubChatNotifier)(nil)
)
