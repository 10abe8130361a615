package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/medbook-agent/internal/calendar"
	appconfig "github.com/wolfman30/medbook-agent/internal/config"
	"github.com/wolfman30/medbook-agent/internal/notify"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

// BuildEmailSender returns the confirmation mail sender for EMAIL_PROVIDER.
// Missing credentials fall back to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		if awsCfg != nil && cfg.EmailFrom != "" {
			logger.Info("email provider configured", "provider", "ses")
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.EmailFrom,
				FromName:  cfg.EmailFromName,
			}, logger)
		}
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			logger.Info("email provider configured", "provider", "sendgrid")
			return sender
		}
	}
	if cfg.EmailProvider != "stub" {
		logger.Warn("email provider not usable; confirmation emails are logged only", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger)
}

// BuildCalendar returns the Google Calendar client when a service account is
// configured.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) calendar.Creator {
	if strings.TrimSpace(cfg.GoogleServiceAccountJSON) == "" {
		logger.Warn("GOOGLE_SERVICE_ACCOUNT_JSON not set; calendar events are logged only")
		return calendar.NewStub(logger)
	}
	gc, err := calendar.NewGoogleCalendar(ctx, calendar.GoogleConfig{
		ServiceAccount: cfg.GoogleServiceAccountJSON,
		CalendarID:     cfg.GoogleCalendarID,
		Timezone:       cfg.ClinicTimezone,
	}, logger)
	if err != nil {
		logger.Error("google calendar unavailable; calendar events are logged only", "error", err)
		return calendar.NewStub(logger)
	}
	return gc
}

// BuildChatNotifier returns the Slack notifier, or nil without a bot token so
// report delivery answers with a configuration error.
func BuildChatNotifier(cfg *appconfig.Config, logger *logging.Logger) notify.ChatNotifier {
	if strings.TrimSpace(cfg.SlackBotToken) == "" {
		logger.Warn("SLACK_BOT_TOKEN not set; summary delivery disabled")
		return nil
	}
	n, err := notify.NewSlackNotifier(notify.SlackConfig{BotToken: cfg.SlackBotToken}, logger)
	if err != nil {
		logger.Error("slack notifier unavailable", "error", err)
		return nil
	}
	return n
}
