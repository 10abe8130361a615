package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/medbook-agent/internal/config"
	"github.com/wolfman30/medbook-agent/internal/conversation"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

// ErrNoLLMProvider is returned when neither Bedrock nor Gemini is configured.
var ErrNoLLMProvider = errors.New("bootstrap: no LLM provider configured")

// LLMClients is the provider chain handed to the agent. Close releases the
// Gemini client when one was built.
type LLMClients struct {
	Client   conversation.LLMClient
	Provider string
	close    func() error
}

func (c LLMClients) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// BuildLLMClients wires the configured provider first and the other one, if
// it has credentials, as fallback. awsCfg may be nil when Bedrock is unused.
func BuildLLMClients(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (LLMClients, error) {
	if cfg == nil {
		return LLMClients{}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var bedrock, gemini conversation.LLMClient
	var closeGemini func() error
	if strings.TrimSpace(cfg.BedrockModelID) != "" && awsCfg != nil {
		bedrock = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return LLMClients{}, err
		}
		gemini = client
		closeGemini = client.Close
	}

	primary, fallback, provider := bedrock, gemini, "bedrock"
	if cfg.LLMProvider == "gemini" {
		primary, fallback, provider = gemini, bedrock, "gemini"
	}
	if primary == nil {
		primary, fallback = fallback, nil
		if primary == nil {
			return LLMClients{}, ErrNoLLMProvider
		}
		provider = otherProvider(provider)
		logger.Warn("configured LLM provider unavailable; using the other one", "requested", cfg.LLMProvider, "provider", provider)
	}

	out := LLMClients{Client: primary, Provider: provider, close: closeGemini}
	if fallback != nil {
		out.Client = conversation.NewFallbackLLMClient(primary, fallback, logger)
		logger.Info("LLM fallback enabled", "primary", provider, "fallback", otherProvider(provider))
	}
	return out, nil
}

func otherProvider(p string) string {
	if p == "gemini" {
		return "bedrock"
	}
	return "gemini"
}

// AgentConfig maps the agent settings from config.
func AgentConfig(cfg *appconfig.Config, provider string) conversation.AgentConfig {
	return conversation.AgentConfig{
		Provider:         provider,
		MaxRounds:        cfg.AgentMaxRounds,
		MaxParallelTools: cfg.AgentMaxParallelTools,
		MaxTokens:        int32(cfg.LLMMaxTokens),
		Temperature:      float32(cfg.LLMTemperature),
	}
}
