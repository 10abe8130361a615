package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/medbook-agent/internal/config"
	"github.com/wolfman30/medbook-agent/internal/conversation"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

func TestBuildLLMClientsRequiresConfig(t *testing.T) {
	if _, err := BuildLLMClients(context.Background(), nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildLLMClientsNoProvider(t *testing.T) {
	_, err := BuildLLMClients(context.Background(), &appconfig.Config{LLMProvider: "bedrock"}, nil, logging.Discard())
	if !errors.Is(err, ErrNoLLMProvider) {
		t.Fatalf("expected ErrNoLLMProvider, got %v", err)
	}
}

func TestBuildLLMClientsBedrockOnly(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "bedrock", BedrockModelID: "anthropic.claude-3-haiku"}
	clients, err := BuildLLMClients(context.Background(), cfg, &aws.Config{Region: "us-east-1"}, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clients.Provider != "bedrock" {
		t.Fatalf("expected bedrock provider, got %q", clients.Provider)
	}
	if _, ok := clients.Client.(*conversation.BedrockLLMClient); !ok {
		t.Fatalf("expected bare bedrock client, got %T", clients.Client)
	}
	if err := clients.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBuildLLMClientsSwitchesWhenRequestedProviderMissing(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "gemini", BedrockModelID: "anthropic.claude-3-haiku"}
	clients, err := BuildLLMClients(context.Background(), cfg, &aws.Config{Region: "us-east-1"}, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clients.Provider != "bedrock" {
		t.Fatalf("expected bedrock when gemini has no key, got %q", clients.Provider)
	}
}

func TestAgentConfigFromConfig(t *testing.T) {
	cfg := &appconfig.Config{AgentMaxRounds: 3, AgentMaxParallelTools: 2, LLMMaxTokens: 800, LLMTemperature: 0.2}
	ac := AgentConfig(cfg, "gemini")
	if ac.MaxRounds != 3 || ac.MaxParallelTools != 2 || ac.MaxTokens != 800 || ac.Provider != "gemini" {
		t.Fatalf("unexpected agent config %#v", ac)
	}
}
