package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/wolfman30/medbook-agent/internal/tools"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiLLMClient implements LLMClient using Google's Gemini API with
// function calling.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string, opts ...option.ClientOption) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}
	return &GeminiLLMClient{client: client, modelID: modelID}, nil
}

// Complete sends the transcript to Gemini and returns text or function calls.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	modelID := c.modelID
	if strings.TrimSpace(req.Model) != "" {
		modelID = req.Model
	}
	model := c.client.GenerativeModel(modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if systemText := strings.TrimSpace(strings.Join(req.System, "\n\n")); systemText != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{geminiTool(req.Tools)}
	}

	contents := geminiContents(req.Messages)
	if len(contents) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini requires at least one message")
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	return geminiParseResponse(resp)
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// geminiContents maps the transcript onto user/model contents, merging
// adjacent turns of the same role. Tool results travel as function
// responses on the user side.
func geminiContents(messages []ChatMessage) []*genai.Content {
	var out []*genai.Content
	push := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case ChatRoleSystem:
			continue
		case ChatRoleAssistant:
			var parts []genai.Part
			if content != "" {
				parts = append(parts, genai.Text(content))
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Arguments})
			}
			push("model", parts...)
		case ChatRoleTool:
			push("user", genai.FunctionResponse{
				Name:     msg.ToolName,
				Response: map[string]any{"result": msg.Content},
			})
		default:
			if content != "" {
				push("user", genai.Text(content))
			}
		}
	}
	return out
}

func geminiTool(defs []ToolDefinition) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decl := &genai.FunctionDeclaration{Name: def.Name, Description: def.Description}
		// Gemini rejects object schemas without properties.
		if len(def.Parameters.Properties) > 0 {
			decl.Parameters = geminiSchema(def.Parameters)
		}
		decls = append(decls, decl)
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func geminiSchema(s tools.Schema) *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = &genai.Schema{
			Type:        geminiType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
	}
	return &genai.Schema{
		Type:        genai.TypeObject,
		Description: s.Description,
		Properties:  props,
		Required:    s.Required,
	}
}

func geminiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}

func geminiParseResponse(resp *genai.GenerateContentResponse) (LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned empty content")
	}

	var result LLMResponse
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args := p.Args
			if args == nil {
				args = map[string]any{}
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        "gemini-" + uuid.NewString(),
				Name:      p.Name,
				Arguments: args,
			})
		}
	}
	result.Text = strings.TrimSpace(text.String())
	result.StopReason = candidate.FinishReason.String()

	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}
