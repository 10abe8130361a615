package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type BedrockLLMClient struct {
	api     bedrockConverseAPI
	modelID string
}

// NewBedrockLLMClient uses modelID whenever a request leaves Model blank.
func NewBedrockLLMClient(api bedrockConverseAPI, modelID string) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api, modelID: strings.TrimSpace(modelID)}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		req.Model = c.modelID
	}
	if req.Model == "" {
		return LLMResponse{}, errors.New("conversation: bedrock model id is required")
	}

	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	messages, extraSystem, err := bedrockMessages(req.Messages)
	if err != nil {
		return LLMResponse{}, err
	}
	systemBlocks = append(systemBlocks, extraSystem...)

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	// Negative temperature leaves the provider default.
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP != 0 {
		inference.TopP = aws.Float32(req.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		inference = nil
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: inference,
		ToolConfig:      bedrockToolConfig(req.Tools),
	})
	if err != nil {
		return LLMResponse{}, err
	}

	resp, err := bedrockParseOutput(out)
	if err != nil {
		return LLMResponse{}, err
	}
	if out.StopReason != "" {
		resp.StopReason = string(out.StopReason)
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

// bedrockMessages converts the transcript. Consecutive tool results are
// folded into one user message, as Converse requires.
func bedrockMessages(in []ChatMessage) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	messages := make([]brtypes.Message, 0, len(in))
	for _, msg := range in {
		content := strings.TrimSpace(msg.Content)

		switch msg.Role {
		case ChatRoleSystem:
			if content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: content})
			}
		case ChatRoleUser:
			if content == "" {
				continue
			}
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: content}},
			})
		case ChatRoleAssistant:
			// Converse rejects a conversation that opens with an assistant turn.
			if len(messages) == 0 {
				continue
			}
			var blocks []brtypes.ContentBlock
			if content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: content})
			}
			for _, call := range msg.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(call.ID),
					Name:      aws.String(call.Name),
					Input:     document.NewLazyDocument(args),
				}})
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
		case ChatRoleTool:
			status := brtypes.ToolResultStatusSuccess
			if msg.IsError {
				status = brtypes.ToolResultStatusError
			}
			block := &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(msg.ToolCallID),
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: msg.Content}},
				Status:    status,
			}}
			if n := len(messages); n > 0 && messages[n-1].Role == brtypes.ConversationRoleUser && isToolResultMessage(messages[n-1]) {
				messages[n-1].Content = append(messages[n-1].Content, block)
				continue
			}
			messages = append(messages, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: []brtypes.ContentBlock{block}})
		default:
			return nil, nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}
	return messages, system, nil
}

func isToolResultMessage(m brtypes.Message) bool {
	for _, block := range m.Content {
		if _, ok := block.(*brtypes.ContentBlockMemberToolResult); !ok {
			return false
		}
	}
	return len(m.Content) > 0
}

func bedrockToolConfig(defs []ToolDefinition) *brtypes.ToolConfiguration {
	if len(defs) == 0 {
		return nil
	}
	specs := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(def.Name),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(def.Parameters.Map())},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: specs}
}

func bedrockParseOutput(out *bedrockruntime.ConverseOutput) (LLMResponse, error) {
	if out == nil {
		return LLMResponse{}, errors.New("conversation: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return LLMResponse{}, errors.New("conversation: bedrock response did not include a message output")
	}
	if len(msgOut.Value.Content) == 0 {
		return LLMResponse{}, errors.New("conversation: bedrock response message was empty")
	}

	var resp LLMResponse
	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			builder.WriteString(b.Value)
		case *brtypes.ContentBlockMemberToolUse:
			args := map[string]any{}
			if b.Value.Input != nil {
				if err := b.Value.Input.UnmarshalSmithyDocument(&args); err != nil {
					return LLMResponse{}, fmt.Errorf("conversation: bedrock tool input decode: %w", err)
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: args,
			})
		}
	}
	resp.Text = strings.TrimSpace(builder.String())
	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		return LLMResponse{}, errors.New("conversation: bedrock response contained no text or tool use")
	}
	return resp, nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
