package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"dwagent/pkg/taxonomy"
)

const providerAnthropic = "anthropic"

// AnthropicClient wraps the Anthropic API client to implement LLMClient.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient creates a raw Anthropic client; middleware is applied at
// a higher level.
func NewAnthropicClient(apiKey, model string) LLMClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for the Anthropic API:
// system messages move to the top-level system parameter, consecutive user
// messages merge into one, and the sequence must start and end with a user
// message.
func ensureAlternation(messages []CompletionMessage) (systemPrompt string, alternating []CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var rest []CompletionMessage
	for i := range messages {
		msg := &messages[i]
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			rest = append(rest, *msg)
		}
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var merged []CompletionMessage
	var userParts []string
	var userCache *CacheControl

	flush := func() {
		if len(userParts) > 0 {
			merged = append(merged, CompletionMessage{
				Role:         RoleUser,
				Content:      strings.Join(userParts, "\n\n"),
				CacheControl: userCache,
			})
			userParts = nil
			userCache = nil
		}
	}

	for i := range rest {
		msg := &rest[i]
		if msg.Role == RoleAssistant {
			flush()
			merged = append(merged, *msg)
			continue
		}
		userParts = append(userParts, msg.Content)
		// Anthropic only caches the last marked block.
		if msg.CacheControl != nil {
			userCache = msg.CacheControl
		}
	}
	flush()

	if merged[0].Role != RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got %s", merged[0].Role)
	}
	if merged[len(merged)-1].Role != RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got %s", merged[len(merged)-1].Role)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Role == merged[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, merged[i].Role)
		}
	}

	return systemPrompt, merged, nil
}

// Complete implements the LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (c *AnthropicClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		e := taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "message alternation error")
		e.Tool = providerAnthropic
		return CompletionResponse{}, e
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		param := anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		}
		if msg.CacheControl != nil {
			cache := anthropic.NewCacheControlEphemeralParam()
			switch msg.CacheControl.TTL {
			case "1h":
				cache.TTL = anthropic.CacheControlEphemeralTTLTTL1h
			case "5m":
				cache.TTL = anthropic.CacheControlEphemeralTTLTTL5m
			}
			block := anthropic.ContentBlockParamUnion{}
			block.OfText = &anthropic.TextBlockParam{
				Text:         msg.Content,
				Type:         "text",
				CacheControl: cache,
			}
			param.Content = []anthropic.ContentBlockParamUnion{block}
		}
		messages = append(messages, param)
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}

	if len(in.Tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			props := make(map[string]any, len(tool.InputSchema.Properties))
			for name, prop := range tool.InputSchema.Properties {
				propMap := map[string]any{"type": prop.Type}
				if prop.Description != "" {
					propMap["description"] = prop.Description
				}
				if len(prop.Enum) > 0 {
					propMap["enum"] = prop.Enum
				}
				props[name] = propMap
			}
			schema := anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: props,
				Required:   tool.InputSchema.Required,
			}
			toolParams = append(toolParams, anthropic.ToolUnionParamOfTool(schema, tool.Name))
		}
		params.Tools = toolParams

		switch in.ToolChoice {
		case "any":
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		default:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, classifyProviderError(providerAnthropic, err)
	}
	if resp == nil || len(resp.Content) == 0 {
		e := taxonomy.NewError(taxonomy.ErrorTypeTransient, "empty response from Anthropic API")
		e.Tool = providerAnthropic
		return CompletionResponse{}, e
	}

	var text string
	var toolCalls []ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			use := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(use.Input, &args); err != nil {
				e := taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "failed to parse tool input")
				e.Tool = providerAnthropic
				return CompletionResponse{}, e
			}
			toolCalls = append(toolCalls, ToolCall{ID: use.ID, Name: use.Name, Parameters: args})
		}
	}

	return CompletionResponse{
		Content:    text,
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
	}, nil
}

// Stream implements the LLMClient interface by draining a Complete call.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (c *AnthropicClient) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- StreamChunk{Error: err}
			return
		}
		ch <- StreamChunk{Content: resp.Content}
		ch <- StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (c *AnthropicClient) GetModelName() string {
	return string(c.model)
}
