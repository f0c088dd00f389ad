package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"dwagent/pkg/taxonomy"
	"dwagent/pkg/tools"
)

const providerOpenAI = "openai"

// OpenAIClient wraps the official OpenAI Go client, talking to the Responses
// API, to implement LLMClient.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a raw OpenAI client; middleware is applied at a
// higher level.
func NewOpenAIClient(apiKey, model string) LLMClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// convertPropertySchema renders one argument property as a JSON-schema map.
func convertPropertySchema(prop *tools.Property) map[string]any {
	schema := map[string]any{"type": prop.Type}
	if prop.Description != "" {
		schema["description"] = prop.Description
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	return schema
}

// Complete implements the LLMClient interface via the Responses API.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (o *OpenAIClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	// The Responses API takes a single input string; fold the conversation
	// into one transcript with role prefixes.
	var input string
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case RoleSystem:
			input += fmt.Sprintf("System: %s\n\n", msg.Content)
		case RoleAssistant:
			input += fmt.Sprintf("Assistant: %s\n\n", msg.Content)
		default:
			input += msg.Content + "\n\n"
		}
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	if len(in.Tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			props := make(map[string]any, len(tool.InputSchema.Properties))
			for name, prop := range tool.InputSchema.Properties {
				props[name] = convertPropertySchema(&prop)
			}
			toolParams[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters: openai.FunctionParameters(map[string]any{
						"type":       "object",
						"properties": props,
						"required":   tool.InputSchema.Required,
					}),
				},
			}
		}
		params.Tools = toolParams
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, classifyProviderError(providerOpenAI, err)
	}
	if resp == nil {
		e := taxonomy.NewError(taxonomy.ErrorTypeTransient, "empty response from OpenAI Responses API")
		e.Tool = providerOpenAI
		return CompletionResponse{}, e
	}

	var toolCalls []ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()
		var args map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				continue
			}
		}
		toolCalls = append(toolCalls, ToolCall{ID: call.ID, Name: call.Name, Parameters: args})
	}

	return CompletionResponse{
		Content:   resp.OutputText(),
		ToolCalls: toolCalls,
	}, nil
}

// Stream implements the LLMClient interface by draining a Complete call.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (o *OpenAIClient) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := o.Complete(ctx, in)
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
func (o *OpenAIClient) GetModelName() string {
	return o.model
}
