package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"dwagent/pkg/taxonomy"
	"dwagent/pkg/tools"
)

const providerGoogle = "google"

// GoogleClient wraps the Google GenAI client to implement LLMClient.
// Client creation needs a context, so it is deferred to the first Complete.
type GoogleClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGoogleClient creates a raw Gemini client; middleware is applied at a
// higher level.
func NewGoogleClient(apiKey, model string) LLMClient {
	return &GoogleClient{apiKey: apiKey, model: model}
}

// convertMessagesToGemini renders messages as Gemini contents plus an
// optional system instruction. Gemini uses "model" where others say
// "assistant".
func convertMessagesToGemini(messages []CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content
	for i := range messages {
		msg := &messages[i]
		if msg.Role == RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n"
			}
			systemInstruction += msg.Content
			continue
		}

		var role string
		switch msg.Role {
		case RoleUser:
			role = "user"
		case RoleAssistant:
			role = "model"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	return contents, systemInstruction, nil
}

// convertToolsToGemini converts tool definitions to Gemini function
// declarations.
func convertToolsToGemini(toolDefs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(toolDefs))
	for i := range toolDefs {
		tool := &toolDefs[i]
		properties := make(map[string]*genai.Schema, len(tool.InputSchema.Properties))
		for name, prop := range tool.InputSchema.Properties {
			schema := &genai.Schema{Description: prop.Description}
			switch prop.Type {
			case "number":
				schema.Type = genai.TypeNumber
			case "integer":
				schema.Type = genai.TypeInteger
			case "boolean":
				schema.Type = genai.TypeBoolean
			case "array":
				schema.Type = genai.TypeArray
			case "object":
				schema.Type = genai.TypeObject
			default:
				schema.Type = genai.TypeString
			}
			if len(prop.Enum) > 0 {
				schema.Enum = prop.Enum
			}
			properties[name] = schema
		}
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.InputSchema.Required,
			},
		}
	}
	return declarations
}

// Complete implements the LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (g *GoogleClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return CompletionResponse{}, classifyProviderError(providerGoogle, err)
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		e := taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "message conversion error")
		e.Tool = providerGoogle
		return CompletionResponse{}, e
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	//nolint:gosec // MaxTokens bounded by config
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: int32(maxTokens),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	if len(in.Tools) > 0 {
		config.Tools = []*genai.Tool{
			{FunctionDeclarations: convertToolsToGemini(in.Tools)},
		}
		// Gemini may return empty responses when not forced to use tools,
		// so mode ANY whenever tools are supplied.
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return CompletionResponse{}, classifyProviderError(providerGoogle, err)
	}
	if result == nil {
		e := taxonomy.NewError(taxonomy.ErrorTypeTransient, "empty response from Gemini API")
		e.Tool = providerGoogle
		return CompletionResponse{}, e
	}

	response := CompletionResponse{
		Content:    result.Text(),
		StopReason: "end_turn",
	}
	if calls := result.FunctionCalls(); len(calls) > 0 {
		toolCalls := make([]ToolCall, len(calls))
		for i, call := range calls {
			// Gemini omits call IDs; fall back to the function name so
			// results can be matched back.
			id := call.ID
			if id == "" {
				id = call.Name
			}
			toolCalls[i] = ToolCall{ID: id, Name: call.Name, Parameters: call.Args}
		}
		response.ToolCalls = toolCalls
	}

	return response, nil
}

// Stream implements the LLMClient interface by draining a Complete call.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (g *GoogleClient) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := g.Complete(ctx, in)
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
func (g *GoogleClient) GetModelName() string {
	return g.model
}
