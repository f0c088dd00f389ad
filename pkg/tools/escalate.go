package tools

import (
	"context"
	"strings"

	"dwagent/pkg/taxonomy"
)

// ToolRequestUserInput suspends the session pending a human answer.
const ToolRequestUserInput = "request_user_input"

func init() {
	Register(ToolMeta{Name: ToolRequestUserInput, Category: CategoryEscalation}, func(deps Deps) (Tool, error) {
		return &RequestUserInputTool{}, nil
	})
}

// RequestUserInputTool escalates an ambiguity or blocker to the user. It has
// no side effects of its own; the loop detects the await payload and suspends
// the session until the user answers.
type RequestUserInputTool struct{}

func (t *RequestUserInputTool) Name() string { return ToolRequestUserInput }

// Definition returns the tool definition for LLM.
func (t *RequestUserInputTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolRequestUserInput,
		Description: "Ask the user a question when requirements are ambiguous or a decision is outside your authority. The session suspends until the user answers. Include enough context for the user to answer without reading the transcript.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"question": {
					Type:        "string",
					Description: "The question for the user, with the context needed to answer it.",
				},
			},
			Required: []string{"question"},
		},
	}
}

// Validate checks arguments before the loop suspends on them.
func (t *RequestUserInputTool) Validate(args map[string]any) error {
	question, ok := args["question"].(string)
	if !ok || strings.TrimSpace(question) == "" {
		return taxonomy.Validationf("question is required and must be a non-empty string")
	}
	return nil
}

// Exec executes the tool with the given arguments.
func (t *RequestUserInputTool) Exec(_ context.Context, args map[string]any) (map[string]any, error) {
	if err := t.Validate(args); err != nil {
		return nil, err
	}
	question, _ := args["question"].(string)
	return map[string]any{
		KeyAwaitUser: true,
		KeyQuestion:  strings.TrimSpace(question),
	}, nil
}
