package tools

import (
	"context"
	"strings"

	"dwagent/pkg/taxonomy"
)

// ToolUpdateProgress records a narrative progress annotation and, optionally,
// phase completion facts the reasoner has established.
const ToolUpdateProgress = "update_progress"

func init() {
	Register(ToolMeta{Name: ToolUpdateProgress, Category: CategoryProgress}, func(deps Deps) (Tool, error) {
		return &UpdateProgressTool{}, nil
	})
}

// UpdateProgressTool lets the reasoner annotate the progress record between
// structural actions. The loop persists the note and folds any facts into the
// current phase's completion state.
type UpdateProgressTool struct{}

func (t *UpdateProgressTool) Name() string { return ToolUpdateProgress }

// Definition returns the tool definition for LLM.
func (t *UpdateProgressTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolUpdateProgress,
		Description: "Record a progress note for the audit trail. Optionally assert phase completion facts you have verified through earlier tool results, such as sources_cataloged after discovery or quality_checks_passed after validation queries.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"note": {
					Type:        "string",
					Description: "Short description of what was just accomplished or decided.",
				},
				"facts": {
					Type:        "object",
					Description: "Optional boolean facts asserting phase completion criteria, keyed by fact name.",
				},
				"phase": {
					Type:        "integer",
					Description: "Optional phase ordinal this step belongs to. Steps targeting a future phase are rejected.",
				},
			},
			Required: []string{"note"},
		},
	}
}

// Validate checks arguments before anything is recorded.
func (t *UpdateProgressTool) Validate(args map[string]any) error {
	note, ok := args["note"].(string)
	if !ok || strings.TrimSpace(note) == "" {
		return taxonomy.Validationf("note is required and must be a non-empty string")
	}
	if raw, ok := args["facts"]; ok {
		facts, ok := raw.(map[string]any)
		if !ok {
			return taxonomy.Validationf("facts must be an object of boolean values")
		}
		for k, v := range facts {
			if _, ok := v.(bool); !ok {
				return taxonomy.Validationf("fact %q must be a boolean", k)
			}
		}
	}
	return nil
}

// Exec executes the tool with the given arguments.
func (t *UpdateProgressTool) Exec(_ context.Context, args map[string]any) (map[string]any, error) {
	if err := t.Validate(args); err != nil {
		return nil, err
	}
	note, _ := args["note"].(string)

	payload := map[string]any{
		"note":     strings.TrimSpace(note),
		"recorded": true,
	}
	if raw, ok := args["facts"].(map[string]any); ok && len(raw) > 0 {
		facts := make(map[string]bool, len(raw))
		for k, v := range raw {
			facts[k] = v.(bool)
		}
		payload[KeyFacts] = facts
	}
	return payload, nil
}
