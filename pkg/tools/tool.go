// Package tools provides the tool adapter contract, the sealed factory
// registry, and the adapter implementations each external collaborator is
// reached through.
package tools

import (
	"context"
)

// Tool is the uniform adapter contract. Each external collaborator (query
// executor, repository file tool, CI tool, documentation search, human
// escalation) implements exactly this surface.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string
	// Definition returns the tool's definition for the reasoner.
	Definition() ToolDefinition
	// Exec executes the tool with the given arguments. The arguments encode
	// exactly one atomic action; multi-action payloads are rejected upstream.
	Exec(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Validator is implemented by tools whose arguments can be checked before
// dispatch. Validate must be side-effect free; the gateway calls it ahead of
// Exec and rejects the call outright on error.
type Validator interface {
	Validate(args map[string]any) error
}

// ToolDefinition describes a tool in the reasoner's function-call format.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is a JSON-schema object describing a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property describes one argument in an input schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Payload keys adapters use to talk back to the engine.
const (
	// KeyFacts carries phase-completion facts observed by read-only calls:
	// a map of fact name to bool.
	KeyFacts = "facts"

	// KeyAwaitUser signals the loop to suspend the session until the human
	// escalation channel returns an answer.
	KeyAwaitUser = "await_user"

	// KeyQuestion carries the escalation question text.
	KeyQuestion = "question"

	// KeyPhase is the argument naming the phase ordinal a step targets. The
	// loop rejects steps aimed at a future phase before dispatch.
	KeyPhase = "phase"
)
