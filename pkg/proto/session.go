// Package proto defines the core data model shared across the engine:
// sessions, tool calls, tool results, and their status vocabularies.
package proto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	// StatusRunning indicates the session's reasoning loop is active.
	StatusRunning SessionStatus = "running"

	// StatusAwaitingInput indicates the session is suspended on an
	// escalation and resumes when an answer arrives.
	StatusAwaitingInput SessionStatus = "awaiting_input"

	// StatusCompleted indicates all phases finished.
	StatusCompleted SessionStatus = "completed"

	// StatusAborted indicates an unrecoverable failure terminated the session.
	StatusAborted SessionStatus = "aborted"

	// StatusTimedOut indicates the iteration cap was reached.
	StatusTimedOut SessionStatus = "timed_out"
)

// Terminal reports whether the status ends the session's reasoning loop.
// AwaitingInput is a suspension, not a terminal state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusAborted, StatusTimedOut:
		return true
	case StatusRunning, StatusAwaitingInput:
		return false
	}
	return false
}

// Session is the unit of work the engine drives. It is owned exclusively by
// one reasoning loop for its lifetime. Callers hand it around by pointer;
// only the owning loop mutates it.
type Session struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id,omitempty"`
	Phase         int           `json:"phase"`
	Iteration     int           `json:"iteration"`
	StartedAt     time.Time     `json:"started_at"`
	Status        SessionStatus `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	FailureStep   string        `json:"failure_step,omitempty"`
	TokensUsed    int           `json:"tokens_used"`

	// PendingQuestion holds the escalation question while the session is
	// awaiting input.
	PendingQuestion string `json:"pending_question,omitempty"`
}

// NewSession creates a running session at phase 0.
func NewSession(userID string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Phase:     0,
		Iteration: 0,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}
}

// Namespace returns the session-scoped memory namespace.
func (s *Session) Namespace() string {
	return "session:" + s.ID
}

// UserNamespace returns the shared per-user memory namespace, or "" when the
// session has no user identity.
func (s *Session) UserNamespace() string {
	if s.UserID == "" {
		return ""
	}
	return "user:" + s.UserID
}

// ResultStatus classifies the outcome of a tool invocation.
type ResultStatus string

const (
	// ResultOK indicates the tool executed the action successfully.
	ResultOK ResultStatus = "ok"

	// ResultTransient indicates a connectivity or timeout failure that may
	// succeed on retry.
	ResultTransient ResultStatus = "transient_error"

	// ResultSemantic indicates the collaborator rejected the action as
	// invalid. Never retried automatically.
	ResultSemantic ResultStatus = "semantic_error"

	// ResultFatal indicates an unrecoverable structural failure.
	ResultFatal ResultStatus = "fatal_error"
)

// ToolCall encodes exactly one atomic external action. Created by the
// reasoning loop, consumed by the gateway.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// NewToolCall creates a tool call with a fresh id.
func NewToolCall(name string, args map[string]any) ToolCall {
	return ToolCall{
		ID:   uuid.New().String(),
		Name: name,
		Args: args,
	}
}

// StringArg extracts a required string argument from the call.
func (c *ToolCall) StringArg(key string) (string, error) {
	raw, ok := c.Args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	str, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return str, nil
}

// ToolResult is the immutable outcome of a dispatched tool call.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Status   ResultStatus   `json:"status"`
	Payload  map[string]any `json:"payload,omitempty"`
	Error    string         `json:"error,omitempty"`
	Attempts int            `json:"attempts"`
	Duration time.Duration  `json:"duration_ns"`
}

// OK reports whether the invocation succeeded.
func (r *ToolResult) OK() bool {
	return r.Status == ResultOK
}
