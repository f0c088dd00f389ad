package persistence

import (
	"time"
)

// MemoryRecord is a stored long-term memory row. Records are append-only;
// superseding records are inserted, never patched in place.
//
//nolint:govet // struct alignment optimization not critical for this type
type MemoryRecord struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Strategy  string    `json:"strategy"` // semantic | summary | preference
	Key       string    `json:"key,omitempty"`
	Content   string    `json:"content"`
	VectorID  string    `json:"vector_id,omitempty"`
}

// Memory strategy constants.
const (
	StrategySemantic   = "semantic"
	StrategySummary    = "summary"
	StrategyPreference = "preference"
)

// ProgressRow is a persisted progress entry. Rows are append-only and never
// deleted; they are the source of truth for resuming a session.
//
//nolint:govet // struct alignment optimization not critical for this type
type ProgressRow struct {
	CreatedAt time.Time `json:"created_at"`
	Seq       int64     `json:"seq"`
	SessionID string    `json:"session_id"`
	Iteration int       `json:"iteration"`
	Phase     int       `json:"phase"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	ToolName  string    `json:"tool_name,omitempty"`
	Attempts  int       `json:"attempts"`
	Detail    string    `json:"detail,omitempty"`
}

// ProgressStatusInfo marks non-tool annotations (phase advances, escalations).
const ProgressStatusInfo = "info"
