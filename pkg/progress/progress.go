// Package progress maintains the append-only record of everything a session
// does. Every entry is written before the next action is chosen, so a crashed
// session can be resumed from the record and an auditor can reconstruct the
// full history. Entries land in two places: the sqlite store (queryable,
// drives resume) and a daily rotated JSONL file (greppable audit trail).
package progress

import (
	"fmt"
	"time"

	"dwagent/pkg/logx"
	"dwagent/pkg/persistence"
	"dwagent/pkg/proto"
)

// Step names for non-tool entries.
const (
	StepSessionStarted = "session_started"
	StepSessionResumed = "session_resumed"
	StepPhaseAdvanced  = "phase_advanced"
	StepEscalated      = "escalated"
	StepUserAnswered   = "user_answered"
	StepNote           = "note"
	StepSessionEnded   = "session_ended"
)

// Entry is one progress record. Entries are immutable once recorded.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type Entry struct {
	Seq       int64     `json:"seq"`
	SessionID string    `json:"session_id"`
	Iteration int       `json:"iteration"`
	Phase     int       `json:"phase"`
	PhaseName string    `json:"phase_name"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	ToolName  string    `json:"tool_name,omitempty"`
	Attempts  int       `json:"attempts"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder appends progress entries for all sessions. Safe for concurrent
// use; the sqlite store serializes writes and the JSONL writer holds its own
// lock.
type Recorder struct {
	store  *persistence.Store
	writer *Writer
	logger *logx.Logger
}

// NewRecorder creates a recorder over the given store and audit log
// directory. Pass an empty logDir to skip the JSONL mirror.
func NewRecorder(store *persistence.Store, logDir string) (*Recorder, error) {
	r := &Recorder{
		store:  store,
		logger: logx.NewLogger("progress"),
	}
	if logDir != "" {
		writer, err := NewWriter(logDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open progress log: %w", err)
		}
		r.writer = writer
	}
	return r, nil
}

// Record appends one entry. The store write must succeed; a JSONL mirror
// failure is logged but does not fail the record, the store already holds the
// durable copy.
func (r *Recorder) Record(entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	seq, err := r.store.AppendProgress(&persistence.ProgressRow{
		SessionID: entry.SessionID,
		Iteration: entry.Iteration,
		Phase:     entry.Phase,
		Step:      entry.Step,
		Status:    entry.Status,
		ToolName:  entry.ToolName,
		Attempts:  entry.Attempts,
		Detail:    entry.Detail,
		CreatedAt: entry.CreatedAt,
	})
	if err != nil {
		return err
	}
	entry.Seq = seq

	if r.writer != nil {
		if werr := r.writer.WriteEntry(entry); werr != nil {
			r.logger.Warn("failed to mirror progress entry %d to audit log: %v", seq, werr)
		}
	}
	return nil
}

// RecordToolCall appends the outcome of a dispatched tool call.
func (r *Recorder) RecordToolCall(sessionID string, iteration, phase int, phaseName string, call *proto.ToolCall, result *proto.ToolResult) error {
	detail := ""
	if result.Error != "" {
		detail = result.Error
	}
	return r.Record(&Entry{
		SessionID: sessionID,
		Iteration: iteration,
		Phase:     phase,
		PhaseName: phaseName,
		Step:      call.Name,
		Status:    string(result.Status),
		ToolName:  call.Name,
		Attempts:  result.Attempts,
		Detail:    detail,
	})
}

// RecordInfo appends a non-tool annotation such as a phase advance or an
// escalation.
func (r *Recorder) RecordInfo(sessionID string, iteration, phase int, phaseName, step, detail string) error {
	return r.Record(&Entry{
		SessionID: sessionID,
		Iteration: iteration,
		Phase:     phase,
		PhaseName: phaseName,
		Step:      step,
		Status:    persistence.ProgressStatusInfo,
		Detail:    detail,
	})
}

// History returns all entries for a session in append order.
func (r *Recorder) History(sessionID string) ([]Entry, error) {
	rows, err := r.store.GetProgress(sessionID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			Seq:       row.Seq,
			SessionID: row.SessionID,
			Iteration: row.Iteration,
			Phase:     row.Phase,
			Step:      row.Step,
			Status:    row.Status,
			ToolName:  row.ToolName,
			Attempts:  row.Attempts,
			Detail:    row.Detail,
			CreatedAt: row.CreatedAt,
		})
	}
	return entries, nil
}

// Summary condenses a session's history for resume: the last iteration, the
// highest phase reached, and the most recent entries. The reasoner gets this
// instead of the full transcript when a session restarts.
type Summary struct {
	SessionID     string  `json:"session_id"`
	Entries       int     `json:"entries"`
	LastIteration int     `json:"last_iteration"`
	LastPhase     int     `json:"last_phase"`
	Recent        []Entry `json:"recent"`
}

const summaryRecentEntries = 10

// Summarize builds a resume summary from a session's recorded history.
func (r *Recorder) Summarize(sessionID string) (*Summary, error) {
	entries, err := r.History(sessionID)
	if err != nil {
		return nil, err
	}

	s := &Summary{SessionID: sessionID, Entries: len(entries)}
	for _, e := range entries {
		if e.Iteration > s.LastIteration {
			s.LastIteration = e.Iteration
		}
		if e.Phase > s.LastPhase {
			s.LastPhase = e.Phase
		}
	}
	if n := len(entries); n > summaryRecentEntries {
		s.Recent = entries[n-summaryRecentEntries:]
	} else {
		s.Recent = entries
	}
	return s, nil
}

// Close releases the JSONL writer.
func (r *Recorder) Close() error {
	if r.writer != nil {
		return r.writer.Close()
	}
	return nil
}
