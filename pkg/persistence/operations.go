package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"dwagent/pkg/proto"
)

// UpsertSession inserts or updates a session snapshot.
func (s *Store) UpsertSession(sess *proto.Session) error {
	query := `
		INSERT INTO sessions (
			id, user_id, phase, iteration, started_at, status,
			failure_reason, failure_step, tokens_used, pending_question, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			iteration = excluded.iteration,
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			failure_step = excluded.failure_step,
			tokens_used = excluded.tokens_used,
			pending_question = excluded.pending_question,
			updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		sess.ID, sess.UserID, sess.Phase, sess.Iteration, sess.StartedAt, string(sess.Status),
		sess.FailureReason, sess.FailureStep, sess.TokensUsed, sess.PendingQuestion, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession loads a session snapshot by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetSession(id string) (*proto.Session, error) {
	query := `
		SELECT id, user_id, phase, iteration, started_at, status,
		       failure_reason, failure_step, tokens_used, pending_question
		FROM sessions WHERE id = ?
	`

	var sess proto.Session
	var status string
	err := s.db.QueryRow(query, id).Scan(
		&sess.ID, &sess.UserID, &sess.Phase, &sess.Iteration, &sess.StartedAt, &status,
		&sess.FailureReason, &sess.FailureStep, &sess.TokensUsed, &sess.PendingQuestion,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	sess.Status = proto.SessionStatus(status)
	return &sess, nil
}

// ListSessions returns all session snapshots, most recently updated first.
func (s *Store) ListSessions() ([]*proto.Session, error) {
	query := `
		SELECT id, user_id, phase, iteration, started_at, status,
		       failure_reason, failure_step, tokens_used, pending_question
		FROM sessions ORDER BY updated_at DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*proto.Session
	for rows.Next() {
		var sess proto.Session
		var status string
		if err := rows.Scan(
			&sess.ID, &sess.UserID, &sess.Phase, &sess.Iteration, &sess.StartedAt, &status,
			&sess.FailureReason, &sess.FailureStep, &sess.TokensUsed, &sess.PendingQuestion,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sess.Status = proto.SessionStatus(status)
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// AppendProgress inserts a progress row and returns its sequence number.
func (s *Store) AppendProgress(row *ProgressRow) (int64, error) {
	query := `
		INSERT INTO progress (session_id, iteration, phase, step, status, tool_name, attempts, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.Exec(query,
		row.SessionID, row.Iteration, row.Phase, row.Step, row.Status,
		row.ToolName, row.Attempts, row.Detail, row.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append progress for session %s: %w", row.SessionID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read progress seq: %w", err)
	}
	return seq, nil
}

// GetProgress returns all progress rows for a session in append order.
func (s *Store) GetProgress(sessionID string) ([]*ProgressRow, error) {
	query := `
		SELECT seq, session_id, iteration, phase, step, status, tool_name, attempts, detail, created_at
		FROM progress WHERE session_id = ? ORDER BY seq ASC
	`

	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*ProgressRow
	for rows.Next() {
		var row ProgressRow
		if err := rows.Scan(
			&row.Seq, &row.SessionID, &row.Iteration, &row.Phase, &row.Step,
			&row.Status, &row.ToolName, &row.Attempts, &row.Detail, &row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		entries = append(entries, &row)
	}
	return entries, rows.Err()
}

// InsertMemoryRecord appends a memory record. Records are never updated.
func (s *Store) InsertMemoryRecord(rec *MemoryRecord) error {
	query := `
		INSERT INTO memory_records (id, namespace, strategy, key, content, vector_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		rec.ID, rec.Namespace, rec.Strategy, rec.Key, rec.Content,
		rec.VectorID, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory record %s: %w", rec.ID, err)
	}
	return nil
}

// GetMemoryRecords returns unexpired records for a namespace and strategy in
// creation order.
func (s *Store) GetMemoryRecords(namespace, strategy string, now time.Time) ([]*MemoryRecord, error) {
	query := `
		SELECT id, namespace, strategy, key, content, vector_id, created_at, expires_at
		FROM memory_records
		WHERE namespace = ? AND strategy = ? AND expires_at > ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.Query(query, namespace, strategy, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*MemoryRecord
	for rows.Next() {
		var rec MemoryRecord
		if err := rows.Scan(
			&rec.ID, &rec.Namespace, &rec.Strategy, &rec.Key, &rec.Content,
			&rec.VectorID, &rec.CreatedAt, &rec.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan memory record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// LatestPreference resolves the current value for a preference key by
// last-write-wins over the append-only history. Returns sql.ErrNoRows when
// the key has never been written.
func (s *Store) LatestPreference(namespace, key string, now time.Time) (*MemoryRecord, error) {
	query := `
		SELECT id, namespace, strategy, key, content, vector_id, created_at, expires_at
		FROM memory_records
		WHERE namespace = ? AND strategy = ? AND key = ? AND expires_at > ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`

	var rec MemoryRecord
	err := s.db.QueryRow(query, namespace, StrategyPreference, key, now).Scan(
		&rec.ID, &rec.Namespace, &rec.Strategy, &rec.Key, &rec.Content,
		&rec.VectorID, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve preference %s/%s: %w", namespace, key, err)
	}
	return &rec, nil
}

// PreferenceHistory returns every write for a preference key, newest first.
func (s *Store) PreferenceHistory(namespace, key string) ([]*MemoryRecord, error) {
	query := `
		SELECT id, namespace, strategy, key, content, vector_id, created_at, expires_at
		FROM memory_records
		WHERE namespace = ? AND strategy = ? AND key = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.Query(query, namespace, StrategyPreference, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query preference history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*MemoryRecord
	for rows.Next() {
		var rec MemoryRecord
		if err := rows.Scan(
			&rec.ID, &rec.Namespace, &rec.Strategy, &rec.Key, &rec.Content,
			&rec.VectorID, &rec.CreatedAt, &rec.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan preference record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// ExpiredRef identifies one expired record so its vector-store entry can be
// purged alongside the row.
type ExpiredRef struct {
	ID        string
	Namespace string
	VectorID  string
}

// DeleteExpired removes records whose expiry precedes now and returns
// references to the removed rows.
func (s *Store) DeleteExpired(now time.Time) ([]ExpiredRef, error) {
	rows, err := s.db.Query("SELECT id, namespace, vector_id FROM memory_records WHERE expires_at <= ?", now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired records: %w", err)
	}
	var refs []ExpiredRef
	for rows.Next() {
		var ref ExpiredRef
		if err := rows.Scan(&ref.ID, &ref.Namespace, &ref.VectorID); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan expired record: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(refs) == 0 {
		return nil, nil
	}

	if _, err := s.db.Exec("DELETE FROM memory_records WHERE expires_at <= ?", now); err != nil {
		return nil, fmt.Errorf("failed to delete expired records: %w", err)
	}
	return refs, nil
}
