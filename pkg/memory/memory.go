// Package memory implements the engine's memory subsystem. Short-term memory
// is a fixed window of recent turns. Long-term memory has three strategies:
// semantic records stored in an embedded vector database and recalled by
// similarity, running summaries compacted from turns that age out of the
// window, and durable user preferences resolved last-write-wins. All records
// are namespaced, either to one session or to a user across sessions, and
// expire after a retention period enforced by a background sweep.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dwagent/pkg/logx"
	"dwagent/pkg/persistence"
)

const (
	// DefaultRetention keeps records for 30 days.
	DefaultRetention = 720 * time.Hour
	// DefaultSummaryThreshold is the token count of aged-out turns that
	// triggers compaction into a synopsis.
	DefaultSummaryThreshold = 1500
	// summaryBudget caps the synopsis size in tokens.
	summaryBudget = 500
)

// SessionNamespace returns the namespace scoping records to one session.
func SessionNamespace(sessionID string) string { return "session:" + sessionID }

// UserNamespace returns the namespace shared across a user's sessions.
func UserNamespace(userID string) string { return "user:" + userID }

// Manager owns the long-term memory strategies. Safe for concurrent use.
type Manager struct {
	store     *persistence.Store
	vectors   *VectorStore
	counter   *TokenCounter
	retention time.Duration
	threshold int
	logger    *logx.Logger

	mu         sync.Mutex
	pending    map[string][]Turn // aged-out turns awaiting compaction, per namespace
	pendTokens map[string]int
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetention overrides the record retention period.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithSummaryThreshold overrides the compaction trigger in tokens.
func WithSummaryThreshold(tokens int) Option {
	return func(m *Manager) {
		if tokens > 0 {
			m.threshold = tokens
		}
	}
}

// NewManager creates a memory manager over the given stores.
func NewManager(store *persistence.Store, vectors *VectorStore, opts ...Option) (*Manager, error) {
	counter, err := NewTokenCounter()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		store:      store,
		vectors:    vectors,
		counter:    counter,
		retention:  DefaultRetention,
		threshold:  DefaultSummaryThreshold,
		logger:     logx.NewLogger("memory"),
		pending:    make(map[string][]Turn),
		pendTokens: make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Remember stores one semantic record: embedded in the vector store for
// similarity recall, mirrored in sqlite for expiry accounting.
func (m *Manager) Remember(ctx context.Context, namespace, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("cannot remember empty content")
	}
	id := uuid.New().String()
	now := time.Now().UTC()

	if err := m.vectors.Add(ctx, namespace, id, content, map[string]string{"strategy": persistence.StrategySemantic}); err != nil {
		return "", err
	}
	rec := &persistence.MemoryRecord{
		ID:        id,
		Namespace: namespace,
		Strategy:  persistence.StrategySemantic,
		Content:   content,
		VectorID:  id,
		CreatedAt: now,
		ExpiresAt: now.Add(m.retention),
	}
	if err := m.store.InsertMemoryRecord(rec); err != nil {
		// Keep the stores consistent: drop the orphaned vector.
		_ = m.vectors.Delete(ctx, namespace, id)
		return "", err
	}
	return id, nil
}

// Recall returns the top-k semantic records most similar to the query.
func (m *Manager) Recall(ctx context.Context, namespace, query string, k int) ([]SearchResult, error) {
	return m.vectors.Search(ctx, namespace, query, k)
}

// AbsorbTurn accepts a turn that aged out of the short-term window. Turns
// accumulate per namespace until their combined size crosses the compaction
// threshold, then collapse into a synopsis record.
func (m *Manager) AbsorbTurn(ctx context.Context, namespace string, turn Turn) error {
	m.mu.Lock()
	m.pending[namespace] = append(m.pending[namespace], turn)
	m.pendTokens[namespace] += m.counter.CountTokens(turn.Role + ": " + turn.Content)
	over := m.pendTokens[namespace] >= m.threshold
	m.mu.Unlock()

	if !over {
		return nil
	}
	return m.compact(ctx, namespace)
}

// compact folds the pending turns and the previous synopsis into a new
// summary record.
func (m *Manager) compact(_ context.Context, namespace string) error {
	m.mu.Lock()
	turns := m.pending[namespace]
	m.pending[namespace] = nil
	m.pendTokens[namespace] = 0
	m.mu.Unlock()

	if len(turns) == 0 {
		return nil
	}

	previous, err := m.Synopsis(namespace)
	if err != nil {
		return err
	}

	var b strings.Builder
	if previous != "" {
		b.WriteString(previous)
		b.WriteString("\n")
	}
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	synopsis := m.counter.TruncateToTokenLimit(b.String(), summaryBudget)

	now := time.Now().UTC()
	rec := &persistence.MemoryRecord{
		ID:        uuid.New().String(),
		Namespace: namespace,
		Strategy:  persistence.StrategySummary,
		Content:   synopsis,
		CreatedAt: now,
		ExpiresAt: now.Add(m.retention),
	}
	if err := m.store.InsertMemoryRecord(rec); err != nil {
		return err
	}
	m.logger.Debug("compacted %d aged turns into synopsis for %s", len(turns), namespace)
	return nil
}

// Flush forces compaction of any pending turns for a namespace. Called when a
// session reaches a terminal status.
func (m *Manager) Flush(ctx context.Context, namespace string) error {
	return m.compact(ctx, namespace)
}

// Synopsis returns the most recent summary record for a namespace, or empty.
func (m *Manager) Synopsis(namespace string) (string, error) {
	records, err := m.store.GetMemoryRecords(namespace, persistence.StrategySummary, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[len(records)-1].Content, nil
}

// SetPreference appends a preference record. Earlier values for the same key
// are kept for history; reads resolve to the newest.
func (m *Manager) SetPreference(namespace, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("preference key must not be empty")
	}
	now := time.Now().UTC()
	return m.store.InsertMemoryRecord(&persistence.MemoryRecord{
		ID:        uuid.New().String(),
		Namespace: namespace,
		Strategy:  persistence.StrategyPreference,
		Key:       key,
		Content:   value,
		CreatedAt: now,
		ExpiresAt: now.Add(m.retention),
	})
}

// GetPreference resolves the current value for a preference key,
// last-write-wins. Returns false when the key has never been set or all
// values expired.
func (m *Manager) GetPreference(namespace, key string) (string, bool, error) {
	rec, err := m.store.LatestPreference(namespace, key, time.Now().UTC())
	if err != nil {
		return "", false, err
	}
	if rec == nil {
		return "", false, nil
	}
	return rec.Content, true, nil
}

// PreferenceHistory returns all recorded values for a key, newest first.
func (m *Manager) PreferenceHistory(namespace, key string) ([]string, error) {
	records, err := m.store.PreferenceHistory(namespace, key)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(records))
	for _, rec := range records {
		values = append(values, rec.Content)
	}
	return values, nil
}

// Sweep removes expired records from sqlite and purges their vector entries.
// Returns the number of records removed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	refs, err := m.store.DeleteExpired(time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, ref := range refs {
		if ref.VectorID == "" {
			continue
		}
		if derr := m.vectors.Delete(ctx, ref.Namespace, ref.VectorID); derr != nil {
			m.logger.Warn("failed to purge vector %s from %s: %v", ref.VectorID, ref.Namespace, derr)
		}
	}
	if len(refs) > 0 {
		m.logger.Info("expiry sweep removed %d records", len(refs))
	}
	return len(refs), nil
}

// StartSweeper runs expiry sweeps on the given interval until the context is
// cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Sweep(ctx); err != nil {
					m.logger.Error("expiry sweep failed: %v", err)
				}
			}
		}
	}()
}
