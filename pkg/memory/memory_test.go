package memory

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dwagent/pkg/persistence"
)

// hashEmbedder maps words onto a fixed-dimension bag-of-words vector. It is
// deterministic and gives related texts higher cosine similarity than
// unrelated ones, which is all these tests need.
type hashEmbedder struct{}

func (hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	const dim = 64
	vec := make([]float32, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := uint32(2166136261)
		for _, c := range word {
			h = (h ^ uint32(c)) * 16777619
		}
		vec[h%dim]++
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		n := float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	dir := t.TempDir()

	store, err := persistence.Open(filepath.Join(dir, "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vectors, err := NewVectorStore(filepath.Join(dir, "vectors"), false, hashEmbedder{})
	require.NoError(t, err)

	m, err := NewManager(store, vectors, opts...)
	require.NoError(t, err)
	return m
}

func TestRememberAndRecall(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := SessionNamespace(uuid.New().String())

	_, err := m.Remember(ctx, ns, "orders table loads nightly from the erp export")
	require.NoError(t, err)
	_, err = m.Remember(ctx, ns, "quality checks compare row counts between raw and staging")
	require.NoError(t, err)

	results, err := m.Recall(ctx, ns, "when does the orders table load", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "orders table")
}

func TestRecallEmptyNamespace(t *testing.T) {
	m := newTestManager(t)

	results, err := m.Recall(context.Background(), SessionNamespace("empty"), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNamespaceIsolation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	nsA := SessionNamespace("aaaa")
	nsB := SessionNamespace("bbbb")

	_, err := m.Remember(ctx, nsA, "alpha fact about revenue")
	require.NoError(t, err)

	results, err := m.Recall(ctx, nsB, "alpha fact about revenue", 5)
	require.NoError(t, err)
	assert.Empty(t, results, "records of one session must not leak into another")
}

func TestSummaryCompaction(t *testing.T) {
	m := newTestManager(t, WithSummaryThreshold(20))
	ctx := context.Background()
	ns := SessionNamespace("compact-test")

	for i := 0; i < 5; i++ {
		err := m.AbsorbTurn(ctx, ns, Turn{Role: "assistant", Content: "examined source table and recorded its columns and types"})
		require.NoError(t, err)
	}

	synopsis, err := m.Synopsis(ns)
	require.NoError(t, err)
	assert.NotEmpty(t, synopsis, "compaction should have produced a synopsis")
	assert.Contains(t, synopsis, "examined source table")
}

func TestFlushCompactsRemainder(t *testing.T) {
	m := newTestManager(t, WithSummaryThreshold(100000))
	ctx := context.Background()
	ns := SessionNamespace("flush-test")

	require.NoError(t, m.AbsorbTurn(ctx, ns, Turn{Role: "user", Content: "build the staging layer"}))

	synopsis, err := m.Synopsis(ns)
	require.NoError(t, err)
	assert.Empty(t, synopsis, "below threshold, nothing compacted yet")

	require.NoError(t, m.Flush(ctx, ns))

	synopsis, err = m.Synopsis(ns)
	require.NoError(t, err)
	assert.Contains(t, synopsis, "build the staging layer")
}

func TestPreferenceLastWriteWins(t *testing.T) {
	m := newTestManager(t)
	ns := UserNamespace("alice")

	require.NoError(t, m.SetPreference(ns, "sql_dialect", "ansi"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, m.SetPreference(ns, "sql_dialect", "snowflake"))

	value, found, err := m.GetPreference(ns, "sql_dialect")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "snowflake", value)

	history, err := m.PreferenceHistory(ns, "sql_dialect")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "snowflake", history[0], "history is newest first")
}

func TestGetPreferenceMissing(t *testing.T) {
	m := newTestManager(t)

	_, found, err := m.GetPreference(UserNamespace("nobody"), "anything")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSweepRemovesExpired(t *testing.T) {
	m := newTestManager(t, WithRetention(time.Nanosecond))
	ctx := context.Background()
	ns := SessionNamespace("sweep-test")

	_, err := m.Remember(ctx, ns, "short lived fact")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	removed, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	results, err := m.Recall(ctx, ns, "short lived fact", 1)
	require.NoError(t, err)
	assert.Empty(t, results, "swept records must leave the vector store too")

	removed, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestWindowEviction(t *testing.T) {
	var dropped []Turn
	w := NewWindow(3)
	w.OnOverflow(func(turn Turn) { dropped = append(dropped, turn) })

	for _, content := range []string{"one", "two", "three", "four", "five"} {
		w.Append("assistant", content)
	}

	turns := w.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "three", turns[0].Content, "oldest surviving turn")
	assert.Equal(t, "five", turns[2].Content, "newest turn")

	require.Len(t, dropped, 2)
	assert.Equal(t, "one", dropped[0].Content)
	assert.Equal(t, "two", dropped[1].Content)
}

func TestDocsIndex(t *testing.T) {
	m := newTestManager(t)
	idx := NewDocsIndex(m.vectors)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, "erp/orders.md", "orders export lands nightly at 02:00 utc"))
	require.NoError(t, idx.Index(ctx, "erp/customers.md", "customer master refreshed weekly"))

	hits, err := idx.SearchDocs(ctx, "when does the orders export land", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "erp/orders.md", hits[0].ID)
}
