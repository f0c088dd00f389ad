package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dwagent/pkg/logx"
	"dwagent/pkg/tools"
)

// docsNamespace scopes indexed documentation, shared by all sessions.
const docsNamespace = "docs:sources"

// DocsIndex serves semantic search over source-system documentation. It
// satisfies the docs searcher the search_docs tool depends on.
type DocsIndex struct {
	vectors *VectorStore
	logger  *logx.Logger
}

// NewDocsIndex creates a docs index over the shared vector store.
func NewDocsIndex(vectors *VectorStore) *DocsIndex {
	return &DocsIndex{vectors: vectors, logger: logx.NewLogger("docs")}
}

// IndexDir indexes every markdown and text file under dir, one document per
// file, keyed by relative path. Re-indexing an unchanged file overwrites in
// place. Returns the number of files indexed.
func (d *DocsIndex) IndexDir(ctx context.Context, dir string) (int, error) {
	count := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading doc %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		if err := d.Index(ctx, rel, string(data)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	d.logger.Info("indexed %d documentation files from %s", count, dir)
	return count, nil
}

// Index adds or replaces one document.
func (d *DocsIndex) Index(ctx context.Context, id, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return d.vectors.Add(ctx, docsNamespace, id, content, map[string]string{"source": id})
}

// SearchDocs implements the docs searcher interface.
func (d *DocsIndex) SearchDocs(ctx context.Context, query string, k int) ([]tools.DocHit, error) {
	results, err := d.vectors.Search(ctx, docsNamespace, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]tools.DocHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, tools.DocHit{ID: r.ID, Content: r.Content, Score: r.Score})
	}
	return hits, nil
}
