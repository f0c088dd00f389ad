package memory

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

// Embedder generates embeddings for documents and queries.
type Embedder interface {
	// EmbedQuery generates an embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchResult is one semantic search hit.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]string
}

// VectorStore wraps a persistent chromem-go database with one collection per
// namespace. chromem is embedded; there is no external vector service to run.
type VectorStore struct {
	db       *chromem.DB
	embedder Embedder
}

// NewVectorStore opens (or creates) a persistent vector store at path.
func NewVectorStore(path string, compress bool, embedder Embedder) (*VectorStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating vector store directory %s: %w", path, err)
	}
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("creating vector DB: %w", err)
	}
	return &VectorStore{db: db, embedder: embedder}, nil
}

func (s *VectorStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

var collectionNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// collectionName maps a namespace like "session:abc" onto a valid chromem
// collection name.
func collectionName(namespace string) string {
	name := collectionNameSanitizer.ReplaceAllString(namespace, "-")
	if len(name) < 3 {
		name = name + "-ns"
	}
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

func (s *VectorStore) collection(namespace string) (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(collectionName(namespace), nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting collection for namespace %s: %w", namespace, err)
	}
	return collection, nil
}

// Add embeds and stores one document in the namespace's collection.
func (s *VectorStore) Add(ctx context.Context, namespace, id, content string, metadata map[string]string) error {
	collection, err := s.collection(namespace)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: metadata,
	}
	if err := collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("adding document %s to namespace %s: %w", id, namespace, err)
	}
	return nil
}

// Search returns the top-k most similar documents in the namespace.
func (s *VectorStore) Search(ctx context.Context, namespace, query string, k int) ([]SearchResult, error) {
	collection, err := s.collection(namespace)
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= doc count.
	docCount := collection.Count()
	if docCount == 0 {
		return nil, nil
	}
	if k > docCount {
		k = docCount
	}
	if k < 1 {
		k = 1
	}

	results, err := collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying namespace %s: %w", namespace, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}
	return searchResults, nil
}

// Delete removes documents by id from the namespace's collection. Missing
// documents are ignored.
func (s *VectorStore) Delete(ctx context.Context, namespace string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	collection := s.db.GetCollection(collectionName(namespace), s.embeddingFunc())
	if collection == nil {
		return nil
	}

	var failures []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := collection.Delete(ctx, nil, nil, id); err != nil {
			// chromem returns an error for unknown ids; only surface real ones.
			if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "doesn't exist") {
				continue
			}
			failures = append(failures, id)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed to delete %d of %d documents: %v", len(failures), len(ids), failures)
	}
	return nil
}
