package tools

import (
	"context"
	"fmt"
	"strings"

	"dwagent/pkg/taxonomy"
)

// ToolSearchDocs searches indexed source-system documentation.
const ToolSearchDocs = "search_docs"

const defaultDocResults = 5

func init() {
	Register(ToolMeta{Name: ToolSearchDocs, Category: CategoryDocs}, func(deps Deps) (Tool, error) {
		if deps.Docs == nil {
			return nil, fmt.Errorf("docs tools require a document searcher")
		}
		return &SearchDocsTool{searcher: deps.Docs}, nil
	})
}

// SearchDocsTool performs semantic search over indexed source-system
// documentation. Read-only.
type SearchDocsTool struct {
	searcher DocsSearcher
}

func (t *SearchDocsTool) Name() string { return ToolSearchDocs }

// Definition returns the tool definition for LLM.
func (t *SearchDocsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSearchDocs,
		Description: "Semantic search over indexed source system documentation. Use during discovery to learn source schemas, field meanings, and load conventions.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "Natural language search query.",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of results. Defaults to 5.",
				},
			},
			Required: []string{"query"},
		},
	}
}

// Validate checks arguments without running a search.
func (t *SearchDocsTool) Validate(args map[string]any) error {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return taxonomy.Validationf("query is required and must be a non-empty string")
	}
	return nil
}

// Exec executes the tool with the given arguments.
func (t *SearchDocsTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.Validate(args); err != nil {
		return nil, err
	}
	query, _ := args["query"].(string)
	limit := intArgOrDefault(args, "limit", defaultDocResults)

	hits, err := t.searcher.SearchDocs(ctx, query, limit)
	if err != nil {
		return nil, taxonomy.NewErrorWithCause(taxonomy.ErrorTypeTransient, err, "document search failed")
	}

	results := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		results = append(results, map[string]any{
			"id":      h.ID,
			"content": h.Content,
			"score":   h.Score,
		})
	}
	return map[string]any{
		"query":   query,
		"results": results,
	}, nil
}
