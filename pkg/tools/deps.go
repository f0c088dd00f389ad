package tools

import (
	"context"
	"database/sql"

	"dwagent/pkg/github"
)

// DocHit is one documentation search result.
type DocHit struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// DocsSearcher retrieves top-k relevant documentation passages.
type DocsSearcher interface {
	SearchDocs(ctx context.Context, query string, k int) ([]DocHit, error)
}

// Deps carries the collaborator handles tool factories close over. Built once
// per engine and shared by all sessions; none of the handles hold per-session
// state.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type Deps struct {
	// WarehouseDB is the warehouse connection the query executor runs
	// single statements against.
	WarehouseDB *sql.DB
	// DefaultDatabase and DefaultSchema qualify discovery probes.
	DefaultDatabase string
	DefaultSchema   string

	// Repo reaches the version-controlled repository and its CI workflows.
	Repo *github.Client
	// BaseBranch is the branch repository writes target.
	BaseBranch string
	// WorkflowFile is the CI workflow the agent triggers and polls.
	WorkflowFile string

	// Docs serves semantic documentation search.
	Docs DocsSearcher
}
