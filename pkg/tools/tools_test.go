package tools

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"dwagent/pkg/github"
	"dwagent/pkg/taxonomy"

	_ "modernc.org/sqlite"
)

func testDeps(t *testing.T) Deps {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := github.NewClient("acme", "warehouse-models").WithRunner(fakeRunner(t))

	return Deps{
		WarehouseDB:  db,
		Repo:         repo,
		BaseBranch:   "main",
		WorkflowFile: "pipeline.yml",
		Docs:         stubSearcher{},
	}
}

// fakeRunner serves canned gh API responses keyed by endpoint.
func fakeRunner(t *testing.T) github.Runner {
	t.Helper()
	encoded := base64.StdEncoding.EncodeToString([]byte("select 1 as smoke"))

	return func(_ context.Context, args ...string) ([]byte, error) {
		endpoint := ""
		for i, a := range args {
			if strings.HasPrefix(a, "/repos/") || strings.HasPrefix(a, "repos/") {
				endpoint = args[i]
				break
			}
		}
		method := "GET"
		for i, a := range args {
			if a == "-X" && i+1 < len(args) {
				method = args[i+1]
			}
		}

		switch {
		case strings.Contains(endpoint, "/dispatches"):
			return []byte{}, nil
		case strings.Contains(endpoint, "/actions/workflows/") && strings.Contains(endpoint, "/runs"):
			return []byte(`{"total_count":1,"workflow_runs":[{"id":42,"status":"completed","conclusion":"success","head_branch":"main"}]}`), nil
		case strings.Contains(endpoint, "/actions/runs/42/jobs"):
			return []byte(`{"total_count":1,"jobs":[{"id":7,"name":"load","status":"completed","conclusion":"success"}]}`), nil
		case strings.Contains(endpoint, "/actions/runs/42"):
			return []byte(`{"id":42,"status":"completed","conclusion":"success","head_branch":"main"}`), nil
		case strings.Contains(endpoint, "/contents/models") && method == "GET" && strings.HasSuffix(endpoint, "models"):
			return []byte(`[{"name":"staging","path":"models/staging","type":"dir"},{"name":"smoke.sql","path":"models/smoke.sql","type":"file","size":17}]`), nil
		case strings.Contains(endpoint, "/contents/") && method == "GET":
			return []byte(fmt.Sprintf(`{"name":"smoke.sql","path":"models/smoke.sql","sha":"abc123","size":17,"type":"file","content":"%s","encoding":"base64"}`, encoded)), nil
		case strings.Contains(endpoint, "/contents/") && method == "PUT":
			return []byte(`{"content":{"path":"models/smoke.sql","sha":"def456"},"commit":{"sha":"c0ffee"}}`), nil
		case strings.Contains(endpoint, "/contents/") && method == "DELETE":
			return []byte{}, nil
		default:
			return nil, fmt.Errorf("gh command failed: HTTP 404: Not Found (%s)", endpoint)
		}
	}
}

type stubSearcher struct{}

func (stubSearcher) SearchDocs(_ context.Context, query string, k int) ([]DocHit, error) {
	return []DocHit{{ID: "orders-doc", Content: "orders export lands nightly", Score: 0.91}}, nil
}

func TestProviderRespectsEnableFlags(t *testing.T) {
	deps := testDeps(t)

	t.Run("all enabled", func(t *testing.T) {
		provider, err := NewProvider(deps, AllowAll())
		if err != nil {
			t.Fatalf("NewProvider: %v", err)
		}
		for _, name := range []string{
			ToolExecuteWarehouseQuery, ToolValidateWarehouseConnection,
			ToolListRepoFiles, ToolReadRepoFile, ToolPushRepoFile, ToolDeleteRepoFile,
			ToolTriggerCIWorkflow, ToolListCIRuns, ToolGetCIRun,
			ToolSearchDocs, ToolRequestUserInput, ToolUpdateProgress,
		} {
			if !provider.Has(name) {
				t.Errorf("expected tool %s to be registered", name)
			}
		}
		if len(provider.Definitions()) != len(provider.Names()) {
			t.Errorf("definitions and names disagree")
		}
	})

	t.Run("category disabled", func(t *testing.T) {
		provider, err := NewProvider(deps, enablerFunc(func(category, _ string) bool {
			return category != CategoryCI
		}))
		if err != nil {
			t.Fatalf("NewProvider: %v", err)
		}
		if provider.Has(ToolTriggerCIWorkflow) {
			t.Error("ci tools should be disabled")
		}
		if !provider.Has(ToolExecuteWarehouseQuery) {
			t.Error("warehouse tools should remain enabled")
		}
	})
}

type enablerFunc func(category, operation string) bool

func (f enablerFunc) ToolEnabled(category, operation string) bool { return f(category, operation) }

func TestExecuteQueryTool(t *testing.T) {
	deps := testDeps(t)
	tool := &ExecuteQueryTool{db: deps.WarehouseDB}
	ctx := context.Background()

	t.Run("select returns rows", func(t *testing.T) {
		payload, err := tool.Exec(ctx, map[string]any{"sql": "SELECT 1 AS one, 'x' AS label;"})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		if payload["row_count"] != 1 {
			t.Errorf("expected 1 row, got %v", payload["row_count"])
		}
		rows := payload["rows"].([]map[string]any)
		if rows[0]["label"] != "x" {
			t.Errorf("unexpected row payload: %v", rows[0])
		}
	})

	t.Run("multi statement rejected before dispatch", func(t *testing.T) {
		err := tool.Validate(map[string]any{"sql": "SELECT 1; SELECT 2"})
		if taxonomy.TypeOf(err) != taxonomy.ErrorTypeValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("unqualified ddl rejected", func(t *testing.T) {
		err := tool.Validate(map[string]any{"sql": "CREATE TABLE orders (id INT)"})
		if taxonomy.TypeOf(err) != taxonomy.ErrorTypeValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("semantic failure is not retryable", func(t *testing.T) {
		_, err := tool.Exec(ctx, map[string]any{"sql": "SELECT * FROM missing.thing.entirely"})
		if err == nil {
			t.Fatal("expected query against missing table to fail")
		}
		var terr *taxonomy.Error
		if !errors.As(err, &terr) {
			t.Fatalf("expected classified error, got %T", err)
		}
		if terr.IsRetryable() {
			t.Error("schema errors must not be retried")
		}
	})
}

func TestValidateConnectionTool(t *testing.T) {
	deps := testDeps(t)
	tool := &ValidateConnectionTool{db: deps.WarehouseDB}

	payload, err := tool.Exec(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if payload["connected"] != true {
		t.Errorf("expected connected=true, got %v", payload["connected"])
	}
	facts, ok := payload[KeyFacts].(map[string]bool)
	if !ok {
		t.Fatalf("expected facts payload, got %T", payload[KeyFacts])
	}
	if !facts["connection_validated"] {
		t.Error("connection_validated fact should be true")
	}
}

func TestRepoTools(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()

	t.Run("list", func(t *testing.T) {
		tool := &ListRepoFilesTool{client: deps.Repo, branch: deps.BaseBranch}
		payload, err := tool.Exec(ctx, map[string]any{"path": "models"})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		entries := payload["entries"].([]map[string]any)
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
	})

	t.Run("read decodes content", func(t *testing.T) {
		tool := &ReadRepoFileTool{client: deps.Repo, branch: deps.BaseBranch}
		payload, err := tool.Exec(ctx, map[string]any{"path": "models/smoke.sql"})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		if payload["content"] != "select 1 as smoke" {
			t.Errorf("unexpected content: %v", payload["content"])
		}
		if payload["sha"] != "abc123" {
			t.Errorf("unexpected sha: %v", payload["sha"])
		}
	})

	t.Run("push returns commit", func(t *testing.T) {
		tool := &PushRepoFileTool{client: deps.Repo, branch: deps.BaseBranch}
		payload, err := tool.Exec(ctx, map[string]any{
			"path":    "models/smoke.sql",
			"content": "select 2 as smoke",
			"message": "Update smoke model",
			"sha":     "abc123",
		})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		if payload["commit_sha"] != "c0ffee" {
			t.Errorf("unexpected commit sha: %v", payload["commit_sha"])
		}
	})

	t.Run("traversal rejected", func(t *testing.T) {
		tool := &ReadRepoFileTool{client: deps.Repo, branch: deps.BaseBranch}
		err := tool.Validate(map[string]any{"path": "../secrets.yml"})
		if taxonomy.TypeOf(err) != taxonomy.ErrorTypeValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("delete requires sha", func(t *testing.T) {
		tool := &DeleteRepoFileTool{client: deps.Repo, branch: deps.BaseBranch}
		err := tool.Validate(map[string]any{"path": "models/smoke.sql", "message": "Remove smoke model"})
		if taxonomy.TypeOf(err) != taxonomy.ErrorTypeValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestCITools(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()

	t.Run("trigger", func(t *testing.T) {
		tool := &TriggerWorkflowTool{client: deps.Repo, workflowFile: deps.WorkflowFile, ref: deps.BaseBranch}
		payload, err := tool.Exec(ctx, map[string]any{"inputs": map[string]any{"target": "analytics"}})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		if payload["dispatched"] != true {
			t.Errorf("expected dispatched=true, got %v", payload["dispatched"])
		}
	})

	t.Run("list runs", func(t *testing.T) {
		tool := &ListRunsTool{client: deps.Repo, workflowFile: deps.WorkflowFile}
		payload, err := tool.Exec(ctx, map[string]any{})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		runs := payload["runs"].([]map[string]any)
		if len(runs) != 1 || runs[0]["run_id"] != int64(42) {
			t.Errorf("unexpected runs payload: %v", runs)
		}
	})

	t.Run("get run emits load fact on success", func(t *testing.T) {
		tool := &GetRunTool{client: deps.Repo}
		payload, err := tool.Exec(ctx, map[string]any{"run_id": float64(42)})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		facts, ok := payload[KeyFacts].(map[string]bool)
		if !ok || !facts["data_loaded"] {
			t.Errorf("expected data_loaded fact, got %v", payload[KeyFacts])
		}
		jobs := payload["jobs"].([]map[string]any)
		if len(jobs) != 1 || jobs[0]["conclusion"] != "success" {
			t.Errorf("unexpected jobs payload: %v", jobs)
		}
	})

	t.Run("non string input rejected", func(t *testing.T) {
		tool := &TriggerWorkflowTool{client: deps.Repo, workflowFile: deps.WorkflowFile, ref: deps.BaseBranch}
		_, err := tool.Exec(ctx, map[string]any{"inputs": map[string]any{"count": 3}})
		if taxonomy.TypeOf(err) != taxonomy.ErrorTypeValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestSearchDocsTool(t *testing.T) {
	tool := &SearchDocsTool{searcher: stubSearcher{}}
	payload, err := tool.Exec(context.Background(), map[string]any{"query": "when does orders land"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	results := payload["results"].([]map[string]any)
	if len(results) != 1 || results[0]["id"] != "orders-doc" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestRequestUserInputTool(t *testing.T) {
	tool := &RequestUserInputTool{}

	payload, err := tool.Exec(context.Background(), map[string]any{"question": "Which currency should revenue use?"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if payload[KeyAwaitUser] != true {
		t.Error("expected await_user=true")
	}
	if payload[KeyQuestion] != "Which currency should revenue use?" {
		t.Errorf("unexpected question: %v", payload[KeyQuestion])
	}

	if err := tool.Validate(map[string]any{"question": "  "}); taxonomy.TypeOf(err) != taxonomy.ErrorTypeValidation {
		t.Errorf("expected validation error for blank question, got %v", err)
	}
}

func TestUpdateProgressTool(t *testing.T) {
	tool := &UpdateProgressTool{}

	payload, err := tool.Exec(context.Background(), map[string]any{
		"note":  "Cataloged 12 source tables from docs and repo",
		"facts": map[string]any{"sources_cataloged": true},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	facts := payload[KeyFacts].(map[string]bool)
	if !facts["sources_cataloged"] {
		t.Error("expected sources_cataloged fact")
	}

	if err := tool.Validate(map[string]any{"note": "x", "facts": map[string]any{"bad": "yes"}}); taxonomy.TypeOf(err) != taxonomy.ErrorTypeValidation {
		t.Errorf("expected validation error for non-boolean fact, got %v", err)
	}
}
