package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"dwagent/pkg/proto"
	"dwagent/pkg/taxonomy"
	"dwagent/pkg/tools"
)

const testCategory = "gateway-test"

// fakeTool fails a configurable number of times before succeeding.
type fakeTool struct {
	name        string
	failures    int32
	failWith    error
	validateErr error
	calls       atomic.Int32
	block       time.Duration
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        f.name,
		Description: "test double",
		InputSchema: tools.InputSchema{Type: "object"},
	}
}

func (f *fakeTool) Validate(map[string]any) error { return f.validateErr }

func (f *fakeTool) Exec(ctx context.Context, _ map[string]any) (map[string]any, error) {
	n := f.calls.Add(1)
	if f.block > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.block):
		}
	}
	if n <= f.failures {
		return nil, f.failWith
	}
	return map[string]any{"call": n}, nil
}

var (
	flakyTool    = &fakeTool{name: "flaky", failures: 2, failWith: taxonomy.NewError(taxonomy.ErrorTypeTransient, "collaborator hiccup")}
	semanticTool = &fakeTool{name: "rejecting", failures: 99, failWith: taxonomy.Semanticf("no such table")}
	invalidTool  = &fakeTool{name: "invalid", validateErr: taxonomy.Validationf("bad args")}
	slowTool     = &fakeTool{name: "slow", block: 500 * time.Millisecond}
	okTool       = &fakeTool{name: "steady"}
)

func init() {
	for _, ft := range []*fakeTool{flakyTool, semanticTool, invalidTool, slowTool, okTool} {
		ft := ft
		tools.Register(tools.ToolMeta{Name: ft.name, Category: testCategory}, func(tools.Deps) (tools.Tool, error) {
			return ft, nil
		})
	}
}

type testEnabler struct{}

func (testEnabler) ToolEnabled(category, _ string) bool { return category == testCategory }

type captureRecorder struct {
	tool     string
	status   proto.ResultStatus
	attempts int
}

func (c *captureRecorder) RecordToolCall(tool string, status proto.ResultStatus, _ time.Duration, attempts int) {
	c.tool = tool
	c.status = status
	c.attempts = attempts
}

func newTestGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	provider, err := tools.NewProvider(tools.Deps{}, testEnabler{})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return New(provider, opts...)
}

func TestSubmitSuccess(t *testing.T) {
	g := newTestGateway(t)
	result := g.Submit(context.Background(), proto.NewToolCall("steady", nil))

	if !result.OK() {
		t.Fatalf("expected ok, got %s: %s", result.Status, result.Error)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
}

func TestSubmitRetriesTransient(t *testing.T) {
	flakyTool.calls.Store(0)
	rec := &captureRecorder{}
	g := newTestGateway(t, WithRecorder(rec))

	result := g.Submit(context.Background(), proto.NewToolCall("flaky", nil))

	if !result.OK() {
		t.Fatalf("expected eventual success, got %s: %s", result.Status, result.Error)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if rec.attempts != 3 || rec.status != proto.ResultOK {
		t.Errorf("recorder saw %d attempts status %s", rec.attempts, rec.status)
	}
}

func TestSubmitNeverRetriesSemantic(t *testing.T) {
	semanticTool.calls.Store(0)
	g := newTestGateway(t)

	result := g.Submit(context.Background(), proto.NewToolCall("rejecting", nil))

	if result.Status != proto.ResultSemantic {
		t.Fatalf("expected semantic_error, got %s", result.Status)
	}
	if got := semanticTool.calls.Load(); got != 1 {
		t.Errorf("semantic failure dispatched %d times, want 1", got)
	}
}

func TestSubmitRejectsBeforeDispatch(t *testing.T) {
	invalidTool.calls.Store(0)
	g := newTestGateway(t)

	result := g.Submit(context.Background(), proto.NewToolCall("invalid", map[string]any{"x": 1}))

	if result.Status != proto.ResultSemantic {
		t.Fatalf("expected semantic_error for validation failure, got %s", result.Status)
	}
	if result.Attempts != 0 {
		t.Errorf("validation rejection should not count attempts, got %d", result.Attempts)
	}
	if invalidTool.calls.Load() != 0 {
		t.Error("validation failure must not reach the tool")
	}
}

func TestSubmitUnknownTool(t *testing.T) {
	g := newTestGateway(t)

	result := g.Submit(context.Background(), proto.NewToolCall("no_such_tool", nil))

	if result.Status != proto.ResultSemantic {
		t.Fatalf("expected semantic_error for unknown tool, got %s", result.Status)
	}
	if result.Error == "" {
		t.Error("expected an error message naming the tool")
	}
}

func TestSubmitTimeoutIsTransient(t *testing.T) {
	slowTool.calls.Store(0)
	g := newTestGateway(t, WithCallTimeout(20*time.Millisecond))

	result := g.Submit(context.Background(), proto.NewToolCall("slow", nil))

	if result.Status != proto.ResultTransient {
		t.Fatalf("expected transient_error on timeout, got %s: %s", result.Status, result.Error)
	}
	if slowTool.calls.Load() < 2 {
		t.Errorf("timeout should be retried, saw %d attempts", slowTool.calls.Load())
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	cfg := taxonomy.RetryConfig{
		MaxRetries:    5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      400 * time.Millisecond,
		BackoffFactor: 2.0,
	}

	d1 := backoffDelay(cfg, 1)
	d2 := backoffDelay(cfg, 2)
	d4 := backoffDelay(cfg, 4)

	if d1 != 100*time.Millisecond || d2 != 200*time.Millisecond {
		t.Errorf("unexpected early delays: %s, %s", d1, d2)
	}
	if d4 != 400*time.Millisecond {
		t.Errorf("expected cap at 400ms, got %s", d4)
	}
}

func TestStatusOfUnclassified(t *testing.T) {
	if got := statusOf(errors.New("weird failure")); got != proto.ResultTransient {
		t.Errorf("unclassified errors should map to transient, got %s", got)
	}
}
