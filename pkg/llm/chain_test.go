package llm

import (
	"context"
	"testing"
)

func TestWrapClient(t *testing.T) {
	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func(_ context.Context, _ CompletionRequest) (<-chan StreamChunk, error) {
			return nil, nil
		},
		func() string { return "test-model" },
	)

	resp, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "wrapped" {
		t.Errorf("expected content %q, got %q", "wrapped", resp.Content)
	}
	if client.GetModelName() != "test-model" {
		t.Errorf("expected model name %q, got %q", "test-model", client.GetModelName())
	}
}

func TestChainOrdering(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next LLMClient) LLMClient {
			return WrapClient(
				func(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
					order = append(order, name)
					return next.Complete(ctx, in)
				},
				next.Stream,
				next.GetModelName,
			)
		}
	}

	base := NewMockClient()
	chained := Chain(base, tag("outer"), tag("inner"))

	if _, err := chained.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("expected outer before inner, got %v", order)
	}
	if base.Calls() != 1 {
		t.Errorf("expected base client called once, got %d", base.Calls())
	}
}

func TestChainEmpty(t *testing.T) {
	base := NewMockClient()
	if Chain(base) != LLMClient(base) {
		t.Error("chain with no middleware should return the base client")
	}
}
