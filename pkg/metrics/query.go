// Package metrics records engine activity as Prometheus metrics and
// queries aggregated usage back out of a Prometheus server.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Usage holds aggregated reasoner and tool activity, either engine-wide
// or scoped to a single model.
type Usage struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	ToolCalls        int64  `json:"tool_calls"`
	ToolFailures     int64  `json:"tool_failures"`
}

// QueryService reads aggregated usage from a Prometheus server that
// scrapes the engine's /metrics endpoint.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service for the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// scalar runs an instant query and returns the first sample value, or
// zero when the series does not exist yet.
func (q *QueryService) scalar(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}

// EngineUsage retrieves token and tool totals across all models.
func (q *QueryService) EngineUsage(ctx context.Context) (*Usage, error) {
	usage := &Usage{}

	var err error
	if usage.PromptTokens, err = q.scalar(ctx, `sum(reasoner_tokens_total{type="prompt"})`); err != nil {
		return nil, err
	}
	if usage.CompletionTokens, err = q.scalar(ctx, `sum(reasoner_tokens_total{type="completion"})`); err != nil {
		return nil, err
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	if usage.ToolCalls, err = q.scalar(ctx, `sum(tool_calls_total)`); err != nil {
		return nil, err
	}
	if usage.ToolFailures, err = q.scalar(ctx, `sum(tool_calls_total{status!="ok"})`); err != nil {
		return nil, err
	}

	return usage, nil
}

// UsageByModel retrieves token totals broken down by reasoner model.
// Tool metrics carry no model label and are omitted from the breakdown.
func (q *QueryService) UsageByModel(ctx context.Context) (map[string]*Usage, error) {
	result := make(map[string]*Usage)

	modelsResult, _, err := q.queryAPI.Query(ctx, `group by (model) (reasoner_tokens_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if name, ok := sample.Metric["model"]; ok {
				models = append(models, string(name))
			}
		}
	}

	for _, name := range models {
		usage := &Usage{Model: name}

		promptQuery := fmt.Sprintf(`sum(reasoner_tokens_total{model=%q, type="prompt"})`, name)
		if usage.PromptTokens, err = q.scalar(ctx, promptQuery); err != nil {
			return nil, err
		}
		completionQuery := fmt.Sprintf(`sum(reasoner_tokens_total{model=%q, type="completion"})`, name)
		if usage.CompletionTokens, err = q.scalar(ctx, completionQuery); err != nil {
			return nil, err
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		result[name] = usage
	}

	return result, nil
}
