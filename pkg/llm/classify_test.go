package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dwagent/pkg/taxonomy"
)

func TestExtractStatusCode(t *testing.T) {
	tests := []struct {
		errStr string
		want   int
	}{
		{"request failed with status code: 429", 429},
		{"anthropic API error, status: 503", 503},
		{"HTTP 401 Unauthorized", 401},
		{"error code 400: invalid request", 400},
		{"no status here", 0},
		{"status: abc", 0},
	}

	for _, tt := range tests {
		if got := extractStatusCode(tt.errStr); got != tt.want {
			t.Errorf("extractStatusCode(%q) = %d, want %d", tt.errStr, got, tt.want)
		}
	}
}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want taxonomy.ErrorType
	}{
		{"rate limit by status", fmt.Errorf("status code: 429 too many requests"), taxonomy.ErrorTypeRateLimit},
		{"auth by status", fmt.Errorf("status code: 401 unauthorized"), taxonomy.ErrorTypeAuth},
		{"bad request by status", fmt.Errorf("status code: 400 bad request"), taxonomy.ErrorTypeSemantic},
		{"server error by status", fmt.Errorf("status code: 503 unavailable"), taxonomy.ErrorTypeTransient},
		{"network text", errors.New("connection refused"), taxonomy.ErrorTypeTransient},
		{"quota text", errors.New("quota exceeded for project"), taxonomy.ErrorTypeRateLimit},
		{"api key text", errors.New("invalid api key provided"), taxonomy.ErrorTypeAuth},
		{"deadline", context.DeadlineExceeded, taxonomy.ErrorTypeTransient},
		{"cancel", context.Canceled, taxonomy.ErrorTypeFatal},
		{"unknown", errors.New("something odd"), taxonomy.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyProviderError("test-provider", tt.err)
			if got.Type != tt.want {
				t.Errorf("classified as %s, want %s", got.Type, tt.want)
			}
			if got.Tool != "test-provider" {
				t.Errorf("provider label lost: %q", got.Tool)
			}
		})
	}

	if classifyProviderError("p", nil) != nil {
		t.Error("nil error must classify to nil")
	}
}
