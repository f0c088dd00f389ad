package llm

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"dwagent/pkg/taxonomy"
)

// classifyProviderError maps a provider SDK error onto the engine's error
// taxonomy so the retry middleware and the loop can react uniformly.
func classifyProviderError(provider string, err error) *taxonomy.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		e := taxonomy.NewErrorWithCause(taxonomy.ErrorTypeTransient, err, "reasoner request timeout")
		e.Tool = provider
		return e
	}
	if errors.Is(err, context.Canceled) {
		e := taxonomy.NewErrorWithCause(taxonomy.ErrorTypeFatal, err, "reasoner request canceled")
		e.Tool = provider
		return e
	}

	errStr := err.Error()
	if code := extractStatusCode(errStr); code != 0 {
		var errType taxonomy.ErrorType
		var msg string
		switch {
		case code == 401 || code == 403:
			errType, msg = taxonomy.ErrorTypeAuth, "authentication failed, check API key"
		case code == 429:
			errType, msg = taxonomy.ErrorTypeRateLimit, "rate limit exceeded"
		case code == 400 || code == 404 || code == 422:
			errType, msg = taxonomy.ErrorTypeSemantic, "bad request, check prompt format and parameters"
		case code >= 500:
			errType, msg = taxonomy.ErrorTypeTransient, "provider server error"
		default:
			errType, msg = taxonomy.ErrorTypeUnknown, "unclassified provider error"
		}
		e := taxonomy.NewErrorWithStatus(errType, code, msg)
		e.Tool = provider
		e.Err = err
		return e
	}

	lower := strings.ToLower(errStr)
	var classified *taxonomy.Error
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network") || strings.Contains(lower, "temporary") ||
		strings.Contains(errStr, "EOF") || strings.Contains(lower, "reset"):
		classified = taxonomy.NewErrorWithCause(taxonomy.ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "rate") || strings.Contains(lower, "quota") ||
		strings.Contains(lower, "overloaded"):
		classified = taxonomy.NewErrorWithCause(taxonomy.ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "api key") ||
		strings.Contains(lower, "auth"):
		classified = taxonomy.NewErrorWithCause(taxonomy.ErrorTypeAuth, err, "authentication error")
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "malformed") ||
		strings.Contains(lower, "too large"):
		classified = taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "prompt or request error")
	default:
		classified = taxonomy.NewErrorWithCause(taxonomy.ErrorTypeUnknown, err, "unclassified error")
	}
	classified.Tool = provider
	return classified
}

// extractStatusCode pulls an HTTP status code out of an SDK error string.
// Provider SDKs embed codes in error messages rather than typed fields.
func extractStatusCode(errStr string) int {
	patterns := []string{"status code: ", "status: ", "http ", "code "}
	lower := strings.ToLower(errStr)

	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		end := start + 3
		if end > len(errStr) {
			continue
		}
		code, err := strconv.Atoi(errStr[start:end])
		if err != nil || code < 100 || code > 599 {
			continue
		}
		return code
	}
	return 0
}
