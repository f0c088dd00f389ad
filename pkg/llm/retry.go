package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"dwagent/pkg/taxonomy"
)

// RetryMiddleware wraps a client with taxonomy-driven retries. Transient and
// rate-limit failures back off exponentially per their retry configs;
// validation, semantic, auth, and fatal errors pass through untouched.
func RetryMiddleware() Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
				var lastErr error
				attempt := 1
				for {
					resp, err := next.Complete(ctx, in)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					var terr *taxonomy.Error
					if !errors.As(err, &terr) || !terr.IsRetryable() {
						return CompletionResponse{}, err
					}
					cfg := terr.GetRetryConfig()
					if attempt > cfg.MaxRetries {
						return CompletionResponse{}, taxonomy.NewRetriesExhaustedError(lastErr, attempt)
					}

					select {
					case <-ctx.Done():
						return CompletionResponse{}, ctx.Err()
					case <-time.After(retryDelay(cfg, attempt)):
					}
					attempt++
				}
			},
			func(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
				// Stream setup failures get one retry pass; chunks mid-stream
				// are not replayed.
				ch, err := next.Stream(ctx, in)
				if err == nil {
					return ch, nil
				}
				var terr *taxonomy.Error
				if !errors.As(err, &terr) || !terr.IsRetryable() {
					return nil, err
				}
				cfg := terr.GetRetryConfig()
				for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(retryDelay(cfg, attempt)):
					}
					ch, err = next.Stream(ctx, in)
					if err == nil {
						return ch, nil
					}
				}
				return nil, taxonomy.NewRetriesExhaustedError(err, cfg.MaxRetries+1)
			},
			next.GetModelName,
		)
	}
}

// retryDelay computes the backoff before the given retry attempt (1-based).
func retryDelay(cfg taxonomy.RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay > 0 {
		jitterFactor := float64(2*(time.Now().UnixNano()%2) - 1)
		delay += time.Duration(float64(delay) * 0.1 * jitterFactor)
	}
	return delay
}
