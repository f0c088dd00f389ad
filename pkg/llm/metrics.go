package llm

import (
	"context"
	"time"

	"dwagent/pkg/taxonomy"
)

// Recorder receives one observation per reasoner request.
type Recorder interface {
	ObserveCompletion(model string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration)
}

// NoopRecorder discards observations.
type NoopRecorder struct{}

// ObserveCompletion implements Recorder.
func (NoopRecorder) ObserveCompletion(string, int, int, bool, string, time.Duration) {}

// UsageExtractor estimates token usage from a request and response.
type UsageExtractor func(in CompletionRequest, resp CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor approximates token counts at four characters per
// token. Wire a tokenizer-backed extractor for accurate numbers.
func DefaultUsageExtractor(in CompletionRequest, resp CompletionResponse) (promptTokens, completionTokens int) {
	var promptChars int
	for i := range in.Messages {
		promptChars += len(in.Messages[i].Content) + 1
	}
	return promptChars / 4, len(resp.Content) / 4
}

// MetricsMiddleware records latency, token usage, and outcome for every
// completion.
func MetricsMiddleware(recorder Recorder, usage UsageExtractor) Middleware {
	if usage == nil {
		usage = DefaultUsageExtractor
	}
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, in)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				errorType := ""
				if err == nil {
					promptTokens, completionTokens = usage(in, resp)
				} else {
					errorType = taxonomy.TypeOf(err).String()
				}
				recorder.ObserveCompletion(next.GetModelName(), promptTokens, completionTokens, err == nil, errorType, duration)
				return resp, err
			},
			func(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
				start := time.Now()
				ch, err := next.Stream(ctx, in)
				errorType := ""
				if err != nil {
					errorType = taxonomy.TypeOf(err).String()
				}
				// Only setup time is observed for streams; token counting
				// would require consuming the channel.
				recorder.ObserveCompletion(next.GetModelName(), 0, 0, err == nil, errorType, time.Since(start))
				return ch, err
			},
			next.GetModelName,
		)
	}
}
