// Package gateway dispatches tool calls to their adapters. It is the single
// choke point between the reasoning loop and the outside world: argument
// validation, per-call timeouts, and the retry policy all live here so no
// adapter has to reimplement them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"dwagent/pkg/logx"
	"dwagent/pkg/proto"
	"dwagent/pkg/taxonomy"
	"dwagent/pkg/tools"
)

const defaultCallTimeout = 2 * time.Minute

// Recorder receives dispatch outcomes for metrics. Implemented by
// pkg/metrics; NoopRecorder satisfies it for tests.
type Recorder interface {
	RecordToolCall(tool string, status proto.ResultStatus, duration time.Duration, attempts int)
}

// NoopRecorder discards all observations.
type NoopRecorder struct{}

// RecordToolCall implements Recorder.
func (NoopRecorder) RecordToolCall(string, proto.ResultStatus, time.Duration, int) {}

// Gateway owns dispatch of tool calls for all sessions. Safe for concurrent
// use; per-session serialization is the loop's job, not the gateway's.
type Gateway struct {
	provider    *tools.Provider
	recorder    Recorder
	logger      *logx.Logger
	callTimeout time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.recorder = r
		}
	}
}

// New creates a gateway over the given tool provider.
func New(provider *tools.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:    provider,
		recorder:    NoopRecorder{},
		logger:      logx.NewLogger("gateway"),
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Definitions returns the tool definitions the provider exposes, for prompt
// assembly.
func (g *Gateway) Definitions() []tools.ToolDefinition {
	return g.provider.Definitions()
}

// Submit dispatches one tool call and returns its result. Validation failures
// and unknown tools are rejected before any side effect. Transient failures
// are retried with exponential backoff per the error's retry config; semantic
// failures are returned immediately. Submit never returns an error: every
// failure mode is folded into the result's status so the loop can feed it
// back to the reasoner.
func (g *Gateway) Submit(ctx context.Context, call proto.ToolCall) proto.ToolResult {
	start := time.Now()

	tool, err := g.provider.Get(call.Name)
	if err != nil {
		result := g.reject(call, taxonomy.Validationf("unknown tool %q", call.Name), start)
		g.recorder.RecordToolCall(call.Name, result.Status, result.Duration, 0)
		return result
	}

	if validator, ok := tool.(tools.Validator); ok {
		if verr := validator.Validate(call.Args); verr != nil {
			logx.Debug(ctx, "gateway", "rejected %s call %s: %v", call.Name, call.ID, verr)
			result := g.reject(call, verr, start)
			g.recorder.RecordToolCall(call.Name, result.Status, result.Duration, 0)
			return result
		}
	}

	result := g.dispatch(ctx, tool, call, start)
	g.recorder.RecordToolCall(call.Name, result.Status, result.Duration, result.Attempts)
	return result
}

// dispatch runs the tool with the retry policy the first failure selects.
func (g *Gateway) dispatch(ctx context.Context, tool tools.Tool, call proto.ToolCall, start time.Time) proto.ToolResult {
	var lastErr error
	retryCfg := taxonomy.DefaultRetryConfigs[taxonomy.ErrorTypeTransient]

	attempt := 0
	for {
		attempt++

		payload, err := g.execOnce(ctx, tool, call)
		if err == nil {
			logx.Debug(ctx, "gateway", "%s call %s ok after %d attempt(s)", call.Name, call.ID, attempt)
			return proto.ToolResult{
				CallID:   call.ID,
				Status:   proto.ResultOK,
				Payload:  payload,
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}
		lastErr = err

		var terr *taxonomy.Error
		if errors.As(err, &terr) {
			retryCfg = terr.GetRetryConfig()
			if !terr.IsRetryable() {
				break
			}
		}

		if attempt > retryCfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			break
		}

		delay := backoffDelay(retryCfg, attempt)
		g.logger.Debug("retrying %s call %s in %s (attempt %d/%d): %v",
			call.Name, call.ID, delay, attempt, retryCfg.MaxRetries+1, err)
		select {
		case <-ctx.Done():
			return g.failed(call, ctx.Err(), attempt, start)
		case <-time.After(delay):
		}
	}

	return g.failed(call, lastErr, attempt, start)
}

// execOnce runs a single attempt under the per-call timeout. A deadline hit
// on an otherwise healthy parent context is a transient collaborator failure.
func (g *Gateway) execOnce(ctx context.Context, tool tools.Tool, call proto.ToolCall) (map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	payload, err := tool.Exec(callCtx, call.Args)
	if err == nil {
		return payload, nil
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, taxonomy.NewErrorWithCause(taxonomy.ErrorTypeTransient, err,
			fmt.Sprintf("%s timed out after %s", call.Name, g.callTimeout))
	}
	return nil, err
}

func (g *Gateway) reject(call proto.ToolCall, err error, start time.Time) proto.ToolResult {
	return proto.ToolResult{
		CallID:   call.ID,
		Status:   statusOf(err),
		Error:    err.Error(),
		Attempts: 0,
		Duration: time.Since(start),
	}
}

func (g *Gateway) failed(call proto.ToolCall, err error, attempts int, start time.Time) proto.ToolResult {
	g.logger.Warn("%s call %s failed after %d attempt(s): %v", call.Name, call.ID, attempts, err)
	return proto.ToolResult{
		CallID:   call.ID,
		Status:   statusOf(err),
		Error:    err.Error(),
		Attempts: attempts,
		Duration: time.Since(start),
	}
}

// statusOf maps an error onto a result status. Unclassified errors count as
// transient so the reasoner may choose to reissue the action.
func statusOf(err error) proto.ResultStatus {
	var terr *taxonomy.Error
	if errors.As(err, &terr) {
		return terr.ResultStatus()
	}
	return proto.ResultTransient
}

// backoffDelay computes the exponential backoff delay for a retry attempt,
// with optional jitter.
func backoffDelay(cfg taxonomy.RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		jitterFactor := 2*time.Now().UnixNano()%2 - 1 // -1 or 1
		jitter := time.Duration(float64(delay) * 0.1 * float64(jitterFactor))
		delay += jitter
		if delay < 0 {
			delay = cfg.InitialDelay
		}
	}
	return delay
}
