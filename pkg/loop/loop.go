// Package loop drives one session's bounded reasoning cycle: assemble
// context, ask the reasoner for the next action, dispatch it through the
// gateway, record the outcome, and advance phases as their facts verify.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dwagent/pkg/agentctx"
	"dwagent/pkg/gateway"
	"dwagent/pkg/llm"
	"dwagent/pkg/logx"
	"dwagent/pkg/memory"
	"dwagent/pkg/persistence"
	"dwagent/pkg/phase"
	"dwagent/pkg/progress"
	"dwagent/pkg/proto"
	"dwagent/pkg/taxonomy"
	"dwagent/pkg/tools"
)

// DefaultMaxIterations caps reasoner calls per session.
const DefaultMaxIterations = 50

// Deps carries the collaborators a runner needs.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type Deps struct {
	Client        llm.LLMClient
	Gateway       *gateway.Gateway
	Progress      *progress.Recorder
	Store         *persistence.Store
	Memory        *memory.Manager // optional
	MaxIterations int
	WindowSize    int
}

// Runner owns one session's reasoning loop. Invoke calls serialize on the
// runner's mutex, so at most one tool call is ever outstanding per session.
type Runner struct {
	mu      sync.Mutex
	sess    *proto.Session
	machine *phase.Machine
	conv    *agentctx.Conversation
	deps    Deps
	logger  *logx.Logger
}

// Result is what an invoke returns to the API layer.
type Result struct {
	Response string
	Session  proto.Session
}

// NewRunner creates a runner for a fresh session.
func NewRunner(sess *proto.Session, deps Deps) *Runner {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = DefaultMaxIterations
	}
	return &Runner{
		sess:    sess,
		machine: phase.NewMachineAt(sess.ID, sess.Phase),
		conv:    agentctx.NewConversation(sess, deps.WindowSize, deps.Memory),
		deps:    deps,
		logger:  logx.NewLogger("loop").WithScope("session:" + shortID(sess.ID)),
	}
}

// Resume rebuilds a runner for a persisted session. The machine restarts at
// the persisted phase with no facts; re-entry is legal and the reasoner
// re-verifies completion with read-only checks before advancing.
func Resume(sess *proto.Session, deps Deps) *Runner {
	r := NewRunner(sess, deps)
	_ = r.deps.Progress.RecordInfo(sess.ID, sess.Iteration, sess.Phase, r.machine.CurrentName(),
		progress.StepSessionResumed, "session resumed from persistence")
	return r
}

// Session returns a snapshot of the session state.
func (r *Runner) Session() proto.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.sess
}

// Invoke feeds one user message into the loop and runs iterations until the
// reasoner answers in plain text, the session suspends on an escalation, or
// the session reaches a terminal status. Concurrent invokes serialize.
func (r *Runner) Invoke(ctx context.Context, message string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess.Status.Terminal() {
		return nil, fmt.Errorf("session %s is %s and cannot accept messages", r.sess.ID, r.sess.Status)
	}

	if r.sess.Status == proto.StatusAwaitingInput {
		r.sess.Status = proto.StatusRunning
		r.sess.PendingQuestion = ""
		r.recordInfo(progress.StepUserAnswered, message)
	} else if r.sess.Iteration == 0 {
		r.recordInfo(progress.StepSessionStarted, message)
	}
	r.conv.AddUser(message)

	return r.run(ctx)
}

// run is the iteration engine. The caller holds the mutex.
func (r *Runner) run(ctx context.Context) (*Result, error) {
	for {
		// Stop signal is honored only at iteration boundaries; a dispatched
		// action always completes and is recorded first.
		if err := ctx.Err(); err != nil {
			r.save()
			return nil, fmt.Errorf("invoke interrupted at iteration boundary: %w", err)
		}

		if r.sess.Iteration >= r.deps.MaxIterations {
			return r.finish(proto.StatusTimedOut,
				fmt.Sprintf("iteration cap %d reached", r.deps.MaxIterations), "iteration_cap")
		}
		r.sess.Iteration++

		resp, err := r.complete(ctx)
		if err != nil {
			return r.finish(proto.StatusAborted, fmt.Sprintf("reasoner failure: %v", err), "reasoner")
		}
		r.sess.TokensUsed += estimateTokens(resp.Content)
		r.conv.AddAssistant(resp.Content, resp.ToolCalls)

		if len(resp.ToolCalls) == 0 {
			// A plain text reply ends this invoke; the session stays live
			// for follow-up messages.
			r.save()
			return &Result{Response: resp.Content, Session: *r.sess}, nil
		}

		for i := range resp.ToolCalls {
			outcome, done := r.step(ctx, &resp.ToolCalls[i])
			if done {
				return outcome, nil
			}
		}
	}
}

// step dispatches one chosen action and applies its consequences. Returns a
// non-nil result when the invoke is over.
func (r *Runner) step(ctx context.Context, chosen *llm.ToolCall) (*Result, bool) {
	call := proto.NewToolCall(chosen.Name, chosen.Parameters)

	var result proto.ToolResult
	if err := r.authorize(chosen); err != nil {
		// Skip-ahead is rejected before dispatch and fed back like any
		// other validation failure.
		var terr *taxonomy.Error
		status := proto.ResultSemantic
		if errors.As(err, &terr) {
			status = terr.ResultStatus()
		}
		result = proto.ToolResult{CallID: call.ID, Status: status, Error: err.Error()}
	} else {
		result = r.deps.Gateway.Submit(ctx, call)
	}

	if err := r.deps.Progress.RecordToolCall(r.sess.ID, r.sess.Iteration, r.machine.Current(),
		r.machine.CurrentName(), &call, &result); err != nil {
		// Progress must precede the next action. A recording failure is a
		// structural problem, not a tool problem.
		res, _ := r.finish(proto.StatusAborted, fmt.Sprintf("progress recording failed: %v", err), chosen.Name)
		return res, true
	}
	r.conv.AddToolResult(chosen.Name, &result)

	r.observeFacts(result.Payload)

	if question, ok := escalation(result.Payload); ok {
		r.sess.Status = proto.StatusAwaitingInput
		r.sess.PendingQuestion = question
		r.recordInfo(progress.StepEscalated, question)
		r.save()
		return &Result{Response: question, Session: *r.sess}, true
	}

	if result.Status == proto.ResultFatal {
		res, _ := r.finish(proto.StatusAborted, result.Error, chosen.Name)
		return res, true
	}

	if r.machine.Evaluate() {
		advanced, err := r.machine.Advance()
		if err == nil && advanced {
			r.sess.Phase = r.machine.Current()
			r.recordInfo(progress.StepPhaseAdvanced, r.machine.CurrentName())
		}
		if r.machine.Done() {
			res, _ := r.finish(proto.StatusCompleted, "", "")
			return res, true
		}
	}
	return nil, false
}

// authorize rejects steps that declare a future target phase. Steps without
// a phase argument run under the current phase.
func (r *Runner) authorize(chosen *llm.ToolCall) error {
	raw, ok := chosen.Parameters[tools.KeyPhase]
	if !ok {
		return nil
	}
	var ordinal int
	switch v := raw.(type) {
	case float64:
		ordinal = int(v)
	case int:
		ordinal = v
	default:
		return nil
	}
	return r.machine.AuthorizeStep(ordinal)
}

// complete asks the reasoner for the next action with the current context.
func (r *Runner) complete(ctx context.Context) (llm.CompletionResponse, error) {
	req := llm.NewCompletionRequest(r.conv.Messages(ctx, agentctx.SystemPrompt(r.machine.Current())))
	req.Tools = r.deps.Gateway.Definitions()
	req.ToolChoice = "auto"

	resp, err := r.deps.Client.Complete(ctx, req)
	if err != nil {
		r.logger.Error("reasoner call failed (%s): %v", taxonomy.TypeOf(err), err)
		return llm.CompletionResponse{}, err
	}
	return resp, nil
}

// observeFacts feeds phase-completion facts from a tool payload into the
// machine.
func (r *Runner) observeFacts(payload map[string]any) {
	raw, ok := payload[tools.KeyFacts]
	if !ok {
		return
	}
	switch facts := raw.(type) {
	case map[string]bool:
		for name, value := range facts {
			r.machine.Observe(name, value)
		}
	case map[string]any:
		for name, value := range facts {
			if b, ok := value.(bool); ok {
				r.machine.Observe(name, b)
			}
		}
	}
}

// finish moves the session to a terminal status, flushes pending memory, and
// records the ending.
func (r *Runner) finish(status proto.SessionStatus, reason, step string) (*Result, error) {
	r.sess.Status = status
	r.sess.FailureReason = reason
	r.sess.FailureStep = step

	detail := string(status)
	if reason != "" {
		detail += ": " + reason
	}
	r.recordInfo(progress.StepSessionEnded, detail)

	if err := r.conv.Flush(context.Background()); err != nil {
		r.logger.Warn("memory flush failed: %v", err)
	}
	r.save()

	response := detail
	if status == proto.StatusCompleted {
		response = "all phases complete"
	}
	return &Result{Response: response, Session: *r.sess}, nil
}

func (r *Runner) recordInfo(step, detail string) {
	if err := r.deps.Progress.RecordInfo(r.sess.ID, r.sess.Iteration, r.machine.Current(),
		r.machine.CurrentName(), step, detail); err != nil {
		r.logger.Warn("progress record failed for %s: %v", step, err)
	}
}

func (r *Runner) save() {
	if r.deps.Store == nil {
		return
	}
	if err := r.deps.Store.UpsertSession(r.sess); err != nil {
		r.logger.Error("session persist failed: %v", err)
	}
}

// escalation extracts a pending human question from a tool payload.
func escalation(payload map[string]any) (string, bool) {
	if await, ok := payload[tools.KeyAwaitUser].(bool); !ok || !await {
		return "", false
	}
	question, _ := payload[tools.KeyQuestion].(string)
	return question, true
}

// estimateTokens approximates usage at four characters per token; exact
// counting happens in the metrics middleware.
func estimateTokens(text string) int {
	return len(text) / 4
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
