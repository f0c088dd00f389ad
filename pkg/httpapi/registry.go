package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"dwagent/pkg/loop"
	"dwagent/pkg/proto"
)

// EngineMetrics receives session lifecycle observations from the registry.
// metrics.PrometheusRecorder satisfies it.
type EngineMetrics interface {
	IncInvocation()
	SessionOpened()
	SessionClosed()
	ObserveSessionEnd(status proto.SessionStatus)
}

type noopEngineMetrics struct{}

func (noopEngineMetrics) IncInvocation()                        {}
func (noopEngineMetrics) SessionOpened()                        {}
func (noopEngineMetrics) SessionClosed()                        {}
func (noopEngineMetrics) ObserveSessionEnd(proto.SessionStatus) {}

// Registry maps session IDs to live runners. Sessions not resident in
// memory are rebuilt from persistence on the next invoke, so the engine
// survives restarts without losing in-flight work.
type Registry struct {
	mu      sync.Mutex
	runners map[string]*loop.Runner
	deps    loop.Deps
	metrics EngineMetrics
}

// NewRegistry creates a session registry. metrics may be nil.
func NewRegistry(deps loop.Deps, metrics EngineMetrics) *Registry {
	if metrics == nil {
		metrics = noopEngineMetrics{}
	}
	return &Registry{
		runners: make(map[string]*loop.Runner),
		deps:    deps,
		metrics: metrics,
	}
}

// ErrSessionNotFound is returned when an invoke names an unknown session.
var ErrSessionNotFound = errors.New("session not found")

// resolve returns the runner for sessionID, rebuilding it from the store
// when the process has no live runner. An empty sessionID starts a fresh
// session.
func (g *Registry) resolve(sessionID, userID string) (*loop.Runner, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sessionID == "" {
		sess := proto.NewSession(userID)
		runner := loop.NewRunner(sess, g.deps)
		g.runners[sess.ID] = runner
		g.metrics.SessionOpened()
		return runner, nil
	}

	if runner, ok := g.runners[sessionID]; ok {
		return runner, nil
	}

	sess, err := g.deps.Store.GetSession(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if sess.Status.Terminal() {
		return nil, fmt.Errorf("session %s is %s and cannot accept messages", sess.ID, sess.Status)
	}

	runner := loop.Resume(sess, g.deps)
	g.runners[sessionID] = runner
	g.metrics.SessionOpened()
	return runner, nil
}

// Invoke routes one message to its session's runner. Terminal sessions are
// evicted from the registry afterwards; their state stays in the store.
func (g *Registry) Invoke(ctx context.Context, sessionID, userID, message string) (*loop.Result, error) {
	runner, err := g.resolve(sessionID, userID)
	if err != nil {
		return nil, err
	}
	g.metrics.IncInvocation()

	result, err := runner.Invoke(ctx, message)
	if result != nil && result.Session.Status.Terminal() {
		g.evict(result.Session.ID, result.Session.Status)
	}
	return result, err
}

func (g *Registry) evict(sessionID string, status proto.SessionStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.runners[sessionID]; ok {
		delete(g.runners, sessionID)
		g.metrics.SessionClosed()
		g.metrics.ObserveSessionEnd(status)
	}
}

// Active returns the number of runners resident in memory.
func (g *Registry) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.runners)
}
