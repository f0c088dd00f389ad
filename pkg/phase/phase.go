// Package phase encodes the fixed warehouse construction phase sequence and
// each phase's completion predicate. Phases advance only on verified
// completion; skipping ahead is rejected, re-entry to repair a partial
// failure is allowed.
package phase

import (
	"errors"
	"sync"
	"time"

	"dwagent/pkg/logx"
	"dwagent/pkg/taxonomy"
)

// ErrInvalidTransition is returned for out-of-order phase transition requests.
var ErrInvalidTransition = errors.New("invalid phase transition")

// Phase ordinals. Strictly increasing, no gaps.
const (
	PhaseInfrastructure = 0
	PhaseDiscovery      = 1
	PhaseStructure      = 2
	PhaseLoad           = 3
	PhaseValidate       = 4
)

// Definition describes one phase: its name, the steps it requires, and the
// facts its completion predicate checks. Definitions are immutable once built.
type Definition struct {
	Ordinal       int
	Name          string
	RequiredSteps []string
	// RequiredFacts are observation keys that must all be true for the
	// completion predicate to hold. Facts are reported by read-only
	// discovery tool calls.
	RequiredFacts []string
}

// Sequence returns the fixed phase definitions in order.
func Sequence() []Definition {
	return []Definition{
		{
			Ordinal:       PhaseInfrastructure,
			Name:          "phase_0_infrastructure",
			RequiredSteps: []string{"validate connection", "ensure database"},
			RequiredFacts: []string{"connection_validated", "database_exists"},
		},
		{
			Ordinal:       PhaseDiscovery,
			Name:          "phase_1_discovery",
			RequiredSteps: []string{"catalog source objects"},
			RequiredFacts: []string{"sources_cataloged"},
		},
		{
			Ordinal:       PhaseStructure,
			Name:          "phase_2_structure",
			RequiredSteps: []string{"create schemas", "create tables"},
			RequiredFacts: []string{"schemas_created", "tables_created"},
		},
		{
			Ordinal:       PhaseLoad,
			Name:          "phase_3_load",
			RequiredSteps: []string{"load raw layer", "build staging layer", "build analytics layer"},
			RequiredFacts: []string{"data_loaded"},
		},
		{
			Ordinal:       PhaseValidate,
			Name:          "phase_4_validate",
			RequiredSteps: []string{"verify row counts", "run quality checks"},
			RequiredFacts: []string{"quality_checks_passed"},
		},
	}
}

// Name returns the phase name for an ordinal, or "unknown".
func Name(ordinal int) string {
	seq := Sequence()
	if ordinal >= 0 && ordinal < len(seq) {
		return seq[ordinal].Name
	}
	return "unknown"
}

// Count returns the number of phases in the sequence.
func Count() int {
	return len(Sequence())
}

// Transition records one phase change for auditing.
type Transition struct {
	From      int
	To        int
	Timestamp time.Time
}

// Machine tracks one session's position in the phase sequence. It validates
// every transition request against the fixed order and evaluates completion
// predicates over observed facts.
type Machine struct {
	sessionID string
	defs      []Definition
	current   int
	completed map[int]bool
	facts     map[string]bool
	history   []Transition
	logger    *logx.Logger
	mu        sync.Mutex
}

// NewMachine creates a machine at phase 0 for a session.
func NewMachine(sessionID string) *Machine {
	return NewMachineAt(sessionID, PhaseInfrastructure)
}

// NewMachineAt creates a machine resumed at a given ordinal. Phases before
// the ordinal are considered complete; used when replaying progress.
func NewMachineAt(sessionID string, ordinal int) *Machine {
	defs := Sequence()
	if ordinal < 0 {
		ordinal = 0
	}
	if ordinal > len(defs) {
		ordinal = len(defs)
	}
	completed := make(map[int]bool)
	for i := 0; i < ordinal; i++ {
		completed[i] = true
	}
	return &Machine{
		sessionID: sessionID,
		defs:      defs,
		current:   ordinal,
		completed: completed,
		facts:     make(map[string]bool),
		logger:    logx.NewLogger(sessionID),
	}
}

// Current returns the current phase ordinal. Once all phases complete, this
// equals Count().
func (m *Machine) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CurrentName returns the current phase name, or "done" when all complete.
func (m *Machine) CurrentName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current >= len(m.defs) {
		return "done"
	}
	return m.defs[m.current].Name
}

// Done reports whether every phase has completed.
func (m *Machine) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current >= len(m.defs)
}

// Observe records a fact reported by a read-only discovery call. Facts are
// the only inputs to completion predicates.
func (m *Machine) Observe(fact string, value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[fact] = value
}

// Fact returns the recorded value of a fact.
func (m *Machine) Fact(fact string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facts[fact]
}

// Evaluate runs the current phase's completion predicate against observed
// facts. Done machines always evaluate true.
func (m *Machine) Evaluate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluateLocked()
}

func (m *Machine) evaluateLocked() bool {
	if m.current >= len(m.defs) {
		return true
	}
	for _, fact := range m.defs[m.current].RequiredFacts {
		if !m.facts[fact] {
			return false
		}
	}
	return true
}

// Advance moves to the next phase if the current completion predicate holds.
// Returns false without error when the predicate is not yet satisfied.
func (m *Machine) Advance() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current >= len(m.defs) {
		return false, nil
	}
	if !m.evaluateLocked() {
		return false, nil
	}

	from := m.current
	m.completed[from] = true
	m.current++
	m.history = append(m.history, Transition{From: from, To: m.current, Timestamp: time.Now().UTC()})
	m.logger.Info("Phase transition: %s -> %s", m.defs[from].Name, m.nameLocked(m.current))
	return true, nil
}

func (m *Machine) nameLocked(ordinal int) string {
	if ordinal >= len(m.defs) {
		return "done"
	}
	return m.defs[ordinal].Name
}

// AuthorizeStep validates that a step targeting the given phase ordinal may
// run now. Re-entering the current or an earlier phase is allowed; any step
// for a future phase is rejected with a taxonomy validation error and does
// not change state.
func (m *Machine) AuthorizeStep(ordinal int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ordinal <= m.current {
		return nil
	}
	return taxonomy.NewErrorWithCause(
		taxonomy.ErrorTypeValidation,
		ErrInvalidTransition,
		"step targets "+Name(ordinal)+" but current phase is "+m.nameLocked(m.current),
	)
}

// History returns the recorded phase transitions in order.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition{}, m.history...)
}
