package agentctx

import (
	"fmt"
	"strings"

	"dwagent/pkg/phase"
)

// SystemPrompt renders the standing rules for the reasoner, parameterized by
// the session's current phase.
func SystemPrompt(currentPhase int) string {
	var b strings.Builder

	b.WriteString(`You are a data warehouse build agent. You construct a layered
warehouse (RAW -> STAGING -> ANALYTICS) by issuing exactly one tool call at a
time and waiting for its result before deciding the next action.

Rules:
- One atomic action per step. A warehouse call carries exactly one SQL
  statement; multi-statement requests are rejected before dispatch.
- Always use fully qualified DATABASE.SCHEMA.OBJECT names in structural
  statements. USE statements are rejected.
- Prefer idempotent DDL (CREATE ... IF NOT EXISTS) so retried steps are safe.
- Work strictly in phase order. Never skip ahead; a phase completes only when
  its facts are verified by read-only checks.
- When blocked on something only a human can answer (credentials, naming
  decisions, ambiguous requirements), call request_user_input.
- Record meaningful milestones with update_progress, including facts you have
  verified.
`)

	b.WriteString("\nPhases, in order:\n")
	for _, def := range phase.Sequence() {
		marker := "  "
		if def.Ordinal == currentPhase {
			marker = "->"
		}
		fmt.Fprintf(&b, "%s %d. %s: %s (facts: %s)\n", marker, def.Ordinal, def.Name,
			strings.Join(def.RequiredSteps, ", "), strings.Join(def.RequiredFacts, ", "))
	}
	fmt.Fprintf(&b, "\nCurrent phase: %s. Work only on this phase.\n", phase.Name(currentPhase))

	return b.String()
}
