package agentctx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dwagent/pkg/llm"
	"dwagent/pkg/phase"
	"dwagent/pkg/proto"
)

func TestMessagesOrderAndRoles(t *testing.T) {
	sess := proto.NewSession("")
	conv := NewConversation(sess, 10, nil)

	conv.AddUser("build the warehouse")
	conv.AddAssistant("validating connection", []llm.ToolCall{
		{ID: "c1", Name: "validate_warehouse_connection", Parameters: map[string]any{}},
	})
	conv.AddToolResult("validate_warehouse_connection", &proto.ToolResult{
		CallID:   "c1",
		Status:   proto.ResultOK,
		Payload:  map[string]any{"connected": true},
		Attempts: 1,
	})

	messages := conv.Messages(context.Background(), SystemPrompt(0))
	require.Len(t, messages, 4)

	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, llm.RoleUser, messages[1].Role)
	assert.Equal(t, llm.RoleAssistant, messages[2].Role)
	assert.Contains(t, messages[2].Content, "validate_warehouse_connection")

	// tool results surface as user messages
	assert.Equal(t, llm.RoleUser, messages[3].Role)
	assert.Contains(t, messages[3].Content, `"connected":true`)
}

func TestWindowEvictionBounded(t *testing.T) {
	sess := proto.NewSession("")
	conv := NewConversation(sess, 3, nil)

	for i := 0; i < 10; i++ {
		conv.AddUser("turn")
	}
	assert.Equal(t, 3, conv.Len())
}

func TestRenderToolResultWithError(t *testing.T) {
	text := RenderToolResult("execute_warehouse_query", &proto.ToolResult{
		Status:   proto.ResultSemantic,
		Error:    "identifier not fully qualified",
		Attempts: 1,
	})
	assert.Contains(t, text, "semantic_error")
	assert.Contains(t, text, "identifier not fully qualified")
}

func TestRenderToolResultReportsRetries(t *testing.T) {
	text := RenderToolResult("execute_warehouse_query", &proto.ToolResult{
		Status:   proto.ResultOK,
		Attempts: 3,
	})
	assert.Contains(t, text, "after 3 attempts")
}

func TestAddAssistantWithoutAction(t *testing.T) {
	sess := proto.NewSession("")
	conv := NewConversation(sess, 5, nil)
	conv.AddAssistant("", nil)

	messages := conv.Messages(context.Background(), "rules")
	require.Len(t, messages, 2)
	assert.Equal(t, "[no action]", messages[1].Content)
}

func TestSystemPromptMarksCurrentPhase(t *testing.T) {
	prompt := SystemPrompt(phase.PhaseStructure)

	assert.Contains(t, prompt, "Current phase: phase_2_structure")
	assert.Contains(t, prompt, "-> 2. phase_2_structure")
	// every phase is listed so the reasoner knows the full ladder
	for _, def := range phase.Sequence() {
		assert.Contains(t, prompt, def.Name)
	}
	// one statement per call rule is standing policy
	assert.True(t, strings.Contains(prompt, "exactly one SQL"))
}
