// Package agentctx assembles the completion context for a session: system
// rules, the running synopsis, recalled memories, and the short-term window
// of recent turns. Evicted turns feed the memory manager so nothing said in
// a session is lost when it rolls out of the window.
package agentctx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dwagent/pkg/llm"
	"dwagent/pkg/logx"
	"dwagent/pkg/memory"
	"dwagent/pkg/proto"
)

const (
	// DefaultWindowSize bounds the short-term turn window.
	DefaultWindowSize = 25

	// recallResults is how many long-term memories are folded into context.
	recallResults = 3

	roleTool = "tool"
)

// Conversation holds one session's assembled context. Not safe for
// concurrent use; the owning loop is the only writer.
type Conversation struct {
	window        *memory.Window
	mem           *memory.Manager
	namespace     string
	userNamespace string
	logger        *logx.Logger
}

// NewConversation creates a conversation for a session. mem may be nil, in
// which case evicted turns are dropped and no synopsis or recall is woven in.
func NewConversation(sess *proto.Session, windowSize int, mem *memory.Manager) *Conversation {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	c := &Conversation{
		window:        memory.NewWindow(windowSize),
		mem:           mem,
		namespace:     sess.Namespace(),
		userNamespace: sess.UserNamespace(),
		logger:        logx.NewLogger("agentctx"),
	}
	if mem != nil {
		c.window.OnOverflow(func(turn memory.Turn) {
			if err := mem.AbsorbTurn(context.Background(), c.namespace, turn); err != nil {
				c.logger.Warn("failed to absorb evicted turn: %v", err)
			}
		})
	}
	return c
}

// AddUser appends a user message to the window.
func (c *Conversation) AddUser(content string) {
	c.window.Append(string(llm.RoleUser), content)
}

// AddAssistant appends the reasoner's reply, including any tool call it
// chose, so later iterations see what was asked for.
func (c *Conversation) AddAssistant(content string, calls []llm.ToolCall) {
	text := content
	for i := range calls {
		args, _ := json.Marshal(calls[i].Parameters)
		if text != "" {
			text += "\n"
		}
		text += fmt.Sprintf("[tool call %s %s]", calls[i].Name, string(args))
	}
	if text == "" {
		text = "[no action]"
	}
	c.window.Append(string(llm.RoleAssistant), text)
}

// AddToolResult appends a tool outcome. It travels as a tool-role turn in the
// window and is rendered as a user message for providers.
func (c *Conversation) AddToolResult(toolName string, result *proto.ToolResult) {
	c.window.Append(roleTool, RenderToolResult(toolName, result))
}

// RenderToolResult serializes a tool outcome as transcript text.
func RenderToolResult(toolName string, result *proto.ToolResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool %s result: %s", toolName, result.Status)
	if result.Attempts > 1 {
		fmt.Fprintf(&b, " (after %d attempts)", result.Attempts)
	}
	if result.Error != "" {
		fmt.Fprintf(&b, "\nError: %s", result.Error)
	}
	if len(result.Payload) > 0 {
		payload, err := json.Marshal(result.Payload)
		if err == nil {
			fmt.Fprintf(&b, "\nPayload: %s", payload)
		}
	}
	return b.String()
}

// Len returns the number of turns currently in the window.
func (c *Conversation) Len() int {
	return c.window.Len()
}

// Messages assembles the full completion message list: system rules, then
// synopsis and recalled memories as extra system context, then the windowed
// turns with tool results folded into user messages.
func (c *Conversation) Messages(ctx context.Context, systemPrompt string) []llm.CompletionMessage {
	messages := []llm.CompletionMessage{llm.NewSystemMessage(systemPrompt)}

	if c.mem != nil {
		if synopsis, err := c.mem.Synopsis(c.namespace); err == nil && synopsis != "" {
			messages = append(messages, llm.NewSystemMessage("Earlier conversation synopsis:\n"+synopsis))
		}
		if recalled := c.recall(ctx); recalled != "" {
			messages = append(messages, llm.NewSystemMessage("Relevant memories:\n"+recalled))
		}
	}

	for _, turn := range c.window.Turns() {
		switch turn.Role {
		case string(llm.RoleAssistant):
			messages = append(messages, llm.NewAssistantMessage(turn.Content))
		default:
			// tool turns and anything unrecognized travel as user messages
			messages = append(messages, llm.NewUserMessage(turn.Content))
		}
	}
	return messages
}

// recall searches long-term memory for records relevant to the latest user
// turn, in both the session and the shared user namespace.
func (c *Conversation) recall(ctx context.Context) string {
	query := c.latestUserContent()
	if query == "" {
		return ""
	}

	var lines []string
	namespaces := []string{c.namespace}
	if c.userNamespace != "" {
		namespaces = append(namespaces, c.userNamespace)
	}
	for _, ns := range namespaces {
		results, err := c.mem.Recall(ctx, ns, query, recallResults)
		if err != nil {
			c.logger.Warn("memory recall failed for %s: %v", ns, err)
			continue
		}
		for _, r := range results {
			lines = append(lines, "- "+r.Content)
		}
	}
	return strings.Join(lines, "\n")
}

func (c *Conversation) latestUserContent() string {
	turns := c.window.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == string(llm.RoleUser) {
			return turns[i].Content
		}
	}
	return ""
}

// Flush compacts any turns still pending in the memory manager. Called when
// the session reaches a terminal status.
func (c *Conversation) Flush(ctx context.Context) error {
	if c.mem == nil {
		return nil
	}
	return c.mem.Flush(ctx, c.namespace)
}
