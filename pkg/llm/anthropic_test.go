package llm

import "testing"

func TestEnsureAlternationExtractsSystem(t *testing.T) {
	messages := []CompletionMessage{
		NewSystemMessage("you are a warehouse builder"),
		NewUserMessage("start phase zero"),
	}

	system, alternating, err := ensureAlternation(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if system != "you are a warehouse builder" {
		t.Errorf("system prompt not extracted: %q", system)
	}
	if len(alternating) != 1 || alternating[0].Role != RoleUser {
		t.Errorf("expected single user message, got %+v", alternating)
	}
}

func TestEnsureAlternationMergesConsecutiveUser(t *testing.T) {
	messages := []CompletionMessage{
		NewUserMessage("tool result: ok"),
		NewUserMessage("continue"),
	}

	_, alternating, err := ensureAlternation(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alternating) != 1 {
		t.Fatalf("expected consecutive user messages merged, got %d", len(alternating))
	}
	if alternating[0].Content != "tool result: ok\n\ncontinue" {
		t.Errorf("unexpected merged content: %q", alternating[0].Content)
	}
}

func TestEnsureAlternationKeepsCacheMarker(t *testing.T) {
	messages := []CompletionMessage{
		{Role: RoleUser, Content: "first", CacheControl: &CacheControl{Type: "ephemeral", TTL: "1h"}},
		NewUserMessage("second"),
	}

	_, alternating, err := ensureAlternation(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alternating[0].CacheControl == nil || alternating[0].CacheControl.TTL != "1h" {
		t.Error("cache control marker lost during merge")
	}
}

func TestEnsureAlternationRejectsAssistantTail(t *testing.T) {
	messages := []CompletionMessage{
		NewUserMessage("plan"),
		NewAssistantMessage("calling tool"),
	}

	if _, _, err := ensureAlternation(messages); err == nil {
		t.Error("expected error for conversation ending on assistant message")
	}
}

func TestEnsureAlternationRejectsEmpty(t *testing.T) {
	if _, _, err := ensureAlternation(nil); err == nil {
		t.Error("expected error for empty message list")
	}
	if _, _, err := ensureAlternation([]CompletionMessage{NewSystemMessage("only system")}); err == nil {
		t.Error("expected error when only system messages present")
	}
}
