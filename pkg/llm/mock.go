package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted LLMClient for tests. Each Complete call pops the
// next queued response; when the script runs out it repeats the last one.
type MockClient struct {
	mu        sync.Mutex
	script    []MockTurn
	cursor    int
	Requests  []CompletionRequest
	ModelName string
}

// MockTurn is one scripted exchange.
type MockTurn struct {
	Response CompletionResponse
	Err      error
}

// NewMockClient creates a scripted client.
func NewMockClient(script ...MockTurn) *MockClient {
	return &MockClient{script: script, ModelName: "mock-model"}
}

// Complete implements LLMClient.
func (m *MockClient) Complete(_ context.Context, in CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, in)
	if len(m.script) == 0 {
		return CompletionResponse{Content: "ok", StopReason: "end_turn"}, nil
	}
	turn := m.script[m.cursor]
	if m.cursor < len(m.script)-1 {
		m.cursor++
	}
	return turn.Response, turn.Err
}

// Stream implements LLMClient.
func (m *MockClient) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	resp, err := m.Complete(ctx, in)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Content: resp.Content}
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

// GetModelName implements LLMClient.
func (m *MockClient) GetModelName() string {
	return m.ModelName
}

// Calls returns how many Complete calls the mock has seen.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
