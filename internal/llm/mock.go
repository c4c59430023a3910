package llm

import (
	"context"
	"sync"
)

// MockCompleter is a scripted completer for tests. Responses are returned in
// order; when the script runs out the last entry repeats. An entry with a
// non-nil Err is returned as that error.
type MockCompleter struct {
	ProviderName string

	mu     sync.Mutex
	script []MockTurn
	calls  []MockCall
}

// MockTurn is one scripted completion outcome.
type MockTurn struct {
	Answer string
	Err    error
}

// MockCall records the arguments of one Complete invocation.
type MockCall struct {
	SystemPrompt string
	ContextText  string
	Question     string
}

// NewMockCompleter returns a completer that replays the given turns.
func NewMockCompleter(turns ...MockTurn) *MockCompleter {
	return &MockCompleter{ProviderName: "mock", script: turns}
}

// Name returns the configured provider name.
func (m *MockCompleter) Name() string { return m.ProviderName }

// Complete records the call and returns the next scripted turn.
func (m *MockCompleter) Complete(ctx context.Context, systemPrompt, contextText, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ProviderError{Provider: m.Name(), Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		SystemPrompt: systemPrompt,
		ContextText:  contextText,
		Question:     question,
	})
	if len(m.script) == 0 {
		return "", &ProviderError{Provider: m.Name(), Err: context.Canceled}
	}
	idx := len(m.calls) - 1
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	turn := m.script[idx]
	if turn.Err != nil {
		return "", turn.Err
	}
	return turn.Answer, nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockCompleter) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}
