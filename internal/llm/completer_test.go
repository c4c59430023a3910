package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsRefusal(t *testing.T) {
	cases := []struct {
		name    string
		answer  string
		refusal bool
	}{
		{"empty", "", true},
		{"whitespace", "   \n ", true},
		{"sentinel", RefusalSentinel, true},
		{"sentinel embedded", "Well, " + RefusalSentinel, true},
		{"short answer", "Yes.", true},
		{"no information variant", "I don't have information on this topic, sorry.", true},
		{"context does not variant", "The provided context does not mention holidays anywhere.", true},
		{"real answer", "The capital of Goiás is Goiânia, a city of about 1.5 million people.", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRefusal(tc.answer, 20); got != tc.refusal {
				t.Errorf("IsRefusal(%q) = %v, want %v", tc.answer, got, tc.refusal)
			}
		})
	}
}

func TestIsRefusalLengthCheckDisabled(t *testing.T) {
	if IsRefusal("Yes.", 0) {
		t.Error("short answer should pass when length check is disabled")
	}
}

func TestProviderErrorWrapping(t *testing.T) {
	inner := errors.New("connection refused")
	err := &ProviderError{Provider: "ollama", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("ProviderError should unwrap to the inner error")
	}
	if !IsProviderError(err) {
		t.Error("IsProviderError should detect a direct ProviderError")
	}
	wrapped := fmt.Errorf("stage failed: %w", err)
	if !IsProviderError(wrapped) {
		t.Error("IsProviderError should see through wrapping")
	}
	if IsProviderError(errors.New("plain")) {
		t.Error("plain errors are not provider errors")
	}
}

func TestGroundedPromptContainsSentinelInstruction(t *testing.T) {
	prompt := GroundedPrompt("some context", "some question")
	if !strings.Contains(prompt, RefusalSentinel) {
		t.Error("grounded prompt must instruct the refusal sentinel")
	}
	if !strings.Contains(prompt, "some context") || !strings.Contains(prompt, "some question") {
		t.Error("grounded prompt must embed context and question")
	}
}

func TestMockCompleterScript(t *testing.T) {
	boom := &ProviderError{Provider: "mock", Err: errors.New("down")}
	m := NewMockCompleter(MockTurn{Err: boom}, MockTurn{Answer: "second try"})

	if _, err := m.Complete(context.Background(), "sys", "ctx", "q"); err == nil {
		t.Fatal("expected first scripted error")
	}
	answer, err := m.Complete(context.Background(), "sys", "ctx", "q")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "second try" {
		t.Errorf("got %q", answer)
	}
	// Script exhausted: last turn repeats.
	answer, _ = m.Complete(context.Background(), "sys", "ctx", "q")
	if answer != "second try" {
		t.Errorf("got %q", answer)
	}
	if len(m.Calls()) != 3 {
		t.Errorf("expected 3 recorded calls, got %d", len(m.Calls()))
	}
}
