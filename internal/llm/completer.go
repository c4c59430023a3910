// Package llm provides completion providers for answer generation.
//
// Two providers are supported: a local Ollama server for corpus-grounded
// answers and Gemini for web-grounded and general-knowledge answers. Both
// implement Completer so pipeline stages stay provider-agnostic.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RefusalSentinel is the phrase providers are instructed to emit when the
// supplied context does not contain the answer. Stages treat it as a decline.
const RefusalSentinel = "I don't have information about that in my current knowledge."

// Completer generates an answer to a question grounded in contextText.
// An empty contextText means the provider may answer from general knowledge.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, contextText, question string) (string, error)
	Name() string
}

// ProviderError wraps a transport or API failure from a completion provider.
// It is distinct from a refusal: a refusal is a well-formed answer saying
// "I don't know", while a ProviderError means no answer was produced at all.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// refusalMarkers are lowercase substrings that indicate the model declined
// to answer from the supplied context.
var refusalMarkers = []string{
	strings.ToLower(RefusalSentinel),
	"i don't have information",
	"i do not have information",
	"i don't have enough information",
	"i cannot find",
	"not mentioned in the provided",
	"the provided context does not",
	"no information about that in the context",
}

// IsRefusal reports whether answer is a refusal or too short to be a real
// answer. minChars below 1 disables the length check.
func IsRefusal(answer string, minChars int) bool {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return true
	}
	if minChars > 0 && len(trimmed) < minChars {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// GroundedPrompt builds the user prompt for context-grounded answering.
// The instruction to emit the refusal sentinel keeps declines detectable.
func GroundedPrompt(contextText, question string) string {
	var b strings.Builder
	b.WriteString("Answer the question using ONLY the context below. ")
	b.WriteString("If the context does not contain the answer, reply exactly: ")
	b.WriteString(RefusalSentinel)
	b.WriteString("\n\nContext:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// GeneralPrompt builds the user prompt for general-knowledge answering.
func GeneralPrompt(question string) string {
	return "Answer the following question helpfully and concisely.\n\nQuestion: " + question
}
