package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/educore/tutor/internal/config"
)

func newOllamaForURL(url string) *OllamaCompleter {
	return NewOllamaCompleter(&config.LLMConfig{
		OllamaBaseURL:     url,
		OllamaModel:       "llama3",
		Temperature:       0.2,
		CompletionTimeout: 5,
	})
}

func TestOllamaComplete(t *testing.T) {
	var gotReq ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "  Goiânia is the capital.  ", Done: true})
	}))
	defer srv.Close()

	c := newOllamaForURL(srv.URL)
	answer, err := c.Complete(context.Background(), "You are a tutor.", "the capital of Goiás is Goiânia", "What is the capital?")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "Goiânia is the capital." {
		t.Errorf("got %q", answer)
	}
	if gotReq.Model != "llama3" || gotReq.Stream {
		t.Errorf("bad request: %+v", gotReq)
	}
	if gotReq.System != "You are a tutor." {
		t.Errorf("system prompt not forwarded: %q", gotReq.System)
	}
	if !strings.Contains(gotReq.Prompt, "the capital of Goiás is Goiânia") {
		t.Error("context not embedded in prompt")
	}
}

func TestOllamaServerErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newOllamaForURL(srv.URL)
	_, err := c.Complete(context.Background(), "", "", "anything")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsProviderError(err) {
		t.Errorf("expected ProviderError, got %T", err)
	}
}

func TestOllamaUnreachableIsProviderError(t *testing.T) {
	c := newOllamaForURL("http://127.0.0.1:1")
	_, err := c.Complete(context.Background(), "", "", "anything")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsProviderError(err) {
		t.Errorf("expected ProviderError, got %T", err)
	}
}
