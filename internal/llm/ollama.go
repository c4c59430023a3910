package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/educore/tutor/internal/config"
)

// OllamaCompleter generates completions against a local Ollama server using
// the non-streaming /api/generate endpoint.
type OllamaCompleter struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

// NewOllamaCompleter creates a completer for the configured Ollama instance.
func NewOllamaCompleter(cfg *config.LLMConfig) *OllamaCompleter {
	timeout := time.Duration(cfg.CompletionTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaCompleter{
		baseURL:     strings.TrimRight(cfg.OllamaBaseURL, "/"),
		model:       cfg.OllamaModel,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in errors and logs.
func (o *OllamaCompleter) Name() string { return "ollama" }

type ollamaRequest struct {
	Model   string `json:"model"`
	System  string `json:"system,omitempty"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature,omitempty"`
	} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete sends a generate request to Ollama. Transport and API failures
// are returned as ProviderError.
func (o *OllamaCompleter) Complete(ctx context.Context, systemPrompt, contextText, question string) (string, error) {
	prompt := GeneralPrompt(question)
	if contextText != "" {
		prompt = GroundedPrompt(contextText, question)
	}

	reqBody := ollamaRequest{
		Model:  o.model,
		System: systemPrompt,
		Prompt: prompt,
		Stream: false,
	}
	reqBody.Options.Temperature = o.temperature

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Provider: o.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: o.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: o.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &ProviderError{
			Provider: o.Name(),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", &ProviderError{Provider: o.Name(), Err: err}
	}
	return strings.TrimSpace(ollamaResp.Response), nil
}
