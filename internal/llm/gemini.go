package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/educore/tutor/internal/config"
)

// GeminiCompleter generates completions through the Gemini API.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	temperature float64
}

// NewGeminiCompleter creates a completer backed by Gemini. apiKey must be set;
// without it the link and general stages cannot run.
func NewGeminiCompleter(ctx context.Context, cfg *config.LLMConfig, apiKey string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiCompleter{
		client:      client,
		model:       cfg.GeminiModel,
		temperature: cfg.Temperature,
	}, nil
}

// Name identifies the provider in errors and logs.
func (g *GeminiCompleter) Name() string { return "gemini" }

// Complete sends the prompt to Gemini. API failures are returned as
// ProviderError.
func (g *GeminiCompleter) Complete(ctx context.Context, systemPrompt, contextText, question string) (string, error) {
	prompt := GeneralPrompt(question)
	if contextText != "" {
		prompt = GroundedPrompt(contextText, question)
	}

	var genCfg *genai.GenerateContentConfig
	temp := float32(g.temperature)
	genCfg = &genai.GenerateContentConfig{Temperature: &temp}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return "", &ProviderError{Provider: g.Name(), Err: err}
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &ProviderError{Provider: g.Name(), Err: fmt.Errorf("empty completion")}
	}
	return text, nil
}
