// Package config provides configuration loading and structs for the tutor server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	LLM       LLMConfig       `yaml:"llm"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequestTimeoutSeconds bounds total pipeline latency per request.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// StorageConfig holds the path for the relational database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig holds embedder settings. When ModelPath is empty or the
// binary is built without the onnx tag, a deterministic hash embedder is used.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// CorpusConfig holds chunking settings for the per-agent corpus index.
type CorpusConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// PipelineConfig holds stage routing and relevance settings.
type PipelineConfig struct {
	// RelevanceThreshold is the minimum best-passage cosine score for the
	// retrieval stage to attempt an answer. Tune per embedding model.
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	TopK               int     `yaml:"top_k"`
	// RetryBackoffMS is the pause before the retrieval stage's single
	// completion retry.
	RetryBackoffMS int `yaml:"retry_backoff_ms"`
	// LinkRelevanceThreshold is the minimum normalized keyword score for a
	// fetched link to be used as answer context.
	LinkRelevanceThreshold float64 `yaml:"link_relevance_threshold"`
	MaxLinksPerQuery       int     `yaml:"max_links_per_query"`
	LinkFetchTimeoutSecs   int     `yaml:"link_fetch_timeout_seconds"`
	LinkCacheTTLSeconds    int     `yaml:"link_cache_ttl_seconds"`
	LinkContentMaxChars    int     `yaml:"link_content_max_chars"`
	// MinAnswerChars rejects trivially short completions as declines.
	MinAnswerChars int `yaml:"min_answer_chars"`
}

// LLMConfig holds completion capability settings.
type LLMConfig struct {
	OllamaBaseURL     string  `yaml:"ollama_base_url"`
	OllamaModel       string  `yaml:"ollama_model"`
	GeminiModel       string  `yaml:"gemini_model"`
	Temperature       float64 `yaml:"temperature"`
	CompletionTimeout int     `yaml:"completion_timeout_seconds"`
}

// IngestConfig holds drop-directory settings. Files placed under
// <directory>/<agent-id>/ are extracted and ingested into that agent's corpus.
type IngestConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Ingest.Directories {
		cfg.Ingest.Directories[i] = expandPath(cfg.Ingest.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting ingest directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
