package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "debug: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug flag lost")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeoutSeconds != 180 {
		t.Errorf("default request timeout = %d", cfg.Server.RequestTimeoutSeconds)
	}
	if cfg.Pipeline.RelevanceThreshold != 0.25 {
		t.Errorf("default relevance threshold = %f", cfg.Pipeline.RelevanceThreshold)
	}
	if cfg.LLM.OllamaBaseURL != "http://localhost:11434" {
		t.Errorf("default ollama url = %s", cfg.LLM.OllamaBaseURL)
	}
	if len(cfg.Ingest.Extensions) == 0 {
		t.Error("default extensions missing")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9090
  request_timeout_seconds: 60
pipeline:
  relevance_threshold: 0.4
  top_k: 3
llm:
  ollama_model: mistral
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("server config not honored: %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeoutSeconds != 60 {
		t.Errorf("timeout override lost: %d", cfg.Server.RequestTimeoutSeconds)
	}
	if cfg.Pipeline.RelevanceThreshold != 0.4 || cfg.Pipeline.TopK != 3 {
		t.Errorf("pipeline config not honored: %+v", cfg.Pipeline)
	}
	if cfg.LLM.OllamaModel != "mistral" {
		t.Errorf("model override lost: %s", cfg.LLM.OllamaModel)
	}
}

func TestLoadExpandsRelativePaths(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: ./data/tutor.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(filepath.Dir(path), "data/tutor.db")
	if cfg.Storage.DatabasePath != want {
		t.Errorf("got %s, want %s", cfg.Storage.DatabasePath, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Ingest.Directories = []string{"/srv/drops"}

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Ingest.Directories) != 1 || loaded.Ingest.Directories[0] != "/srv/drops" {
		t.Errorf("directories not persisted: %v", loaded.Ingest.Directories)
	}
}
