package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 180
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/tutor/data/tutor.db"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Corpus.ChunkSize == 0 {
		cfg.Corpus.ChunkSize = 512
	}
	if cfg.Corpus.ChunkOverlap == 0 {
		cfg.Corpus.ChunkOverlap = 50
	}
	if cfg.Pipeline.RelevanceThreshold == 0 {
		cfg.Pipeline.RelevanceThreshold = 0.25
	}
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = 8
	}
	if cfg.Pipeline.RetryBackoffMS == 0 {
		cfg.Pipeline.RetryBackoffMS = 500
	}
	if cfg.Pipeline.LinkRelevanceThreshold == 0 {
		cfg.Pipeline.LinkRelevanceThreshold = 0.1
	}
	if cfg.Pipeline.MaxLinksPerQuery == 0 {
		cfg.Pipeline.MaxLinksPerQuery = 3
	}
	if cfg.Pipeline.LinkFetchTimeoutSecs == 0 {
		cfg.Pipeline.LinkFetchTimeoutSecs = 10
	}
	if cfg.Pipeline.LinkCacheTTLSeconds == 0 {
		cfg.Pipeline.LinkCacheTTLSeconds = 300
	}
	if cfg.Pipeline.LinkContentMaxChars == 0 {
		cfg.Pipeline.LinkContentMaxChars = 5000
	}
	if cfg.Pipeline.MinAnswerChars == 0 {
		cfg.Pipeline.MinAnswerChars = 20
	}
	if cfg.LLM.OllamaBaseURL == "" {
		cfg.LLM.OllamaBaseURL = "http://localhost:11434"
	}
	if cfg.LLM.OllamaModel == "" {
		cfg.LLM.OllamaModel = "llama3"
	}
	if cfg.LLM.GeminiModel == "" {
		cfg.LLM.GeminiModel = "gemini-1.5-flash"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.CompletionTimeout == 0 {
		cfg.LLM.CompletionTimeout = 60
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
}
