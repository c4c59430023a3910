// Package embedding provides text embedding for corpus passages and questions.
package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/config"
)

// Embedder produces vector embeddings for text. Embeddings are unit-normalized
// so inner product equals cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New returns the configured embedder: ONNX when a model path is set and the
// binary supports it, otherwise the deterministic hash embedder.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) Embedder {
	if cfg.ModelPath != "" {
		emb, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
		if err == nil {
			logger.Info("using ONNX embedder", zap.String("model_path", cfg.ModelPath))
			return emb
		}
		logger.Warn("ONNX embedder unavailable, falling back to hash embedder", zap.Error(err))
	}
	return NewHashEmbedder(cfg.Dimensions)
}
