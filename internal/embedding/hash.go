package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/educore/tutor/pkg/utils"
)

// HashEmbedder is a deterministic bag-of-words embedder. Each token is hashed
// onto a handful of dimensions and the sum is unit-normalized, so texts that
// share words have proportionally higher cosine similarity. It needs no model
// files, which makes it the default embedder and the one used in tests.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder with the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding derived from the text's tokens.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, tok := range tokenize(text) {
		h := hashToken(tok)
		// Spread each token over three dimensions with alternating sign so
		// distinct tokens rarely cancel out.
		for i := 0; i < 3; i++ {
			idx := int((h >> (i * 8)) % uint64(e.dimensions))
			if (h>>(i*8+4))&1 == 1 {
				emb[idx] += 1
			} else {
				emb[idx] -= 1
			}
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}

// tokenize lowercases and splits on non-letter, non-digit runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hashToken(tok string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	return h.Sum64()
}
