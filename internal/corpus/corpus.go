// Package corpus maintains per-agent searchable passage indexes. The index is
// keyed by agent ID: one namespace per agent, never globally scanned, so one
// agent's retrieval can never surface another agent's passages.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/educore/tutor/internal/embedding"
)

// IngestionError reports unreadable or empty source content. It affects only
// the offending source; other documents remain indexed.
type IngestionError struct {
	SourceID string
	Reason   string
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for source %s: %s", e.SourceID, e.Reason)
}

// IsIngestionError reports whether err is an IngestionError.
func IsIngestionError(err error) bool {
	var ie *IngestionError
	return errors.As(err, &ie)
}

// Passage is a retrievable chunk of an ingested source. A non-nil ExpiresAt
// hides the passage from Search once that time passes, without waiting for an
// explicit Remove.
type Passage struct {
	ID        string
	AgentID   string
	SourceID  string
	Title     string
	Content   string
	Ordinal   int
	ExpiresAt *time.Time
}

func (p *Passage) expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// ScoredPassage is a search hit with its cosine similarity score.
type ScoredPassage struct {
	Passage *Passage
	Score   float64
}

// agentIndex holds one agent's passages and embeddings. Searches take the
// read lock; ingestion and removal take the write lock, so concurrent
// searches for the same agent never block each other.
type agentIndex struct {
	mu       sync.RWMutex
	passages []*Passage
	vectors  [][]float32
}

// Index is the per-agent corpus index.
type Index struct {
	embedder embedding.Embedder
	chunker  *Chunker
	logger   *zap.Logger

	mu     sync.RWMutex
	agents map[string]*agentIndex
	// sourceAgent maps source ID to owning agent so Remove needs no scan.
	sourceAgent map[string]string
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithLogger sets a logger for debug output (passages ingested, sources removed).
func WithLogger(l *zap.Logger) IndexOption {
	return func(idx *Index) { idx.logger = l }
}

// NewIndex creates a corpus index using the given embedder and chunking parameters.
func NewIndex(embedder embedding.Embedder, chunkSize, chunkOverlap int, opts ...IndexOption) *Index {
	idx := &Index{
		embedder:    embedder,
		chunker:     NewChunker(chunkSize, chunkOverlap),
		agents:      make(map[string]*agentIndex),
		sourceAgent: make(map[string]string),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (idx *Index) agent(agentID string, create bool) *agentIndex {
	idx.mu.RLock()
	ai := idx.agents[agentID]
	idx.mu.RUnlock()
	if ai != nil || !create {
		return ai
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if ai = idx.agents[agentID]; ai == nil {
		ai = &agentIndex{}
		idx.agents[agentID] = ai
	}
	return ai
}

// Ingest chunks and embeds content under the agent's namespace, replacing any
// passages previously ingested for the same source. Returns the stored
// passages, or an IngestionError when the content is empty.
func (idx *Index) Ingest(ctx context.Context, agentID, sourceID, title, content string) ([]*Passage, error) {
	return idx.IngestExpiring(ctx, agentID, sourceID, title, content, nil)
}

// IngestExpiring is Ingest for content with a validity deadline. Once
// expiresAt passes, the source's passages stop matching searches without an
// explicit Remove, so expiry holds even while the process keeps running.
func (idx *Index) IngestExpiring(ctx context.Context, agentID, sourceID, title, content string, expiresAt *time.Time) ([]*Passage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &IngestionError{SourceID: sourceID, Reason: "empty content"}
	}
	chunks := idx.chunker.Chunk(content)
	if len(chunks) == 0 {
		return nil, &IngestionError{SourceID: sourceID, Reason: "no chunkable content"}
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed passages: %w", err)
	}

	passages := make([]*Passage, len(chunks))
	for i, chunk := range chunks {
		passages[i] = &Passage{
			ID:        fmt.Sprintf("%s_%s", sourceID, uuid.New().String()[:8]),
			AgentID:   agentID,
			SourceID:  sourceID,
			Title:     title,
			Content:   chunk,
			Ordinal:   i,
			ExpiresAt: expiresAt,
		}
	}

	// Re-ingesting a source replaces its passages.
	idx.Remove(ctx, sourceID)

	ai := idx.agent(agentID, true)
	ai.mu.Lock()
	ai.passages = append(ai.passages, passages...)
	ai.vectors = append(ai.vectors, vectors...)
	ai.mu.Unlock()

	idx.mu.Lock()
	idx.sourceAgent[sourceID] = agentID
	idx.mu.Unlock()

	if idx.logger != nil {
		idx.logger.Debug("corpus ingested source",
			zap.String("agent_id", agentID),
			zap.String("source_id", sourceID),
			zap.Int("passages", len(passages)),
		)
	}
	return passages, nil
}

// Search returns the topK passages for the agent ranked by cosine similarity.
// An agent with no indexed content yields an empty result, never an error.
func (idx *Index) Search(ctx context.Context, agentID, question string, topK int) ([]*ScoredPassage, error) {
	ai := idx.agent(agentID, false)
	if ai == nil || topK <= 0 {
		return nil, nil
	}
	query, err := idx.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	now := time.Now().UTC()
	ai.mu.RLock()
	defer ai.mu.RUnlock()
	hits := make([]*ScoredPassage, 0, len(ai.passages))
	for i, p := range ai.passages {
		if p.expired(now) {
			continue
		}
		hits = append(hits, &ScoredPassage{Passage: p, Score: dot(query, ai.vectors[i])})
	}
	if len(hits) == 0 {
		return nil, nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

// Remove purges all passages for a source. Idempotent: removing an unknown
// source is a no-op.
func (idx *Index) Remove(ctx context.Context, sourceID string) {
	idx.mu.Lock()
	agentID, ok := idx.sourceAgent[sourceID]
	if ok {
		delete(idx.sourceAgent, sourceID)
	}
	idx.mu.Unlock()
	if !ok {
		return
	}
	ai := idx.agent(agentID, false)
	if ai == nil {
		return
	}
	ai.mu.Lock()
	defer ai.mu.Unlock()
	passages := ai.passages[:0]
	vectors := ai.vectors[:0]
	for i, p := range ai.passages {
		if p.SourceID != sourceID {
			passages = append(passages, p)
			vectors = append(vectors, ai.vectors[i])
		}
	}
	ai.passages = passages
	ai.vectors = vectors
	if idx.logger != nil {
		idx.logger.Debug("corpus removed source",
			zap.String("agent_id", agentID),
			zap.String("source_id", sourceID),
		)
	}
}

// RemoveAgent drops the agent's entire namespace. Used when an agent is deleted.
func (idx *Index) RemoveAgent(ctx context.Context, agentID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.agents, agentID)
	for src, owner := range idx.sourceAgent {
		if owner == agentID {
			delete(idx.sourceAgent, src)
		}
	}
}

// Size returns the number of passages indexed for the agent.
func (idx *Index) Size(agentID string) int {
	ai := idx.agent(agentID, false)
	if ai == nil {
		return 0
	}
	ai.mu.RLock()
	defer ai.mu.RUnlock()
	return len(ai.passages)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i] * b[i])
	}
	return sum
}
