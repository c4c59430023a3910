package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/corpus"
	"github.com/educore/tutor/internal/llm"
	"github.com/educore/tutor/internal/models"
	"github.com/educore/tutor/pkg/utils"
)

// RetrievalStage answers from the agent's corpus index. It declines when no
// passage clears the relevance threshold, and absorbs provider failures with
// a single retry so the pipeline degrades instead of aborting.
type RetrievalStage struct {
	index     *corpus.Index
	completer llm.Completer
	logger    *zap.Logger

	threshold      float64
	topK           int
	retryBackoff   time.Duration
	minAnswerChars int
}

// NewRetrievalStage creates a retrieval stage. threshold is the minimum
// best-passage score to attempt an answer; topK bounds the context passages.
func NewRetrievalStage(index *corpus.Index, completer llm.Completer, threshold float64, topK int, retryBackoff time.Duration, minAnswerChars int, logger *zap.Logger) *RetrievalStage {
	return &RetrievalStage{
		index:          index,
		completer:      completer,
		logger:         logger,
		threshold:      threshold,
		topK:           topK,
		retryBackoff:   retryBackoff,
		minAnswerChars: minAnswerChars,
	}
}

func (s *RetrievalStage) Name() models.Stage { return models.StageRetrieval }

// Attempt searches the agent's corpus and synthesizes an answer from the top
// passages. Empty corpus or sub-threshold best score declines. A provider
// failure is retried once after a backoff; a second failure also declines.
func (s *RetrievalStage) Attempt(ctx context.Context, req *Request) (*Result, error) {
	hits, err := s.index.Search(ctx, req.AgentID, req.Question, s.topK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 || hits[0].Score < s.threshold {
		s.logger.Debug("retrieval declined",
			zap.String("agent_id", req.AgentID),
			zap.Int("hits", len(hits)),
			zap.Float64("best_score", bestScore(hits)),
			zap.Float64("threshold", s.threshold),
		)
		return nil, ErrDeclined
	}

	contextText := buildPassageContext(hits)
	s.logger.Debug("retrieval attempting answer",
		zap.String("agent_id", req.AgentID),
		zap.Float64("best_score", hits[0].Score),
		zap.String("top_passage", utils.Truncate(hits[0].Passage.Content, 120)),
	)
	answer, err := s.completer.Complete(ctx, req.SystemPrompt, contextText, req.Question)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("retrieval completion failed, retrying once", zap.Error(err))
		select {
		case <-time.After(s.retryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		answer, err = s.completer.Complete(ctx, req.SystemPrompt, contextText, req.Question)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("retrieval completion failed after retry, declining", zap.Error(err))
			return nil, ErrDeclined
		}
	}

	if llm.IsRefusal(answer, s.minAnswerChars) {
		s.logger.Debug("retrieval completion refused, declining",
			zap.String("agent_id", req.AgentID),
		)
		return nil, ErrDeclined
	}
	return &Result{Answer: answer}, nil
}

func bestScore(hits []*corpus.ScoredPassage) float64 {
	if len(hits) == 0 {
		return 0
	}
	return hits[0].Score
}

// buildPassageContext concatenates passages into the grounding context,
// labelling each with its source title when present.
func buildPassageContext(hits []*corpus.ScoredPassage) string {
	var b strings.Builder
	for i, hit := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if hit.Passage.Title != "" {
			b.WriteString("[")
			b.WriteString(hit.Passage.Title)
			b.WriteString("] ")
		}
		b.WriteString(hit.Passage.Content)
	}
	return b.String()
}
