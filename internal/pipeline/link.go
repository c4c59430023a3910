package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/fetch"
	"github.com/educore/tutor/internal/llm"
	"github.com/educore/tutor/internal/models"
	"github.com/educore/tutor/internal/relevance"
)

// LinkSource supplies the links registered for an agent.
type LinkSource interface {
	ListLinksByAgent(ctx context.Context, agentID string) ([]*models.Link, error)
}

// LinkStage answers from the agent's registered links: it fetches link
// content (TTL-cached), scores it against the question, and answers from the
// most relevant pages. No relevant link declines.
type LinkStage struct {
	links     LinkSource
	fetcher   *fetch.Fetcher
	scorer    *relevance.Scorer
	completer llm.Completer
	logger    *zap.Logger

	maxLinks       int
	minAnswerChars int
}

// NewLinkStage creates a link stage. maxLinks bounds how many of the agent's
// links are fetched per query.
func NewLinkStage(links LinkSource, fetcher *fetch.Fetcher, scorer *relevance.Scorer, completer llm.Completer, maxLinks, minAnswerChars int, logger *zap.Logger) *LinkStage {
	return &LinkStage{
		links:          links,
		fetcher:        fetcher,
		scorer:         scorer,
		completer:      completer,
		logger:         logger,
		maxLinks:       maxLinks,
		minAnswerChars: minAnswerChars,
	}
}

func (s *LinkStage) Name() models.Stage { return models.StageLink }

// Attempt fetches and ranks the agent's link content. Individual fetch
// failures skip that link; total fetch failure or no relevant page declines.
func (s *LinkStage) Attempt(ctx context.Context, req *Request) (*Result, error) {
	links, err := s.links.ListLinksByAgent(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, ErrDeclined
	}
	if s.maxLinks > 0 && len(links) > s.maxLinks {
		links = links[:s.maxLinks]
	}

	pages := s.fetcher.FetchAll(ctx, links)
	if len(pages) == 0 {
		s.logger.Debug("link stage declined, no fetchable links",
			zap.String("agent_id", req.AgentID),
			zap.Int("links", len(links)),
		)
		return nil, ErrDeclined
	}

	ranked, err := s.scorer.Rank(req.Question, pages)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		s.logger.Debug("link stage declined, no relevant page",
			zap.String("agent_id", req.AgentID),
			zap.Int("pages", len(pages)),
		)
		return nil, ErrDeclined
	}

	contextText := buildPageContext(ranked)
	answer, err := s.completer.Complete(ctx, req.SystemPrompt, contextText, req.Question)
	if err != nil {
		return nil, err
	}
	if llm.IsRefusal(answer, s.minAnswerChars) {
		return nil, ErrDeclined
	}
	return &Result{Answer: answer}, nil
}

// buildPageContext concatenates ranked pages, best first, labelled by URL so
// the model can cite sources.
func buildPageContext(ranked []*relevance.ScoredPage) string {
	var b strings.Builder
	for i, sp := range ranked {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Source: ")
		b.WriteString(sp.Page.URL)
		b.WriteString("\n")
		b.WriteString(sp.Page.Text)
	}
	return b.String()
}
