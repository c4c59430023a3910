package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/llm"
	"github.com/educore/tutor/internal/models"
)

// GeneralStage answers from the provider's general knowledge with no
// grounding context. It is the terminal stage: it never declines, and a hard
// provider error propagates to the caller because nothing is left to fall
// back to.
type GeneralStage struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewGeneralStage creates the terminal general-knowledge stage.
func NewGeneralStage(completer llm.Completer, logger *zap.Logger) *GeneralStage {
	return &GeneralStage{completer: completer, logger: logger}
}

func (s *GeneralStage) Name() models.Stage { return models.StageGeneral }

// Attempt asks the provider directly, keeping the agent's persona via the
// system prompt.
func (s *GeneralStage) Attempt(ctx context.Context, req *Request) (*Result, error) {
	answer, err := s.completer.Complete(ctx, req.SystemPrompt, "", req.Question)
	if err != nil {
		return nil, err
	}
	return &Result{Answer: answer}, nil
}
