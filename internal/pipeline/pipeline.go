// Package pipeline implements the three-stage answer routing: retrieval over
// the agent's corpus, agent links, then general knowledge, gated by the
// operator-set routing mode.
package pipeline

import (
	"context"
	"errors"

	"github.com/educore/tutor/internal/models"
)

// ErrDeclined signals that a stage could not ground an answer. It is a soft
// outcome, not a failure: the router falls through to the next stage.
var ErrDeclined = errors.New("stage declined")

// Request carries one question through the stages.
type Request struct {
	AgentID      string
	Question     string
	SystemPrompt string
}

// Result is a stage's accepted answer.
type Result struct {
	Answer string
}

// Stage is one answering strategy. Attempt returns a Result on acceptance,
// ErrDeclined when the stage cannot ground an answer, or a hard error
// (provider failure, cancellation) otherwise.
type Stage interface {
	Name() models.Stage
	Attempt(ctx context.Context, req *Request) (*Result, error)
}
