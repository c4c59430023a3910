package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/models"
)

// localOnlyAnswer is returned when LOCAL_ONLY mode exhausts the retrieval
// stage without an answer. The note distinguishes this policy outcome from an
// ordinary answer.
const (
	localOnlyAnswer = "I could not find an answer to that question in this agent's knowledge base."
	localOnlyNote   = "insufficient local knowledge; cloud stages disabled by LOCAL_ONLY mode"
)

// Router sequences the stages according to the routing mode and returns the
// first accepted answer together with its provenance.
type Router struct {
	retrieval Stage
	link      Stage
	general   Stage
	logger    *zap.Logger
}

// NewRouter wires the three stages. Each must be non-nil.
func NewRouter(retrieval, link, general Stage, logger *zap.Logger) *Router {
	return &Router{retrieval: retrieval, link: link, general: general, logger: logger}
}

// plan returns the stage sequence for a mode. Order is fixed by mode, never
// reordered by confidence, so answer provenance stays predictable.
func (r *Router) plan(mode models.RoutingMode) []Stage {
	switch mode {
	case models.ModeLocalOnly:
		return []Stage{r.retrieval}
	case models.ModeCloudOnly:
		return []Stage{r.link, r.general}
	default:
		return []Stage{r.retrieval, r.link, r.general}
	}
}

// Ask runs the pipeline for one question. mode is a snapshot taken at request
// start, so a concurrent mode change never splits a single request across two
// policies. The first stage that accepts short-circuits the rest. A hard
// error from a non-terminal stage is absorbed as a decline; a hard error from
// the terminal stage, or a context timeout, propagates to the caller.
func (r *Router) Ask(ctx context.Context, mode models.RoutingMode, req *Request) (*models.QueryResult, error) {
	stages := r.plan(mode)
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline timed out: %w", err)
		}

		result, err := stage.Attempt(ctx, req)
		if err == nil {
			r.logger.Info("stage accepted",
				zap.String("agent_id", req.AgentID),
				zap.String("stage", string(stage.Name())),
				zap.String("mode", string(mode)),
			)
			return &models.QueryResult{Answer: result.Answer, StageUsed: stage.Name()}, nil
		}

		if errors.Is(err, ErrDeclined) {
			r.logger.Debug("stage declined",
				zap.String("agent_id", req.AgentID),
				zap.String("stage", string(stage.Name())),
			)
			continue
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pipeline timed out in %s stage: %w", stage.Name(), ctx.Err())
		}

		terminal := i == len(stages)-1
		if terminal && mode != models.ModeLocalOnly {
			return nil, fmt.Errorf("%s stage failed: %w", stage.Name(), err)
		}
		// A non-terminal hard error is absorbed so the chain continues.
		r.logger.Warn("stage failed, treating as decline",
			zap.String("agent_id", req.AgentID),
			zap.String("stage", string(stage.Name())),
			zap.Error(err),
		)
	}

	// Every permitted stage declined. Only LOCAL_ONLY can reach this point:
	// HYBRID and CLOUD_ONLY end with the general stage, which never declines.
	return &models.QueryResult{
		Answer:    localOnlyAnswer,
		StageUsed: models.StageNone,
		Note:      localOnlyNote,
	}, nil
}
