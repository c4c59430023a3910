package ingest

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/corpus"
)

// dropTimeout bounds a single drop-directory ingestion.
const dropTimeout = 2 * time.Minute

// DropHandler wires drop-directory events to the ingestion service. The
// subdirectory name is the agent ID; files for unknown agents are skipped.
type DropHandler struct {
	svc    *Service
	logger *zap.Logger
}

// NewDropHandler creates a handler for the drop-directory watcher.
func NewDropHandler(svc *Service, logger *zap.Logger) *DropHandler {
	return &DropHandler{svc: svc, logger: logger}
}

// FileDropped ingests a dropped file into the agent's corpus. A file with the
// same name replaces the earlier document.
func (h *DropHandler) FileDropped(agentID, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
	defer cancel()

	if _, err := h.svc.store.GetAgent(ctx, agentID); err != nil {
		h.logger.Warn("dropped file for unknown agent, skipping",
			zap.String("agent_id", agentID),
			zap.String("path", path),
		)
		return
	}
	h.removeByFilename(ctx, agentID, filepath.Base(path))
	if _, err := h.svc.IngestFile(ctx, agentID, path); err != nil {
		if corpus.IsIngestionError(err) {
			h.logger.Warn("dropped file not ingestable",
				zap.String("path", path),
				zap.Error(err),
			)
			return
		}
		h.logger.Error("drop ingestion failed",
			zap.String("agent_id", agentID),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// FileRemoved deletes the document that was ingested from the removed file.
func (h *DropHandler) FileRemoved(agentID, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
	defer cancel()
	h.removeByFilename(ctx, agentID, filepath.Base(path))
}

func (h *DropHandler) removeByFilename(ctx context.Context, agentID, filename string) {
	docs, err := h.svc.store.ListDocumentsByAgent(ctx, agentID)
	if err != nil {
		h.logger.Warn("failed to list documents for drop sync",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		return
	}
	for _, doc := range docs {
		if doc.Filename != filename {
			continue
		}
		if err := h.svc.DeleteDocument(ctx, doc.ID); err != nil {
			h.logger.Warn("failed to delete replaced document",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		}
	}
}
