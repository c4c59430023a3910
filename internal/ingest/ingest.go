// Package ingest coordinates document and knowledge ingestion across
// extraction, relational storage, and the corpus index.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/educore/tutor/internal/corpus"
	"github.com/educore/tutor/internal/extract"
	"github.com/educore/tutor/internal/models"
	"github.com/educore/tutor/internal/storage"
)

// Service ingests content into an agent's corpus and keeps the relational
// store and the index consistent.
type Service struct {
	store     storage.Storage
	index     *corpus.Index
	extractor *extract.Extractor
	logger    *zap.Logger
}

// NewService creates the ingestion coordinator.
func NewService(store storage.Storage, index *corpus.Index, extractor *extract.Extractor, logger *zap.Logger) *Service {
	return &Service{store: store, index: index, extractor: extractor, logger: logger}
}

// IngestDocument extracts text from an uploaded file, records the document,
// and indexes its passages under the agent's namespace. The document row is
// only written when extraction and indexing both succeed.
func (s *Service) IngestDocument(ctx context.Context, agentID, filename string, content []byte) (*models.Document, error) {
	text, err := s.extractor.ExtractBytes(content, strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return nil, &corpus.IngestionError{SourceID: filename, Reason: err.Error()}
	}

	doc := &models.Document{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		Filename:   filename,
		Content:    text,
		UploadedAt: time.Now().UTC(),
	}
	if _, err := s.index.Ingest(ctx, agentID, doc.ID, filename, text); err != nil {
		return nil, err
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		s.index.Remove(ctx, doc.ID)
		return nil, fmt.Errorf("store document: %w", err)
	}
	s.logger.Info("document ingested",
		zap.String("agent_id", agentID),
		zap.String("document_id", doc.ID),
		zap.String("filename", filename),
	)
	return doc, nil
}

// IngestFile ingests a file from disk, used by the drop-directory watcher
// and the CLI.
func (s *Service) IngestFile(ctx context.Context, agentID, path string) (*models.Document, error) {
	text, err := s.extractor.Extract(path)
	if err != nil {
		return nil, &corpus.IngestionError{SourceID: path, Reason: err.Error()}
	}
	return s.IngestDocument(ctx, agentID, filepath.Base(path), []byte(text))
}

// DeleteDocument removes the document row and purges its passages.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.index.Remove(ctx, documentID)
	return nil
}

// IngestKnowledge indexes an approved knowledge item under the agent's
// namespace. Inactive items are skipped without error so association can
// happen before approval. The item's expiry travels with its passages, so an
// item that expires while the server runs drops out of search on its own.
func (s *Service) IngestKnowledge(ctx context.Context, k *models.Knowledge, agentID string) error {
	if !k.Active(time.Now().UTC()) {
		return nil
	}
	if _, err := s.index.IngestExpiring(ctx, agentID, knowledgeSourceID(k.ID, agentID), k.Title, k.Content, k.ExpiresAt); err != nil {
		return err
	}
	return nil
}

// RemoveKnowledge purges a knowledge item's passages from an agent namespace.
func (s *Service) RemoveKnowledge(ctx context.Context, knowledgeID, agentID string) {
	s.index.Remove(ctx, knowledgeSourceID(knowledgeID, agentID))
}

// Rebuild repopulates the corpus index from storage. Called at startup since
// the index is in-memory. Per-source failures are logged and skipped.
func (s *Service) Rebuild(ctx context.Context) error {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("rebuild: list agents: %w", err)
	}
	now := time.Now().UTC()
	var docs, items int
	for _, agent := range agents {
		agentDocs, err := s.store.ListDocumentsByAgent(ctx, agent.ID)
		if err != nil {
			return fmt.Errorf("rebuild: list documents for %s: %w", agent.ID, err)
		}
		for _, doc := range agentDocs {
			if _, err := s.index.Ingest(ctx, agent.ID, doc.ID, doc.Filename, doc.Content); err != nil {
				s.logger.Warn("rebuild: skipping document",
					zap.String("document_id", doc.ID),
					zap.Error(err),
				)
				continue
			}
			docs++
		}

		knowledge, err := s.store.ActiveKnowledgeByAgent(ctx, agent.ID, now)
		if err != nil {
			return fmt.Errorf("rebuild: list knowledge for %s: %w", agent.ID, err)
		}
		for _, k := range knowledge {
			if err := s.IngestKnowledge(ctx, k, agent.ID); err != nil {
				s.logger.Warn("rebuild: skipping knowledge item",
					zap.String("knowledge_id", k.ID),
					zap.Error(err),
				)
				continue
			}
			items++
		}
	}
	s.logger.Info("corpus rebuilt",
		zap.Int("agents", len(agents)),
		zap.Int("documents", docs),
		zap.Int("knowledge_items", items),
	)
	return nil
}

// knowledgeSourceID namespaces a knowledge item's passages per agent so that
// removing the association for one agent leaves other agents indexed.
func knowledgeSourceID(knowledgeID, agentID string) string {
	return "k_" + knowledgeID + "_" + agentID
}
