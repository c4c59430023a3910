// Package storage defines the persistence interface for agents, links, and knowledge.
package storage

import (
	"context"
	"time"

	"github.com/educore/tutor/internal/models"
)

// Storage defines the relational persistence operations. Query methods that
// feed the pipeline return only rows the pipeline is allowed to see
// (APPROVED agents, unexpired APPROVED knowledge).
type Storage interface {
	// Agent operations
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]*models.Agent, error)
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	UpdateAgentStatus(ctx context.Context, id string, status models.AgentStatus) error
	DeleteAgent(ctx context.Context, id string) error

	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByAgent(ctx context.Context, agentID string) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Link operations
	CreateLink(ctx context.Context, link *models.Link) error
	ListLinksByAgent(ctx context.Context, agentID string) ([]*models.Link, error)
	DeleteLink(ctx context.Context, id string) error

	// Knowledge operations
	CreateKnowledge(ctx context.Context, k *models.Knowledge) error
	GetKnowledge(ctx context.Context, id string) (*models.Knowledge, error)
	ListKnowledge(ctx context.Context) ([]*models.Knowledge, error)
	UpdateKnowledge(ctx context.Context, k *models.Knowledge) error
	UpdateKnowledgeStatus(ctx context.Context, id string, status models.KnowledgeStatus) error
	DeleteKnowledge(ctx context.Context, id string) error
	AssociateKnowledge(ctx context.Context, knowledgeID, agentID string) error
	AgentIDsByKnowledge(ctx context.Context, knowledgeID string) ([]string, error)
	// ActiveKnowledgeByAgent returns APPROVED, unexpired items associated
	// with the agent. Pending, rejected, and expired items never reach the
	// caller.
	ActiveKnowledgeByAgent(ctx context.Context, agentID string, now time.Time) ([]*models.Knowledge, error)

	// System configuration (key/value, last-writer-wins)
	GetSystemConfig(ctx context.Context, key string) (value, updatedBy string, updatedAt time.Time, err error)
	SetSystemConfig(ctx context.Context, key, value, updatedBy string) error

	Close() error
}
