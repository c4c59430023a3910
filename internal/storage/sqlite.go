// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/educore/tutor/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = sql.ErrNoRows

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		system_prompt TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		owner_name TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		content TEXT NOT NULL,
		uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_agent_id ON documents(agent_id);

	CREATE TABLE IF NOT EXISTS links (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		description TEXT,
		added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_links_agent_id ON links(agent_id);

	CREATE TABLE IF NOT EXISTS knowledge (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT,
		type TEXT NOT NULL DEFAULT 'TEXT',
		status TEXT NOT NULL DEFAULT 'PENDING',
		url TEXT,
		tags TEXT,
		author_name TEXT NOT NULL,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS knowledge_agents (
		knowledge_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		PRIMARY KEY (knowledge_id, agent_id),
		FOREIGN KEY (knowledge_id) REFERENCES knowledge(id) ON DELETE CASCADE,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS system_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_by TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateAgent inserts an agent.
func (s *SQLiteStorage) CreateAgent(ctx context.Context, agent *models.Agent) error {
	agent.CreatedAt = time.Now()
	if agent.Status == "" {
		agent.Status = models.AgentPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, system_prompt, status, owner_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.Description, agent.SystemPrompt, agent.Status, agent.OwnerName, agent.CreatedAt,
	)
	return err
}

// GetAgent returns an agent by ID.
func (s *SQLiteStorage) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(description, ''), system_prompt, status, owner_name, created_at
		 FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Description, &a.SystemPrompt, &a.Status, &a.OwnerName, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent not found: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAgents returns all agents ordered by creation time.
func (s *SQLiteStorage) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), system_prompt, status, owner_name, created_at
		 FROM agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.SystemPrompt, &a.Status, &a.OwnerName, &a.CreatedAt); err != nil {
			return nil, err
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// UpdateAgent rewrites an agent's editable metadata. Status and ownership
// have their own operations and are left untouched.
func (s *SQLiteStorage) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, description = ?, system_prompt = ? WHERE id = ?`,
		agent.Name, agent.Description, agent.SystemPrompt, agent.ID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("agent not found: %s: %w", agent.ID, ErrNotFound)
	}
	return nil
}

// UpdateAgentStatus sets the approval status of an agent.
func (s *SQLiteStorage) UpdateAgentStatus(ctx context.Context, id string, status models.AgentStatus) error {
	result, err := s.db.ExecContext(ctx, `UPDATE agents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("agent not found: %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAgent removes an agent; documents, links, and knowledge associations
// cascade via foreign keys.
func (s *SQLiteStorage) DeleteAgent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	return err
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	doc.UploadedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, agent_id, filename, content, uploaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.AgentID, doc.Filename, doc.Content, doc.UploadedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var d models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, filename, content, uploaded_at FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.AgentID, &d.Filename, &d.Content, &d.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocumentsByAgent returns all documents owned by the agent.
func (s *SQLiteStorage) ListDocumentsByAgent(ctx context.Context, agentID string) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, filename, content, uploaded_at
		 FROM documents WHERE agent_id = ? ORDER BY uploaded_at`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.AgentID, &d.Filename, &d.Content, &d.UploadedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document by ID.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// CreateLink inserts a link.
func (s *SQLiteStorage) CreateLink(ctx context.Context, link *models.Link) error {
	link.AddedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO links (id, agent_id, url, title, description, added_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		link.ID, link.AgentID, link.URL, link.Title, link.Description, link.AddedAt,
	)
	return err
}

// ListLinksByAgent returns all links registered with the agent.
func (s *SQLiteStorage) ListLinksByAgent(ctx context.Context, agentID string) ([]*models.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, url, COALESCE(title, ''), COALESCE(description, ''), added_at
		 FROM links WHERE agent_id = ? ORDER BY added_at`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*models.Link
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.ID, &l.AgentID, &l.URL, &l.Title, &l.Description, &l.AddedAt); err != nil {
			return nil, err
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}

// DeleteLink removes a link by ID.
func (s *SQLiteStorage) DeleteLink(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	return err
}

// CreateKnowledge inserts a knowledge item.
func (s *SQLiteStorage) CreateKnowledge(ctx context.Context, k *models.Knowledge) error {
	now := time.Now()
	k.CreatedAt = now
	k.UpdatedAt = now
	if k.Status == "" {
		k.Status = models.KnowledgePending
	}
	if k.Type == "" {
		k.Type = models.KnowledgeText
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge (id, title, content, type, status, url, tags, author_name, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Title, k.Content, k.Type, k.Status, k.URL, k.Tags, k.AuthorName, k.ExpiresAt, k.CreatedAt, k.UpdatedAt,
	)
	return err
}

// GetKnowledge returns a knowledge item by ID.
func (s *SQLiteStorage) GetKnowledge(ctx context.Context, id string) (*models.Knowledge, error) {
	var k models.Knowledge
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, COALESCE(content, ''), type, status, COALESCE(url, ''), COALESCE(tags, ''), author_name, expires_at, created_at, updated_at
		 FROM knowledge WHERE id = ?`, id,
	).Scan(&k.ID, &k.Title, &k.Content, &k.Type, &k.Status, &k.URL, &k.Tags, &k.AuthorName, &k.ExpiresAt, &k.CreatedAt, &k.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("knowledge not found: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListKnowledge returns all knowledge items, newest first.
func (s *SQLiteStorage) ListKnowledge(ctx context.Context) ([]*models.Knowledge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, COALESCE(content, ''), type, status, COALESCE(url, ''), COALESCE(tags, ''), author_name, expires_at, created_at, updated_at
		 FROM knowledge ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Knowledge
	for rows.Next() {
		var k models.Knowledge
		if err := rows.Scan(&k.ID, &k.Title, &k.Content, &k.Type, &k.Status, &k.URL, &k.Tags, &k.AuthorName, &k.ExpiresAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &k)
	}
	return items, rows.Err()
}

// UpdateKnowledge rewrites a knowledge item's content and metadata. Status is
// left untouched; approval goes through UpdateKnowledgeStatus.
func (s *SQLiteStorage) UpdateKnowledge(ctx context.Context, k *models.Knowledge) error {
	k.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE knowledge SET title = ?, content = ?, type = ?, url = ?, tags = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
		k.Title, k.Content, k.Type, k.URL, k.Tags, k.ExpiresAt, k.UpdatedAt, k.ID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("knowledge not found: %s: %w", k.ID, ErrNotFound)
	}
	return nil
}

// UpdateKnowledgeStatus sets the approval status of a knowledge item.
func (s *SQLiteStorage) UpdateKnowledgeStatus(ctx context.Context, id string, status models.KnowledgeStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE knowledge SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("knowledge not found: %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteKnowledge removes a knowledge item; agent associations cascade.
func (s *SQLiteStorage) DeleteKnowledge(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge WHERE id = ?`, id)
	return err
}

// AssociateKnowledge links a knowledge item to an agent. Idempotent.
func (s *SQLiteStorage) AssociateKnowledge(ctx context.Context, knowledgeID, agentID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO knowledge_agents (knowledge_id, agent_id) VALUES (?, ?)`,
		knowledgeID, agentID)
	return err
}

// AgentIDsByKnowledge returns the IDs of agents associated with a knowledge item.
func (s *SQLiteStorage) AgentIDsByKnowledge(ctx context.Context, knowledgeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id FROM knowledge_agents WHERE knowledge_id = ?`, knowledgeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveKnowledgeByAgent returns APPROVED, unexpired knowledge for the agent.
func (s *SQLiteStorage) ActiveKnowledgeByAgent(ctx context.Context, agentID string, now time.Time) ([]*models.Knowledge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT k.id, k.title, COALESCE(k.content, ''), k.type, k.status, COALESCE(k.url, ''), COALESCE(k.tags, ''), k.author_name, k.expires_at, k.created_at, k.updated_at
		 FROM knowledge k
		 JOIN knowledge_agents ka ON ka.knowledge_id = k.id
		 WHERE ka.agent_id = ? AND k.status = ? AND (k.expires_at IS NULL OR k.expires_at > ?)
		 ORDER BY k.created_at`, agentID, models.KnowledgeApproved, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Knowledge
	for rows.Next() {
		var k models.Knowledge
		if err := rows.Scan(&k.ID, &k.Title, &k.Content, &k.Type, &k.Status, &k.URL, &k.Tags, &k.AuthorName, &k.ExpiresAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &k)
	}
	return items, rows.Err()
}

// GetSystemConfig returns the stored value for key.
func (s *SQLiteStorage) GetSystemConfig(ctx context.Context, key string) (string, string, time.Time, error) {
	var value, updatedBy string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_by, updated_at FROM system_config WHERE key = ?`, key,
	).Scan(&value, &updatedBy, &updatedAt)
	if err == sql.ErrNoRows {
		return "", "", time.Time{}, fmt.Errorf("config key not found: %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", "", time.Time{}, err
	}
	return value, updatedBy, updatedAt, nil
}

// SetSystemConfig writes a config value, last-writer-wins.
func (s *SQLiteStorage) SetSystemConfig(ctx context.Context, key, value, updatedBy string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_config (key, value, updated_at, updated_by) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at, updated_by = excluded.updated_by`,
		key, value, time.Now(), updatedBy)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
