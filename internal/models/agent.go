// Package models defines core data structures for agents, knowledge, and query routing.
package models

import "time"

// AgentStatus is the approval state of an agent.
type AgentStatus string

const (
	AgentPending  AgentStatus = "PENDING"
	AgentApproved AgentStatus = "APPROVED"
	AgentRejected AgentStatus = "REJECTED"
)

// Agent is an answering persona with its own document corpus and links.
// Only APPROVED agents are reachable by the ask pipeline.
type Agent struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Description  string      `json:"description,omitempty" db:"description"`
	SystemPrompt string      `json:"system_prompt" db:"system_prompt"`
	Status       AgentStatus `json:"status" db:"status"`
	OwnerName    string      `json:"owner_name" db:"owner_name"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// Document is a unit of ingested content owned by exactly one agent.
// Content is immutable after ingestion; deleting the document purges its
// passages from the corpus index.
type Document struct {
	ID         string    `json:"id" db:"id"`
	AgentID    string    `json:"agent_id" db:"agent_id"`
	Filename   string    `json:"filename" db:"filename"`
	Content    string    `json:"content,omitempty" db:"content"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// Link is a URL registered with an agent, fetched at query time by the link stage.
type Link struct {
	ID          string    `json:"id" db:"id"`
	AgentID     string    `json:"agent_id" db:"agent_id"`
	URL         string    `json:"url" db:"url"`
	Title       string    `json:"title,omitempty" db:"title"`
	Description string    `json:"description,omitempty" db:"description"`
	AddedAt     time.Time `json:"added_at" db:"added_at"`
}
