package models

import "time"

// KnowledgeType classifies how a knowledge item carries its content.
type KnowledgeType string

const (
	KnowledgeDocument KnowledgeType = "DOCUMENT"
	KnowledgeLink     KnowledgeType = "LINK"
	KnowledgeText     KnowledgeType = "TEXT"
)

// KnowledgeStatus is the approval state of a knowledge item.
type KnowledgeStatus string

const (
	KnowledgePending  KnowledgeStatus = "PENDING"
	KnowledgeApproved KnowledgeStatus = "APPROVED"
	KnowledgeRejected KnowledgeStatus = "REJECTED"
	KnowledgeExpired  KnowledgeStatus = "EXPIRED"
)

// Knowledge is a titled unit of shared content with an approval workflow,
// associated to zero or more agents. Only APPROVED, unexpired items are
// eligible for retrieval.
type Knowledge struct {
	ID         string          `json:"id" db:"id"`
	Title      string          `json:"title" db:"title"`
	Content    string          `json:"content,omitempty" db:"content"`
	Type       KnowledgeType   `json:"type" db:"type"`
	Status     KnowledgeStatus `json:"status" db:"status"`
	URL        string          `json:"url,omitempty" db:"url"`
	Tags       string          `json:"tags,omitempty" db:"tags"`
	AuthorName string          `json:"author_name" db:"author_name"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Active reports whether the item may contribute to retrieval at the given time.
func (k *Knowledge) Active(now time.Time) bool {
	if k.Status != KnowledgeApproved {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}
