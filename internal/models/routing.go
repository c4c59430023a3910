package models

import "time"

// RoutingMode constrains which pipeline stages a request may use.
type RoutingMode string

const (
	// ModeHybrid tries retrieval, then links, then general knowledge.
	ModeHybrid RoutingMode = "HYBRID"
	// ModeLocalOnly permits only local document retrieval; no cloud calls.
	ModeLocalOnly RoutingMode = "LOCAL_ONLY"
	// ModeCloudOnly skips local retrieval entirely.
	ModeCloudOnly RoutingMode = "CLOUD_ONLY"
)

// ValidRoutingMode reports whether m is one of the operator-settable modes.
func ValidRoutingMode(m RoutingMode) bool {
	switch m {
	case ModeHybrid, ModeLocalOnly, ModeCloudOnly:
		return true
	}
	return false
}

// RoutingConfig is the process-wide routing mode, last-writer-wins.
type RoutingConfig struct {
	Mode      RoutingMode `json:"value"`
	UpdatedAt time.Time   `json:"updated_at"`
	UpdatedBy string      `json:"updated_by_username"`
}

// Stage identifies which pipeline stage produced an answer.
type Stage string

const (
	StageRetrieval Stage = "retrieval"
	StageLink      Stage = "link"
	StageGeneral   Stage = "general"
	StageNone      Stage = "none"
)

// QueryResult is the ephemeral outcome of one routed question.
type QueryResult struct {
	Answer    string `json:"answer"`
	StageUsed Stage  `json:"stage_used"`
	Note      string `json:"note,omitempty"`
}

// AskRequest is the body of POST /agents/{id}/ask.
type AskRequest struct {
	Prompt string `json:"prompt"`
}

// AskResponse is the reply of POST /agents/{id}/ask.
type AskResponse struct {
	Response  string `json:"response"`
	StageUsed Stage  `json:"stage_used"`
	User      string `json:"user"`
	Note      string `json:"note,omitempty"`
}
