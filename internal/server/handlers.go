package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/educore/tutor/internal/corpus"
	"github.com/educore/tutor/internal/models"
	"github.com/educore/tutor/internal/pipeline"
	"github.com/educore/tutor/internal/storage"
	"github.com/educore/tutor/internal/systemcfg"
)

// maxUploadBytes caps document uploads at 20 MB.
const maxUploadBytes = 20 << 20

// handleAsk routes a question through the pipeline for an approved agent.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := identityFrom(r)

	agent, err := s.storage.GetAgent(r.Context(), id)
	if err != nil || agent.Status != models.AgentApproved {
		// Non-approved agents are unreachable, indistinguishable from absent.
		s.respondError(w, http.StatusNotFound, "agent not found")
		return
	}

	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		s.respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	cfg, err := s.sysCfg.Get(r.Context())
	if err != nil {
		s.logger.Error("routing mode read failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to read routing mode")
		return
	}

	result, err := s.router.Ask(r.Context(), cfg.Mode, &pipeline.Request{
		AgentID:      agent.ID,
		Question:     req.Prompt,
		SystemPrompt: agent.SystemPrompt,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("ask timed out", zap.String("agent_id", agent.ID))
			s.respondError(w, http.StatusGatewayTimeout, "the request took too long, please try again")
			return
		}
		s.logger.Error("ask failed", zap.String("agent_id", agent.ID), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "answer generation failed, please try again")
		return
	}

	s.respondJSON(w, http.StatusOK, models.AskResponse{
		Response:  result.Answer,
		StageUsed: result.StageUsed,
		User:      identity.Username,
		Note:      result.Note,
	})
}

// handleGetRoutingMode returns the active routing mode.
func (s *Server) handleGetRoutingMode(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.sysCfg.Get(r.Context())
	if err != nil {
		s.logger.Error("routing mode read failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, cfg)
}

type setRoutingModeRequest struct {
	Mode models.RoutingMode `json:"ai_model_type"`
}

// handleSetRoutingMode updates the routing mode; master role only.
func (s *Server) handleSetRoutingMode(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if identity.Role != roleMaster {
		s.respondError(w, http.StatusForbidden, "master role required")
		return
	}
	var req setRoutingModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := s.sysCfg.Set(r.Context(), req.Mode, identity.Username)
	if err != nil {
		if systemcfg.IsConfigError(err) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("routing mode write failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, cfg)
}

type createAgentRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"system_prompt"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if identity.Username == "" {
		s.respondError(w, http.StatusUnauthorized, "identity required")
		return
	}
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.SystemPrompt == "" {
		s.respondError(w, http.StatusBadRequest, "name and system_prompt are required")
		return
	}
	agent := &models.Agent{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Status:       models.AgentPending,
		OwnerName:    identity.Username,
	}
	if err := s.storage.CreateAgent(r.Context(), agent); err != nil {
		s.logger.Error("create agent failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.storage.ListAgents(r.Context())
	if err != nil {
		s.logger.Error("list agents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.storage.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	s.respondJSON(w, http.StatusOK, agent)
}

// handleUpdateAgent rewrites an agent's metadata; owner or master only.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := identityFrom(r)
	agent, err := s.storage.GetAgent(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	if identity.Role != roleMaster && identity.Username != agent.OwnerName {
		s.respondError(w, http.StatusForbidden, "only the owner or master may update an agent")
		return
	}
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.SystemPrompt == "" {
		s.respondError(w, http.StatusBadRequest, "name and system_prompt are required")
		return
	}
	agent.Name = req.Name
	agent.Description = req.Description
	agent.SystemPrompt = req.SystemPrompt
	if err := s.storage.UpdateAgent(r.Context(), agent); err != nil {
		s.logger.Error("update agent failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, agent)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if identity.Role != roleMaster {
		s.respondError(w, http.StatusForbidden, "master role required")
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := models.AgentStatus(req.Status)
	switch status {
	case models.AgentApproved, models.AgentRejected, models.AgentPending:
	default:
		s.respondError(w, http.StatusBadRequest, "status must be PENDING, APPROVED, or REJECTED")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.storage.UpdateAgentStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "agent not found")
			return
		}
		s.logger.Error("update agent status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := identityFrom(r)
	agent, err := s.storage.GetAgent(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	if identity.Role != roleMaster && identity.Username != agent.OwnerName {
		s.respondError(w, http.StatusForbidden, "only the owner or master may delete an agent")
		return
	}
	if err := s.storage.DeleteAgent(r.Context(), id); err != nil {
		s.logger.Error("delete agent failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.corpus.RemoveAgent(r.Context(), id)
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// handleUploadDocument accepts a multipart "file" upload, extracts its text,
// and ingests it into the agent's corpus. Owner or master only.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	identity := identityFrom(r)
	agent, err := s.storage.GetAgent(r.Context(), agentID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	if identity.Role != roleMaster && identity.Username != agent.OwnerName {
		s.respondError(w, http.StatusForbidden, "only the owner or master may upload documents")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	doc, err := s.ingest.IngestDocument(r.Context(), agentID, header.Filename, content)
	if err != nil {
		if corpus.IsIngestionError(err) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("document ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.storage.ListDocumentsByAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.ingest.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("delete document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type createLinkRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	identity := identityFrom(r)
	agent, err := s.storage.GetAgent(r.Context(), agentID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	if identity.Role != roleMaster && identity.Username != agent.OwnerName {
		s.respondError(w, http.StatusForbidden, "only the owner or master may add links")
		return
	}
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	link := &models.Link{
		ID:          uuid.New().String(),
		AgentID:     agentID,
		URL:         req.URL,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := s.storage.CreateLink(r.Context(), link); err != nil {
		s.logger.Error("create link failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, link)
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := s.storage.ListLinksByAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("list links failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"links": links})
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.storage.DeleteLink(r.Context(), id); err != nil {
		s.logger.Error("delete link failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type createKnowledgeRequest struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	URL       string     `json:"url"`
	Tags      string     `json:"tags"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) handleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if identity.Username == "" {
		s.respondError(w, http.StatusUnauthorized, "identity required")
		return
	}
	var req createKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Content == "" {
		s.respondError(w, http.StatusBadRequest, "title and content are required")
		return
	}
	k := &models.Knowledge{
		ID:         uuid.New().String(),
		Title:      req.Title,
		Content:    req.Content,
		Type:       models.KnowledgeType(req.Type),
		Status:     models.KnowledgePending,
		URL:        req.URL,
		Tags:       req.Tags,
		AuthorName: identity.Username,
		ExpiresAt:  req.ExpiresAt,
	}
	if err := s.storage.CreateKnowledge(r.Context(), k); err != nil {
		s.logger.Error("create knowledge failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, k)
}

func (s *Server) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	k, err := s.storage.GetKnowledge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "knowledge not found")
		return
	}
	s.respondJSON(w, http.StatusOK, k)
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	items, err := s.storage.ListKnowledge(r.Context())
	if err != nil {
		s.logger.Error("list knowledge failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"knowledge": items})
}

// handleUpdateKnowledge rewrites a knowledge item's content and metadata;
// author or master only. Associated agents are re-indexed so stale passages
// never survive an edit.
func (s *Server) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := identityFrom(r)
	k, err := s.storage.GetKnowledge(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "knowledge not found")
		return
	}
	if identity.Role != roleMaster && identity.Username != k.AuthorName {
		s.respondError(w, http.StatusForbidden, "only the author or master may update knowledge")
		return
	}
	var req createKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Content == "" {
		s.respondError(w, http.StatusBadRequest, "title and content are required")
		return
	}
	k.Title = req.Title
	k.Content = req.Content
	if req.Type != "" {
		k.Type = models.KnowledgeType(req.Type)
	}
	k.URL = req.URL
	k.Tags = req.Tags
	k.ExpiresAt = req.ExpiresAt
	if err := s.storage.UpdateKnowledge(r.Context(), k); err != nil {
		s.logger.Error("update knowledge failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	agentIDs, err := s.storage.AgentIDsByKnowledge(r.Context(), id)
	if err != nil {
		s.logger.Error("list knowledge agents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, agentID := range agentIDs {
		if k.Active(time.Now().UTC()) {
			if err := s.ingest.IngestKnowledge(r.Context(), k, agentID); err != nil {
				s.logger.Warn("knowledge indexing failed",
					zap.String("knowledge_id", id),
					zap.String("agent_id", agentID),
					zap.Error(err),
				)
			}
		} else {
			s.ingest.RemoveKnowledge(r.Context(), id, agentID)
		}
	}
	s.respondJSON(w, http.StatusOK, k)
}

// handleDeleteKnowledge removes a knowledge item and purges its passages from
// every associated agent; author or master only.
func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := identityFrom(r)
	k, err := s.storage.GetKnowledge(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "knowledge not found")
		return
	}
	if identity.Role != roleMaster && identity.Username != k.AuthorName {
		s.respondError(w, http.StatusForbidden, "only the author or master may delete knowledge")
		return
	}

	// Associations cascade on delete, so collect them first.
	agentIDs, err := s.storage.AgentIDsByKnowledge(r.Context(), id)
	if err != nil {
		s.logger.Error("list knowledge agents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.storage.DeleteKnowledge(r.Context(), id); err != nil {
		s.logger.Error("delete knowledge failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, agentID := range agentIDs {
		s.ingest.RemoveKnowledge(r.Context(), id, agentID)
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// handleUpdateKnowledgeStatus changes a knowledge item's approval state and
// keeps the corpus in sync: approval indexes the item for every associated
// agent, rejection and expiry purge it.
func (s *Server) handleUpdateKnowledgeStatus(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if identity.Role != roleMaster {
		s.respondError(w, http.StatusForbidden, "master role required")
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := models.KnowledgeStatus(req.Status)
	switch status {
	case models.KnowledgePending, models.KnowledgeApproved, models.KnowledgeRejected, models.KnowledgeExpired:
	default:
		s.respondError(w, http.StatusBadRequest, "invalid knowledge status")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.storage.UpdateKnowledgeStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "knowledge not found")
			return
		}
		s.logger.Error("update knowledge status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	agentIDs, err := s.storage.AgentIDsByKnowledge(r.Context(), id)
	if err != nil {
		s.logger.Error("list knowledge agents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if status == models.KnowledgeApproved {
		k, err := s.storage.GetKnowledge(r.Context(), id)
		if err == nil {
			for _, agentID := range agentIDs {
				if err := s.ingest.IngestKnowledge(r.Context(), k, agentID); err != nil {
					s.logger.Warn("knowledge indexing failed",
						zap.String("knowledge_id", id),
						zap.String("agent_id", agentID),
						zap.Error(err),
					)
				}
			}
		}
	} else {
		for _, agentID := range agentIDs {
			s.ingest.RemoveKnowledge(r.Context(), id, agentID)
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

// handleAssociateKnowledge attaches a knowledge item to an agent; if the item
// is already approved and unexpired it becomes retrievable immediately.
func (s *Server) handleAssociateKnowledge(w http.ResponseWriter, r *http.Request) {
	knowledgeID := chi.URLParam(r, "id")
	agentID := chi.URLParam(r, "agentID")

	k, err := s.storage.GetKnowledge(r.Context(), knowledgeID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "knowledge not found")
		return
	}
	if _, err := s.storage.GetAgent(r.Context(), agentID); err != nil {
		s.respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err := s.storage.AssociateKnowledge(r.Context(), knowledgeID, agentID); err != nil {
		s.logger.Error("associate knowledge failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.ingest.IngestKnowledge(r.Context(), k, agentID); err != nil {
		s.logger.Warn("knowledge indexing failed",
			zap.String("knowledge_id", knowledgeID),
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"knowledge_id": knowledgeID, "agent_id": agentID, "status": "associated"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
