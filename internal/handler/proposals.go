package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/calendar-agent/internal/ics"
	"github.com/capitalize-ai/calendar-agent/internal/middleware"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/service"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
)

// ProposalHandler handles proposal review endpoints.
type ProposalHandler struct {
	service *service.ProposalService
	logger  *logger.Logger
}

// NewProposalHandler creates a new proposal handler.
func NewProposalHandler(svc *service.ProposalService, log *logger.Logger) *ProposalHandler {
	return &ProposalHandler{
		service: svc,
		logger:  log,
	}
}

// ids reads and validates the session and, when wanted, proposal URL params.
func ids(w http.ResponseWriter, r *http.Request, withProposal bool) (string, string, bool) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	if !withProposal {
		return sessionID, "", true
	}
	proposalID := chi.URLParam(r, "pid")
	if err := middleware.ValidateProposalID(proposalID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return sessionID, proposalID, true
}

// Propose handles POST /api/v1/sessions/{id}/proposals
func (h *ProposalHandler) Propose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, _, ok := ids(w, r, false)
	if !ok {
		return
	}

	var req model.ProposeMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateImage(req.ImageBase64); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Propose(ctx, middleware.GetTenantID(ctx), sessionID, &req)
	if err != nil {
		if result != nil {
			writeJSON(w, statusFor(err), map[string]any{
				"error":   err.Error(),
				"entries": result.Entries,
			})
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// List handles GET /api/v1/sessions/{id}/proposals?limit=N
func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, _, ok := ids(w, r, false)
	if !ok {
		return
	}

	views, err := h.service.List(ctx, middleware.GetTenantID(ctx), sessionID, queryInt(r, "limit", 3, 100))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"proposals": views})
}

// Get handles GET /api/v1/sessions/{id}/proposals/{pid}
func (h *ProposalHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, proposalID, ok := ids(w, r, true)
	if !ok {
		return
	}

	view, err := h.service.Get(ctx, middleware.GetTenantID(ctx), sessionID, proposalID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Update handles PUT /api/v1/sessions/{id}/proposals/{pid}
func (h *ProposalHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, proposalID, ok := ids(w, r, true)
	if !ok {
		return
	}

	var req model.UpdateProposalRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title != nil {
		if err := middleware.ValidateTitle(*req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	view, err := h.service.Update(ctx, middleware.GetTenantID(ctx), sessionID, proposalID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if view == nil {
		// Already confirmed, rejected or never queued.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Focus handles POST /api/v1/sessions/{id}/proposals/{pid}/focus
func (h *ProposalHandler) Focus(w http.ResponseWriter, r *http.Request) {
	h.annotate(w, r, h.service.Focus)
}

// Blur handles POST /api/v1/sessions/{id}/proposals/{pid}/blur
func (h *ProposalHandler) Blur(w http.ResponseWriter, r *http.Request) {
	h.annotate(w, r, h.service.Blur)
}

func (h *ProposalHandler) annotate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tenantID, sessionID, proposalID string) error) {
	ctx := r.Context()
	sessionID, proposalID, ok := ids(w, r, true)
	if !ok {
		return
	}
	if err := fn(ctx, middleware.GetTenantID(ctx), sessionID, proposalID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept handles POST /api/v1/sessions/{id}/proposals/{pid}/accept
func (h *ProposalHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, proposalID, ok := ids(w, r, true)
	if !ok {
		return
	}

	prompt, err := h.service.Accept(ctx, middleware.GetTenantID(ctx), sessionID, proposalID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, prompt)
}

// Reject handles POST /api/v1/sessions/{id}/proposals/{pid}/reject
func (h *ProposalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, proposalID, ok := ids(w, r, true)
	if !ok {
		return
	}

	entry, discarded, err := h.service.Reject(ctx, middleware.GetTenantID(ctx), sessionID, proposalID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"discarded": discarded,
		"entry":     entry,
	})
}

// Confirm handles POST /api/v1/sessions/{id}/confirm
func (h *ProposalHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, _, ok := ids(w, r, false)
	if !ok {
		return
	}

	out, err := h.service.Confirm(ctx, middleware.GetTenantID(ctx), sessionID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	// A failed commit is a reviewed outcome, not a request error.
	writeJSON(w, http.StatusOK, out)
}

// Cancel handles DELETE /api/v1/sessions/{id}/confirm
func (h *ProposalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, _, ok := ids(w, r, false)
	if !ok {
		return
	}

	if err := h.service.Cancel(ctx, middleware.GetTenantID(ctx), sessionID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ICS handles GET /api/v1/sessions/{id}/proposals/{pid}/ics
func (h *ProposalHandler) ICS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, proposalID, ok := ids(w, r, true)
	if !ok {
		return
	}

	doc, err := h.service.ICS(ctx, middleware.GetTenantID(ctx), sessionID, proposalID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", ics.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+proposalID+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
