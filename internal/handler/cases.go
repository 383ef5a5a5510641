package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/middleware"
	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/internal/store"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

// CaseReader reads created tickets.
type CaseReader interface {
	GetCase(ctx context.Context, ticketID string) (*model.CaseRecord, error)
	ListCases(ctx context.Context, limit int) ([]model.CaseRecord, error)
}

// CaseHandler handles ticket endpoints.
type CaseHandler struct {
	cases  CaseReader
	logger *logger.Logger
}

// NewCaseHandler creates a new case handler.
func NewCaseHandler(cases CaseReader, log *logger.Logger) *CaseHandler {
	return &CaseHandler{
		cases:  cases,
		logger: log,
	}
}

// CaseListResponse is a page of created tickets, newest first.
type CaseListResponse struct {
	Cases []model.CaseRecord `json:"cases"`
}

// List handles GET /api/v1/cases
func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	cases, err := h.cases.ListCases(r.Context(), queryLimit(r, 20))
	if err != nil {
		h.logger.Error("failed to list cases", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list cases")
		return
	}
	if cases == nil {
		cases = []model.CaseRecord{}
	}

	writeJSON(w, http.StatusOK, CaseListResponse{Cases: cases})
}

// Get handles GET /api/v1/cases/{ticketId}
func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	if err := middleware.ValidateTicketID(ticketID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.cases.GetCase(r.Context(), ticketID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "case not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get case", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get case")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
