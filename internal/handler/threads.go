// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/neighborhood-advisor/internal/middleware"
	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
)

// RecommendationService is the orchestration behind the thread endpoints.
type RecommendationService interface {
	CreateThread(ctx context.Context, prefs model.Preferences) (*model.CreateThreadResponse, error)
	SubmitPreferences(ctx context.Context, threadID string, prefs model.Preferences) (*model.CreateThreadResponse, error)
	GetResponse(ctx context.Context, threadID string) (*model.GetResponseResponse, error)
	CheckStatus(ctx context.Context, threadID, runID string) (*model.CheckStatusResponse, error)
}

// ThreadHandler handles the recommendation thread endpoints.
type ThreadHandler struct {
	service RecommendationService
	logger  *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(svc RecommendationService, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{
		service: svc,
		logger:  log,
	}
}

// CreateThread handles POST /api/create-thread
func (h *ThreadHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateThreadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prefs := req.ToPreferences()
	if err := middleware.ValidatePreferences(prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.CreateThread(ctx, prefs)
	if err != nil {
		h.log(ctx).Error("failed to create thread", zap.Error(err))
		writeFailure(w, "Failed to create thread", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// SubmitPreferences handles POST /api/submit-preferences
func (h *ThreadHandler) SubmitPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SubmitPreferencesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateThreadID(req.ThreadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefs := req.ToPreferences()
	if err := middleware.ValidatePreferences(prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.SubmitPreferences(ctx, req.ThreadID, prefs)
	if err != nil {
		h.log(ctx).Error("failed to submit preferences", zap.String("thread_id", req.ThreadID), zap.Error(err))
		writeFailure(w, "Failed to submit preferences", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetResponse handles GET /api/get-response?threadId=
func (h *ThreadHandler) GetResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threadID := r.URL.Query().Get("threadId")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.GetResponse(ctx, threadID)
	if err != nil {
		h.log(ctx).Error("failed to get response", zap.String("thread_id", threadID), zap.Error(err))
		writeFailure(w, "Failed to get recommendations", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// CheckStatus handles GET /api/check-status?threadId=&runId=
func (h *ThreadHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threadID := r.URL.Query().Get("threadId")
	runID := r.URL.Query().Get("runId")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateRunID(runID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.CheckStatus(ctx, threadID, runID)
	if err != nil {
		h.log(ctx).Error("failed to check status",
			zap.String("thread_id", threadID),
			zap.String("run_id", runID),
			zap.Error(err),
		)
		writeFailure(w, "Failed to check status", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ThreadHandler) log(ctx context.Context) *logger.Logger {
	return h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetUserID(ctx))
}
