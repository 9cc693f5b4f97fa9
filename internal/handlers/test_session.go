package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

// maxSnapshotBody bounds the JSON body of a snapshot upload.
const maxSnapshotBody = 10 << 20

type sessionService interface {
	GetView(ctx context.Context, id string) (*models.SessionView, error)
	Submit(ctx context.Context, id, code string) (*models.SubmitResponse, error)
	RecordIntegrityEvent(ctx context.Context, req models.IntegrityEventRequest) (*models.IntegrityEventResponse, error)
	RecordSnapshot(ctx context.Context, req models.SnapshotRequest) (*models.SnapshotResponse, error)
}

type TestSessionHandler struct {
	sessions sessionService
}

func NewTestSessionHandler(sessions sessionService) *TestSessionHandler {
	return &TestSessionHandler{sessions: sessions}
}

func (h *TestSessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.GetView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *TestSessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.sessions.Submit(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TestSessionHandler) IntegrityEvent(w http.ResponseWriter, r *http.Request) {
	var req models.IntegrityEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.sessions.RecordIntegrityEvent(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TestSessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSnapshotBody)

	var req models.SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.sessions.RecordSnapshot(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
