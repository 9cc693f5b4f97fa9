package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
	"github.com/isurunuwanthilaka/isuma.ai/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type timelineSource interface {
	Timeline(ctx context.Context, id string) (*models.SessionTimeline, error)
}

// ReviewHandler serves recruiter-facing views of a session's proctoring data.
type ReviewHandler struct {
	sessions timelineSource
	clock    clockwork.Clock
}

func NewReviewHandler(sessions timelineSource, clock clockwork.Clock) *ReviewHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReviewHandler{sessions: sessions, clock: clock}
}

func (h *ReviewHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	tl, err := h.sessions.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

func (h *ReviewHandler) Report(w http.ResponseWriter, r *http.Request) {
	tl, err := h.sessions.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	buf, err := services.BuildIntegrityReport(tl, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.xlsx"`, tl.Session.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
