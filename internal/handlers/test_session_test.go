package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
	"github.com/isurunuwanthilaka/isuma.ai/internal/repository"
	"github.com/isurunuwanthilaka/isuma.ai/internal/services"
)

// ─── In-memory stores backing a real SessionService ───

type memStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*models.TestSession
	events    []*models.IntegrityEvent
	snapshots []*models.Snapshot
}

func (m *memStore) GetWithProblem(ctx context.Context, id uuid.UUID) (*models.TestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok, nil
}

func (m *memStore) Submit(ctx context.Context, id uuid.UUID, code string, at time.Time, late bool) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return time.Time{}, repository.ErrNotFound
	}
	if s.EndTime != nil {
		return time.Time{}, repository.ErrAlreadySubmitted
	}
	s.EndTime, s.SubmittedCode, s.Status = &at, &code, models.SessionCompleted
	return at, nil
}

type memEvents struct{ *memStore }

func (m memEvents) Create(ctx context.Context, e *models.IntegrityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	m.events = append(m.events, e)
	return nil
}

func (m memEvents) ListBySession(ctx context.Context, id uuid.UUID) ([]*models.IntegrityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.IntegrityEvent(nil), m.events...), nil
}

type memSnapshots struct{ *memStore }

func (m memSnapshots) Create(ctx context.Context, s *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m memSnapshots) ListBySession(ctx context.Context, id uuid.UUID) ([]*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Snapshot(nil), m.snapshots...), nil
}

type nopBlobs struct{}

func (nopBlobs) Name() string { return "nop" }

func (nopBlobs) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	return "/uploads/" + key, nil
}

var handlerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newWiredHandler(t *testing.T) (*TestSessionHandler, *memStore, uuid.UUID) {
	t.Helper()
	starter := "def solve():\n    pass\n"
	id := uuid.New()
	store := &memStore{sessions: map[uuid.UUID]*models.TestSession{
		id: {
			ID:        id,
			StartTime: handlerNow.Add(-29 * time.Minute),
			Status:    models.SessionInProgress,
			Problem:   &models.Problem{Title: "Two Sum", Description: "desc", StarterCode: &starter, TimeLimitMinutes: 30},
		},
	}}
	svc := services.NewSessionService(store, memEvents{store}, memSnapshots{store}, nopBlobs{}, nil, nil,
		clockwork.NewFakeClockAt(handlerNow), services.SubmitPolicy{})
	return NewTestSessionHandler(svc), store, id
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var body models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Error
}

// ─── GET /session/{id} ───

func TestTestSessionHandler_Get(t *testing.T) {
	h, _, id := newWiredHandler(t)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/session/"+id.String(), nil), "id", id.String())
	rr := httptest.NewRecorder()
	h.Get(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	for _, key := range []string{"id", "title", "description", "starterCode", "duration", "startedAt"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q: %v", key, body)
		}
	}
	if body["duration"].(float64) != 30 {
		t.Errorf("unexpected duration %v", body["duration"])
	}
	if body["startedAt"] != "2026-03-01T11:31:00Z" {
		t.Errorf("unexpected startedAt %v", body["startedAt"])
	}
}

func TestTestSessionHandler_Get_NotFound(t *testing.T) {
	h, _, _ := newWiredHandler(t)

	for _, id := range []string{uuid.NewString(), "nope"} {
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/session/"+id, nil), "id", id)
		rr := httptest.NewRecorder()
		h.Get(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Errorf("id %q: expected 404, got %d", id, rr.Code)
		}
	}
}

// ─── POST /session/{id}/submit ───

func submitRequest(id uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/session/"+id.String()+"/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return withURLParam(req, "id", id.String())
}

func TestTestSessionHandler_Submit(t *testing.T) {
	h, store, id := newWiredHandler(t)

	rr := httptest.NewRecorder()
	h.Submit(rr, submitRequest(id, `{"code":"print(42)"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.SubmitResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.Success || !resp.SubmittedAt.Equal(handlerNow) {
		t.Errorf("unexpected response: %+v", resp)
	}
	if *store.sessions[id].SubmittedCode != "print(42)" {
		t.Errorf("artifact not stored")
	}

	rr = httptest.NewRecorder()
	h.Submit(rr, submitRequest(id, `{"code":"print(43)"}`))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on resubmission, got %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != services.ConflictAlreadySubmitted {
		t.Errorf("unexpected error code %q", e.Code)
	}
	if *store.sessions[id].SubmittedCode != "print(42)" {
		t.Errorf("artifact overwritten by rejected submission")
	}
}

func TestTestSessionHandler_Submit_BadRequests(t *testing.T) {
	h, store, id := newWiredHandler(t)

	for _, body := range []string{`{"code":""}`, `{"code":"   "}`, `{}`, `not json`} {
		rr := httptest.NewRecorder()
		h.Submit(rr, submitRequest(id, body))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
	if store.sessions[id].EndTime != nil {
		t.Errorf("bad requests must not complete the session")
	}
}

func TestTestSessionHandler_Submit_ConcurrentRequests(t *testing.T) {
	h, _, id := newWiredHandler(t)

	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for _, body := range []string{`{"code":"auto"}`, `{"code":"manual"}`} {
		wg.Add(1)
		go func(body string) {
			defer wg.Done()
			rr := httptest.NewRecorder()
			h.Submit(rr, submitRequest(id, body))
			codes <- rr.Code
		}(body)
	}
	wg.Wait()
	close(codes)

	got := map[int]int{}
	for c := range codes {
		got[c]++
	}
	if got[http.StatusOK] != 1 || got[http.StatusConflict] != 1 {
		t.Fatalf("expected one 200 and one 409, got %v", got)
	}
}

// ─── POST /integrity-event ───

func TestTestSessionHandler_IntegrityEvent(t *testing.T) {
	h, store, id := newWiredHandler(t)

	body, _ := json.Marshal(map[string]string{"sessionId": id.String(), "type": "paste", "timestamp": "2026-03-01T11:59:00.000Z"})
	rr := httptest.NewRecorder()
	h.IntegrityEvent(rr, httptest.NewRequest(http.MethodPost, "/integrity-event", bytes.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp models.IntegrityEventResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.Success || resp.LogID == uuid.Nil {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(store.events) != 1 {
		t.Errorf("expected one event row, got %d", len(store.events))
	}
}

func TestTestSessionHandler_IntegrityEvent_UnknownType(t *testing.T) {
	h, store, id := newWiredHandler(t)

	body, _ := json.Marshal(map[string]string{"sessionId": id.String(), "type": "mouse_move", "timestamp": "2026-03-01T11:59:00Z"})
	rr := httptest.NewRecorder()
	h.IntegrityEvent(rr, httptest.NewRequest(http.MethodPost, "/integrity-event", bytes.NewReader(body)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Fields["type"] == "" {
		t.Errorf("expected field error on type, got %+v", e)
	}
	if len(store.events) != 0 {
		t.Errorf("rejected event must not be persisted")
	}
}

func TestTestSessionHandler_IntegrityEvent_UnknownSession(t *testing.T) {
	h, _, _ := newWiredHandler(t)

	body, _ := json.Marshal(map[string]string{"sessionId": uuid.NewString(), "type": "copy", "timestamp": "2026-03-01T11:59:00Z"})
	rr := httptest.NewRecorder()
	h.IntegrityEvent(rr, httptest.NewRequest(http.MethodPost, "/integrity-event", bytes.NewReader(body)))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

// ─── POST /snapshot ───

func TestTestSessionHandler_Snapshot(t *testing.T) {
	h, store, id := newWiredHandler(t)

	body, _ := json.Marshal(map[string]string{
		"sessionId": id.String(),
		"image":     models.EncodeImagePayload([]byte{0xff, 0xd8, 0xff}, "image/jpeg"),
		"timestamp": "2026-03-01T11:59:00Z",
	})
	rr := httptest.NewRecorder()
	h.Snapshot(rr, httptest.NewRequest(http.MethodPost, "/snapshot", bytes.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp models.SnapshotResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if !strings.HasPrefix(resp.ImageURL, "/uploads/snapshots/"+id.String()+"/") {
		t.Errorf("unexpected image url %q", resp.ImageURL)
	}
	if len(store.snapshots) != 1 {
		t.Errorf("expected one snapshot row, got %d", len(store.snapshots))
	}
}

// ─── Error mapping ───

type failingService struct{ err error }

func (f failingService) GetView(ctx context.Context, id string) (*models.SessionView, error) {
	return nil, f.err
}

func (f failingService) Submit(ctx context.Context, id, code string) (*models.SubmitResponse, error) {
	return nil, f.err
}

func (f failingService) RecordIntegrityEvent(ctx context.Context, req models.IntegrityEventRequest) (*models.IntegrityEventResponse, error) {
	return nil, f.err
}

func (f failingService) RecordSnapshot(ctx context.Context, req models.SnapshotRequest) (*models.SnapshotResponse, error) {
	return nil, f.err
}

func TestHandleServiceError_Mapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{&services.ValidationError{Fields: map[string]string{"image": "bad"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{&services.NotFoundError{Message: "Session not found"}, http.StatusNotFound, "NOT_FOUND"},
		{&services.ConflictError{Code: services.ConflictDeadlineExceeded, Message: "late"}, http.StatusConflict, services.ConflictDeadlineExceeded},
		{&services.ConflictError{Message: "conflict"}, http.StatusConflict, "CONFLICT"},
		{&services.UpstreamStorageError{Err: context.DeadlineExceeded}, http.StatusInternalServerError, "STORAGE_ERROR"},
		{context.Canceled, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.wantErr, func(t *testing.T) {
			h := NewTestSessionHandler(failingService{err: tc.err})
			rr := httptest.NewRecorder()
			h.Snapshot(rr, httptest.NewRequest(http.MethodPost, "/snapshot", strings.NewReader(`{}`)))

			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if e := decodeError(t, rr); e.Code != tc.wantErr {
				t.Errorf("expected code %q, got %q", tc.wantErr, e.Code)
			}
		})
	}
}
