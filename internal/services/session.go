package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
	"github.com/isurunuwanthilaka/isuma.ai/internal/repository"
	"github.com/isurunuwanthilaka/isuma.ai/internal/storage"
)

type sessionStore interface {
	GetWithProblem(ctx context.Context, id uuid.UUID) (*models.TestSession, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Submit(ctx context.Context, id uuid.UUID, code string, at time.Time, late bool) (time.Time, error)
}

type integrityEventStore interface {
	Create(ctx context.Context, e *models.IntegrityEvent) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.IntegrityEvent, error)
}

type snapshotStore interface {
	Create(ctx context.Context, s *models.Snapshot) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Snapshot, error)
}

type livePublisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) error
}

type jobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// SubmitPolicy controls how the server treats submissions after the nominal
// deadline. Late submissions are always flagged; they are only rejected when
// EnforceDeadline is set and the grace period has also elapsed.
type SubmitPolicy struct {
	EnforceDeadline bool
	Grace           time.Duration
}

type SessionService struct {
	sessions  sessionStore
	events    integrityEventStore
	snapshots snapshotStore
	blobs     storage.BlobStore
	live      livePublisher
	queue     jobQueue
	clock     clockwork.Clock
	policy    SubmitPolicy
}

func NewSessionService(
	sessions sessionStore,
	events integrityEventStore,
	snapshots snapshotStore,
	blobs storage.BlobStore,
	live livePublisher,
	queue jobQueue,
	clock clockwork.Clock,
	policy SubmitPolicy,
) *SessionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionService{
		sessions:  sessions,
		events:    events,
		snapshots: snapshots,
		blobs:     blobs,
		live:      live,
		queue:     queue,
		clock:     clock,
		policy:    policy,
	}
}

var errSessionNotFound = &NotFoundError{Message: "Session not found"}

// parseSessionID treats a malformed id like any other id that matches nothing.
func parseSessionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, errSessionNotFound
	}
	return id, nil
}

func (s *SessionService) load(ctx context.Context, rawID string) (*models.TestSession, error) {
	id, err := parseSessionID(rawID)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.GetWithProblem(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) ensureExists(ctx context.Context, rawID string) (uuid.UUID, error) {
	id, err := parseSessionID(rawID)
	if err != nil {
		return uuid.Nil, err
	}
	exists, err := s.sessions.Exists(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if !exists {
		return uuid.Nil, errSessionNotFound
	}
	return id, nil
}

// GetView returns the client-facing view of a session.
func (s *SessionService) GetView(ctx context.Context, rawID string) (*models.SessionView, error) {
	session, err := s.load(ctx, rawID)
	if err != nil {
		return nil, err
	}
	view := models.NewSessionView(session)
	return &view, nil
}

// Submit completes a session exactly once. The store performs the
// compare-and-set; this method only adds validation and deadline policy.
func (s *SessionService) Submit(ctx context.Context, rawID, code string) (*models.SubmitResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &ValidationError{Fields: map[string]string{"code": "Code is required"}}
	}

	session, err := s.load(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if session.Completed() {
		return nil, &ConflictError{Code: ConflictAlreadySubmitted, Message: "Test already submitted"}
	}

	now := s.clock.Now().UTC()
	deadline := session.Deadline()
	late := !deadline.IsZero() && now.After(deadline)
	if late && s.policy.EnforceDeadline && now.After(deadline.Add(s.policy.Grace)) {
		return nil, &ConflictError{Code: ConflictDeadlineExceeded, Message: "Submission deadline has passed"}
	}

	submittedAt, err := s.sessions.Submit(ctx, session.ID, code, now, late)
	switch {
	case errors.Is(err, repository.ErrAlreadySubmitted):
		return nil, &ConflictError{Code: ConflictAlreadySubmitted, Message: "Test already submitted"}
	case errors.Is(err, repository.ErrNotFound):
		return nil, errSessionNotFound
	case err != nil:
		return nil, err
	}

	if late {
		log.Info().Str("session_id", session.ID.String()).Time("deadline", deadline).Msg("late submission accepted")
	}

	s.publish(ctx, session.ID, models.WSMessage{
		Type:    models.WSSubmitted,
		Payload: models.SubmittedEvent{SessionID: session.ID, SubmittedAt: submittedAt, Late: late},
	})

	return &models.SubmitResponse{
		Success:     true,
		Message:     "Test submitted successfully",
		SubmittedAt: submittedAt.UTC(),
		Late:        late,
	}, nil
}

func parseClientTimestamp(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
}

// RecordIntegrityEvent appends one integrity event. Unknown kinds are rejected
// before anything is written.
func (s *SessionService) RecordIntegrityEvent(ctx context.Context, req models.IntegrityEventRequest) (*models.IntegrityEventResponse, error) {
	fields := map[string]string{}
	if strings.TrimSpace(req.SessionID) == "" {
		fields["sessionId"] = "Session ID is required"
	}
	if req.Type == "" {
		fields["type"] = "Event type is required"
	}
	if strings.TrimSpace(req.Timestamp) == "" {
		fields["timestamp"] = "Timestamp is required"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	kind, err := models.ParseIntegrityKind(req.Type)
	if err != nil {
		fields["type"] = "Invalid event type"
	}
	ts, err := parseClientTimestamp(req.Timestamp)
	if err != nil {
		fields["timestamp"] = "Timestamp must be ISO-8601"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	sessionID, err := s.ensureExists(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	event := &models.IntegrityEvent{SessionID: sessionID, Kind: kind, Timestamp: ts.UTC()}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, err
	}

	s.publish(ctx, sessionID, models.WSMessage{Type: models.WSIntegrityEvent, Payload: event})

	return &models.IntegrityEventResponse{Success: true, LogID: event.ID}, nil
}

// RecordSnapshot stores the image in the blob store, appends one snapshot row
// and queues the image for review.
func (s *SessionService) RecordSnapshot(ctx context.Context, req models.SnapshotRequest) (*models.SnapshotResponse, error) {
	fields := map[string]string{}
	if strings.TrimSpace(req.SessionID) == "" {
		fields["sessionId"] = "Session ID is required"
	}
	if strings.TrimSpace(req.Image) == "" {
		fields["image"] = "Image is required"
	}
	if strings.TrimSpace(req.Timestamp) == "" {
		fields["timestamp"] = "Timestamp is required"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	image, contentType, err := models.DecodeImagePayload(req.Image)
	if err != nil {
		fields["image"] = "Image must be base64 encoded"
	}
	ts, err := parseClientTimestamp(req.Timestamp)
	if err != nil {
		fields["timestamp"] = "Timestamp must be ISO-8601"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	sessionID, err := s.ensureExists(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("snapshots/%s/%d%s", sessionID, s.clock.Now().UnixMilli(), models.ImageExtension(contentType))
	url, err := s.blobs.Put(ctx, key, contentType, image)
	if err != nil {
		return nil, &UpstreamStorageError{Err: err}
	}

	snapshot := &models.Snapshot{SessionID: sessionID, ImageURL: url, Timestamp: ts.UTC()}
	if err := s.snapshots.Create(ctx, snapshot); err != nil {
		return nil, err
	}

	if s.queue != nil {
		job := &models.Job{
			ID:          uuid.New(),
			Type:        models.JobSnapshotReview,
			SnapshotID:  snapshot.ID,
			SessionID:   sessionID,
			ContentType: contentType,
			Image:       image,
			CreatedAt:   s.clock.Now().UTC(),
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			log.Warn().Err(err).Str("snapshot_id", snapshot.ID.String()).Msg("failed to queue snapshot review")
		}
	}

	return &models.SnapshotResponse{Success: true, SnapshotID: snapshot.ID, ImageURL: url}, nil
}

// Timeline merges a session's integrity events and snapshots for review.
func (s *SessionService) Timeline(ctx context.Context, rawID string) (*models.SessionTimeline, error) {
	session, err := s.load(ctx, rawID)
	if err != nil {
		return nil, err
	}

	events, err := s.events.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list integrity events: %w", err)
	}
	snapshots, err := s.snapshots.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	return models.BuildTimeline(session, events, snapshots), nil
}

func (s *SessionService) publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) {
	if s.live == nil {
		return
	}
	if err := s.live.Publish(ctx, sessionID, msg); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Str("type", msg.Type).Msg("failed to publish live update")
	}
}
