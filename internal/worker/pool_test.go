package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

type stubObserver struct {
	obs *models.SnapshotObservation
	err error
}

func (s *stubObserver) ObserveSnapshot(ctx context.Context, image []byte, contentType string) (*models.SnapshotObservation, error) {
	return s.obs, s.err
}

type savedReview struct {
	id      uuid.UUID
	status  string
	flagged bool
	review  json.RawMessage
}

type recordingReviews struct {
	mu    sync.Mutex
	saved []savedReview
}

func (r *recordingReviews) SaveReview(ctx context.Context, id uuid.UUID, status string, flagged bool, review json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, savedReview{id, status, flagged, review})
	return nil
}

type recordingLive struct {
	msgs []models.WSMessage
}

func (l *recordingLive) Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) error {
	l.msgs = append(l.msgs, msg)
	return nil
}

type chanQueue struct {
	jobs chan models.Job
}

func (q *chanQueue) Enqueue(ctx context.Context, job *models.Job) error {
	q.jobs <- *job
	return nil
}

type recordingAlerter struct {
	events []models.SnapshotFlaggedEvent
}

func (a *recordingAlerter) SnapshotFlagged(ctx context.Context, ev models.SnapshotFlaggedEvent) error {
	a.events = append(a.events, ev)
	return nil
}

func newJob() *models.Job {
	return &models.Job{
		ID:          uuid.New(),
		Type:        models.JobSnapshotReview,
		SnapshotID:  uuid.New(),
		SessionID:   uuid.New(),
		ContentType: "image/jpeg",
		Image:       []byte{0xff, 0xd8},
	}
}

func TestHandle_CleanSnapshot(t *testing.T) {
	reviews := &recordingReviews{}
	live := &recordingLive{}
	alerter := &recordingAlerter{}
	p := NewPool(nil, &stubObserver{obs: &models.SnapshotObservation{FaceCount: 1}}, reviews, live, &chanQueue{}, alerter, clockwork.NewFakeClock(), 1)

	job := newJob()
	p.Handle(context.Background(), job)

	if len(reviews.saved) != 1 {
		t.Fatalf("expected one saved review, got %d", len(reviews.saved))
	}
	got := reviews.saved[0]
	if got.id != job.SnapshotID || got.status != models.ReviewReviewed || got.flagged {
		t.Errorf("unexpected review %+v", got)
	}
	if len(live.msgs) != 0 || len(alerter.events) != 0 {
		t.Errorf("clean snapshot must not notify anyone")
	}
}

func TestHandle_FlaggedSnapshotNotifies(t *testing.T) {
	reviews := &recordingReviews{}
	live := &recordingLive{}
	alerter := &recordingAlerter{}
	obs := &models.SnapshotObservation{FaceCount: 2, OtherPerson: true}
	p := NewPool(nil, &stubObserver{obs: obs}, reviews, live, &chanQueue{}, alerter, clockwork.NewFakeClock(), 1)

	job := newJob()
	p.Handle(context.Background(), job)

	if len(reviews.saved) != 1 || !reviews.saved[0].flagged {
		t.Fatalf("expected a flagged review, got %+v", reviews.saved)
	}
	var stored models.SnapshotObservation
	if err := json.Unmarshal(reviews.saved[0].review, &stored); err != nil || stored.FaceCount != 2 {
		t.Errorf("review JSON not stored: %s (%v)", reviews.saved[0].review, err)
	}
	if len(live.msgs) != 1 || live.msgs[0].Type != models.WSSnapshotFlagged {
		t.Errorf("expected one snapshot_flagged message, got %+v", live.msgs)
	}
	if len(alerter.events) != 1 || alerter.events[0].SessionID != job.SessionID {
		t.Errorf("expected one alert for the session, got %+v", alerter.events)
	}
}

func TestHandle_RetriesWithBackoffThenFails(t *testing.T) {
	reviews := &recordingReviews{}
	queue := &chanQueue{jobs: make(chan models.Job, 1)}
	clock := clockwork.NewFakeClock()
	p := NewPool(nil, &stubObserver{err: errors.New("oracle down")}, reviews, nil, queue, nil, clock, 1)

	job := newJob()
	ctx := context.Background()

	p.Handle(ctx, job)
	if job.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", job.RetryCount)
	}

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	select {
	case <-queue.jobs:
		t.Fatal("job requeued before its backoff elapsed")
	default:
	}
	clock.Advance(time.Second)

	var requeued models.Job
	select {
	case requeued = <-queue.jobs:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not requeued")
	}
	if requeued.RetryCount != 1 || requeued.ID != job.ID {
		t.Fatalf("unexpected requeued job %+v", requeued)
	}

	p.Handle(ctx, &requeued)
	clock.BlockUntil(1)
	clock.Advance(4 * time.Second)
	select {
	case requeued = <-queue.jobs:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not requeued a second time")
	}

	p.Handle(ctx, &requeued)
	if len(reviews.saved) != 1 {
		t.Fatalf("expected the review to be marked failed once, got %+v", reviews.saved)
	}
	if reviews.saved[0].status != models.ReviewFailed {
		t.Errorf("expected status failed, got %s", reviews.saved[0].status)
	}
}

func TestHandle_UnknownJobType(t *testing.T) {
	reviews := &recordingReviews{}
	queue := &chanQueue{jobs: make(chan models.Job, 1)}
	p := NewPool(nil, &stubObserver{}, reviews, nil, queue, nil, clockwork.NewFakeClock(), 1)

	job := newJob()
	job.Type = "mystery"
	job.RetryCount = maxAttempts - 1
	p.Handle(context.Background(), job)

	if len(reviews.saved) != 0 {
		t.Errorf("unknown jobs must not touch snapshot reviews")
	}
}
