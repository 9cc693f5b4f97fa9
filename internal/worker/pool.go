package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
	"github.com/isurunuwanthilaka/isuma.ai/internal/services"
)

const maxAttempts = 3

type observer interface {
	ObserveSnapshot(ctx context.Context, image []byte, contentType string) (*models.SnapshotObservation, error)
}

type reviewStore interface {
	SaveReview(ctx context.Context, id uuid.UUID, status string, flagged bool, review json.RawMessage) error
}

type livePublisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) error
}

type jobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type flagAlerter interface {
	SnapshotFlagged(ctx context.Context, ev models.SnapshotFlaggedEvent) error
}

// Pool runs snapshot review jobs pulled off redis.
type Pool struct {
	redis       *redis.Client
	oracle      observer
	reviews     reviewStore
	live        livePublisher
	queue       jobQueue
	alerter     flagAlerter
	clock       clockwork.Clock
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	oracle observer,
	reviews reviewStore,
	live livePublisher,
	queue jobQueue,
	alerter flagAlerter,
	clock clockwork.Clock,
	workerCount int,
) *Pool {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		oracle:      oracle,
		reviews:     reviews,
		live:        live,
		queue:       queue,
		alerter:     alerter,
		clock:       clock,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	queue := services.QueueName(models.JobSnapshotReview)
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i, queue)
	}
	log.Info().Int("workers", p.workerCount).Msg("started snapshot review workers")
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int, queue string) {
	for {
		select {
		case <-p.stopChan:
			log.Info().Int("worker", id).Msg("worker shutting down")
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, queue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Warn().Err(err).Int("worker", id).Msg("blpop failed")
				p.clock.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Error().Err(err).Int("worker", id).Msg("failed to parse job")
			continue
		}

		// One worker per job attempt
		lockKey := fmt.Sprintf("job_lock:%s:%d", job.ID, job.RetryCount)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		log.Debug().Int("worker", id).Str("job_id", job.ID.String()).Str("snapshot_id", job.SnapshotID.String()).Msg("processing job")
		p.Handle(ctx, &job)

		p.redis.Del(ctx, lockKey)
	}
}

// Handle runs one attempt of a job and records its outcome.
func (p *Pool) Handle(ctx context.Context, job *models.Job) {
	var err error
	switch job.Type {
	case models.JobSnapshotReview:
		err = p.reviewSnapshot(ctx, job)
	default:
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}
	if err != nil {
		p.handleFailure(ctx, job, err)
	}
}

func (p *Pool) reviewSnapshot(ctx context.Context, job *models.Job) error {
	obs, err := p.oracle.ObserveSnapshot(ctx, job.Image, job.ContentType)
	if err != nil {
		return fmt.Errorf("observe snapshot: %w", err)
	}

	review, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	flagged := obs.Flagged()
	if err := p.reviews.SaveReview(ctx, job.SnapshotID, models.ReviewReviewed, flagged, review); err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	if !flagged {
		return nil
	}

	ev := models.SnapshotFlaggedEvent{
		SnapshotID:  job.SnapshotID,
		SessionID:   job.SessionID,
		Observation: *obs,
	}
	if p.live != nil {
		if err := p.live.Publish(ctx, job.SessionID, models.WSMessage{Type: models.WSSnapshotFlagged, Payload: ev}); err != nil {
			log.Warn().Err(err).Str("session_id", job.SessionID.String()).Msg("failed to publish flagged snapshot")
		}
	}
	if p.alerter != nil {
		if err := p.alerter.SnapshotFlagged(ctx, ev); err != nil {
			log.Warn().Err(err).Str("snapshot_id", job.SnapshotID.String()).Msg("failed to send flagged snapshot alert")
		}
	}
	return nil
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++

	if job.RetryCount < maxAttempts {
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		log.Warn().Err(err).Str("job_id", job.ID.String()).Int("attempt", job.RetryCount).Dur("backoff", backoff).Msg("job failed, retrying")

		retry := *job
		p.clock.AfterFunc(backoff, func() {
			if err := p.queue.Enqueue(context.Background(), &retry); err != nil {
				log.Error().Err(err).Str("job_id", retry.ID.String()).Msg("failed to requeue job")
			}
		})
		return
	}

	log.Error().Err(err).Str("job_id", job.ID.String()).Int("attempts", job.RetryCount).Msg("job failed permanently")
	if job.Type != models.JobSnapshotReview {
		return
	}
	if saveErr := p.reviews.SaveReview(ctx, job.SnapshotID, models.ReviewFailed, false, nil); saveErr != nil {
		log.Error().Err(saveErr).Str("snapshot_id", job.SnapshotID.String()).Msg("failed to mark snapshot review failed")
	}
}
