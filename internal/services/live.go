package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

// SessionChannel is the redis pub/sub channel carrying live updates for one session.
func SessionChannel(sessionID uuid.UUID) string {
	return fmt.Sprintf("session_updates:%s", sessionID.String())
}

// QueueName is the redis list a job type is pushed to.
func QueueName(jobType string) string {
	return "queue:" + jobType
}

// LiveFeed publishes session updates for reviewers watching over websocket.
type LiveFeed struct {
	redis *redis.Client
}

func NewLiveFeed(redisClient *redis.Client) *LiveFeed {
	return &LiveFeed{redis: redisClient}
}

func (f *LiveFeed) Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.redis.Publish(ctx, SessionChannel(sessionID), string(data)).Err()
}

// JobQueue pushes background jobs onto redis lists consumed by the worker pool.
type JobQueue struct {
	redis *redis.Client
}

func NewJobQueue(redisClient *redis.Client) *JobQueue {
	return &JobQueue{redis: redisClient}
}

func (q *JobQueue) Enqueue(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.redis.RPush(ctx, QueueName(job.Type), string(data)).Err()
}
