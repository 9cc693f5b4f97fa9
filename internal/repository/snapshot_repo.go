package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

type SnapshotRepo struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

func (r *SnapshotRepo) Create(ctx context.Context, s *models.Snapshot) error {
	s.ID = uuid.New()
	s.ReviewStatus = models.ReviewPending
	query := `INSERT INTO camera_snapshots (id, session_id, image_url, timestamp, review_status)
		VALUES ($1, $2, $3, $4, $5) RETURNING received_at`

	err := r.pool.QueryRow(ctx, query, s.ID, s.SessionID, s.ImageURL, s.Timestamp, s.ReviewStatus).Scan(&s.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Snapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, session_id, image_url, timestamp, received_at,
			review_status, flagged, review_json
		FROM camera_snapshots WHERE session_id = $1 ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*models.Snapshot
	for rows.Next() {
		s := &models.Snapshot{}
		var review []byte
		if err := rows.Scan(&s.ID, &s.SessionID, &s.ImageURL, &s.Timestamp, &s.ReceivedAt,
			&s.ReviewStatus, &s.Flagged, &review); err != nil {
			return nil, err
		}
		if len(review) > 0 {
			s.ReviewJSON = json.RawMessage(review)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// SaveReview records the asynchronous review outcome. Only pending rows are
// updated so a redelivered job cannot overwrite an earlier verdict.
func (r *SnapshotRepo) SaveReview(ctx context.Context, id uuid.UUID, status string, flagged bool, review json.RawMessage) error {
	var reviewArg interface{}
	if len(review) > 0 {
		reviewArg = []byte(review)
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE camera_snapshots
		SET review_status = $2, flagged = $3, review_json = $4
		WHERE id = $1 AND review_status = 'pending'
	`, id, status, flagged, reviewArg)
	return err
}

// FailStaleReviews closes reviews still pending for snapshots received before the
// cutoff.
func (r *SnapshotRepo) FailStaleReviews(ctx context.Context, receivedBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE camera_snapshots
		SET review_status = 'failed'
		WHERE review_status = 'pending' AND received_at < $1
	`, receivedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
