package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

type IntegrityEventRepo struct {
	pool *pgxpool.Pool
}

func NewIntegrityEventRepo(pool *pgxpool.Pool) *IntegrityEventRepo {
	return &IntegrityEventRepo{pool: pool}
}

func (r *IntegrityEventRepo) Create(ctx context.Context, e *models.IntegrityEvent) error {
	e.ID = uuid.New()
	query := `INSERT INTO integrity_events (id, session_id, event_type, timestamp)
		VALUES ($1, $2, $3, $4) RETURNING received_at`

	if err := r.pool.QueryRow(ctx, query, e.ID, e.SessionID, string(e.Kind), e.Timestamp).Scan(&e.ReceivedAt); err != nil {
		return fmt.Errorf("insert integrity event: %w", err)
	}
	return nil
}

func (r *IntegrityEventRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.IntegrityEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, session_id, event_type, timestamp, received_at
		FROM integrity_events WHERE session_id = $1 ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.IntegrityEvent
	for rows.Next() {
		e := &models.IntegrityEvent{}
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Timestamp, &e.ReceivedAt); err != nil {
			return nil, err
		}
		e.Kind = models.IntegrityKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}
