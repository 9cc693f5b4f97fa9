package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

type TestSessionRepo struct {
	pool *pgxpool.Pool
}

func NewTestSessionRepo(pool *pgxpool.Pool) *TestSessionRepo {
	return &TestSessionRepo{pool: pool}
}

// GetWithProblem loads a session together with the problem it was assigned.
func (r *TestSessionRepo) GetWithProblem(ctx context.Context, id uuid.UUID) (*models.TestSession, error) {
	s := &models.TestSession{Problem: &models.Problem{}}
	query := `SELECT s.id, s.problem_id, s.candidate_id, s.start_time, s.end_time, s.submitted_code,
			s.status, s.submitted_late,
			p.id, p.title, p.description, p.starter_code, p.time_limit_minutes, p.difficulty
		FROM test_sessions s
		JOIN problems p ON p.id = s.problem_id
		WHERE s.id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.ProblemID, &s.CandidateID, &s.StartTime, &s.EndTime, &s.SubmittedCode,
		&s.Status, &s.SubmittedLate,
		&s.Problem.ID, &s.Problem.Title, &s.Problem.Description, &s.Problem.StarterCode,
		&s.Problem.TimeLimitMinutes, &s.Problem.Difficulty,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get test session: %w", err)
	}
	return s, nil
}

func (r *TestSessionRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM test_sessions WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check test session: %w", err)
	}
	return exists, nil
}

// Submit completes the session if and only if it has not been completed yet. The
// guard lives in the WHERE clause so two racing submissions cannot both win.
func (r *TestSessionRepo) Submit(ctx context.Context, id uuid.UUID, code string, at time.Time, late bool) (time.Time, error) {
	var endTime time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE test_sessions
		SET end_time = $2,
			submitted_code = $3,
			status = 'completed',
			submitted_late = $4
		WHERE id = $1
		  AND end_time IS NULL
		RETURNING end_time
	`, id, at, code, late).Scan(&endTime)
	if err == nil {
		return endTime, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("submit test session: %w", err)
	}

	exists, err := r.Exists(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if !exists {
		return time.Time{}, ErrNotFound
	}
	return time.Time{}, ErrAlreadySubmitted
}
