package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

type Problem struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	StarterCode      *string   `json:"starter_code"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
	Difficulty       string    `json:"difficulty"`
}

type TestSession struct {
	ID            uuid.UUID     `json:"id"`
	ProblemID     uuid.UUID     `json:"problem_id"`
	CandidateID   *uuid.UUID    `json:"candidate_id"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time"`
	SubmittedCode *string       `json:"submitted_code"`
	Status        SessionStatus `json:"status"`
	SubmittedLate bool          `json:"submitted_late"`
	Problem       *Problem      `json:"problem,omitempty"`
}

// Completed reports whether the session has been submitted. The end timestamp is
// the source of truth; status mirrors it.
func (s *TestSession) Completed() bool {
	return s.EndTime != nil
}

// Deadline is the nominal end of the session. It is the zero time when the
// problem has not been loaded alongside the session.
func (s *TestSession) Deadline() time.Time {
	if s.Problem == nil {
		return time.Time{}
	}
	return s.StartTime.Add(time.Duration(s.Problem.TimeLimitMinutes) * time.Minute)
}

// SessionView is everything the client needs to render a session and derive its
// countdown. Field names are part of the public wire contract.
type SessionView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StarterCode string    `json:"starterCode"`
	Duration    int       `json:"duration"`
	StartedAt   time.Time `json:"startedAt"`
}

func NewSessionView(s *TestSession) SessionView {
	v := SessionView{
		ID:        s.ID.String(),
		StartedAt: s.StartTime.UTC(),
	}
	if s.Problem != nil {
		v.Title = s.Problem.Title
		v.Description = s.Problem.Description
		v.Duration = s.Problem.TimeLimitMinutes
		if s.Problem.StarterCode != nil {
			v.StarterCode = *s.Problem.StarterCode
		}
	}
	return v
}

// RemainingSeconds is duration*60 minus whole seconds elapsed since StartedAt,
// floored at zero.
func (v SessionView) RemainingSeconds(now time.Time) int {
	elapsed := int(now.Sub(v.StartedAt) / time.Second)
	remaining := v.Duration*60 - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

type SubmitRequest struct {
	Code string `json:"code"`
}

type SubmitResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	SubmittedAt time.Time `json:"submittedAt"`
	Late        bool      `json:"late"`
}
