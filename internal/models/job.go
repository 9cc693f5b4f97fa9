package models

import (
	"time"

	"github.com/google/uuid"
)

const JobSnapshotReview = "snapshot-review"

// Job is a unit of background work carried on a redis list. Image bytes travel
// with the job so the worker does not depend on which blob store accepted them.
type Job struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	SnapshotID  uuid.UUID `json:"snapshot_id"`
	SessionID   uuid.UUID `json:"session_id"`
	ContentType string    `json:"content_type"`
	Image       []byte    `json:"image"`
	RetryCount  int       `json:"retry_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	WSIntegrityEvent  = "integrity_event"
	WSSnapshotFlagged = "snapshot_flagged"
	WSSubmitted       = "submitted"
)

type SnapshotFlaggedEvent struct {
	SnapshotID  uuid.UUID           `json:"snapshot_id"`
	SessionID   uuid.UUID           `json:"session_id"`
	Observation SnapshotObservation `json:"observation"`
}

type SubmittedEvent struct {
	SessionID   uuid.UUID `json:"session_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Late        bool      `json:"late"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
