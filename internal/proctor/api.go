package proctor

import (
	"context"
	"errors"
	"time"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

var (
	ErrAlreadySubmitted = errors.New("session already submitted")
	ErrSessionNotFound  = errors.New("session not found")
	ErrDeadlineExceeded = errors.New("submission deadline exceeded")
)

// API is the server contract the controller drives.
type API interface {
	GetSession(ctx context.Context, sessionID string) (*models.SessionView, error)
	Submit(ctx context.Context, sessionID, code string) (*models.SubmitResponse, error)
	ReportIntegrityEvent(ctx context.Context, sessionID string, kind models.IntegrityKind, at time.Time) error
	UploadSnapshot(ctx context.Context, sessionID string, image []byte, contentType string, at time.Time) error
}

// Camera is an acquired webcam feed.
type Camera interface {
	Capture(ctx context.Context) (image []byte, contentType string, err error)
	Close() error
}

type CameraOpener interface {
	Open(ctx context.Context) (Camera, error)
}

// View renders controller output. Calls arrive from the controller goroutine only.
type View interface {
	StateChanged(state State)
	Remaining(seconds int)
	ShowAdvisory(a Advisory)
	DismissAdvisory(id int)
}

type State int

const (
	StateLoading State = iota
	StateActive
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

type AdvisoryKind string

const (
	AdvisoryTime        AdvisoryKind = "time"
	AdvisoryIntegrity   AdvisoryKind = "integrity"
	AdvisoryCamera      AdvisoryKind = "camera"
	AdvisorySubmitError AdvisoryKind = "submit_error"
	AdvisorySession     AdvisoryKind = "session"
	AdvisorySubmitted   AdvisoryKind = "submitted"
)

// Advisory is a message for the candidate. Non-persistent advisories are
// dismissed by the controller after its advisory TTL.
type Advisory struct {
	ID         int
	Kind       AdvisoryKind
	Message    string
	Persistent bool
}
