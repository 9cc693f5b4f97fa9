package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IntegrityKind is a client-side signal that may indicate a rule violation.
type IntegrityKind string

const (
	KindCopy       IntegrityKind = "copy"
	KindPaste      IntegrityKind = "paste"
	KindCut        IntegrityKind = "cut"
	KindTabSwitch  IntegrityKind = "tab_switch"
	KindWindowBlur IntegrityKind = "window_blur"
)

var integrityKinds = []IntegrityKind{KindCopy, KindPaste, KindCut, KindTabSwitch, KindWindowBlur}

func IntegrityKinds() []IntegrityKind {
	out := make([]IntegrityKind, len(integrityKinds))
	copy(out, integrityKinds)
	return out
}

func ParseIntegrityKind(s string) (IntegrityKind, error) {
	k := IntegrityKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown integrity event type %q", s)
	}
	return k, nil
}

func (k IntegrityKind) Valid() bool {
	for _, known := range integrityKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Suppressed reports whether the default action of the triggering event must be
// prevented. Clipboard actions are blocked; focus changes can only be observed.
func (k IntegrityKind) Suppressed() bool {
	switch k {
	case KindCopy, KindPaste, KindCut:
		return true
	}
	return false
}

// Advisory is the transient message shown to the candidate.
func (k IntegrityKind) Advisory() string {
	switch k {
	case KindCopy:
		return "Copying is disabled during the test"
	case KindPaste:
		return "Pasting is disabled during the test"
	case KindCut:
		return "Cutting is disabled during the test"
	default:
		return "Tab switching detected. This will be reported."
	}
}

type IntegrityEvent struct {
	ID         uuid.UUID     `json:"id"`
	SessionID  uuid.UUID     `json:"session_id"`
	Kind       IntegrityKind `json:"event_type"`
	Timestamp  time.Time     `json:"timestamp"`
	ReceivedAt time.Time     `json:"received_at"`
}

type IntegrityEventRequest struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type IntegrityEventResponse struct {
	Success bool      `json:"success"`
	LogID   uuid.UUID `json:"logId"`
}
