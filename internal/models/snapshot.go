package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ReviewPending  = "pending"
	ReviewReviewed = "reviewed"
	ReviewFailed   = "failed"
)

const DefaultImageContentType = "image/jpeg"

type Snapshot struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	ImageURL     string          `json:"image_url"`
	Timestamp    time.Time       `json:"timestamp"`
	ReceivedAt   time.Time       `json:"received_at"`
	ReviewStatus string          `json:"review_status"`
	Flagged      bool            `json:"flagged"`
	ReviewJSON   json.RawMessage `json:"review,omitempty"`
}

type SnapshotRequest struct {
	SessionID string `json:"sessionId"`
	Image     string `json:"image"`
	Timestamp string `json:"timestamp"`
}

type SnapshotResponse struct {
	Success    bool      `json:"success"`
	SnapshotID uuid.UUID `json:"snapshotId"`
	ImageURL   string    `json:"imageUrl"`
}

var dataURLPrefix = regexp.MustCompile(`^data:(image/[\w.+-]+);base64,`)

var ErrEmptyImage = errors.New("image payload is empty")

// DecodeImagePayload accepts either a data URL or bare base64 and returns the raw
// bytes with their content type.
func DecodeImagePayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	contentType := DefaultImageContentType
	if m := dataURLPrefix.FindStringSubmatch(payload); m != nil {
		contentType = m[1]
		payload = payload[len(m[0]):]
	}
	if payload == "" {
		return nil, "", ErrEmptyImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	return data, contentType, nil
}

func EncodeImagePayload(data []byte, contentType string) string {
	if contentType == "" {
		contentType = DefaultImageContentType
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ImageExtension maps an image content type to a file extension for blob keys.
func ImageExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
