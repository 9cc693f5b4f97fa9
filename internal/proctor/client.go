package proctor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

// HTTPClient speaks the session JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// APIError is a non-2xx response carrying the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *HTTPClient) GetSession(ctx context.Context, sessionID string) (*models.SessionView, error) {
	var view models.SessionView
	if err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *HTTPClient) Submit(ctx context.Context, sessionID, code string) (*models.SubmitResponse, error) {
	var resp models.SubmitResponse
	body := models.SubmitRequest{Code: code}
	if err := c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/submit", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ReportIntegrityEvent(ctx context.Context, sessionID string, kind models.IntegrityKind, at time.Time) error {
	body := models.IntegrityEventRequest{
		SessionID: sessionID,
		Type:      string(kind),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
	return c.do(ctx, http.MethodPost, "/integrity-event", body, nil)
}

func (c *HTTPClient) UploadSnapshot(ctx context.Context, sessionID string, image []byte, contentType string, at time.Time) error {
	body := models.SnapshotRequest{
		SessionID: sessionID,
		Image:     models.EncodeImagePayload(image, contentType),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
	return c.do(ctx, http.MethodPost, "/snapshot", body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env models.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrSessionNotFound, apiErr)
		case http.StatusConflict:
			if apiErr.Code == "DEADLINE_EXCEEDED" {
				return fmt.Errorf("%w: %v", ErrDeadlineExceeded, apiErr)
			}
			return fmt.Errorf("%w: %v", ErrAlreadySubmitted, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
