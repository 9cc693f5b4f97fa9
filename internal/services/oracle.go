package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

// Oracle is the LLM-backed scoring service. Callers treat every failure as
// non-fatal.
type Oracle interface {
	AssessCV(ctx context.Context, text string) (*models.CVAssessment, error)
	ObserveSnapshot(ctx context.Context, image []byte, contentType string) (*models.SnapshotObservation, error)
	Close() error
}

// NewOracle builds the oracle for the configured provider.
func NewOracle(ctx context.Context, provider, apiKey, model string, concurrentReqs int) (Oracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for %s", provider)
	}
	switch provider {
	case "gemini", "":
		oracle, err := NewGeminiOracle(ctx, apiKey, model, concurrentReqs)
		if err != nil {
			return nil, err
		}
		return oracle, nil
	case "openai":
		return NewOpenAIOracle(apiKey, model, concurrentReqs), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// rateSlots is a token bucket bounding concurrent oracle calls.
type rateSlots chan struct{}

func newRateSlots(n int) rateSlots {
	if n < 1 {
		n = 1
	}
	slots := make(rateSlots, n)
	for i := 0; i < n; i++ {
		slots <- struct{}{}
	}
	return slots
}

func (r rateSlots) acquire(ctx context.Context) error {
	select {
	case <-r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for oracle rate slot")
	}
}

func (r rateSlots) release() {
	r <- struct{}{}
}

const cvSystemPrompt = "You are an expert HR analyst. Analyze CVs and return structured JSON data."

func buildCVPrompt(cvText string) string {
	var b strings.Builder
	b.WriteString("Analyze the following CV and extract the following information in JSON format:\n")
	b.WriteString("- skills: array of technical and professional skills\n")
	b.WriteString("- experience_years: total years of professional experience (number)\n")
	b.WriteString("- education: array of education qualifications\n")
	b.WriteString("- strengths: array of key strengths based on the CV\n")
	b.WriteString("- weaknesses: array of potential areas for improvement or gaps\n")
	b.WriteString("- overall_fit_score: a score from 0-100 indicating overall candidate quality\n")
	b.WriteString("\n---CV---\n")
	b.WriteString(cvText)
	b.WriteString("\n---END---\n\n")
	b.WriteString("Return only valid JSON with these exact fields.")
	return b.String()
}

const snapshotPrompt = `You are reviewing a webcam still taken during a proctored coding test.
Return ONLY a valid JSON object with these fields:
{"face_count": int, "looking_away": bool, "other_person": bool, "phone_visible": bool, "suspicious": bool, "notes": "string under 200 chars"}

face_count is the number of human faces visible. Set suspicious when anything suggests outside help.`

// cleanJSON strips markdown fences and any prose around the outermost object.
func cleanJSON(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

func parseAssessment(raw string) (*models.CVAssessment, error) {
	var a models.CVAssessment
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &a); err != nil {
		return nil, fmt.Errorf("invalid CV assessment JSON: %w", err)
	}
	a.Normalize()
	return &a, nil
}

func parseObservation(raw string) (*models.SnapshotObservation, error) {
	var o models.SnapshotObservation
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &o); err != nil {
		return nil, fmt.Errorf("invalid snapshot observation JSON: %w", err)
	}
	if o.FaceCount < 0 {
		o.FaceCount = 0
	}
	return &o, nil
}
