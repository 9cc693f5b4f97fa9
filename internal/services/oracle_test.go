package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: {\"a\":1} hope this helps", `{"a":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := cleanJSON(tc.in); got != tc.want {
				t.Errorf("cleanJSON() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseAssessment_Normalizes(t *testing.T) {
	a, err := parseAssessment("```json\n{\"skills\":[\"go\"],\"overall_fit_score\":140}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.OverallFitScore != 100 {
		t.Errorf("expected score clamped to 100, got %d", a.OverallFitScore)
	}
	if a.Education == nil || a.Weaknesses == nil {
		t.Errorf("expected nil lists replaced with empty lists")
	}

	if _, err := parseAssessment("not json"); err == nil {
		t.Errorf("expected error for invalid JSON")
	}
}

func TestParseObservation(t *testing.T) {
	o, err := parseObservation(`{"face_count":2,"other_person":true,"notes":"second person behind"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !o.Flagged() {
		t.Errorf("expected two faces to be flagged")
	}
}

func TestRateSlots_BoundsConcurrency(t *testing.T) {
	slots := newRateSlots(1)
	if err := slots.acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slots.acquire(ctx); err == nil {
		t.Fatalf("expected acquire to fail while the only slot is held")
	}

	slots.release()
	if err := slots.acquire(context.Background()); err != nil {
		t.Fatalf("expected slot to be available after release: %v", err)
	}
}

func TestNewOracle_RequiresKeyAndKnownProvider(t *testing.T) {
	if _, err := NewOracle(context.Background(), "openai", "", "", 1); err == nil {
		t.Errorf("expected error without API key")
	}
	if _, err := NewOracle(context.Background(), "ollama", "key", "", 1); err == nil {
		t.Errorf("expected error for unknown provider")
	}
	o, err := NewOracle(context.Background(), "openai", "key", "", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer o.Close()
	if _, ok := o.(*OpenAIOracle); !ok {
		t.Errorf("expected OpenAI oracle, got %T", o)
	}
}

func newOpenAITestServer(t *testing.T, content string, captured *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			json.Unmarshal(body, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
}

func TestOpenAIOracle_ObserveSnapshot(t *testing.T) {
	var req openai.ChatCompletionRequest
	srv := newOpenAITestServer(t, `{"face_count":1,"looking_away":true,"suspicious":false}`, &req)
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	oracle := newOpenAIOracle(cfg, "", 2)

	obs, err := oracle.ObserveSnapshot(context.Background(), []byte{0xff, 0xd8}, "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.FaceCount != 1 || !obs.LookingAway || obs.Flagged() {
		t.Errorf("unexpected observation: %+v", obs)
	}

	if req.Model != openai.GPT4oMini {
		t.Errorf("expected default model, got %q", req.Model)
	}
	if len(req.Messages) != 1 || len(req.Messages[0].MultiContent) != 2 {
		t.Fatalf("expected one multi-part message, got %+v", req.Messages)
	}
	img := req.Messages[0].MultiContent[1].ImageURL
	if img == nil || !strings.HasPrefix(img.URL, "data:image/jpeg;base64,") {
		t.Errorf("expected image sent as data URL, got %+v", img)
	}
}

func TestOpenAIOracle_AssessCV(t *testing.T) {
	srv := newOpenAITestServer(t, `{"skills":["Go","SQL"],"experience_years":4,"overall_fit_score":72}`, nil)
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	oracle := newOpenAIOracle(cfg, "gpt-4o", 1)

	a, err := oracle.AssessCV(context.Background(), "Senior Go engineer, 4 years.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.OverallFitScore != 72 || len(a.Skills) != 2 || a.ExperienceYears != 4 {
		t.Errorf("unexpected assessment: %+v", a)
	}

	if _, err := oracle.AssessCV(context.Background(), "  "); err == nil {
		t.Errorf("expected error for empty CV text")
	}
}
