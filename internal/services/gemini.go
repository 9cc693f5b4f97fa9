package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

type GeminiOracle struct {
	client *genai.Client
	model  *genai.GenerativeModel
	slots  rateSlots
}

func NewGeminiOracle(ctx context.Context, apiKey, modelName string, concurrentReqs int) (*GeminiOracle, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)
	model.ResponseMIMEType = "application/json"

	return &GeminiOracle{
		client: client,
		model:  model,
		slots:  newRateSlots(concurrentReqs),
	}, nil
}

func (o *GeminiOracle) Close() error {
	return o.client.Close()
}

func (o *GeminiOracle) AssessCV(ctx context.Context, text string) (*models.CVAssessment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("CV text is empty")
	}
	if err := o.slots.acquire(ctx); err != nil {
		return nil, err
	}
	defer o.slots.release()

	resp, err := o.model.GenerateContent(ctx, genai.Text(cvSystemPrompt+"\n\n"+buildCVPrompt(text)))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	return parseAssessment(extractText(resp))
}

func (o *GeminiOracle) ObserveSnapshot(ctx context.Context, image []byte, contentType string) (*models.SnapshotObservation, error) {
	if len(image) == 0 {
		return nil, models.ErrEmptyImage
	}
	if err := o.slots.acquire(ctx); err != nil {
		return nil, err
	}
	defer o.slots.release()

	format := strings.TrimPrefix(contentType, "image/")
	if format == "" || format == contentType {
		format = "jpeg"
	}

	resp, err := o.model.GenerateContent(ctx, genai.Text(snapshotPrompt), genai.ImageData(format, image))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Warn().Int("candidate", i).Str("finish_reason", cand.FinishReason.String()).Msg("Gemini stopped early")
		}
	}

	return parseObservation(extractText(resp))
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
