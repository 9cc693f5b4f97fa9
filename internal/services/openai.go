package services

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

type OpenAIOracle struct {
	client *openai.Client
	model  string
	slots  rateSlots
}

func NewOpenAIOracle(apiKey, model string, concurrentReqs int) *OpenAIOracle {
	return newOpenAIOracle(openai.DefaultConfig(apiKey), model, concurrentReqs)
}

func newOpenAIOracle(cfg openai.ClientConfig, model string, concurrentReqs int) *OpenAIOracle {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIOracle{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		slots:  newRateSlots(concurrentReqs),
	}
}

func (o *OpenAIOracle) Close() error { return nil }

func (o *OpenAIOracle) AssessCV(ctx context.Context, text string) (*models.CVAssessment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("CV text is empty")
	}

	content, err := o.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: cvSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: buildCVPrompt(text)},
	})
	if err != nil {
		return nil, err
	}
	return parseAssessment(content)
}

func (o *OpenAIOracle) ObserveSnapshot(ctx context.Context, image []byte, contentType string) (*models.SnapshotObservation, error) {
	if len(image) == 0 {
		return nil, models.ErrEmptyImage
	}

	content, err := o.complete(ctx, []openai.ChatCompletionMessage{{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: snapshotPrompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    models.EncodeImagePayload(image, contentType),
					Detail: openai.ImageURLDetailLow,
				},
			},
		},
	}})
	if err != nil {
		return nil, err
	}
	return parseObservation(content)
}

func (o *OpenAIOracle) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	if err := o.slots.acquire(ctx); err != nil {
		return "", err
	}
	defer o.slots.release()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
