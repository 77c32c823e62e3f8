package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blueclef/receiptify/internal/receipt"
	"github.com/blueclef/receiptify/logging"
	openai "github.com/sashabaranov/go-openai"
)

const extractionPrompt = `You are a receipt parser. Analyze the receipt image and return only minified JSON in one line. No comments. No markdown.

RULES:
- merchant: the store name as printed; empty string if unreadable.
- date: purchase date as YYYY-MM-DD; empty string if unreadable.
- total: the grand total as a number.
- currency: the ISO 4217 code; infer it from the symbol if needed; empty string if unknown.
- items: every purchased line in printed order.
- Each item MUST have description (original language), description_en (English translation) and price (line total as a number).
- quantity and unit_price when printed; omit them otherwise.
- Never invent items; skip header, tax, change and thank-you lines.

OUTPUT JSON SCHEMA:
{"merchant":string,"date":string,"total":number,"currency":string,"items":[{"description":string,"description_en":string,"quantity":number,"unit_price":number,"price":number}]}`

// ModelExtractor sends a receipt image to a hosted OpenAI-compatible vision
// model and decodes the structured reply.
type ModelExtractor struct {
	client *openai.Client
	model  string
}

func NewModelExtractor(apiKey string, baseURL string, model string) *ModelExtractor {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &ModelExtractor{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (m *ModelExtractor) ExtractReceipt(ctx context.Context, img []byte, contentType string) (receipt.ExtractedReceipt, error) {
	payload, mediaType, err := PrepareImage(img, contentType)
	if err != nil {
		return receipt.ExtractedReceipt{}, err
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		MaxTokens:   4096,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: extractionPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    DataURL(payload, mediaType),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return receipt.ExtractedReceipt{}, fmt.Errorf("vision model request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return receipt.ExtractedReceipt{}, fmt.Errorf("vision model returned no choices")
	}

	content := resp.Choices[0].Message.Content
	logging.Logger.Debugf("vision model raw response: %s", content)

	return DecodeExtraction(content)
}

// DecodeExtraction parses the model's reply into the strict receipt shape.
// Models occasionally wrap JSON in markdown fences despite instructions, so
// those are stripped first.
func DecodeExtraction(content string) (receipt.ExtractedReceipt, error) {
	content = stripFences(content)
	if content == "" {
		return receipt.ExtractedReceipt{}, fmt.Errorf("vision model returned empty response")
	}

	var extracted receipt.ExtractedReceipt
	if err := json.Unmarshal([]byte(content), &extracted); err != nil {
		return receipt.ExtractedReceipt{}, fmt.Errorf("failed to decode extraction response: %w", err)
	}
	return extracted, nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}
