package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MimeLyc/contextual-book-translator/internal/llm"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAITranslator uses the official OpenAI SDK. Retries belong to the
// dispatcher, so the SDK's own retry loop is disabled.
type OpenAITranslator struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

func NewOpenAITranslator(config *llm.Config) (*OpenAITranslator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	httpClient := &http.Client{Timeout: config.HTTPTimeout()}
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if base := config.BaseURL(); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	return &OpenAITranslator{
		client:      openai.NewClient(opts...),
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, prompt, text string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(t.temperature),
	}
	if t.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(t.maxTokens))
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return "", Rejected(fmt.Errorf("output truncated at %d completion tokens", resp.Usage.CompletionTokens))
	}
	out := strings.TrimSpace(choice.Message.Content)
	if out == "" {
		return "", fmt.Errorf("empty translation")
	}
	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, fmt.Errorf("OpenAI error (status %d): %w", apiErr.StatusCode, err))
	}
	return err
}
