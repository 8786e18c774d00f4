package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/contextual-book-translator/internal/llm"
)

// LLMTranslator sends each chapter to an OpenAI-compatible endpoint through
// the in-house HTTP client: the prompt as system message, the chapter as
// the user message.
type LLMTranslator struct {
	client *llm.Client
}

func NewLLMTranslator(config *llm.Config) (*LLMTranslator, error) {
	client, err := llm.NewClient(config)
	if err != nil {
		return nil, err
	}
	return &LLMTranslator{client: client}, nil
}

func (t *LLMTranslator) Translate(ctx context.Context, prompt, text string) (string, error) {
	resp, err := t.client.ChatCompletion(ctx,
		[]llm.Message{{Role: "user", Content: text}},
		llm.NewChatCompletionOptions().WithSystemPrompt(prompt),
	)
	if err != nil {
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) {
			return "", classifyStatus(apiErr.StatusCode, err)
		}
		return "", err
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
