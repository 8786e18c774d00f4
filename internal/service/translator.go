package service

import (
	"fmt"

	"github.com/MimeLyc/contextual-book-translator/internal/config"
	"github.com/MimeLyc/contextual-book-translator/internal/translator"
)

// NewTranslator builds the translation backend selected by cfg.Provider.
func NewTranslator(cfg config.LLMConfig) (translator.Translator, error) {
	var (
		tr  translator.Translator
		err error
	)
	switch cfg.Provider {
	case "", config.ProviderHTTP:
		tr, err = translator.NewLLMTranslator(cfg.ClientConfig())
	case config.ProviderOpenAI:
		tr, err = translator.NewOpenAITranslator(cfg.ClientConfig())
	default:
		return nil, NewError(ErrConfig, fmt.Sprintf("unknown llm provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, WrapError(err, ErrConfig, "create translator").WithContext("provider", cfg.Provider)
	}
	return tr, nil
}
