package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/contextual-book-translator/pkg/log"
)

type ErrorType int

const (
	ErrInput ErrorType = iota
	ErrConfig
	ErrParse
	ErrTranslation
	ErrCache
	ErrExport
	ErrUnknown
)

type BookTransError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *BookTransError {
	return &BookTransError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *BookTransError {
	return &BookTransError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *BookTransError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *BookTransError) Unwrap() error {
	return e.Cause
}

func (e *BookTransError) WithContext(key string, value any) *BookTransError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrInput:
		return "Input"
	case ErrConfig:
		return "Config"
	case ErrParse:
		return "Parse"
	case ErrTranslation:
		return "Translation"
	case ErrCache:
		return "Cache"
	case ErrExport:
		return "Export"
	default:
		return "Unknown"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *BookTransError) string
}

type DefaultErrorHandler struct {
	logger *log.Logger
}

func NewDefaultErrorHandler(logger *log.Logger) ErrorHandler {
	return &DefaultErrorHandler{logger: log.OrGlobal(logger)}
}

// Handle logs err with advice. It reports whether err was a BookTransError.
func (h *DefaultErrorHandler) Handle(err error) bool {
	var bookErr *BookTransError
	if !errors.As(err, &bookErr) {
		h.logger.Error("Unknown Error: %v", err)
		return false
	}

	h.logger.Error("Error Detail: %v\n advice: %s", err, h.GetAdvice(bookErr))
	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *BookTransError) string {
	switch err.Type {
	case ErrInput:
		return "Please pass existing .epub files or a single .txt manifest listing one .epub path per line"
	case ErrConfig:
		return "Please check config.yaml, the .env file and environment variables; the output directory must already exist"
	case ErrParse:
		return "The archive could not be read as an EPUB; check that the file is not corrupted or DRM protected"
	case ErrTranslation:
		return "The translation backend refused the run; check the API key, model name and account balance, then re-run to resume"
	case ErrCache:
		return "Please ensure the cache directory is writable, has free space and is not used by another run"
	case ErrExport:
		return "Please ensure the output directory is writable; cached translations are kept and the next run retries the export"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var bookErr *BookTransError
	if errors.As(err, &bookErr) {
		return bookErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *BookTransError {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute runs fn and turns a panic into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
