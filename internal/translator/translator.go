// Package translator defines the chapter translation contract and its
// LLM-backed implementations.
package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Translator turns one chapter of text into the target language. prompt is
// the fully rendered instruction; text is the chapter body.
type Translator interface {
	Translate(ctx context.Context, prompt, text string) (string, error)
}

var (
	// ErrTerminal marks failures that no retry can fix for any chapter,
	// such as rejected credentials. A run stops on the first one.
	ErrTerminal = errors.New("terminal translation failure")
	// ErrRejected marks failures specific to one input that retrying will
	// not fix, such as a chapter exceeding the model's output limit.
	ErrRejected = errors.New("translation rejected")
)

// TerminalError wraps the cause of a terminal failure.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("terminal: %v", e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

func (e *TerminalError) Is(target error) bool { return target == ErrTerminal }

// Terminal wraps err as a TerminalError. It returns nil for a nil err.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// Rejected wraps err so it is neither retried nor treated as terminal.
func Rejected(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRejected, err)
}

func IsTerminal(err error) bool {
	return errors.Is(err, ErrTerminal)
}

// IsTransient reports whether another attempt may succeed. Per-call
// timeouts are transient; cancellation of the run is not.
func IsTransient(err error) bool {
	if err == nil || IsTerminal(err) || errors.Is(err, ErrRejected) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// classifyStatus maps an HTTP status from a provider onto the error classes.
func classifyStatus(status int, err error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusPaymentRequired:
		return Terminal(err)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return Rejected(err)
	default:
		return err
	}
}
