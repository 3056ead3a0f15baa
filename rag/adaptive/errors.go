package adaptive

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuestion rejects blank input before any provider is called.
	ErrEmptyQuestion = errors.New("question cannot be empty")
	// ErrGeneration reports that the model could not produce an answer.
	ErrGeneration = errors.New("answer generation failed")
	// ErrRecursionLimit reports that a turn exhausted its transition budget.
	ErrRecursionLimit = errors.New("recursion limit exceeded")
)

// Describe maps a turn error to the message shown to the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyQuestion):
		return "Please enter a valid question."
	case errors.Is(err, ErrRecursionLimit):
		return "The question needed more retrieval steps than allowed. Try asking a more specific question."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Processing error: the request timed out."
	case errors.Is(err, ErrGeneration):
		return "Processing error: the language model is unavailable right now. Please try again later."
	default:
		return fmt.Sprintf("Processing error: %v", err)
	}
}
