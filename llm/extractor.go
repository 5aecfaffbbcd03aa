// Package llm sends document text to a language model and decodes the
// structured extraction it returns. It is the expensive last stage of
// the pipeline: everything upstream exists to avoid calling it.
package llm

import (
	"context"
	"time"

	"github.com/extrato-ai/extrato/schema"
)

// Extractor extracts a schema's fields from document text.
type Extractor interface {
	Extract(ctx context.Context, label, documentText string, sch schema.Schema) (*Extraction, error)
}

// Extraction is one decoded model response. Data carries exactly the
// schema's keys, nil for fields the model reported absent.
type Extraction struct {
	Data    map[string]any
	Retries int
}

const (
	// DefaultTimeout bounds each model call attempt; a retry gets a
	// fresh window.
	DefaultTimeout = 120 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 1
	// initialBackoff is the delay before the first retry; it doubles on
	// each subsequent one.
	initialBackoff = time.Second
)

// ExtractorError represents a failure to extract data via the model.
type ExtractorError struct {
	Message string
	Err     error
}

func (e *ExtractorError) Error() string {
	if e.Err != nil {
		return "llm: " + e.Message + ": " + e.Err.Error()
	}
	return "llm: " + e.Message
}

func (e *ExtractorError) Unwrap() error {
	return e.Err
}

// NewExtractorError creates a new ExtractorError.
func NewExtractorError(message string, err error) *ExtractorError {
	return &ExtractorError{Message: message, Err: err}
}
