package domain

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrValidation = errors.New("validation_error")
	ErrStorage    = errors.New("storage_error")
)

// ValidationError carries every message that caused a batch to be rejected.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type Service interface {
	Ingest(ctx context.Context, body []byte) (*IngestResult, error)
}
