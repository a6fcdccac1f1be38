package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuery = errors.New("invalid_query")
	ErrNotFound     = errors.New("not_found")
)

// QueryError is a client-facing validation failure.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string { return e.Message }

func (e *QueryError) Unwrap() error { return ErrInvalidQuery }

func invalid(msg string) error {
	return &QueryError{Message: msg}
}

type NotFoundError struct {
	DeviceID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Device %s not found", e.DeviceID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
