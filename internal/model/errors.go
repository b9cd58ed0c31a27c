package model

import "errors"

var (
	// ErrNoTextFormat is returned when a book exists in the catalog but has
	// no plain-text export to scan or fetch from.
	ErrNoTextFormat = errors.New("no text format available")

	// ErrBookNotFound is returned when a book id resolves to nothing.
	ErrBookNotFound = errors.New("book not found")

	// ErrLineNotFound is returned when a requested line does not exist in
	// the target file.
	ErrLineNotFound = errors.New("line not found")
)

// BackendError wraps a failure of an external catalog or index backend.
type BackendError struct {
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *BackendError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func (e *BackendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
