package domain

import "fmt"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	// ErrConfiguration means model credentials or endpoint are missing.
	ErrConfiguration = fmt.Errorf("model gateway not configured")
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProvider      = fmt.Errorf("provider error")
	// ErrOutOfOrder is returned when a stream write would break the
	// status, metadata, content ordering.
	ErrOutOfOrder = fmt.Errorf("stream write out of order")
)
