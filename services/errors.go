package services

import "fmt"

// UpstreamError wraps any failure of the broker session exchange:
// network errors, timeouts, non-success responses and open circuit
// breakers all surface as one kind. The exchange is never retried here;
// the caller decides whether to drive the user back through login.
type UpstreamError struct {
	Operation string
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("broker %s failed: %v", e.Operation, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
