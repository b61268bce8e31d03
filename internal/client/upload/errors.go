package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryUnavailable means the artifact needed to retry is gone. The
	// record stays failed and loses its retry state.
	ErrRetryUnavailable = errors.New("retry unavailable: artifact no longer held locally")
	ErrUploadInFlight   = errors.New("upload already in flight")
	ErrNotRetryable     = errors.New("record is not a failed local upload")
)

// Error is one failed upload attempt.
type Error struct {
	TempID  string
	Attempt int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s attempt %d: %v", e.TempID, e.Attempt, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
