package keys

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeySize matches any *InvalidKeySizeError.
	ErrInvalidKeySize       = errors.New("invalid key size")
	ErrUnsupportedAlgorithm = errors.New("unsupported key algorithm")
	ErrMalformedKey         = errors.New("malformed key material")
	// ErrSessionChanged is returned when the key cache was cleared while an
	// exchange was in flight; the fetched key is discarded.
	ErrSessionChanged = errors.New("session changed during key exchange")
	ErrNoOwner        = errors.New("owner id is required")
)

// InvalidKeySizeError reports a decoded key of the wrong length.
type InvalidKeySizeError struct {
	Size int
}

func (e *InvalidKeySizeError) Error() string {
	return fmt.Sprintf("invalid key size: got %d bytes, want 32", e.Size)
}

func (e *InvalidKeySizeError) Is(target error) bool {
	return target == ErrInvalidKeySize
}
