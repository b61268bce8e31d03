package timex

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimestamp is returned for epoch-millisecond values outside the
// accepted window.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Accepted window for occurred_at_ms. A value in seconds since the epoch is
// below minEpochMillis for any date before 5138, so it is rejected rather
// than reinterpreted.
const (
	minEpochMillis int64 = 1_000_000_000_000  // 2001-09-09
	maxEpochMillis int64 = 10_000_000_000_000 // 2286-11-20
)

// FromEpochMillis converts a wire timestamp to a time.Time truncated to whole
// seconds. Zero means "not set" and yields the zero time.
func FromEpochMillis(ms int64) (time.Time, error) {
	if ms == 0 {
		return time.Time{}, nil
	}
	if ms < minEpochMillis || ms >= maxEpochMillis {
		return time.Time{}, fmt.Errorf("%w: %d is not milliseconds since epoch", ErrInvalidTimestamp, ms)
	}
	return time.Unix(ms/1000, 0).UTC(), nil
}

// ToEpochMillis is the inverse of FromEpochMillis. The zero time encodes as 0.
func ToEpochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
