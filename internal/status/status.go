// Package status is the record lifecycle state machine shared by the client
// store and the backend.
//
//	local → uploading → uploaded → processing → ready
//	            │           │           │
//	            └───────────┴───────────┴──→ failed
//
// ready and failed are terminal for the processing stream. The single
// backward edge, failed → uploading, is the local retry of a failed upload;
// callers gate it on the record still holding its artifact.
package status

import (
	"errors"
	"fmt"
)

// Status is the lifecycle stage of a record.
type Status string

const (
	Local      Status = "local"
	Uploading  Status = "uploading"
	Uploaded   Status = "uploaded"
	Processing Status = "processing"
	Ready      Status = "ready"
	Failed     Status = "failed"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// validTransitions maps the current status to the set of allowed targets.
// Non-terminal statuses may also "transition" to themselves, which is how
// field-only updates from the processing stream are applied.
var validTransitions = map[Status]map[Status]bool{
	Local:      {Local: true, Uploading: true, Failed: true},
	Uploading:  {Uploading: true, Uploaded: true, Failed: true},
	Uploaded:   {Uploaded: true, Processing: true, Ready: true, Failed: true},
	Processing: {Processing: true, Ready: true, Failed: true},
	Ready:      {},
	Failed:     {Uploading: true},
}

// rank orders statuses along the happy path. Failed is ranked with Ready.
var rank = map[Status]int{
	Local:      0,
	Uploading:  1,
	Uploaded:   2,
	Processing: 3,
	Ready:      4,
	Failed:     4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether the processing stream is finished for s.
func (s Status) IsTerminal() bool {
	return s == Ready || s == Failed
}

func (s Status) String() string { return string(s) }

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Status) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Validate is CanTransition returning a wrapped ErrInvalidTransition.
func Validate(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Clamp caps s at ceiling along the happy path. The upload coordinator uses
// it so that it never writes a status past Uploaded.
func Clamp(s, ceiling Status) Status {
	if !s.Valid() || rank[s] > rank[ceiling] {
		return ceiling
	}
	return s
}

// Parse converts a wire string to a Status.
func Parse(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}
