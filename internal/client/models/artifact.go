package models

import "time"

// Artifact is a finished recording on local disk.
type Artifact struct {
	Path        string
	ContentType string
	Size        int64
}

// RecordMeta is the capture metadata sent alongside the artifact.
type RecordMeta struct {
	OwnerID    string
	ContactRef string
	OccurredAt time.Time
	Payload    map[string]Field
}

// PendingUpload is a journaled failed or interrupted upload that can be
// resumed after a restart.
type PendingUpload struct {
	TempID       string
	OwnerID      string
	Artifact     Artifact
	Meta         RecordMeta
	DurationHint time.Duration
	CreatedAt    time.Time
	Attempts     int
	LastError    string
}

// KeyMaterial is the response of the key exchange endpoint.
type KeyMaterial struct {
	KeyBase64 string
	Algorithm string
	Version   int
	NonceSize int
	TagSize   int
}
