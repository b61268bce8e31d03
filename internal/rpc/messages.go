package rpc

// Record is the wire form of a memo record. Timestamps are milliseconds
// since the Unix epoch; encrypted fields carry their "v1:" envelope.
type Record struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"owner_id"`
	Status       string            `json:"status"`
	Fields       map[string]string `json:"fields,omitempty"`
	ContactRef   string            `json:"contact_ref,omitempty"`
	DurationMs   int64             `json:"duration_ms,omitempty"`
	CreatedAtMs  int64             `json:"created_at_ms"`
	OccurredAtMs int64             `json:"occurred_at_ms"`
}

type RegisterUserRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}

type RegisterUserResponse struct{}

type GetSaltRequest struct {
	Username string `json:"username"`
}

type GetSaltResponse struct {
	Salt []byte `json:"salt"`
}

type LoginRequest struct {
	Username          string `json:"username"`
	VerifierCandidate []byte `json:"verifier_candidate"`
}

type LoginResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type ExchangeKeyRequest struct{}

// ExchangeKeyResponse carries the caller's field key, base64 encoded.
type ExchangeKeyResponse struct {
	Key       string `json:"key"`
	Algorithm string `json:"algorithm"`
	Version   int    `json:"version"`
	NonceSize int    `json:"nonce_size"`
	TagSize   int    `json:"tag_size"`
}

type RequestUploadRequest struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type RequestUploadResponse struct {
	StorageKey string `json:"storage_key"`
	URL        string `json:"url"`
}

type CreateRecordRequest struct {
	StorageKey   string            `json:"storage_key"`
	ContactRef   string            `json:"contact_ref,omitempty"`
	OccurredAtMs int64             `json:"occurred_at_ms"`
	DurationMs   int64             `json:"duration_ms,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

type CreateRecordResponse struct {
	Record *Record `json:"record"`
}

type ListRecordsRequest struct{}

type ListRecordsResponse struct {
	Records []*Record `json:"records"`
}

type DeleteRecordRequest struct {
	ID string `json:"id"`
}

type DeleteRecordResponse struct{}

// AdvanceRecordRequest is sent by the processing pipeline. Fields named in
// the server's sensitive set are encrypted before they are stored.
type AdvanceRecordRequest struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Fields     map[string]string `json:"fields,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
}

type AdvanceRecordResponse struct {
	Record *Record `json:"record"`
}

type SubscribeRequest struct {
	RecordID string `json:"record_id"`
}

type WatchDeletionsRequest struct{}

type DeletionEvent struct {
	RecordID string `json:"record_id"`
}
