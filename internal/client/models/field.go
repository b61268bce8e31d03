package models

import "github.com/dmitrijs2005/memokeeper/internal/cryptox"

// FieldKind distinguishes plaintext payload values from envelopes.
type FieldKind string

const (
	FieldPlaintext FieldKind = "plaintext"
	FieldEncrypted FieldKind = "encrypted"
)

// Field is one payload value. Encrypted values hold a "v1:" envelope.
type Field struct {
	Kind  FieldKind `json:"kind"`
	Value string    `json:"value"`
}

func Plaintext(v string) Field { return Field{Kind: FieldPlaintext, Value: v} }

func Encrypted(envelope string) Field { return Field{Kind: FieldEncrypted, Value: envelope} }

// FieldFromWire tags a raw value by inspecting its prefix.
func FieldFromWire(v string) Field {
	if cryptox.IsEnvelope(v) {
		return Encrypted(v)
	}
	return Plaintext(v)
}
