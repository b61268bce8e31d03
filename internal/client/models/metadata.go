package models

import (
	"errors"
	"strings"
)

var ErrIncorrectMetadata = errors.New("metadata item must be name=value")

// MetadataFromString parses "name=value" items into plaintext payload fields.
func MetadataFromString(s []string) (map[string]Field, error) {
	data := make(map[string]Field, len(s))
	for _, item := range s {
		parts := strings.Split(item, "=")
		if len(parts) != 2 || parts[0] == "" {
			return nil, ErrIncorrectMetadata
		}
		data[parts[0]] = Plaintext(parts[1])
	}
	return data, nil
}
