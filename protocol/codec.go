package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// validatable is implemented by wire messages that carry field-level
// constraints beyond what the JSON schema expresses.
type validatable interface {
	Validate() error
}

// DecodeStrict decodes a text frame into dst with a strict schema:
// field names match case-insensitively (encoding/json semantics) and
// unrecognized fields are rejected. Trailing data after the object is also
// rejected. If dst implements Validate, the decoded value is validated too.
func DecodeStrict(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	// A frame must contain exactly one JSON object.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid payload: trailing data after message")
	}

	if v, ok := dst.(validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	return nil
}

// Encode serializes a wire message to a JSON text frame.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}
