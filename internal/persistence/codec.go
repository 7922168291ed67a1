package persistence

import (
	"encoding/json"
	"fmt"
)

// EncodeValue serializes a stored document (flow, action outcomes, trigger
// payload) as JSON. JSON keeps rows readable by other services and by
// operators inspecting the database directly.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

// DecodeValue decodes a document written by EncodeValue. Empty input yields
// the zero value.
func DecodeValue[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
