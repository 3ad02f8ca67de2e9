package eventfold

import (
	"encoding/json"
	"fmt"
)

// Codec encodes event payloads and snapshot state for storage.
type Codec interface {
	// Marshal converts a value to bytes.
	Marshal(v interface{}) ([]byte, error)

	// Unmarshal converts bytes back into the given value.
	Unmarshal(data []byte, v interface{}) error

	// Name returns the codec identifier (e.g. "json", "msgpack").
	Name() string
}

// JSONCodec is the default Codec implementation using JSON encoding.
type JSONCodec struct{}

// NewJSONCodec creates a new JSONCodec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Marshal converts a value to JSON bytes.
func (c *JSONCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("eventfold: json marshal: %w", err)
	}
	return data, nil
}

// Unmarshal converts JSON bytes back into the given value.
func (c *JSONCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("eventfold: json unmarshal: empty input")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("eventfold: json unmarshal: %w", err)
	}
	return nil
}

// Name returns "json".
func (c *JSONCodec) Name() string {
	return "json"
}
