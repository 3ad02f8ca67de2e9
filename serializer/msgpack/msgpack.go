// Package msgpack provides a MessagePack codec for event payloads and
// snapshot state. It produces smaller records than JSON at the cost of
// human readability in the store.
package msgpack

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes values as MessagePack.
type Codec struct{}

// NewCodec creates a new MessagePack codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Marshal converts a value to MessagePack bytes.
func (c *Codec) Marshal(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("eventfold: msgpack marshal: %w", err)
	}
	return data, nil
}

// Unmarshal converts MessagePack bytes back into the given value.
func (c *Codec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("eventfold: msgpack unmarshal: empty input")
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("eventfold: msgpack unmarshal: %w", err)
	}
	return nil
}

// Name returns "msgpack".
func (c *Codec) Name() string {
	return "msgpack"
}
