// Package codec provides the deterministic binary encoding used for every
// value that crosses the coordinator store: agent state, world state,
// updates, and population mutations.
//
// Encoding is MessagePack via github.com/vmihailenco/msgpack/v5, chosen
// because it is self-delimiting within a single store value or list
// element (one message per slot) and needs no schema negotiation between
// peers, exactly the contract the coordination core requires.
package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes v into a self-delimiting byte slice suitable for
// storage in a single store value, set member, or list element.
func Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return data, nil
}

// Decode deserializes data produced by Encode into a value of type T.
//
// Round-trip contract: Decode[T](Encode(x)) == x for every in-scope value
// type T.
func Decode[T any](data []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("codec: decode: %w", err)
	}
	return v, nil
}
