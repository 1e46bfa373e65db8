// Package codec converts typed values to and from the opaque byte payloads stored by
// tiers that cross a process boundary (Remote, and the L2 half of Hybrid).
// The Local tier keeps values as-is and never touches a codec.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
// Decode(Encode(v)) must yield a value equal to v.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ByName returns the codec registered under name: "json" (or ""), "cbor" or "msgpack".
func ByName[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSON[V]{}, nil
	case "cbor":
		c, err := NewCBOR[V](false)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "msgpack":
		return Msgpack[V]{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
