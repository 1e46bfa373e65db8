package codec

import "fmt"

// Limit wraps another codec and refuses to decode payloads larger than MaxDecode.
// Encode is forwarded unchanged; size limits on writes are enforced by the tiers.
// If MaxDecode <= 0, size limiting is disabled.
//
// A payload rejected here surfaces from a tier read as a miss, the same as any other
// decode failure.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

var _ Codec[struct{}] = Limit[struct{}]{}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
