package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR serializes values using fxamacker/cbor.
// The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
//
// deterministic=true selects RFC 8949 Core Deterministic encoding, so equal values
// always produce equal bytes. Times are encoded as RFC3339Nano strings so they survive
// a round trip with their monotonic-free wall clock intact.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR is like NewCBOR but panics on error. Meant for tests and package-level vars.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
