package tiercache

import "fmt"

// Limits bound what a tier accepts on write. Zero fields take the defaults
// (512-byte keys, 1 MiB payloads); negative values are rejected at construction.
type Limits struct {
	MaxKeyLength    int
	MaxPayloadBytes int
}

func (l Limits) withDefaults() (Limits, error) {
	if l.MaxKeyLength < 0 || l.MaxPayloadBytes < 0 {
		return l, fmt.Errorf("tiercache: negative limits: key=%d payload=%d", l.MaxKeyLength, l.MaxPayloadBytes)
	}
	l.MaxKeyLength = coalesce(l.MaxKeyLength, DefaultMaxKeyLength)
	l.MaxPayloadBytes = coalesce(l.MaxPayloadBytes, DefaultMaxPayloadBytes)
	return l, nil
}

func (l Limits) checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("tiercache: empty key")
	}
	if len(key) > l.MaxKeyLength {
		return &OversizedError{Key: key, Field: "key", Size: len(key), Limit: l.MaxKeyLength}
	}
	return nil
}

func (l Limits) checkPayload(key string, n int) error {
	if n > l.MaxPayloadBytes {
		return &OversizedError{Key: key, Field: "payload", Size: n, Limit: l.MaxPayloadBytes}
	}
	return nil
}

// readable reports whether key could ever have been written under these limits.
func (l Limits) readable(key string) bool {
	return key != "" && len(key) <= l.MaxKeyLength
}
