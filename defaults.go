package tiercache

import "time"

const (
	DefaultMaxKeyLength    = 512
	DefaultMaxPayloadBytes = 1 << 20

	defaultLocalMaxItems   = 100_000
	defaultLocalMaxBytes   = 256 << 20
	defaultGenSweep        = time.Hour
	defaultGenRetention    = 30 * 24 * time.Hour
	defaultRistrettoBuffer = 64
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
