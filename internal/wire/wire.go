// Package wire frames cache entries stored by byte providers.
//
// Entry layout (big endian):
//
//	magic(4) | ver(1) | kind(1) | gen(u64) | created(i64 unix nano) | expires(i64 unix nano, 0 = never) | vlen(u32) | payload(vlen)
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version   byte = 1
	kindEntry byte = 1

	headerLen = 4 + 1 + 1 + 8 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("tiercache: corrupt entry")
	magic4     = [...]byte{'T', 'C', 'H', 'E'}
)

// Entry is a decoded cache entry. Payload aliases the input passed to DecodeEntry.
type Entry struct {
	Gen       uint64
	CreatedAt time.Time
	ExpiresAt time.Time // zero => no expiry
	Payload   []byte
}

// Expired reports whether the entry is expired at now. Entries are expired at their
// expiry instant, not after it.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Remaining returns the time left before expiry, or 0 for entries that never expire.
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

// Overhead is the number of framing bytes added to every payload.
const Overhead = headerLen

func EncodeEntry(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], e.Gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(unixNano(e.CreatedAt)))
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(unixNano(e.ExpiresAt)))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < headerLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}
	off := 6

	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	created := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	expires := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4

	// exact length; trailing bytes are corruption too
	if vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}
	return Entry{
		Gen:       gen,
		CreatedAt: fromUnixNano(created),
		ExpiresAt: fromUnixNano(expires),
		Payload:   b[off:],
	}, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
