// Package entropy provides crypto-seeded randomness for the simulation's
// math/rand sources.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
	"time"
)

// Seed returns a random int64 from crypto/rand. Falls back to the clock if the
// system source fails.
func Seed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Warn("crypto/rand unavailable, seeding from clock", "error", err)
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}

// NewRand returns a math/rand source seeded from Seed. The result is not safe
// for concurrent use.
func NewRand() *mrand.Rand {
	return mrand.New(mrand.NewSource(Seed()))
}
