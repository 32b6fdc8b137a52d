package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/zeebo/xxh3"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// CloneBytes returns a copy of b that does not alias engine owned memory.
// A nil input stays nil.
func CloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// CopyValue returns a copy of b that is never nil, so a stored empty value stays
// distinguishable from a missing one.
func CopyValue(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// --------------------------------------------------------------------------
// Key ranges
// --------------------------------------------------------------------------

// PrefixEnd returns the smallest key that is greater than every key starting with prefix,
// i.e. the exclusive upper bound of a prefix scan. It returns nil if no such key
// exists (empty prefix or a prefix consisting only of 0xff bytes), meaning "unbounded".
func PrefixEnd(prefix []byte) []byte {
	end := CloneBytes(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is a key type based on uint64 for internal hash representation
type UintKey uint64

// HashString hashes s with the given seed (XXH3, 64 bit).
func HashString(s string, seed uint64) UintKey {
	return UintKey(xxh3.HashStringSeed(s, seed))
}

// HashBytes hashes b with the given seed (XXH3, 64 bit).
func HashBytes(b []byte, seed uint64) UintKey {
	return UintKey(xxh3.HashSeed(b, seed))
}
