package cache

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Key is a 64-bit content hash.
type Key uint64

func (k Key) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}

// Hasher accumulates typed content into a Key. Every write is length or type delimited so
// that different inputs of the same bytes produce different keys.
type Hasher struct {
	digest *xxhash.Digest
	buf    [8]byte
}

// NewHasher starts a key in the given namespace.
func NewHasher(namespace string) *Hasher {
	h := &Hasher{digest: xxhash.New()}
	return h.String(namespace)
}

// String adds a length-prefixed string.
func (h *Hasher) String(s string) *Hasher {
	h.uint(uint64(len(s)))
	_, _ = h.digest.WriteString(s)
	return h
}

// Ints adds a length-prefixed sequence of ints.
func (h *Hasher) Ints(values ...int) *Hasher {
	h.uint(uint64(len(values)))
	for _, v := range values {
		h.uint(uint64(v))
	}
	return h
}

// Floats adds a length-prefixed sequence of floats by their IEEE 754 bits.
func (h *Hasher) Floats(values ...float64) *Hasher {
	h.uint(uint64(len(values)))
	for _, v := range values {
		h.uint(math.Float64bits(v))
	}
	return h
}

// Sum returns the key for everything written so far.
func (h *Hasher) Sum() Key {
	return Key(h.digest.Sum64())
}

func (h *Hasher) uint(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.digest.Write(h.buf[:])
}

// IntsKey is shorthand for NewHasher(namespace).Ints(values...).Sum().
func IntsKey(namespace string, values ...int) Key {
	return NewHasher(namespace).Ints(values...).Sum()
}
