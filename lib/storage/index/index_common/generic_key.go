package index_common

import (
	"bytes"
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// KeySize is the fixed width of an index key in bytes.
const KeySize = 8

// GenericKey is the fixed size key stored in B+-tree pages. How the bytes are
// ordered is up to the comparator the index was created with.
type GenericKey [KeySize]byte

// Serialize casts it to []byte
func (k GenericKey) Serialize() []byte {
	ret := make([]byte, KeySize)
	copy(ret, k[:])
	return ret
}

// NewGenericKeyFromBytes creates a key from the first KeySize bytes of data
func NewGenericKeyFromBytes(data []byte) (ret GenericKey) {
	copy(ret[:], data[:KeySize])
	return ret
}

// NewIntegerKey packs a signed integer into a key. Pair with
// IntegerKeyComparator.
func NewIntegerKey(val int64) (ret GenericKey) {
	binary.LittleEndian.PutUint64(ret[:], uint64(val))
	return ret
}

// ToInteger unpacks a key created by NewIntegerKey
func (k GenericKey) ToInteger() int64 {
	return int64(binary.LittleEndian.Uint64(k[:]))
}

// NewVarcharKey digests an arbitrary length string into a fixed size key.
// Pair with BytesKeyComparator. Distinct strings may collide, which is
// acceptable for the unique-key index because the caller treats a collision
// as a duplicate insert.
func NewVarcharKey(val string) (ret GenericKey) {
	h := murmur3.New64()
	h.Write([]byte(val))
	binary.BigEndian.PutUint64(ret[:], h.Sum64())
	return ret
}

// KeyComparator imposes a total order over keys. Negative when lhs sorts
// before rhs, zero on equality.
type KeyComparator func(lhs GenericKey, rhs GenericKey) int

// IntegerKeyComparator orders keys created by NewIntegerKey
func IntegerKeyComparator(lhs GenericKey, rhs GenericKey) int {
	l := lhs.ToInteger()
	r := rhs.ToInteger()
	if l < r {
		return -1
	}
	if l > r {
		return 1
	}
	return 0
}

// BytesKeyComparator orders keys by their raw bytes
func BytesKeyComparator(lhs GenericKey, rhs GenericKey) int {
	return bytes.Compare(lhs[:], rhs[:])
}
