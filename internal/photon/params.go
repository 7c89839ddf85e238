package photon

import (
	"encoding/binary"
	"sort"
	"unicode/utf8"
)

// Parameters maps a parameter key to its raw value. Values are owned copies.
type Parameters map[uint8][]byte

// Int reads the first four bytes at key as a little-endian int32.
// A present value shorter than four bytes decodes as 0.
func (p Parameters) Int(key uint8) (int32, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	if len(v) < 4 {
		return 0, true
	}
	return int32(binary.LittleEndian.Uint32(v[:4])), true
}

// String returns the value at key when it is valid UTF-8.
func (p Parameters) String(key uint8) (string, bool) {
	v, ok := p[key]
	if !ok || !utf8.Valid(v) {
		return "", false
	}
	return string(v), true
}

// Bytes returns the raw value at key.
func (p Parameters) Bytes(key uint8) ([]byte, bool) {
	v, ok := p[key]
	return v, ok
}

// Keys returns the parameter keys in ascending order.
func (p Parameters) Keys() []uint8 {
	keys := make([]uint8, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
