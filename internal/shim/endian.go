package shim

import "math/bits"

// Byte-order conversion for the fixed little-endian target. These are
// compile-time macros in the C header, so they have no entries in the
// export table; the Go forms exist for the embedder and for the harness.
// The "le" direction is always the identity and the "be"/network direction
// always fully reverses byte order.

// Htobe16 converts host (little-endian) order to big-endian.
func Htobe16(x uint16) uint16 { return bits.ReverseBytes16(x) }

// Htole16 is the identity on this target.
func Htole16(x uint16) uint16 { return x }

// Be16toh converts big-endian to host order.
func Be16toh(x uint16) uint16 { return bits.ReverseBytes16(x) }

// Le16toh is the identity on this target.
func Le16toh(x uint16) uint16 { return x }

// Htobe32 converts host order to big-endian.
func Htobe32(x uint32) uint32 { return bits.ReverseBytes32(x) }

// Htole32 is the identity on this target.
func Htole32(x uint32) uint32 { return x }

// Be32toh converts big-endian to host order.
func Be32toh(x uint32) uint32 { return bits.ReverseBytes32(x) }

// Le32toh is the identity on this target.
func Le32toh(x uint32) uint32 { return x }

// Htobe64 converts host order to big-endian.
func Htobe64(x uint64) uint64 { return bits.ReverseBytes64(x) }

// Htole64 is the identity on this target.
func Htole64(x uint64) uint64 { return x }

// Be64toh converts big-endian to host order.
func Be64toh(x uint64) uint64 { return bits.ReverseBytes64(x) }

// Le64toh is the identity on this target.
func Le64toh(x uint64) uint64 { return x }
