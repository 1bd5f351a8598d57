package shim

import (
	"math"

	"github.com/bywater/sandlibc/internal/trace"
)

func init() {
	register(Symbol{Name: "strtol", Category: trace.Strtol, Params: 3, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(s.Strtol(Ptr(a[0]), Ptr(a[1]), int32(a[2]))), nil
		}})
}

// Strtol parses a long from the C string at nptr: optional whitespace, an
// optional sign, an optional base prefix (base 0 auto-detects 0x/0), then a
// maximal digit run. long is 64-bit on this target; overflow saturates to
// the signed 64-bit range. When endptr is non-null the address of the first
// unconsumed character is stored through it; if no digits are consumed that
// address equals nptr and the result is zero. Mismatched input is not an
// error, it simply yields zero with the cursor unmoved.
func (s *Shim) Strtol(nptr, endptr Ptr, base int32) int64 {
	writeEnd := func(p Ptr) {
		if endptr != 0 {
			s.putU32(endptr, p)
		}
	}

	if base != 0 && (base < 2 || base > 36) {
		writeEnd(nptr)
		return 0
	}

	cur := nptr
	for IsSpace(int32(s.memByte(cur))) != 0 {
		cur++
	}

	neg := false
	switch s.memByte(cur) {
	case '-':
		neg = true
		cur++
	case '+':
		cur++
	}

	if base == 0 {
		if s.memByte(cur) == '0' {
			if c := s.memByte(cur + 1); c == 'x' || c == 'X' {
				base = 16
			} else {
				base = 8
			}
		} else {
			base = 10
		}
	}
	if base == 16 && s.memByte(cur) == '0' {
		if c := s.memByte(cur + 1); c == 'x' || c == 'X' {
			// Tentative: "0x" with no hex digit after it consumes only "0".
			if digitValue(s.memByte(cur+2)) < 16 {
				cur += 2
			}
		}
	}

	// cutoff/cutlim method: accumulate as negative magnitude is not needed
	// here since we saturate rather than report errno.
	var (
		acc      uint64
		any      bool
		overflow bool
	)
	cutoff := uint64(math.MaxInt64)
	if neg {
		cutoff = uint64(math.MaxInt64) + 1
	}
	lastDigit := nptr

	for {
		d := digitValue(s.memByte(cur))
		if d >= uint32(base) {
			break
		}
		if !overflow {
			if acc > (cutoff-uint64(d))/uint64(base) {
				overflow = true
			} else {
				acc = acc*uint64(base) + uint64(d)
			}
		}
		any = true
		cur++
		lastDigit = cur
	}

	if !any {
		writeEnd(nptr)
		s.trace(trace.Strtol, "strtol", "no digits")
		return 0
	}
	writeEnd(lastDigit)

	var result int64
	switch {
	case overflow && neg:
		result = math.MinInt64
	case overflow:
		result = math.MaxInt64
	case neg && acc == uint64(math.MaxInt64)+1:
		result = math.MinInt64
	case neg:
		result = -int64(acc)
	default:
		result = int64(acc)
	}
	s.trace(trace.Strtol, "strtol", ptrPair("nptr", uint64(nptr), "base", uint64(base)))
	return result
}

// digitValue maps a byte to its numeric value in bases up to 36, or 255 for
// non-digits.
func digitValue(c byte) uint32 {
	switch {
	case c >= '0' && c <= '9':
		return uint32(c - '0')
	case c >= 'a' && c <= 'z':
		return uint32(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return uint32(c-'A') + 10
	default:
		return 255
	}
}
