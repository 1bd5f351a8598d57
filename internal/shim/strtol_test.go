package shim

import (
	"math"
	"testing"
)

func TestStrtol(t *testing.T) {
	tests := []struct {
		in     string
		base   int32
		want   int64
		endOff uint32 // offset of the end cursor from the start of input
	}{
		{"  -42xyz", 10, -42, 5},
		{"abc", 10, 0, 0},
		{"+123rest", 10, 123, 4},
		{"101", 2, 5, 3},
		{"zz", 36, 1295, 2},

		// Base auto-detection.
		{"0x1A", 0, 26, 4},
		{"0X2f", 0, 47, 4},
		{"077", 0, 63, 3},
		{"0", 0, 0, 1},
		{"42", 0, 42, 2},

		// "0x" with no hex digit after it consumes only the "0".
		{"0x", 16, 0, 1},
		{"0xg", 0, 0, 1},

		// Saturation at the signed 64-bit bounds.
		{"9223372036854775807", 10, math.MaxInt64, 19},
		{"9223372036854775808", 10, math.MaxInt64, 19},
		{"99999999999999999999999", 10, math.MaxInt64, 23},
		{"-9223372036854775808", 10, math.MinInt64, 20},
		{"-9223372036854775809", 10, math.MinInt64, 20},

		// Sign with no digits consumes nothing.
		{"  +", 10, 0, 0},
		{"-", 10, 0, 0},

		// Out-of-range base is a no-op parse.
		{"123", 1, 0, 0},
		{"123", 37, 0, 0},
	}

	for _, tt := range tests {
		s, mem, _ := newTestShim(t)
		nptr := cstr(t, s, tt.in)
		endPtr := s.Malloc(4)

		got := s.Strtol(nptr, endPtr, tt.base)
		if got != tt.want {
			t.Errorf("strtol(%q, base %d) = %d, want %d", tt.in, tt.base, got, tt.want)
		}
		end, err := mem.ReadU32(endPtr)
		if err != nil {
			t.Fatalf("read end cursor: %v", err)
		}
		if end != nptr+tt.endOff {
			t.Errorf("strtol(%q, base %d) end cursor at +%d, want +%d",
				tt.in, tt.base, end-nptr, tt.endOff)
		}
	}
}

func TestStrtolNullEndptr(t *testing.T) {
	s, _, _ := newTestShim(t)
	nptr := cstr(t, s, "777")
	if got := s.Strtol(nptr, 0, 10); got != 777 {
		t.Errorf("strtol with null endptr = %d, want 777", got)
	}
}

func TestStrtolViaRegistry(t *testing.T) {
	s, mem, _ := newTestShim(t)
	nptr := cstr(t, s, "-0x10")
	endPtr := s.Malloc(4)

	raw, err := s.Call("strtol", uint64(nptr), uint64(endPtr), 0)
	if err != nil {
		t.Fatalf("Call(strtol): %v", err)
	}
	if int64(raw) != -16 {
		t.Errorf("strtol(\"-0x10\", base 0) = %d, want -16", int64(raw))
	}
	end, _ := mem.ReadU32(endPtr)
	if end != nptr+5 {
		t.Errorf("end cursor at +%d, want +5", end-nptr)
	}
}
