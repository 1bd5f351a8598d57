// Package sandbox provides the linear memory region and host capabilities
// for the freestanding execution target. The guest sees a single contiguous
// byte array addressed by 32-bit offsets; all external interaction goes
// through explicitly granted host capabilities.
package sandbox

import (
	"encoding/binary"
	"fmt"
)

// PageSize is the granularity of memory growth, matching wasm32 pages.
const PageSize = 64 * 1024

// Ptr is a guest pointer: an offset into the sandbox's linear memory.
// Offset 0 plays the role of the C NULL pointer and is never handed out.
type Ptr = uint32

// Memory is the sandbox's single linear address space. It starts at a
// configured number of pages and grows on demand up to a host-configured
// ceiling. All multi-byte accessors are little-endian; the target is fixed
// little-endian with no runtime detection.
type Memory struct {
	data     []byte
	maxPages uint32
}

// NewMemory creates a linear memory with the given initial size and growth
// ceiling, both in pages.
func NewMemory(pages, maxPages uint32) (*Memory, error) {
	if pages == 0 {
		return nil, fmt.Errorf("memory: initial size must be at least one page")
	}
	if maxPages < pages {
		return nil, fmt.Errorf("memory: ceiling %d pages below initial %d", maxPages, pages)
	}
	return &Memory{
		data:     make([]byte, int(pages)*PageSize),
		maxPages: maxPages,
	}, nil
}

// Size returns the current size in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	return uint32(len(m.data)) / PageSize
}

// MaxPages returns the growth ceiling in pages.
func (m *Memory) MaxPages() uint32 {
	return m.maxPages
}

// Grow extends the memory by n pages and returns the previous page count.
// Growing past the ceiling fails without changing the region; the caller is
// expected to surface this as resource exhaustion, not terminate.
func (m *Memory) Grow(n uint32) (uint32, error) {
	old := m.Pages()
	if old+n > m.maxPages {
		return 0, fmt.Errorf("memory: grow %d pages past ceiling %d", n, m.maxPages)
	}
	m.data = append(m.data, make([]byte, int(n)*PageSize)...)
	return old, nil
}

func (m *Memory) check(addr Ptr, size uint32) error {
	end := uint64(addr) + uint64(size)
	if end > uint64(len(m.data)) {
		return fmt.Errorf("memory: access [0x%x, 0x%x) outside region of %d bytes", addr, end, len(m.data))
	}
	return nil
}

// Read returns a copy of size bytes at addr.
func (m *Memory) Read(addr Ptr, size uint32) ([]byte, error) {
	if err := m.check(addr, size); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, m.data[addr:addr+size])
	return out, nil
}

// Write copies data into memory at addr.
func (m *Memory) Write(addr Ptr, data []byte) error {
	if err := m.check(addr, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[addr:], data)
	return nil
}

// Fill sets size bytes at addr to b.
func (m *Memory) Fill(addr Ptr, b byte, size uint32) error {
	if err := m.check(addr, size); err != nil {
		return err
	}
	region := m.data[addr : addr+size]
	for i := range region {
		region[i] = b
	}
	return nil
}

// Copy moves size bytes from src to dst inside the region, handling overlap.
func (m *Memory) Copy(dst, src Ptr, size uint32) error {
	if err := m.check(dst, size); err != nil {
		return err
	}
	if err := m.check(src, size); err != nil {
		return err
	}
	copy(m.data[dst:dst+size], m.data[src:src+size])
	return nil
}

// ReadU8 reads a single byte.
func (m *Memory) ReadU8(addr Ptr) (uint8, error) {
	if err := m.check(addr, 1); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

// WriteU8 writes a single byte.
func (m *Memory) WriteU8(addr Ptr, val uint8) error {
	if err := m.check(addr, 1); err != nil {
		return err
	}
	m.data[addr] = val
	return nil
}

// ReadU16 reads a uint16 (little endian).
func (m *Memory) ReadU16(addr Ptr) (uint16, error) {
	if err := m.check(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[addr:]), nil
}

// WriteU16 writes a uint16 (little endian).
func (m *Memory) WriteU16(addr Ptr, val uint16) error {
	if err := m.check(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[addr:], val)
	return nil
}

// ReadU32 reads a uint32 (little endian).
func (m *Memory) ReadU32(addr Ptr) (uint32, error) {
	if err := m.check(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[addr:]), nil
}

// WriteU32 writes a uint32 (little endian).
func (m *Memory) WriteU32(addr Ptr, val uint32) error {
	if err := m.check(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[addr:], val)
	return nil
}

// ReadU64 reads a uint64 (little endian).
func (m *Memory) ReadU64(addr Ptr) (uint64, error) {
	if err := m.check(addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[addr:]), nil
}

// WriteU64 writes a uint64 (little endian).
func (m *Memory) WriteU64(addr Ptr, val uint64) error {
	if err := m.check(addr, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[addr:], val)
	return nil
}

// ReadString reads a null-terminated string starting at addr, scanning at
// most maxLen bytes. A string that runs off the end of memory is truncated
// at the boundary rather than faulting.
func (m *Memory) ReadString(addr Ptr, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = 4096
	}
	if err := m.check(addr, 1); err != nil {
		return "", err
	}
	end := uint64(addr) + uint64(maxLen)
	if end > uint64(len(m.data)) {
		end = uint64(len(m.data))
	}
	region := m.data[addr:end]
	for i, b := range region {
		if b == 0 {
			return string(region[:i]), nil
		}
	}
	return string(region), nil
}

// WriteString writes a null-terminated string at addr.
func (m *Memory) WriteString(addr Ptr, s string) error {
	if err := m.check(addr, uint32(len(s))+1); err != nil {
		return err
	}
	copy(m.data[addr:], s)
	m.data[addr+uint32(len(s))] = 0
	return nil
}
