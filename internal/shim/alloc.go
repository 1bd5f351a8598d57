package shim

import (
	"github.com/bywater/sandlibc/internal/sandbox"
	"github.com/bywater/sandlibc/internal/trace"
)

// First-fit free-list allocator over the sandbox's linear memory. Every
// block carries an 8-byte header {payload size, state}; free blocks keep the
// address of the next free block in their first payload word. The free list
// is kept in address order so adjacent free blocks coalesce on release.
//
// The guest's allocation pattern is grow-then-bulk-free, so first-fit with
// coalescing is enough; there is no size-class machinery.

const (
	// heapBase leaves the low region unmapped-in-spirit: offset 0 is NULL
	// and must never be a valid block.
	heapBase Ptr = 0x400

	blockHeaderSize = 8
	heapAlign       = 8
	heapMinSize     = blockHeaderSize + heapAlign

	stateAllocated uint32 = 0
	stateFree      uint32 = 1
)

func init() {
	register(Symbol{Name: "malloc", Category: trace.Alloc, Params: 1, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(s.Malloc(uint32(a[0]))), nil
		}})
	register(Symbol{Name: "calloc", Category: trace.Alloc, Params: 2, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(s.Calloc(uint32(a[0]), uint32(a[1]))), nil
		}})
	register(Symbol{Name: "realloc", Category: trace.Alloc, Params: 2, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(s.Realloc(Ptr(a[0]), uint32(a[1]))), nil
		}})
	register(Symbol{Name: "free", Category: trace.Alloc, Params: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			s.Free(Ptr(a[0]))
			return 0, nil
		}})
	register(Symbol{Name: "abort", Category: trace.System,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return 0, s.Abort()
		}})
}

func align8(n uint32) uint32 {
	return (n + heapAlign - 1) &^ uint32(heapAlign-1)
}

// initHeap turns everything above heapBase into one free block.
func (s *Shim) initHeap() {
	size := s.mem.Size() - heapBase - blockHeaderSize
	s.setBlock(heapBase, size&^uint32(heapAlign-1), stateFree)
	s.setFreeNext(heapBase, 0)
	s.freeHead = heapBase
}

func (s *Shim) blockSize(h Ptr) uint32 {
	return s.u32(h)
}

func (s *Shim) setBlock(h Ptr, size, state uint32) {
	s.putU32(h, size)
	s.putU32(h+4, state)
}

func (s *Shim) freeNext(h Ptr) Ptr {
	return s.u32(h + blockHeaderSize)
}

func (s *Shim) setFreeNext(h, next Ptr) {
	s.putU32(h+blockHeaderSize, next)
}

// Malloc returns a block of at least size bytes, aligned to 8, or NULL when
// the memory cannot grow further. malloc(0) consistently returns NULL.
func (s *Shim) Malloc(size uint32) Ptr {
	if size == 0 {
		return 0
	}
	need := align8(size)

	h := s.takeFit(need)
	if h == 0 {
		if !s.growHeap(need) {
			s.trace(trace.Alloc, "malloc", ptrPair("size", uint64(size), "->", 0))
			return 0
		}
		h = s.takeFit(need)
		if h == 0 {
			return 0
		}
	}

	p := h + blockHeaderSize
	s.trace(trace.Alloc, "malloc", ptrPair("size", uint64(size), "->", uint64(p)))
	return p
}

// takeFit removes the first free block that can hold need payload bytes,
// splitting off the tail when the remainder can stand as its own block.
func (s *Shim) takeFit(need uint32) Ptr {
	var prev Ptr
	for cur := s.freeHead; cur != 0; cur = s.freeNext(cur) {
		bsize := s.blockSize(cur)
		if bsize < need {
			prev = cur
			continue
		}

		next := s.freeNext(cur)
		if bsize >= need+blockHeaderSize+heapAlign {
			// Split: the remainder sits after the allocated part and
			// inherits cur's position in the address-ordered list.
			rem := cur + blockHeaderSize + need
			s.setBlock(rem, bsize-need-blockHeaderSize, stateFree)
			s.setFreeNext(rem, next)
			next = rem
			bsize = need
		}
		if prev == 0 {
			s.freeHead = next
		} else {
			s.setFreeNext(prev, next)
		}
		s.setBlock(cur, bsize, stateAllocated)
		return cur
	}
	return 0
}

// growHeap extends linear memory enough to carve a free block of at least
// need payload bytes, coalescing the new space with a trailing free block.
func (s *Shim) growHeap(need uint32) bool {
	old := s.mem.Size()

	// A free block ending at the current memory end merges with the new
	// space, so only the shortfall costs pages. The list is address-ordered;
	// only its last block can touch the end. Its payload is below need, or
	// takeFit would have used it.
	var tail Ptr
	for cur := s.freeHead; cur != 0; cur = s.freeNext(cur) {
		tail = cur
	}
	bytes := uint64(need) + blockHeaderSize
	if tail != 0 && tail+blockHeaderSize+s.blockSize(tail) == old {
		bytes = uint64(need) - uint64(s.blockSize(tail))
	}

	pages := uint32((bytes + sandbox.PageSize - 1) / sandbox.PageSize)
	if _, err := s.mem.Grow(pages); err != nil {
		return false
	}
	s.setBlock(old, s.mem.Size()-old-blockHeaderSize, stateFree)
	s.insertFree(old)
	return true
}

// insertFree links a free block into the address-ordered list and coalesces
// it with adjacent free neighbors.
func (s *Shim) insertFree(h Ptr) {
	var prev Ptr
	cur := s.freeHead
	for cur != 0 && cur < h {
		prev = cur
		cur = s.freeNext(cur)
	}

	// Merge forward into h.
	if cur != 0 && h+blockHeaderSize+s.blockSize(h) == cur {
		s.setBlock(h, s.blockSize(h)+blockHeaderSize+s.blockSize(cur), stateFree)
		cur = s.freeNext(cur)
	}
	s.setFreeNext(h, cur)

	// Merge h backward into prev.
	if prev != 0 && prev+blockHeaderSize+s.blockSize(prev) == h {
		s.setBlock(prev, s.blockSize(prev)+blockHeaderSize+s.blockSize(h), stateFree)
		s.setFreeNext(prev, cur)
		return
	}
	if prev == 0 {
		s.freeHead = h
	} else {
		s.setFreeNext(prev, h)
	}
}

// Calloc allocates count*size zeroed bytes, failing without allocating when
// the multiplication overflows the 32-bit size type.
func (s *Shim) Calloc(count, size uint32) Ptr {
	total := uint64(count) * uint64(size)
	if total > 0xFFFFFFFF {
		s.trace(trace.Alloc, "calloc", "overflow -> 0")
		return 0
	}
	p := s.Malloc(uint32(total))
	if p != 0 {
		_ = s.mem.Fill(p, 0, align8(uint32(total)))
	}
	s.trace(trace.Alloc, "calloc", ptrPair("total", total, "->", uint64(p)))
	return p
}

// Realloc resizes a block, preserving the lesser of old and new contents.
// On failure it returns NULL and leaves the original block valid and
// unchanged; guest code relies on that exact contract.
func (s *Shim) Realloc(p Ptr, size uint32) Ptr {
	if p == 0 {
		return s.Malloc(size)
	}
	if size == 0 {
		s.Free(p)
		return 0
	}

	h := p - blockHeaderSize
	oldSize := s.blockSize(h)
	need := align8(size)

	if need <= oldSize {
		// Shrink in place, returning the tail to the free list when it
		// can stand as its own block.
		if oldSize-need >= blockHeaderSize+heapAlign {
			tail := h + blockHeaderSize + need
			s.setBlock(tail, oldSize-need-blockHeaderSize, stateFree)
			s.setBlock(h, need, stateAllocated)
			s.insertFree(tail)
		}
		s.trace(trace.Alloc, "realloc", ptrPair("size", uint64(size), "->", uint64(p)))
		return p
	}

	np := s.Malloc(size)
	if np == 0 {
		s.trace(trace.Alloc, "realloc", ptrPair("size", uint64(size), "->", 0))
		return 0
	}
	_ = s.mem.Copy(np, p, oldSize)
	s.Free(p)
	s.trace(trace.Alloc, "realloc", ptrPair("size", uint64(size), "->", uint64(np)))
	return np
}

// Free releases a block. free(NULL) is a no-op. Releasing a pointer not
// obtained from this allocator, or releasing twice, is undefined and not
// detected, matching the real contract.
func (s *Shim) Free(p Ptr) {
	if p == 0 {
		return
	}
	h := p - blockHeaderSize
	s.setBlock(h, s.blockSize(h), stateFree)
	s.insertFree(h)
	s.trace(trace.Alloc, "free", ptrPair("ptr", uint64(p), "", 0))
}

// Abort terminates the guest unconditionally. It never returns a C value;
// the raw entry surfaces ErrAbort, which the embedder turns into a trap.
func (s *Shim) Abort() error {
	s.trace(trace.System, "abort", "trap")
	return ErrAbort
}
