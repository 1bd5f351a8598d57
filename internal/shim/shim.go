// Package shim implements the subset of the C standard library that the
// sandboxed parser's generated code references: memory allocation, character
// classification, numeric parsing, formatted output, a FILE-shaped stream
// abstraction, byte-order conversion, and coarse time queries.
//
// Everything is backed by the sandbox's linear memory and the host
// capabilities; no function ever crosses the sandbox boundary except through
// those. Failure is always communicated through C return conventions (NULL,
// EOF, negative counts), never through panics.
package shim

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	glog "github.com/bywater/sandlibc/internal/log"
	"github.com/bywater/sandlibc/internal/sandbox"
	"github.com/bywater/sandlibc/internal/trace"
)

// Ptr is a guest pointer into the sandbox's linear memory.
type Ptr = sandbox.Ptr

// EOF is the C end-of-file / stream error sentinel.
const EOF int32 = -1

// ErrAbort is returned through Call when the guest invokes abort(). The
// embedder treats it as an unconditional trap; it never surfaces as a C
// return value.
var ErrAbort = errors.New("shim: abort")

// Debug enables verbose call tracing through the global logger.
var Debug = false

// Shim is the process-scoped shim context: it owns the allocator state and
// the stream handle table for one sandbox instance. It is constructed once
// at instantiation and torn down with the sandbox; the execution model is
// strictly single-threaded, so no locking discipline applies to any of this
// state.
type Shim struct {
	mem  *sandbox.Memory
	host sandbox.Host
	cfg  sandbox.Config
	id   uuid.UUID

	// Allocator state: address-ordered free list over linear memory.
	freeHead Ptr

	// Stream handle table. Indices are stable; generations invalidate
	// stale handles after close.
	streams []stream
	stdin   Ptr
	stdout  Ptr
	stderr  Ptr

	// OnCall, when set, receives every shim call for trace collection.
	OnCall func(category, symbol, detail string)
}

// New creates a shim over the given memory and host capabilities.
// The three standard stream handles exist from this point on.
func New(mem *sandbox.Memory, host sandbox.Host, cfg sandbox.Config) (*Shim, error) {
	if mem == nil {
		return nil, fmt.Errorf("shim: nil memory")
	}
	if mem.Size() < heapBase+heapMinSize {
		return nil, fmt.Errorf("shim: memory of %d bytes too small for heap", mem.Size())
	}
	s := &Shim{
		mem:  mem,
		host: host,
		cfg:  cfg,
		id:   uuid.New(),
	}
	s.initHeap()
	if err := s.initStreams(); err != nil {
		return nil, err
	}
	if Debug && glog.L != nil {
		glog.L.Info("shim ready",
			zap.String("session", s.id.String()),
			zap.Uint32("pages", mem.Pages()),
			zap.Uint32("max_pages", mem.MaxPages()),
		)
	}
	return s, nil
}

// Session returns the instance id carried in logs and trace events.
func (s *Shim) Session() uuid.UUID {
	return s.id
}

// Memory returns the underlying linear memory, for embedders that need to
// stage guest data before calling in.
func (s *Shim) Memory() *sandbox.Memory {
	return s.mem
}

// trace reports a shim call to the OnCall callback and, in debug mode, to
// the structured logger.
func (s *Shim) trace(category trace.Tag, symbol, detail string) {
	if s.OnCall != nil {
		s.OnCall(string(category), symbol, detail)
	}
	if Debug && glog.L != nil {
		glog.L.Trace(string(category), symbol, detail)
	}
}

// Unexported accessors for shim-owned regions of linear memory. Addresses
// are produced by the allocator and stream table, which stay in bounds, so
// failures here indicate internal corruption and degrade to zero values.

func (s *Shim) u32(addr Ptr) uint32 {
	v, _ := s.mem.ReadU32(addr)
	return v
}

func (s *Shim) putU32(addr Ptr, v uint32) {
	_ = s.mem.WriteU32(addr, v)
}

// memByte reads one guest byte; out-of-bounds reads behave as a NUL
// terminator so that string scans degrade instead of faulting.
func (s *Shim) memByte(addr Ptr) byte {
	b, err := s.mem.ReadU8(addr)
	if err != nil {
		return 0
	}
	return b
}

func hex(v uint64) string {
	if v == 0 {
		return "0"
	}
	return fmt.Sprintf("0x%x", v)
}

func ptrPair(name string, val uint64, name2 string, val2 uint64) string {
	if name2 == "" {
		return name + "=" + hex(val)
	}
	return name + "=" + hex(val) + " " + name2 + "=" + hex(val2)
}
