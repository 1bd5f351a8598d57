package shim

import (
	"fmt"

	"github.com/bywater/sandlibc/internal/sandbox"
	"github.com/bywater/sandlibc/internal/trace"
)

// Stream handles are pointer-shaped but never dereferenceable: the low 16
// bits carry a table index (offset by one so a handle is never NULL) and
// the high 16 bits a generation that close bumps, so stale handles fail
// instead of touching a recycled slot.

type streamFlags uint8

const (
	sfRead streamFlags = 1 << iota
	sfWrite
	sfAppend
)

// defaultBufSize is the write buffer carved from the guest heap per stream.
const defaultBufSize = 256

type stream struct {
	sink   int32
	flags  streamFlags
	buf    Ptr
	bufCap uint32
	bufLen uint32
	gen    uint16
	open   bool
	eof    bool
	ioErr  bool
	std    bool
}

func init() {
	register(Symbol{Name: "fopen", Category: trace.Stdio, Params: 2, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(s.Fopen(Ptr(a[0]), Ptr(a[1]))), nil
		}})
	register(Symbol{Name: "fclose", Category: trace.Stdio, Params: 1, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(uint32(s.Fclose(Ptr(a[0])))), nil
		}})
	register(Symbol{Name: "fputc", Category: trace.Stdio, Params: 2, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(uint32(s.Fputc(int32(a[0]), Ptr(a[1])))), nil
		}})
	register(Symbol{Name: "fputs", Category: trace.Stdio, Params: 2, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(uint32(s.Fputs(Ptr(a[0]), Ptr(a[1])))), nil
		}})
	register(Symbol{Name: "fwrite", Category: trace.Stdio, Params: 4, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(s.Fwrite(Ptr(a[0]), uint32(a[1]), uint32(a[2]), Ptr(a[3]))), nil
		}})
	register(Symbol{Name: "fflush", Category: trace.Stdio, Params: 1, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(uint32(s.Fflush(Ptr(a[0])))), nil
		}})
	register(Symbol{Name: "feof", Category: trace.Stdio, Params: 1, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(uint32(s.Feof(Ptr(a[0])))), nil
		}})
	register(Symbol{Name: "ferror", Category: trace.Stdio, Params: 1, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(uint32(s.Ferror(Ptr(a[0])))), nil
		}})
	register(Symbol{Name: "clearerr", Category: trace.Stdio, Params: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			s.Clearerr(Ptr(a[0]))
			return 0, nil
		}})
}

// initStreams creates the three well-known handles. They live for the
// whole process and refuse to be closed by guest code.
func (s *Shim) initStreams() error {
	var err error
	if s.stdin, err = s.newStream(sandbox.StreamStdin, sfRead, 0, true); err != nil {
		return err
	}
	if s.stdout, err = s.newStream(sandbox.StreamStdout, sfWrite, defaultBufSize, true); err != nil {
		return err
	}
	if s.stderr, err = s.newStream(sandbox.StreamStderr, sfWrite, defaultBufSize, true); err != nil {
		return err
	}
	return nil
}

// Stdin returns the well-known input handle.
func (s *Shim) Stdin() Ptr { return s.stdin }

// Stdout returns the well-known output handle.
func (s *Shim) Stdout() Ptr { return s.stdout }

// Stderr returns the well-known error handle; the only stream the parser
// ever writes.
func (s *Shim) Stderr() Ptr { return s.stderr }

func makeHandle(idx int, gen uint16) Ptr {
	return Ptr(idx+1) | Ptr(gen)<<16
}

// lookup resolves a handle to its open stream, or nil for NULL, stale, and
// closed handles alike.
func (s *Shim) lookup(h Ptr) *stream {
	idx := int(h&0xFFFF) - 1
	if idx < 0 || idx >= len(s.streams) {
		return nil
	}
	st := &s.streams[idx]
	if !st.open || uint16(h>>16) != st.gen {
		return nil
	}
	return st
}

func (s *Shim) newStream(sink int32, flags streamFlags, bufSize uint32, std bool) (Ptr, error) {
	var buf Ptr
	if bufSize > 0 {
		if buf = s.Malloc(bufSize); buf == 0 {
			return 0, fmt.Errorf("stream buffer: out of memory")
		}
	}

	idx := -1
	for i := range s.streams {
		if !s.streams[i].open {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.streams = append(s.streams, stream{})
		idx = len(s.streams) - 1
	}

	st := &s.streams[idx]
	gen := st.gen
	*st = stream{
		sink:   sink,
		flags:  flags,
		buf:    buf,
		bufCap: bufSize,
		gen:    gen,
		open:   true,
		std:    std,
	}
	return makeHandle(idx, gen), nil
}

// Fopen opens one of the virtual endpoints the host configured. There is no
// filesystem, so any other path yields NULL. The mode string is parsed for
// read/write/append/binary exactly as in C, though binary vs text makes no
// difference (no newline translation happens anywhere).
func (s *Shim) Fopen(pathPtr, modePtr Ptr) Ptr {
	path, err := s.mem.ReadString(pathPtr, 4096)
	if err != nil {
		return 0
	}
	mode, err := s.mem.ReadString(modePtr, 16)
	if err != nil {
		return 0
	}

	flags, ok := parseMode(mode)
	if !ok {
		s.trace(trace.Stdio, "fopen", "bad mode "+mode)
		return 0
	}
	sink, ok := s.cfg.Endpoints[path]
	if !ok {
		s.trace(trace.Stdio, "fopen", path+" -> 0")
		return 0
	}

	var bufSize uint32
	if flags&(sfWrite|sfAppend) != 0 {
		bufSize = defaultBufSize
	}
	h, err := s.newStream(sink, flags, bufSize, false)
	if err != nil {
		return 0
	}
	s.trace(trace.Stdio, "fopen", ptrPair(path, uint64(h), "", 0))
	return h
}

// parseMode interprets a C fopen mode string. The first character selects
// read/write/append; '+' and 'b' may follow in any order.
func parseMode(mode string) (streamFlags, bool) {
	if mode == "" {
		return 0, false
	}
	var flags streamFlags
	switch mode[0] {
	case 'r':
		flags = sfRead
	case 'w':
		flags = sfWrite
	case 'a':
		flags = sfWrite | sfAppend
	default:
		return 0, false
	}
	for _, c := range mode[1:] {
		switch c {
		case '+':
			flags |= sfRead | sfWrite
		case 'b':
			// no-op: no newline translation on this target
		default:
			return 0, false
		}
	}
	return flags, true
}

// Fclose flushes buffered output, releases the stream's buffer back to the
// allocator, and invalidates the handle. Closed is terminal: a second close
// of the same handle fails without touching other live handles. The three
// well-known streams cannot be destroyed.
func (s *Shim) Fclose(h Ptr) int32 {
	st := s.lookup(h)
	if st == nil {
		s.trace(trace.Stdio, "fclose", "bad handle "+hex(uint64(h)))
		return EOF
	}
	if st.std {
		s.trace(trace.Stdio, "fclose", "refused on standard stream")
		return EOF
	}

	ret := int32(0)
	if err := s.flushStream(st); err != nil {
		ret = EOF
	}
	if st.buf != 0 {
		s.Free(st.buf)
	}
	st.open = false
	st.gen++
	st.buf = 0
	st.bufCap = 0
	st.bufLen = 0
	s.trace(trace.Stdio, "fclose", hex(uint64(h)))
	return ret
}

// writeBytes appends data to the stream's write path: buffered when the
// stream has a buffer, forwarded to the host sink as the buffer fills.
func (s *Shim) writeBytes(st *stream, data []byte) error {
	if st.flags&sfWrite == 0 {
		st.ioErr = true
		return fmt.Errorf("stream not writable")
	}
	if st.bufCap == 0 {
		return s.sinkWrite(st, data)
	}
	for len(data) > 0 {
		room := st.bufCap - st.bufLen
		if room == 0 {
			if err := s.flushStream(st); err != nil {
				return err
			}
			room = st.bufCap
		}
		n := uint32(len(data))
		if n > room {
			n = room
		}
		if err := s.mem.Write(st.buf+st.bufLen, data[:n]); err != nil {
			st.ioErr = true
			return err
		}
		st.bufLen += n
		data = data[n:]
	}
	return nil
}

func (s *Shim) sinkWrite(st *stream, data []byte) error {
	if s.host.Sink == nil {
		st.ioErr = true
		return fmt.Errorf("no sink capability")
	}
	n, err := s.host.Sink.WriteSink(st.sink, data)
	if err != nil || n < len(data) {
		st.ioErr = true
		if err == nil {
			err = fmt.Errorf("short write to sink %d", st.sink)
		}
		return err
	}
	return nil
}

func (s *Shim) flushStream(st *stream) error {
	if st.bufLen == 0 {
		return nil
	}
	data, err := s.mem.Read(st.buf, st.bufLen)
	if err != nil {
		st.ioErr = true
		return err
	}
	st.bufLen = 0
	return s.sinkWrite(st, data)
}

// Fputc appends one byte, returning it on success and EOF on failure.
func (s *Shim) Fputc(c int32, h Ptr) int32 {
	st := s.lookup(h)
	if st == nil {
		return EOF
	}
	b := byte(c)
	if err := s.writeBytes(st, []byte{b}); err != nil {
		return EOF
	}
	return int32(b)
}

// Fputs appends the C string at strPtr, returning the number of bytes
// written or EOF on failure.
func (s *Shim) Fputs(strPtr, h Ptr) int32 {
	st := s.lookup(h)
	if st == nil {
		return EOF
	}
	str, err := s.mem.ReadString(strPtr, 1<<16)
	if err != nil {
		st.ioErr = true
		return EOF
	}
	if err := s.writeBytes(st, []byte(str)); err != nil {
		return EOF
	}
	return int32(len(str))
}

// Fwrite appends nmemb items of size bytes from ptr, returning the number
// of complete items written.
func (s *Shim) Fwrite(ptr Ptr, size, nmemb uint32, h Ptr) uint32 {
	st := s.lookup(h)
	if st == nil {
		return 0
	}
	total := uint64(size) * uint64(nmemb)
	if total == 0 {
		return 0
	}
	if total > 0xFFFFFFFF {
		st.ioErr = true
		return 0
	}
	data, err := s.mem.Read(ptr, uint32(total))
	if err != nil {
		st.ioErr = true
		return 0
	}
	if err := s.writeBytes(st, data); err != nil {
		return 0
	}
	return nmemb
}

// Fflush forwards buffered output to the host sink. A NULL handle flushes
// every open stream, as in C.
func (s *Shim) Fflush(h Ptr) int32 {
	if h == 0 {
		ret := int32(0)
		for i := range s.streams {
			st := &s.streams[i]
			if st.open && st.flags&sfWrite != 0 {
				if err := s.flushStream(st); err != nil {
					ret = EOF
				}
			}
		}
		return ret
	}
	st := s.lookup(h)
	if st == nil {
		return EOF
	}
	if err := s.flushStream(st); err != nil {
		return EOF
	}
	return 0
}

// Feof reports the stream's end-of-input flag; closed or unknown handles
// report zero.
func (s *Shim) Feof(h Ptr) int32 {
	st := s.lookup(h)
	if st == nil {
		return 0
	}
	return boolToC(st.eof)
}

// Ferror reports the stream's error flag. A closed or unknown handle is
// itself an error indication.
func (s *Shim) Ferror(h Ptr) int32 {
	st := s.lookup(h)
	if st == nil {
		return 1
	}
	return boolToC(st.ioErr)
}

// Clearerr resets the error and end-of-input flags.
func (s *Shim) Clearerr(h Ptr) {
	if st := s.lookup(h); st != nil {
		st.ioErr = false
		st.eof = false
	}
}
