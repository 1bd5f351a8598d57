package shim

import (
	"strconv"
	"strings"

	"github.com/bywater/sandlibc/internal/trace"
)

// One formatting engine backs fprintf, snprintf, and vsnprintf. The
// caller-facing Go entry points take a tagged-variant argument list; the
// raw C entry points decode a wasm32 va_list block out of linear memory.
// Either way the engine consumes arguments left to right as the format
// string demands and never looks at one it does not need.

// ArgKind tags a formatting argument variant.
type ArgKind uint8

// Argument variants consumed by the conversion specifiers.
const (
	ArgInt  ArgKind = iota // signed integer (%d %i %c)
	ArgUint                // unsigned integer (%u %x %X)
	ArgPtr                 // guest pointer (%s)
)

// Arg is one tagged formatting argument.
type Arg struct {
	Kind ArgKind
	Int  int64
	Ptr  Ptr
}

// Int builds a signed integer argument.
func Int(v int64) Arg { return Arg{Kind: ArgInt, Int: v} }

// Uint builds an unsigned integer argument.
func Uint(v uint64) Arg { return Arg{Kind: ArgUint, Int: int64(v)} }

// Char builds a character argument.
func Char(c byte) Arg { return Arg{Kind: ArgInt, Int: int64(c)} }

// Str builds a C-string argument from a guest pointer.
func Str(p Ptr) Arg { return Arg{Kind: ArgPtr, Ptr: p} }

func init() {
	// The raw variadic signatures are the wasm32 lowering: the ... tail
	// arrives as a pointer to an argument block, so fprintf and vsnprintf
	// coincide and snprintf is vsnprintf by another name.
	register(Symbol{Name: "fprintf", Category: trace.Printf, Params: 3, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(uint32(s.VFprintf(Ptr(a[0]), Ptr(a[1]), Ptr(a[2])))), nil
		}})
	register(Symbol{Name: "snprintf", Category: trace.Printf, Params: 4, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(uint32(s.VSnprintf(Ptr(a[0]), uint32(a[1]), Ptr(a[2]), Ptr(a[3])))), nil
		}})
	register(Symbol{Name: "vsnprintf", Category: trace.Printf, Params: 4, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(uint32(s.VSnprintf(Ptr(a[0]), uint32(a[1]), Ptr(a[2]), Ptr(a[3])))), nil
		}})
}

// argReader yields formatting arguments; width is the C integer width in
// bytes (4 or 8) after default promotion.
type argReader interface {
	readInt(width int) int64
	readUint(width int) uint64
	readPtr() Ptr
}

// sliceArgs reads from a host-built tagged argument list. Running past the
// end yields zero values; C leaves this undefined, zero keeps the engine
// total exact.
type sliceArgs struct {
	args []Arg
	i    int
}

func (r *sliceArgs) next() Arg {
	if r.i >= len(r.args) {
		return Arg{}
	}
	a := r.args[r.i]
	r.i++
	return a
}

func (r *sliceArgs) readInt(width int) int64 {
	v := r.next().Int
	if width == 4 {
		return int64(int32(v))
	}
	return v
}

func (r *sliceArgs) readUint(width int) uint64 {
	v := uint64(r.next().Int)
	if width == 4 {
		return uint64(uint32(v))
	}
	return v
}

func (r *sliceArgs) readPtr() Ptr { return r.next().Ptr }

// vaArgs decodes a wasm32 va_list: 32-bit values in 4-byte slots, 64-bit
// values aligned to and occupying 8-byte slots.
type vaArgs struct {
	s  *Shim
	ap Ptr
}

func (r *vaArgs) readInt(width int) int64 {
	if width == 4 {
		v := int32(r.s.u32(r.ap))
		r.ap += 4
		return int64(v)
	}
	r.ap = Ptr(align8(r.ap))
	v, _ := r.s.mem.ReadU64(r.ap)
	r.ap += 8
	return int64(v)
}

func (r *vaArgs) readUint(width int) uint64 {
	if width == 4 {
		v := r.s.u32(r.ap)
		r.ap += 4
		return uint64(v)
	}
	r.ap = Ptr(align8(r.ap))
	v, _ := r.s.mem.ReadU64(r.ap)
	r.ap += 8
	return v
}

func (r *vaArgs) readPtr() Ptr {
	v := r.s.u32(r.ap)
	r.ap += 4
	return v
}

// formatSink receives rendered bytes. The engine counts the untruncated
// total itself; sinks are free to stop storing.
type formatSink interface {
	writeByte(b byte)
}

// bufSink renders into a guest buffer of fixed capacity, leaving room for
// the terminator.
type bufSink struct {
	s   *Shim
	buf Ptr
	cap uint32
	n   uint32
}

func (w *bufSink) writeByte(b byte) {
	if w.cap > 0 && w.n < w.cap-1 {
		_ = w.s.mem.WriteU8(w.buf+w.n, b)
		w.n++
	}
}

// streamSink renders into a stream's write path.
type streamSink struct {
	s      *Shim
	st     *stream
	failed bool
}

func (w *streamSink) writeByte(b byte) {
	if w.failed {
		return
	}
	if err := w.s.writeBytes(w.st, []byte{b}); err != nil {
		w.failed = true
	}
}

// format runs the conversion loop and returns the number of bytes the full
// rendering takes, independent of sink truncation. Unsupported specifiers
// are copied through literally rather than failing; forward progress beats
// precision on an unanticipated format string.
func (s *Shim) format(out formatSink, format Ptr, args argReader) int {
	total := 0
	emit := func(b byte) {
		out.writeByte(b)
		total++
	}
	emitString := func(str string) {
		for i := 0; i < len(str); i++ {
			emit(str[i])
		}
	}
	// pad applies field width and flags around a rendered body.
	pad := func(body string, width int, zero, left bool) {
		gap := width - len(body)
		if gap <= 0 {
			emitString(body)
			return
		}
		fill := byte(' ')
		if zero && !left {
			fill = '0'
			// Zero padding goes between sign and digits.
			if len(body) > 0 && (body[0] == '-' || body[0] == '+') {
				emit(body[0])
				body = body[1:]
			}
		}
		if left {
			emitString(body)
			for i := 0; i < gap; i++ {
				emit(' ')
			}
			return
		}
		for i := 0; i < gap; i++ {
			emit(fill)
		}
		emitString(body)
	}

	pos := format
	for {
		c := s.memByte(pos)
		if c == 0 {
			break
		}
		if c != '%' {
			emit(c)
			pos++
			continue
		}

		// Parse one conversion specification, remembering its raw extent
		// for literal pass-through of anything unsupported.
		specStart := pos
		pos++

		var (
			left, zero bool
			width      int
			intWidth   = 4
			narrow     = 0 // 1 = h, 2 = hh
			bad        bool
		)
	flagLoop:
		for {
			switch s.memByte(pos) {
			case '-':
				left = true
				pos++
			case '0':
				zero = true
				pos++
			default:
				break flagLoop
			}
		}
		for {
			d := s.memByte(pos)
			if d < '0' || d > '9' {
				break
			}
			width = width*10 + int(d-'0')
			pos++
		}
		switch s.memByte(pos) {
		case 'h':
			pos++
			narrow = 1
			if s.memByte(pos) == 'h' {
				pos++
				narrow = 2
			}
		case 'l':
			pos++
			intWidth = 8
			if s.memByte(pos) == 'l' {
				pos++
			}
		case 'z':
			pos++
		}

		conv := s.memByte(pos)
		pos++

		var body string
		switch conv {
		case 'd', 'i':
			v := args.readInt(intWidth)
			switch narrow {
			case 1:
				v = int64(int16(v))
			case 2:
				v = int64(int8(v))
			}
			body = strconv.FormatInt(v, 10)
		case 'u':
			v := args.readUint(intWidth)
			switch narrow {
			case 1:
				v = uint64(uint16(v))
			case 2:
				v = uint64(uint8(v))
			}
			body = strconv.FormatUint(v, 10)
		case 'x', 'X':
			v := args.readUint(intWidth)
			switch narrow {
			case 1:
				v = uint64(uint16(v))
			case 2:
				v = uint64(uint8(v))
			}
			body = strconv.FormatUint(v, 16)
			if conv == 'X' {
				body = strings.ToUpper(body)
			}
		case 's':
			p := args.readPtr()
			if p == 0 {
				body = "(null)"
			} else {
				body, _ = s.mem.ReadString(p, 1<<16)
			}
			zero = false
		case 'c':
			body = string([]byte{byte(args.readInt(4))})
			zero = false
		case '%':
			body = "%"
			zero = false
			width = 0
		case 0:
			// Format string ended inside a specification; emit it as-is.
			pos--
			bad = true
		default:
			bad = true
		}

		if bad {
			for q := specStart; q < pos; q++ {
				emit(s.memByte(q))
			}
			continue
		}
		pad(body, width, zero, left)
	}
	return total
}

// Snprintf renders into the guest buffer at buf, truncating at size-1 bytes
// and always terminating within capacity. The return value is the length
// the full rendering takes, so a caller can size a second buffer exactly.
func (s *Shim) Snprintf(buf Ptr, size uint32, format Ptr, args ...Arg) int32 {
	return s.snprintf(buf, size, format, &sliceArgs{args: args})
}

// VSnprintf is Snprintf over a wasm32 va_list in linear memory.
func (s *Shim) VSnprintf(buf Ptr, size uint32, format Ptr, ap Ptr) int32 {
	return s.snprintf(buf, size, format, &vaArgs{s: s, ap: ap})
}

func (s *Shim) snprintf(buf Ptr, size uint32, format Ptr, args argReader) int32 {
	sink := &bufSink{s: s, buf: buf, cap: size}
	total := s.format(sink, format, args)
	if size > 0 {
		_ = s.mem.WriteU8(buf+sink.n, 0)
	}
	s.trace(trace.Printf, "snprintf", ptrPair("buf", uint64(buf), "len", uint64(total)))
	return int32(total)
}

// Fprintf renders to a stream and returns the byte count, or EOF when the
// handle is closed or the sink rejects output.
func (s *Shim) Fprintf(h Ptr, format Ptr, args ...Arg) int32 {
	return s.fprintf(h, format, &sliceArgs{args: args})
}

// VFprintf is Fprintf over a wasm32 va_list in linear memory.
func (s *Shim) VFprintf(h Ptr, format Ptr, ap Ptr) int32 {
	return s.fprintf(h, format, &vaArgs{s: s, ap: ap})
}

func (s *Shim) fprintf(h Ptr, format Ptr, args argReader) int32 {
	st := s.lookup(h)
	if st == nil {
		return EOF
	}
	sink := &streamSink{s: s, st: st}
	total := s.format(sink, format, args)
	if sink.failed {
		return EOF
	}
	s.trace(trace.Printf, "fprintf", ptrPair("stream", uint64(h), "len", uint64(total)))
	return int32(total)
}
