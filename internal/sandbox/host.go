package sandbox

import "bytes"

// Well-known stream ids for the three standard streams. These exist at
// process start and map to host sinks; additional ids are assigned by the
// embedder through the endpoint configuration.
const (
	StreamStdin  int32 = 0
	StreamStdout int32 = 1
	StreamStderr int32 = 2
)

// Sink receives bytes written to a stream. This is the write-bytes-to-sink
// capability: a direct synchronous call across the sandbox boundary, not a
// suspending operation.
type Sink interface {
	WriteSink(stream int32, p []byte) (int, error)
}

// TimeSource is the read-current-time capability.
type TimeSource interface {
	// WallSeconds returns coarse wall-clock time in seconds since the epoch.
	WallSeconds() int64
	// Ticks returns a monotonic tick count (CLOCKS_PER_SEC ticks per second).
	Ticks() int64
}

// Host bundles the capabilities the embedding environment grants to the
// sandboxed module. Either field may be nil; the shim degrades per the C
// contract instead of failing (sink writes report an I/O error, time queries
// return the fixed epoch).
type Host struct {
	Sink Sink
	Time TimeSource
}

// BufferSink collects written bytes per stream in host memory. Used by the
// CLI harness and tests in place of a real output device.
type BufferSink struct {
	streams map[int32]*bytes.Buffer
}

// NewBufferSink creates an empty collecting sink.
func NewBufferSink() *BufferSink {
	return &BufferSink{streams: make(map[int32]*bytes.Buffer)}
}

// WriteSink appends p to the buffer for the given stream.
func (b *BufferSink) WriteSink(stream int32, p []byte) (int, error) {
	buf, ok := b.streams[stream]
	if !ok {
		buf = &bytes.Buffer{}
		b.streams[stream] = buf
	}
	return buf.Write(p)
}

// Bytes returns everything written to the given stream so far.
func (b *BufferSink) Bytes(stream int32) []byte {
	if buf, ok := b.streams[stream]; ok {
		return buf.Bytes()
	}
	return nil
}

// String returns everything written to the given stream as a string.
func (b *BufferSink) String(stream int32) string {
	return string(b.Bytes(stream))
}

// FixedTime is a TimeSource that always reports the same instant. Used for
// deterministic execution; the guest only uses timing for diagnostics, never
// for correctness.
type FixedTime struct {
	Seconds int64
	Clock   int64
}

// WallSeconds returns the fixed wall-clock value.
func (f FixedTime) WallSeconds() int64 { return f.Seconds }

// Ticks returns the fixed tick count.
func (f FixedTime) Ticks() int64 { return f.Clock }
