package shim

import (
	"bytes"
	"testing"

	"github.com/bywater/sandlibc/internal/sandbox"
)

func TestStandardStreamsRefuseClose(t *testing.T) {
	s, _, sink := newTestShim(t)

	for _, h := range []Ptr{s.Stdin(), s.Stdout(), s.Stderr()} {
		if h == 0 {
			t.Fatal("standard stream handle is NULL")
		}
		if ret := s.Fclose(h); ret != EOF {
			t.Errorf("fclose on standard stream = %d, want EOF", ret)
		}
	}

	// Still alive after the refused close.
	if ret := s.Fputc('!', s.Stderr()); ret != '!' {
		t.Fatalf("fputc after refused close = %d", ret)
	}
	s.Fflush(0)
	if got := sink.String(sandbox.StreamStderr); got != "!" {
		t.Errorf("stderr sink = %q, want %q", got, "!")
	}
}

func TestFopenUnknownPathAndBadMode(t *testing.T) {
	s, _, _ := newTestShim(t)

	path := cstr(t, s, "/etc/passwd")
	mode := cstr(t, s, "r")
	if h := s.Fopen(path, mode); h != 0 {
		t.Errorf("fopen of unknown path = %#x, want NULL", h)
	}

	path = cstr(t, s, "/dev/stderr")
	mode = cstr(t, s, "x")
	if h := s.Fopen(path, mode); h != 0 {
		t.Errorf("fopen with bad mode = %#x, want NULL", h)
	}
}

func TestStreamLifecycle(t *testing.T) {
	s, _, sink := newTestShim(t)

	path := cstr(t, s, "/dev/stderr")
	mode := cstr(t, s, "w")
	h := s.Fopen(path, mode)
	if h == 0 {
		t.Fatal("fopen of configured endpoint failed")
	}

	msg := cstr(t, s, "hello")
	if n := s.Fputs(msg, h); n != 5 {
		t.Fatalf("fputs = %d, want 5", n)
	}
	// Output is buffered until an explicit flush.
	if got := sink.String(sandbox.StreamStderr); got != "" {
		t.Errorf("sink received %q before flush", got)
	}
	if ret := s.Fflush(h); ret != 0 {
		t.Fatalf("fflush = %d", ret)
	}
	if got := sink.String(sandbox.StreamStderr); got != "hello" {
		t.Errorf("sink = %q after flush, want %q", got, "hello")
	}

	if ret := s.Fclose(h); ret != 0 {
		t.Fatalf("first fclose = %d, want 0", ret)
	}
	if ret := s.Fclose(h); ret != EOF {
		t.Errorf("second fclose = %d, want EOF", ret)
	}
	if s.Ferror(h) != 1 {
		t.Error("closed handle should report an error indication")
	}

	// The standard stream is untouched by the close.
	if ret := s.Fputc('x', s.Stderr()); ret != 'x' {
		t.Errorf("stderr broken after unrelated close: %d", ret)
	}
}

func TestFcloseFlushesBufferedOutput(t *testing.T) {
	s, _, sink := newTestShim(t)

	path := cstr(t, s, "/dev/stdout")
	mode := cstr(t, s, "w")
	h := s.Fopen(path, mode)
	if h == 0 {
		t.Fatal("fopen failed")
	}
	s.Fputs(cstr(t, s, "pending"), h)
	if ret := s.Fclose(h); ret != 0 {
		t.Fatalf("fclose = %d", ret)
	}
	if got := sink.String(sandbox.StreamStdout); got != "pending" {
		t.Errorf("close did not flush: sink = %q", got)
	}
}

func TestStaleHandleAfterReopen(t *testing.T) {
	s, _, _ := newTestShim(t)

	path := cstr(t, s, "/dev/stderr")
	mode := cstr(t, s, "w")
	old := s.Fopen(path, mode)
	if old == 0 {
		t.Fatal("fopen failed")
	}
	s.Fclose(old)

	// Reopening reuses the slot under a new generation; the old handle
	// must stay dead.
	fresh := s.Fopen(path, mode)
	if fresh == 0 {
		t.Fatal("reopen failed")
	}
	if fresh == old {
		t.Error("recycled handle is indistinguishable from the closed one")
	}
	if ret := s.Fputc('a', old); ret != EOF {
		t.Errorf("write through stale handle = %d, want EOF", ret)
	}
	if ret := s.Fputc('a', fresh); ret != 'a' {
		t.Errorf("write through fresh handle = %d", ret)
	}
}

func TestBufferFillForcesFlush(t *testing.T) {
	s, mem, sink := newTestShim(t)

	data := bytes.Repeat([]byte{'q'}, 300)
	src := s.Malloc(300)
	if err := mem.Write(src, data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if n := s.Fwrite(src, 1, 300, s.Stderr()); n != 300 {
		t.Fatalf("fwrite = %d, want 300", n)
	}
	// One buffer's worth reached the sink; the tail stays buffered.
	if got := len(sink.Bytes(sandbox.StreamStderr)); got != 256 {
		t.Errorf("sink holds %d bytes mid-write, want 256", got)
	}
	s.Fflush(0)
	if got := sink.Bytes(sandbox.StreamStderr); !bytes.Equal(got, data) {
		t.Errorf("sink holds %d bytes after flush, want 300 matching", len(got))
	}
}

func TestFwriteCountsWholeItems(t *testing.T) {
	s, mem, sink := newTestShim(t)

	src := s.Malloc(12)
	if err := mem.Write(src, []byte("abcdefghijkl")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n := s.Fwrite(src, 4, 3, s.Stderr()); n != 3 {
		t.Errorf("fwrite(4, 3) = %d, want 3", n)
	}
	if n := s.Fwrite(src, 0, 5, s.Stderr()); n != 0 {
		t.Errorf("fwrite with zero size = %d, want 0", n)
	}
	s.Fflush(0)
	if got := sink.String(sandbox.StreamStderr); got != "abcdefghijkl" {
		t.Errorf("sink = %q", got)
	}
}

func TestMissingSinkSetsStreamError(t *testing.T) {
	mem, err := sandbox.NewMemory(2, 8)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	s, err := New(mem, sandbox.Host{}, sandbox.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h := s.Stderr()
	if ret := s.Fputc('x', h); ret != 'x' {
		t.Fatalf("buffered fputc = %d", ret)
	}
	if ret := s.Fflush(h); ret != EOF {
		t.Errorf("fflush without a sink = %d, want EOF", ret)
	}
	if s.Ferror(h) != 1 {
		t.Error("stream error flag not set after failed flush")
	}
	s.Clearerr(h)
	if s.Ferror(h) != 0 {
		t.Error("clearerr did not reset the error flag")
	}
}

func TestFeofDefaults(t *testing.T) {
	s, _, _ := newTestShim(t)
	if s.Feof(s.Stderr()) != 0 {
		t.Error("fresh stream reports end of input")
	}
	if s.Feof(0) != 0 {
		t.Error("NULL handle should report zero from feof")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		mode  string
		flags streamFlags
		ok    bool
	}{
		{"r", sfRead, true},
		{"w", sfWrite, true},
		{"a", sfWrite | sfAppend, true},
		{"rb", sfRead, true},
		{"r+", sfRead | sfWrite, true},
		{"w+b", sfRead | sfWrite, true},
		{"ab+", sfRead | sfWrite | sfAppend, true},
		{"", 0, false},
		{"x", 0, false},
		{"rw", 0, false},
	}
	for _, tt := range tests {
		flags, ok := parseMode(tt.mode)
		if ok != tt.ok || (ok && flags != tt.flags) {
			t.Errorf("parseMode(%q) = %v, %v; want %v, %v", tt.mode, flags, ok, tt.flags, tt.ok)
		}
	}
}
