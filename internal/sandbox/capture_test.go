package sandbox

import (
	"strings"
	"testing"
)

func TestBoundedBufferTruncates(t *testing.T) {
	buf := newBoundedBuffer(5)
	n, err := buf.Write([]byte("hello world"))
	if err != nil || n != 11 {
		t.Fatalf("write returned %d, %v", n, err)
	}
	if _, err := buf.Write([]byte("more")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if got := buf.String(); got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
	if !buf.Truncated() {
		t.Fatal("expected truncated flag")
	}
	if !strings.HasSuffix(buf.Diagnostic(), truncatedSuffix) {
		t.Fatalf("diagnostic missing marker: %q", buf.Diagnostic())
	}
}

func TestBoundedBufferExactFit(t *testing.T) {
	buf := newBoundedBuffer(5)
	_, _ = buf.Write([]byte("hel"))
	_, _ = buf.Write([]byte("lo"))
	if buf.Truncated() {
		t.Fatal("buffer filled exactly should not be truncated")
	}
	if buf.Diagnostic() != "hello" {
		t.Fatalf("unexpected diagnostic %q", buf.Diagnostic())
	}
}

func TestBoundedBufferUnlimited(t *testing.T) {
	buf := newBoundedBuffer(0)
	payload := strings.Repeat("x", 1<<16)
	_, _ = buf.Write([]byte(payload))
	if buf.String() != payload || buf.Truncated() {
		t.Fatal("unlimited buffer dropped data")
	}
}

func TestLimitsDefaultsAndClamp(t *testing.T) {
	defaults := Limits{CPUTime: 2e9, WallTime: 5e9, MemoryMB: 256, OutputBytes: 1024}
	got := Limits{MemoryMB: 1024}.WithDefaults(defaults)
	if got.CPUTime != defaults.CPUTime || got.WallTime != defaults.WallTime || got.MemoryMB != 1024 || got.OutputBytes != 1024 {
		t.Fatalf("unexpected limits after defaults: %+v", got)
	}
	got = got.Clamp(Limits{MemoryMB: 512})
	if got.MemoryMB != 512 || got.CPUTime != defaults.CPUTime {
		t.Fatalf("unexpected limits after clamp: %+v", got)
	}
}
