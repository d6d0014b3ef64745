package ringbuffer

import (
	"bytes"
	"testing"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
)

func TestNewRoundsToPowerOf2(t *testing.T) {
	tests := []struct {
		input    uint64
		expected uint64
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{100, 128},
		{441, 512},
		{1024, 1024},
	}

	for _, tt := range tests {
		rb := New(tt.input, bridgetypes.Mono)
		if rb.Capacity() != tt.expected {
			t.Errorf("New(%d): got capacity %d, want %d", tt.input, rb.Capacity(), tt.expected)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	rb := New(16, bridgetypes.Mono)

	first, second := rb.WritableSpan(rb.AvailableWrite())
	if len(second) != 0 {
		t.Fatalf("expected a single contiguous writable span on a fresh buffer")
	}
	if len(first) != int(rb.Capacity())*rb.FrameSize() {
		t.Fatalf("writable span len = %d, want %d", len(first), rb.Capacity()*uint64(rb.FrameSize()))
	}

	want := make([]byte, 6*rb.FrameSize())
	for i := range want {
		want[i] = byte(i + 1)
	}
	copy(first, want)
	rb.CommitWrite(6)

	if rb.AvailableRead() != 6 {
		t.Fatalf("AvailableRead = %d, want 6", rb.AvailableRead())
	}
	if rb.AvailableWrite() != rb.Capacity()-6 {
		t.Fatalf("AvailableWrite = %d, want %d", rb.AvailableWrite(), rb.Capacity()-6)
	}

	got := make([]byte, 6*rb.FrameSize())
	n := rb.ReadInto(got)
	if n != 6 {
		t.Fatalf("ReadInto returned %d frames, want 6", n)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadInto data mismatch: got %v, want %v", got, want)
	}
	if rb.AvailableRead() != 0 {
		t.Fatalf("AvailableRead = %d after full read, want 0", rb.AvailableRead())
	}
}

func TestReadIntoEmptyReturnsZero(t *testing.T) {
	rb := New(16, bridgetypes.Mono)

	dest := make([]byte, 4*rb.FrameSize())
	for i := range dest {
		dest[i] = 0xAB
	}

	n := rb.ReadInto(dest)
	if n != 0 {
		t.Fatalf("ReadInto on empty ring = %d, want 0", n)
	}
	// Destination contents are left untouched per spec's "no data written" policy.
	for i, b := range dest {
		if b != 0xAB {
			t.Fatalf("dest[%d] = %x, expected untouched 0xab", i, b)
		}
	}
}

func TestReadIntoPartial(t *testing.T) {
	rb := New(16, bridgetypes.Mono)

	first, _ := rb.WritableSpan(5)
	fillFrames(first, rb.FrameSize(), 5, 1)
	rb.CommitWrite(5)

	dest := make([]byte, 10*rb.FrameSize())
	n := rb.ReadInto(dest)
	if n != 5 {
		t.Fatalf("ReadInto = %d, want 5 (only 5 frames were available)", n)
	}
}

func TestWritableSpanBoundsToRequestedCount(t *testing.T) {
	rb := New(16, bridgetypes.Mono)

	first, second := rb.WritableSpan(5)
	total := (len(first) + len(second)) / rb.FrameSize()
	if total != 5 {
		t.Fatalf("WritableSpan(5) covers %d frames, want exactly 5", total)
	}
	if rb.AvailableWrite() != rb.Capacity() {
		t.Fatalf("requesting a span must not itself advance the write position")
	}
}

func TestWritableSpanClampsToAvailableWrite(t *testing.T) {
	rb := New(4, bridgetypes.Mono)

	first, second := rb.WritableSpan(100)
	total := (len(first) + len(second)) / rb.FrameSize()
	if total != int(rb.Capacity()) {
		t.Fatalf("WritableSpan(100) covers %d frames, want clamped to capacity %d", total, rb.Capacity())
	}
}

func TestWrapAroundSplitsIntoTwoSpans(t *testing.T) {
	rb := New(4, bridgetypes.Stereo) // capacity 4 frames, 4 bytes/frame

	// Write 2 frames, then drain 1, leaving 1 frame of data at index 1.
	first, _ := rb.WritableSpan(2)
	fillFrames(first, rb.FrameSize(), 2, 1)
	rb.CommitWrite(2)

	drained := make([]byte, 1*rb.FrameSize())
	if n := rb.ReadInto(drained); n != 1 {
		t.Fatalf("initial drain = %d, want 1", n)
	}

	// Now only 1 frame of data remains, and 3 frames of free space
	// (indices 2, 3, then 0) that wraps around the end of the backing array.
	wfirst, wsecond := rb.WritableSpan(rb.AvailableWrite())
	if len(wsecond) == 0 {
		t.Fatalf("expected the writable span to wrap, got a single contiguous span")
	}
	totalFree := (len(wfirst) + len(wsecond)) / rb.FrameSize()
	if totalFree != 3 {
		t.Fatalf("writable free = %d frames, want 3", totalFree)
	}

	fillFrames(wfirst, rb.FrameSize(), len(wfirst)/rb.FrameSize(), 10)
	fillFrames(wsecond, rb.FrameSize(), len(wsecond)/rb.FrameSize(), 10+len(wfirst)/rb.FrameSize())
	rb.CommitWrite(uint64(totalFree))

	if rb.AvailableRead() != 4 {
		t.Fatalf("AvailableRead = %d, want 4", rb.AvailableRead())
	}

	rfirst, rsecond := rb.ReadableSpan()
	if len(rsecond) == 0 {
		t.Fatalf("expected the readable span to wrap too")
	}
	readFrames := (len(rfirst) + len(rsecond)) / rb.FrameSize()
	if readFrames != 4 {
		t.Fatalf("readable span covers %d frames, want 4", readFrames)
	}
}

// fillFrames writes n frames starting at startVal (as the first byte of
// each frame) into buf, which must be exactly n*frameSize bytes.
func fillFrames(buf []byte, frameSize, n, startVal int) {
	for i := 0; i < n; i++ {
		buf[i*frameSize] = byte(startVal + i)
	}
}
