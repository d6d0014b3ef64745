// Package ringbuffer implements the lock-free single-producer
// single-consumer frame ring at the center of the decoupling layer (spec
// §3, §4.1). It is the sole shared state between the Producer and the
// Callback: the Producer only ever advances the write index and reads the
// read index, the Callback only ever advances the read index and reads the
// write index.
//
// Adapted from a byte-oriented SPSC ring that only exposed a read-side
// zero-copy span (ReadSlices/PeekContiguous/Consume). The Producer here
// must mix directly into ring storage (the Mixer takes a destination slice
// and fills it in place), so a symmetric write-side span
// (WritableSpan/CommitWrite) is added alongside the read side.
package ringbuffer

import (
	"sync/atomic"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
)

// RingBuffer is a fixed-capacity circular buffer of fixed-size PCM frames.
//
// Thread safety:
//   - WritableSpan/CommitWrite must only be called by the Producer.
//   - ReadableSpan/CommitRead/ReadInto must only be called by the Callback.
//
// Capacity is rounded up to the next power of 2 so index arithmetic can use
// a bitwise mask instead of a modulo. The two position counters are
// monotonically increasing uint64s; occupancy is always writePos-readPos,
// so there is no need for the one-slot-reserved full/empty ambiguity that a
// wrapping index pair would require.
type RingBuffer struct {
	buf       []byte
	frameSize int
	size      uint64 // capacity in frames, power of 2
	mask      uint64

	// writePos/readPos are stored and loaded with sync/atomic, which gives
	// the release-on-write / acquire-on-read pairing spec §4.1 and §5
	// require: the Producer's CommitWrite store becomes visible only after
	// the frame bytes it just wrote, and the Callback's ReadableSpan load
	// of writePos happens-before it reads those same bytes.
	writePos atomic.Uint64
	readPos  atomic.Uint64
}

// New creates a ring buffer sized for at least capacityFrames frames of the
// given layout. Capacity is rounded up to the next power of 2.
func New(capacityFrames uint64, layout bridgetypes.Layout) *RingBuffer {
	capacityFrames = nextPowerOf2(capacityFrames)
	frameSize := layout.FrameSize()

	return &RingBuffer{
		buf:       make([]byte, capacityFrames*uint64(frameSize)),
		frameSize: frameSize,
		size:      capacityFrames,
		mask:      capacityFrames - 1,
	}
}

// Capacity returns the buffer's capacity in frames.
func (rb *RingBuffer) Capacity() uint64 {
	return rb.size
}

// FrameSize returns the byte size of one frame.
func (rb *RingBuffer) FrameSize() int {
	return rb.frameSize
}

// AvailableWrite returns the number of frames free for writing.
func (rb *RingBuffer) AvailableWrite() uint64 {
	return rb.size - rb.AvailableRead()
}

// AvailableRead returns the number of frames available for reading.
func (rb *RingBuffer) AvailableRead() uint64 {
	return rb.writePos.Load() - rb.readPos.Load()
}

// WritableSpan returns up to two contiguous byte spans covering exactly n
// frames (n is clamped to AvailableWrite()), ready for the Mixer to fill in
// place. The second span is only non-empty when those n frames wrap past
// the end of the backing array. Callable only by the Producer.
//
// Callers must mix exactly len(first)+len(second) bytes and then
// CommitWrite the same n frames they requested here — requesting more than
// the Producer intends to commit mixes frames nothing will ever read (spec
// §4.2 steps 1-3, §8 "every frame written ... is read exactly once").
func (rb *RingBuffer) WritableSpan(n uint64) (first, second []byte) {
	free := rb.AvailableWrite()
	n = min(n, free)
	if n == 0 {
		return nil, nil
	}

	writePos := rb.writePos.Load()
	start := (writePos & rb.mask) * uint64(rb.frameSize)
	length := n * uint64(rb.frameSize)
	end := start + length

	if end <= uint64(len(rb.buf)) {
		return rb.buf[start:end], nil
	}

	firstLen := uint64(len(rb.buf)) - start
	return rb.buf[start:], rb.buf[:length-firstLen]
}

// CommitWrite advances the write index by n frames after the Producer has
// filled the spans returned by WritableSpan. n must not exceed the frames
// made available by the most recent WritableSpan call.
func (rb *RingBuffer) CommitWrite(n uint64) {
	if n == 0 {
		return
	}
	rb.writePos.Store(rb.writePos.Load() + n)
}

// ReadableSpan returns up to two contiguous byte spans covering the
// available data, for zero-copy inspection. The second span is non-empty
// only when the data wraps. Callable only by the Callback.
func (rb *RingBuffer) ReadableSpan() (first, second []byte) {
	avail := rb.AvailableRead()
	if avail == 0 {
		return nil, nil
	}
	return rb.readSpanN(avail)
}

// CommitRead advances the read index by n frames after the Callback has
// consumed the spans returned by ReadableSpan.
func (rb *RingBuffer) CommitRead(n uint64) {
	if n == 0 {
		return
	}
	rb.readPos.Store(rb.readPos.Load() + n)
}

// ReadInto copies up to len(dest)/FrameSize() frames into dest (a
// host-owned destination the Callback must copy into — spec's Non-goals
// rule out zero-copy submission across the host boundary), splitting the
// copy across the wrap point exactly as ReadableSpan does, and commits the
// read. Returns the number of frames copied.
//
// If the ring is empty, ReadInto copies nothing and returns 0 — callers
// implement the "return full on empty" host-quirk policy themselves (spec
// §4.1, §4.4); this method never blocks and never errors.
func (rb *RingBuffer) ReadInto(dest []byte) int {
	requested := uint64(len(dest)) / uint64(rb.frameSize)
	if requested == 0 {
		return 0
	}

	avail := rb.AvailableRead()
	toRead := min(requested, avail)
	if toRead == 0 {
		return 0
	}

	first, second := rb.readSpanN(toRead)
	n := copy(dest, first)
	if len(second) > 0 {
		n += copy(dest[n:], second)
	}

	rb.CommitRead(toRead)
	return int(toRead)
}

// readSpanN returns spans covering exactly n frames starting at the current
// read position (n must be <= AvailableRead()). Shared by ReadableSpan
// (n == everything available) and ReadInto (n == what the caller asked for
// and can fit), so a bounded read never commits more than it copied.
func (rb *RingBuffer) readSpanN(n uint64) (first, second []byte) {
	readPos := rb.readPos.Load()
	start := (readPos & rb.mask) * uint64(rb.frameSize)
	length := n * uint64(rb.frameSize)
	end := start + length

	if end <= uint64(len(rb.buf)) {
		return rb.buf[start:end], nil
	}

	firstLen := uint64(len(rb.buf)) - start
	return rb.buf[start:], rb.buf[:length-firstLen]
}

// Reset clears the ring buffer by resetting the read and write positions.
// Does not zero the backing storage.
func (rb *RingBuffer) Reset() {
	rb.readPos.Store(0)
	rb.writePos.Store(0)
}

func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
