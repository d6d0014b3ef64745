package wavmixer

import (
	"testing"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
)

func TestMatchChannelsMonoToStereoDuplicates(t *testing.T) {
	mono := []byte{0x10, 0x00, 0x20, 0x00} // two mono frames: 16, 32
	stereo, err := matchChannels(mono, 1, bridgetypes.Stereo)
	if err != nil {
		t.Fatalf("matchChannels returned error: %v", err)
	}
	want := []byte{0x10, 0x00, 0x10, 0x00, 0x20, 0x00, 0x20, 0x00}
	if len(stereo) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(stereo), len(want))
	}
	for i := range want {
		if stereo[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, stereo[i], want[i])
		}
	}
}

func TestMatchChannelsStereoToMonoAverages(t *testing.T) {
	// One stereo frame: left=10, right=30 -> mono average 20.
	stereo := []byte{10, 0, 30, 0}
	mono, err := matchChannels(stereo, 2, bridgetypes.Mono)
	if err != nil {
		t.Fatalf("matchChannels returned error: %v", err)
	}
	if len(mono) != 2 {
		t.Fatalf("got %d bytes, want 2", len(mono))
	}
	got := int16(mono[0]) | int16(mono[1])<<8
	if got != 20 {
		t.Fatalf("averaged sample = %d, want 20", got)
	}
}

func TestMatchChannelsNoOpWhenAlreadyMatching(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	out, err := matchChannels(pcm, 1, bridgetypes.Mono)
	if err != nil {
		t.Fatalf("matchChannels returned error: %v", err)
	}
	if len(out) != len(pcm) {
		t.Fatalf("expected no-op passthrough, got different length")
	}
}

func TestMixLoopsBufferAndAdvancesPosition(t *testing.T) {
	m := &Mixer{pcm: []byte{1, 2, 3, 4}, frameSize: 2}

	dest := make([]byte, 4)
	m.Mix(dest, 2)
	if dest[0] != 1 || dest[1] != 2 || dest[2] != 3 || dest[3] != 4 {
		t.Fatalf("unexpected first Mix output: %v", dest)
	}

	// Next call should wrap back to the start of the buffer.
	m.Mix(dest, 2)
	if dest[0] != 1 || dest[1] != 2 || dest[2] != 3 || dest[3] != 4 {
		t.Fatalf("expected Mix to loop back to start, got: %v", dest)
	}
}

func TestMixHandlesWrapMidRequest(t *testing.T) {
	m := &Mixer{pcm: []byte{1, 2, 3, 4}, frameSize: 2, pos: 2}

	dest := make([]byte, 4)
	m.Mix(dest, 2)
	// Starting at byte offset 2: bytes 3,4 then wraps to 1,2.
	want := []byte{3, 4, 1, 2}
	for i := range want {
		if dest[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (dest=%v)", i, dest[i], want[i], dest)
		}
	}
}
