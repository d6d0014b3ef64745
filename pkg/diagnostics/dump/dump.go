// Package dump implements the file-based WAV-dump variant spec §1 calls
// "the debugging detour, not the production design" and §9 says to "treat
// ... as a diagnostic tool, not a backend." It wraps a bridgetypes.Mixer,
// capturing everything the Producer asked it to produce to a PCM WAV file
// on disk for offline inspection.
//
// The RIFF/data chunk lengths are written as placeholders (0xFFFFFFFF,
// mirroring original_source/openal-soft-1.13/Alc/s3eaudioaudio.c's
// WAV-dump variant) and patched in place once Close knows the final size,
// rather than buffering the whole capture in memory. youpy/go-wav's Writer
// requires the total sample count up front and so cannot express this
// streaming, unknown-length capture; this package writes the RIFF header
// directly instead (see DESIGN.md).
package dump

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
)

const (
	riffLenOffset = 4  // offset of the 'RIFF' chunk length field
	dataLenOffset = 40 // offset of the 'data' chunk length field, the last 4 bytes of the 44-byte header
	headerSize    = 44
)

// Mixer wraps an inner bridgetypes.Mixer, tee-ing every produced frame to a
// WAV file on disk while still returning the same samples to the caller.
type Mixer struct {
	inner bridgetypes.Mixer

	mu        sync.Mutex
	file      *os.File
	dataBytes uint32
}

// New opens path and writes a placeholder 44-byte PCM WAV header sized for
// the given layout and sample rate, then wraps inner so every Mix call is
// captured.
func New(inner bridgetypes.Mixer, path string, sampleRate int, layout bridgetypes.Layout) (*Mixer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dump: failed to create %s: %w", path, err)
	}

	channels := 1
	if layout == bridgetypes.Stereo {
		channels = 2
	}
	bitsPerSample := 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, headerSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[riffLenOffset:], 0xFFFFFFFF) // patched at Close
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bitsPerSample))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[dataLenOffset:], 0xFFFFFFFF) // patched at Close

	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("dump: failed to write WAV header: %w", err)
	}

	return &Mixer{inner: inner, file: f}, nil
}

// Mix calls the inner Mixer, then appends dest to the capture file before
// returning. A failed write is dropped silently: it is not logged and its
// bytes are not counted in the data length; later Mix calls still try to
// write. A diagnostic capture failing must never affect real playback.
func (m *Mixer) Mix(dest []byte, nframes int) {
	m.inner.Mix(dest, nframes)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return
	}
	n, err := m.file.Write(dest)
	if err != nil {
		return
	}
	m.dataBytes += uint32(n)
}

// Close patches the RIFF and data chunk lengths now that the final size is
// known, then closes the file. Idempotent.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}

	riffLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(riffLen, headerSize-8+m.dataBytes)
	if _, err := m.file.WriteAt(riffLen, riffLenOffset); err != nil {
		m.file.Close()
		m.file = nil
		return fmt.Errorf("dump: failed to patch RIFF length: %w", err)
	}

	dataLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(dataLen, m.dataBytes)
	if _, err := m.file.WriteAt(dataLen, dataLenOffset); err != nil {
		m.file.Close()
		m.file = nil
		return fmt.Errorf("dump: failed to patch data length: %w", err)
	}

	err := m.file.Close()
	m.file = nil
	return err
}
