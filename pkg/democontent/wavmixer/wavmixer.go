// Package wavmixer implements a bridgetypes.Mixer that loops 16-bit PCM
// decoded from a WAV file on disk. The real mixing engine is out of scope
// (spec §1 treats Mixer purely as an external collaborator); this package
// exists so cmd/run has something concrete to drive the Producer with, and
// is grounded on the teacher's cmd/transform.go resampling/channel-matching
// pipeline, reading the source file directly through youpy/go-wav (the same
// decoder library the teacher's own WAV path wraps).
package wavmixer

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sync"

	wav "github.com/youpy/go-wav"
	soxr "github.com/zaf/resample"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
)

// Mixer loops a fixed, fully-decoded PCM buffer matched to the session's
// negotiated layout and output frequency.
type Mixer struct {
	mu        sync.Mutex
	pcm       []byte
	pos       int
	frameSize int
}

// Load decodes path (a PCM WAV file), resamples it to outputFreq, and
// downmixes/upmixes it to layout's channel count, producing a Mixer ready
// to loop it indefinitely.
func Load(path string, outputFreq int, layout bridgetypes.Layout) (*Mixer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavmixer: failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("wavmixer: failed to read WAV format: %w", err)
	}
	if format.AudioFormat != wav.AudioFormatPCM {
		return nil, fmt.Errorf("wavmixer: unsupported WAV format %d, only PCM is supported", format.AudioFormat)
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("wavmixer: unsupported bit depth %d, only 16-bit is supported", format.BitsPerSample)
	}

	channels := int(format.NumChannels)
	raw, err := decodeAll(reader, channels)
	if err != nil {
		return nil, fmt.Errorf("wavmixer: failed to decode %s: %w", path, err)
	}

	matched, err := matchChannels(raw, channels, layout)
	if err != nil {
		return nil, err
	}

	resampled, err := resample(matched, int(format.SampleRate), outputFreq, layout.FrameSize()/2)
	if err != nil {
		return nil, fmt.Errorf("wavmixer: failed to resample: %w", err)
	}

	if len(resampled) == 0 {
		return nil, fmt.Errorf("wavmixer: %s decoded to zero frames", path)
	}

	return &Mixer{pcm: resampled, frameSize: layout.FrameSize()}, nil
}

// decodeAll drains reader in fixed-size chunks into a flat little-endian
// 16-bit PCM byte slice, interleaved per the source file's channel count.
func decodeAll(reader *wav.Reader, channels int) ([]byte, error) {
	const chunkSamples = 4096

	var out []byte
	for {
		samples, err := reader.ReadSamples(chunkSamples)
		if len(samples) > 0 {
			chunk := make([]byte, len(samples)*channels*2)
			for i, s := range samples {
				for ch := 0; ch < channels && ch < len(s.Values); ch++ {
					v := int16(s.Values[ch])
					off := (i*channels + ch) * 2
					chunk[off] = byte(v)
					chunk[off+1] = byte(v >> 8)
				}
			}
			out = append(out, chunk...)
		}
		if err != nil || len(samples) == 0 {
			return out, nil // EOF or exhausted source
		}
	}
}

// matchChannels downmixes or duplicates pcm (interleaved 16-bit, srcChannels
// wide) to the frame layout the session negotiated.
func matchChannels(pcm []byte, srcChannels int, layout bridgetypes.Layout) ([]byte, error) {
	wantChannels := 1
	if layout == bridgetypes.Stereo {
		wantChannels = 2
	}
	if srcChannels == wantChannels {
		return pcm, nil
	}

	frames := len(pcm) / (srcChannels * 2)
	out := make([]byte, frames*wantChannels*2)

	for f := 0; f < frames; f++ {
		if wantChannels == 1 {
			sum := int32(0)
			for ch := 0; ch < srcChannels; ch++ {
				off := (f*srcChannels + ch) * 2
				v := int16(pcm[off]) | int16(pcm[off+1])<<8
				sum += int32(v)
			}
			avg := int16(sum / int32(srcChannels))
			outOff := f * 2
			out[outOff] = byte(avg)
			out[outOff+1] = byte(avg >> 8)
			continue
		}

		// mono source, stereo destination: duplicate into both channels.
		srcOff := f * srcChannels * 2
		v := int16(pcm[srcOff]) | int16(pcm[srcOff+1])<<8
		outOff := f * 4
		out[outOff] = byte(v)
		out[outOff+1] = byte(v >> 8)
		out[outOff+2] = byte(v)
		out[outOff+3] = byte(v >> 8)
	}

	return out, nil
}

// resample converts pcm (interleaved 16-bit, channels wide) from fromRate to
// toRate using SoXR (github.com/zaf/resample), the same resampler the
// teacher's transform command uses.
func resample(pcm []byte, fromRate, toRate, channels int) ([]byte, error) {
	if fromRate == toRate {
		return pcm, nil
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	r, err := soxr.New(w, float64(fromRate), float64(toRate), channels, soxr.I16, soxr.HighQ)
	if err != nil {
		return nil, err
	}
	if _, err := r.Write(pcm); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Mix implements bridgetypes.Mixer: fills dest by looping the decoded PCM
// buffer. Called only from the Producer goroutine (spec §5's core
// correctness property), so the mutex here only serializes Mix calls on the
// same Mixer, never against the Callback.
func (m *Mixer) Mix(dest []byte, nframes int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	need := nframes * m.frameSize
	for i := 0; i < need; i++ {
		dest[i] = m.pcm[(m.pos+i)%len(m.pcm)]
	}
	m.pos = (m.pos + need) % len(m.pcm)
}
