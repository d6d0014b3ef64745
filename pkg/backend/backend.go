// Package backend implements the registry vtable consumed by the enclosing
// audio library (spec §6): open_playback, close_playback, reset_playback,
// stop_playback, plus the unimplemented capture entry points. Spec §9 models
// this as "a value of a backend-trait/interface type returned by a
// constructor function" rather than the original's process-wide
// function-pointer tables.
package backend

import (
	"log/slog"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
	"github.com/drgolem/audiobridge/pkg/session"
)

// Name is the single UTF-8 device name this backend advertises (spec §6),
// standing in for the original's "s3eSound" literal.
const Name = "audiobridge"

// MixerFactory builds a Mixer matched to a session's negotiated layout and
// output frequency, since those are only known once open_playback has
// probed the host (spec §4.5).
type MixerFactory func(layout bridgetypes.Layout, outputFreq int) (bridgetypes.Mixer, error)

// Registry implements the backend vtable for one HostAudio, constructing a
// fresh Mixer for each session via newMixer. open/reset return boolean
// success; stop/close are infallible from the caller's viewpoint, per spec
// §7's propagation policy.
type Registry struct {
	host     bridgetypes.HostAudio
	newMixer MixerFactory

	device *session.Session
}

// New constructs a Registry. host is the external HostAudio every opened
// session will share; newMixer builds the Mixer each reset_playback needs.
func New(host bridgetypes.HostAudio, newMixer MixerFactory) *Registry {
	return &Registry{host: host, newMixer: newMixer}
}

// OpenPlayback implements open_playback. name must be empty or match Name;
// any other value is a rejection, not an error (spec §4.5).
func (r *Registry) OpenPlayback(name string) bool {
	s, err := session.Open(r.host, Name, name)
	if err != nil {
		slog.Warn("open_playback failed", "error", err)
		return false
	}
	if s == nil {
		return false
	}
	r.device = s
	return true
}

// ResetPlayback implements reset_playback: builds a Mixer matched to the
// negotiated layout/frequency, then negotiates update_size and starts the
// Producer. updateSize is the host's nominal per-callback frame count.
func (r *Registry) ResetPlayback(updateSize int) bool {
	if r.device == nil {
		return false
	}
	mixer, err := r.newMixer(r.device.Layout(), r.device.OutputFrequency())
	if err != nil {
		slog.Warn("reset_playback failed to build mixer", "error", err)
		return false
	}
	if err := r.device.Reset(updateSize, mixer); err != nil {
		slog.Warn("reset_playback failed", "error", err)
		return false
	}
	return true
}

// StopPlayback implements stop_playback. No-op if no session is open.
func (r *Registry) StopPlayback() {
	if r.device == nil {
		return
	}
	r.device.Stop()
}

// ClosePlayback implements close_playback. Stops (idempotent) and frees the
// session reference; unregistration already happened in Stop, preserving
// the host's required unregister-then-free order (spec §9).
func (r *Registry) ClosePlayback() {
	if r.device == nil {
		return
	}
	r.device.Close()
	r.device = nil
}

// OpenCapture, StartCapture, StopCapture, CaptureSamples, and
// AvailableSamples are all unimplemented; capture is out of scope (spec §1,
// §6). OpenCapture always rejects, matching the spec's required behavior.
func (r *Registry) OpenCapture(name string) bool { return false }
func (r *Registry) StartCapture()                {}
func (r *Registry) StopCapture()                 {}
func (r *Registry) CaptureSamples(buf []byte) int { return 0 }
func (r *Registry) AvailableSamples() int         { return 0 }
