// Package bridgetypes holds the value types, sentinel errors, and external
// collaborator interfaces shared by every package in audiobridge.
//
// Mixer and HostAudio are deliberately interfaces, never structs this module
// implements: per the design, both the mixing engine and the host audio
// subsystem are external collaborators. audiobridge only depends on their
// contracts.
package bridgetypes

import (
	"errors"
	"time"
)

// Lifecycle errors named in the error taxonomy (spec §7). These are the
// causes logged/wrapped internally; the external vtable surface (pkg/backend)
// still reports boolean success per the host ABI.
var (
	// ErrChannelUnavailable: open_playback could not obtain a free channel after retries.
	ErrChannelUnavailable = errors.New("no free playback channel available")

	// ErrAllocationFailure: ringbuffer or mix buffer allocation failed.
	ErrAllocationFailure = errors.New("failed to allocate playback resources")

	// ErrThreadStartFailure: the producer goroutine could not be started.
	ErrThreadStartFailure = errors.New("failed to start producer thread")
)

// Layout describes the frame shape negotiated at open: mono or stereo,
// 16-bit PCM. Immutable for the lifetime of a session; Reset does not
// re-probe it.
type Layout int

const (
	Mono Layout = iota
	Stereo
)

// FrameSize returns the number of bytes in one frame for this layout:
// 2 bytes for mono 16-bit, 4 bytes for stereo 16-bit.
func (l Layout) FrameSize() int {
	if l == Stereo {
		return 4
	}
	return 2
}

func (l Layout) String() string {
	if l == Stereo {
		return "stereo"
	}
	return "mono"
}

// Mixer is the external mixing engine. Mix synchronously fills dest with
// nframes of interleaved PCM; dest is exactly nframes*frameSize bytes long
// and comes straight from ring buffer storage (Producer writes in place,
// no intermediate copy). Mix may take its own locks and must never be
// called from a host callback thread.
//
// A Mixer may panic on internal failure; spec §9 leaves this unmodeled, and
// this module's Producer (pkg/producer) recovers and treats the iteration
// as zero frames produced rather than crashing the session.
type Mixer interface {
	Mix(dest []byte, nframes int)
}

// IntKey identifies one of the host's scalar queries (spec §6 get_int).
type IntKey int

const (
	OutputFreq IntKey = iota
	StereoEnabled
)

// ChannelPlayState is the value returned by HostAudio.ChannelStatus: spec
// §6 groups this under the same "get_int(... | CHANNEL_STATUS)" family as
// OutputFreq/StereoEnabled, but unlike those two a channel status query is
// inherently per-channel, so it gets its own HostAudio method taking a
// channel id rather than overloading the session-wide GetInt.
type ChannelPlayState int

const (
	ChannelStopped ChannelPlayState = iota
	ChannelPlaying
)

// ChannelEvent identifies which pull-callback slot is being registered.
type ChannelEvent int

const (
	GenAudio ChannelEvent = iota
	GenAudioStereo
)

// AudioCallback is the function signature HostAudio invokes on its main
// thread once registered: produce up to nframes into dest (interleaved,
// stereo tells the callback how the host currently expects the buffer to be
// laid out), returning the number of frames actually produced and whether
// this invocation marks end of stream. Implementations must never block,
// sleep, yield, or take a lock the Mixer might hold (spec §4.3/§4.4).
type AudioCallback func(dest []byte, nframes int, stereo bool) (produced int, endSample bool)

// Thread is a handle to a host-started thread (spec "thread start/stop").
// Stop requests cooperative termination; Go has no safe mechanism to force
// a goroutine to exit, so Stop is the only primitive offered — callers that
// need the "hard stop" escalation described in spec §3/§7 simply give up
// waiting and log a ShutdownTimeout (see pkg/session).
type Thread interface {
	Stop()
}

// Semaphore is a counting semaphore with a timed wait, standing in for the
// host's thread_sem_create/wait/post/destroy primitives.
type Semaphore interface {
	// Wait blocks until posted or timeout elapses. Returns true if woken by
	// a post, false on timeout.
	Wait(timeout time.Duration) bool
	// Post wakes one waiter (or, if none is waiting, makes the next Wait
	// return immediately). Safe to call with no outstanding Wait.
	Post()
	// Destroy releases the semaphore's resources. Idempotent.
	Destroy()
}

// HostAudio is the embedding audio subsystem: free-channel allocation,
// callback registration, infinite-playback start/stop, stereo capability
// probe, output-frequency query, pause/quit probes, a cooperative yield, a
// monotonic clock, and the threading primitives (spec §1, §6).
//
// This module never implements the real host; pkg/hostaudio/portaudio
// provides one concrete adapter backed by PortAudio's own pull-callback
// stream, and unit tests use small in-memory fakes.
type HostAudio interface {
	// GetFreeChannel allocates a channel id. Returns ErrChannelUnavailable
	// if none is free.
	GetFreeChannel() (int, error)

	// GetInt queries a scalar host property (output frequency, whether
	// stereo output is enabled). Channel playback status is queried through
	// ChannelStatus instead.
	GetInt(key IntKey) int

	// ChannelRegister binds cb to be invoked on the host's main thread for
	// the given channel/event pair. ChannelUnregister removes it.
	ChannelRegister(channel int, event ChannelEvent, cb AudioCallback) error
	ChannelUnregister(channel int, event ChannelEvent) error

	// ChannelPlay starts (or restarts) playback on channel from buf. loop
	// requests infinite playback, driven entirely by the registered
	// callback rather than by the contents of buf.
	ChannelPlay(channel int, buf []byte, loop bool) error
	ChannelStop(channel int) error

	// ChannelStatus reports whether channel is currently playing (spec §6
	// get_int(CHANNEL_STATUS), per-channel — see ChannelPlayState).
	ChannelStatus(channel int) ChannelPlayState

	// DeviceYield cooperatively yields for up to ms milliseconds.
	DeviceYield(ms int)

	// DeviceCheckQuitRequest/DeviceCheckPauseRequest poll host-level
	// application lifecycle signals.
	DeviceCheckQuitRequest() bool
	DeviceCheckPauseRequest() bool

	// TimerGetMs returns a monotonic millisecond clock.
	TimerGetMs() int64

	// ThreadStart starts fn on a dedicated thread and returns a handle to
	// request its cooperative stop.
	ThreadStart(fn func()) Thread

	// SemCreate creates a counting semaphore with the given initial count.
	SemCreate(initial int) Semaphore
}
