// Package session implements DeviceSession: the object that owns a
// playback channel, its RingBuffer, its Producer, and the semaphore and
// lifecycle flags that tie them together (spec §3, §4.5). It also
// implements the Callback contract (spec §4.3), bound as a method so the
// host's raw userData pointer becomes an ordinary Go closure over *Session
// (spec §9's "callback-registered user data" note).
package session

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
	"github.com/drgolem/audiobridge/pkg/prime"
	"github.com/drgolem/audiobridge/pkg/producer"
	"github.com/drgolem/audiobridge/pkg/ringbuffer"
)

// openChannelRetries and openChannelYield bound open_playback's free-channel
// acquisition loop (spec §4.5).
const (
	openChannelRetries = 10
	openChannelYield   = 50 * time.Millisecond
)

// ringBufferMultiplier sizes the RingBuffer as a small multiple of
// update_size so the Producer can stay one callback ahead (spec §3).
const ringBufferMultiplier = 3

// shutdownPollInterval and shutdownPollCount bound stop_playback's wait for
// the Producer to report thread_exited before giving up (spec §4.5, §7
// ShutdownTimeout).
const (
	shutdownPollInterval = 2 * time.Millisecond
	shutdownPollCount    = 20
)

// Session owns one playback channel end to end: the negotiated format, the
// RingBuffer, the Producer goroutine, the semaphore, and the flags the
// Callback and Producer both observe.
//
// alive replaces the C source's cyclic DeviceSession<->Producer back-pointer
// (spec §9 "cyclic lifetimes"): only Close writes it and only the Callback
// reads it; the Producer holds no reference back to the Session, so there
// is no ownership cycle to resolve.
type Session struct {
	host        bridgetypes.HostAudio
	mixer       bridgetypes.Mixer
	backendName string

	channel    int
	layout     bridgetypes.Layout
	updateSize int
	outputFreq int

	ring *ringbuffer.RingBuffer
	prod *producer.Producer
	sem  bridgetypes.Semaphore
	thr  bridgetypes.Thread

	kill         atomic.Bool
	threadExited atomic.Bool
	alive        atomic.Bool
}

// Open implements open_playback (spec §4.5): accepts only the empty name or
// backendName, acquires a free channel (retrying openChannelRetries times
// with openChannelYield between tries), probes format, runs the
// silence-priming workaround, and registers the Callback for mono and (when
// available) stereo audio events.
//
// mixer is not supplied here: the negotiated layout (mono vs stereo) is only
// known once this function has probed the host, and a Mixer producing the
// demo content (pkg/democontent/wavmixer) needs that layout to decode into.
// Reset accepts the mixer once the caller has had a chance to build one
// matching Layout()/OutputFrequency().
func Open(host bridgetypes.HostAudio, backendName, name string) (*Session, error) {
	if name != "" && name != backendName {
		return nil, nil // not for us — caller's vtable reports rejection, not an error
	}

	var channel int
	var err error
	for attempt := 0; attempt < openChannelRetries; attempt++ {
		channel, err = host.GetFreeChannel()
		if err == nil {
			break
		}
		host.DeviceYield(int(openChannelYield / time.Millisecond))
	}
	if err != nil {
		return nil, bridgetypes.ErrChannelUnavailable
	}

	layout := bridgetypes.Mono
	if host.GetInt(bridgetypes.StereoEnabled) != 0 {
		layout = bridgetypes.Stereo
	}
	outputFreq := host.GetInt(bridgetypes.OutputFreq)

	if err := prime.Silence(host, channel, layout); err != nil {
		return nil, err
	}

	s := &Session{
		host:        host,
		backendName: backendName,
		channel:     channel,
		layout:      layout,
		outputFreq:  outputFreq,
	}
	s.alive.Store(true)

	if err := host.ChannelRegister(channel, bridgetypes.GenAudio, s.Callback); err != nil {
		return nil, err
	}
	if layout == bridgetypes.Stereo {
		if err := host.ChannelRegister(channel, bridgetypes.GenAudioStereo, s.Callback); err != nil {
			_ = host.ChannelUnregister(channel, bridgetypes.GenAudio)
			return nil, err
		}
	}

	return s, nil
}

// Reset implements reset_playback (spec §4.5): negotiates update_size,
// allocates the RingBuffer, creates the semaphore, starts the Producer, lets
// it pre-mix one window, and starts the channel's infinite pull playback.
// mixer is the Mixer this session's Producer will call; it must already be
// built for this session's Layout() and OutputFrequency().
func (s *Session) Reset(updateSize int, mixer bridgetypes.Mixer) error {
	if updateSize <= 0 {
		return errors.New("session: update size must be positive")
	}
	s.updateSize = updateSize
	s.mixer = mixer

	capacity := uint64(updateSize * ringBufferMultiplier)
	s.ring = ringbuffer.New(capacity, s.layout)
	s.sem = s.host.SemCreate(0)

	s.kill.Store(false)
	s.threadExited.Store(false)

	s.prod = producer.New(s.ring, s.mixer, s.sem, s.host, s.updateSize)
	s.thr = s.host.ThreadStart(s.prod.Run)
	if s.thr == nil {
		s.sem.Destroy()
		return bridgetypes.ErrThreadStartFailure
	}

	// Yield briefly so the Producer's first iteration has a chance to
	// pre-mix before the host starts pulling (spec §4.5).
	s.host.DeviceYield(1)

	initial := make([]byte, s.updateSize*s.layout.FrameSize())
	if err := s.host.ChannelPlay(s.channel, initial, true); err != nil {
		return err
	}

	return nil
}

// Callback is the function HostAudio invokes on its restricted main thread
// (spec §4.3). It must never block, sleep, yield, or take a lock the Mixer
// might hold.
func (s *Session) Callback(dest []byte, nframes int, stereo bool) (produced int, endSample bool) {
	if s.kill.Load() || !s.alive.Load() || s.threadExited.Load() {
		return nframes, true
	}

	n := s.ring.ReadInto(dest[:nframes*s.layout.FrameSize()])
	if n == 0 {
		// Underrun: host-quirk policy is to pretend success rather than
		// block or zero-fill (spec §4.1, §4.4).
		return nframes, false
	}

	s.sem.Post()

	if n < nframes {
		// Fewer frames were available than requested; still report the
		// full count per the return-full-on-empty policy (spec §4.4).
		return nframes, false
	}
	return n, false
}

// Stop implements stop_playback (spec §4.5): sets kill, stops the channel,
// unregisters callbacks, wakes the Producer, polls bounded for
// thread_exited, and (failing that) abandons the thread with a logged
// warning — Go offers no safe forced-termination primitive (spec §9
// "volatile fields", see bridgetypes.Thread).
func (s *Session) Stop() {
	s.kill.Store(true)
	s.prod.Kill()

	_ = s.host.ChannelStop(s.channel)
	_ = s.host.ChannelUnregister(s.channel, bridgetypes.GenAudio)
	if s.layout == bridgetypes.Stereo {
		_ = s.host.ChannelUnregister(s.channel, bridgetypes.GenAudioStereo)
	}

	if s.sem != nil {
		s.sem.Post()
	}

	exited := false
	for i := 0; i < shutdownPollCount; i++ {
		if s.prod.Exited() {
			exited = true
			break
		}
		s.host.DeviceYield(int(shutdownPollInterval / time.Millisecond))
	}

	if !exited {
		slog.Warn("producer did not exit within shutdown poll window, abandoning thread",
			"channel", s.channel, "poll_window", shutdownPollCount*shutdownPollInterval)
		if s.thr != nil {
			s.thr.Stop()
		}
	}

	s.threadExited.Store(true)

	if s.sem != nil {
		s.sem.Destroy()
	}
}

// Close implements close_playback (spec §4.5): clears the alive flag so a
// racing Callback invocation sees shutdown, idempotently stops the channel,
// and releases the session. Unregistration happens before this call
// (in Stop), preserving the host's required unregister-then-free order
// (spec §9).
func (s *Session) Close() {
	s.alive.Store(false)
	_ = s.host.ChannelStop(s.channel)
}

// Channel returns the session's channel id.
func (s *Session) Channel() int {
	return s.channel
}

// Layout returns the session's negotiated frame layout.
func (s *Session) Layout() bridgetypes.Layout {
	return s.layout
}

// OutputFrequency returns the negotiated output sample rate in Hz.
func (s *Session) OutputFrequency() int {
	return s.outputFreq
}
