// Package portaudio adapts github.com/drgolem/go-portaudio into the
// bridgetypes.HostAudio contract, playing the role spec §1/§2 assigns to
// the embedding host audio subsystem ("s3eSound" in the original). It is
// the one concrete HostAudio this module ships; unit tests throughout the
// rest of the module use small in-memory fakes instead.
//
// PortAudio has no notion of named "channels" the way the original host
// does — it has streams. This adapter models a fixed pool of logical
// channels, each lazily backed by its own *portaudio.PaStream: the channel
// used for the ~2048-sample silence-priming burst (spec §4.4) opens a
// short-lived blocking stream (mirroring the teacher's Player.initStream +
// Write path), while the channel driving real "infinite" playback
// (ChannelPlay with loop=true) opens a pull-callback stream via
// OpenCallback, the same primitive the teacher's play_callback example
// uses.
package portaudio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
	"github.com/drgolem/audiobridge/pkg/hostsem"
)

// semCapacity is the buffered-channel capacity hostsem.New allocates for
// every semaphore this adapter creates; one pending "space freed" signal is
// all the Producer/Callback handoff ever needs at a time (spec §4.2/§4.3).
const semCapacity = 4

// maxChannels bounds the logical channel pool; the original backend also
// retries a bounded number of times rather than assuming unlimited channels
// (spec §4.5).
const maxChannels = 8

// Config configures the adapter at construction time.
type Config struct {
	DeviceIndex     int
	SampleRate      int
	Stereo          bool
	FramesPerBuffer int
}

// channel holds one logical channel's PortAudio resources and registered
// callbacks. callbackMode records whether stream was opened with
// OpenCallback (needing CloseCallback) or the blocking NewStream/Open path
// (needing Close), so ChannelStop tears it down the right way.
type channel struct {
	mu           sync.Mutex
	inUse        bool
	playing      atomic.Bool
	stream       *portaudio.PaStream
	callbackMode bool
	monoCB       bridgetypes.AudioCallback
	stereoCB     bridgetypes.AudioCallback
}

// HostAudio is the concrete bridgetypes.HostAudio backed by PortAudio.
type HostAudio struct {
	cfg Config

	channels [maxChannels]*channel

	quitRequested  atomic.Bool
	pauseRequested atomic.Bool
}

// New constructs a HostAudio. Callers must have already called
// portaudio.Initialize (mirroring the teacher's cmd-level Initialize/
// Terminate pairing; this package never calls it itself).
func New(cfg Config) *HostAudio {
	h := &HostAudio{cfg: cfg}
	for i := range h.channels {
		h.channels[i] = &channel{}
	}
	return h
}

// RequestQuit and RequestPause let the owning process (e.g. a signal
// handler) drive the probes the Producer and DeviceSession poll.
func (h *HostAudio) RequestQuit()       { h.quitRequested.Store(true) }
func (h *HostAudio) RequestPause(p bool) { h.pauseRequested.Store(p) }

func (h *HostAudio) GetFreeChannel() (int, error) {
	for i, c := range h.channels {
		c.mu.Lock()
		if !c.inUse {
			c.inUse = true
			c.mu.Unlock()
			return i, nil
		}
		c.mu.Unlock()
	}
	return 0, bridgetypes.ErrChannelUnavailable
}

func (h *HostAudio) GetInt(key bridgetypes.IntKey) int {
	switch key {
	case bridgetypes.OutputFreq:
		return h.cfg.SampleRate
	case bridgetypes.StereoEnabled:
		if h.cfg.Stereo {
			return 1
		}
		return 0
	}
	return 0
}

func (h *HostAudio) ChannelRegister(ch int, event bridgetypes.ChannelEvent, cb bridgetypes.AudioCallback) error {
	c, err := h.channelAt(ch)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch event {
	case bridgetypes.GenAudio:
		c.monoCB = cb
	case bridgetypes.GenAudioStereo:
		c.stereoCB = cb
	}
	return nil
}

func (h *HostAudio) ChannelUnregister(ch int, event bridgetypes.ChannelEvent) error {
	c, err := h.channelAt(ch)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch event {
	case bridgetypes.GenAudio:
		c.monoCB = nil
	case bridgetypes.GenAudioStereo:
		c.stereoCB = nil
	}
	return nil
}

// ChannelPlay starts playback on ch. loop=false plays buf once via a
// blocking write (used for the silence-priming burst, spec §4.4); loop=true
// ignores buf's contents and instead opens a pull-callback stream that
// drives the registered AudioCallback, the production playback path.
func (h *HostAudio) ChannelPlay(ch int, buf []byte, loop bool) error {
	c, err := h.channelAt(ch)
	if err != nil {
		return err
	}

	if !loop {
		return h.playOnceBlocking(c, buf)
	}
	return h.playLoopCallback(c)
}

func (h *HostAudio) playOnceBlocking(c *channel, buf []byte) error {
	sampleFormat := portaudio.SampleFmtInt16
	channelCount := 1
	if h.cfg.Stereo {
		channelCount = 2
	}

	stream, err := portaudio.NewStream(portaudio.PaStreamParameters{
		DeviceIndex:  h.cfg.DeviceIndex,
		ChannelCount: channelCount,
		SampleFormat: sampleFormat,
	}, float64(h.cfg.SampleRate))
	if err != nil {
		return fmt.Errorf("portaudio: failed to create priming stream: %w", err)
	}
	if err := stream.Open(h.cfg.FramesPerBuffer); err != nil {
		return fmt.Errorf("portaudio: failed to open priming stream: %w", err)
	}
	if err := stream.StartStream(); err != nil {
		return fmt.Errorf("portaudio: failed to start priming stream: %w", err)
	}

	frameSize := 2
	if h.cfg.Stereo {
		frameSize = 4
	}
	frames := len(buf) / frameSize
	if err := stream.Write(frames, buf); err != nil {
		slog.Warn("portaudio: priming write failed", "error", err)
	}

	c.playing.Store(true)
	c.mu.Lock()
	c.stream = stream
	c.callbackMode = false
	c.mu.Unlock()

	return nil
}

func (h *HostAudio) playLoopCallback(c *channel) error {
	sampleFormat := portaudio.SampleFmtInt16
	channelCount := 1
	if h.cfg.Stereo {
		channelCount = 2
	}

	stream := &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  h.cfg.DeviceIndex,
			ChannelCount: channelCount,
			SampleFormat: sampleFormat,
		},
		SampleRate: float64(h.cfg.SampleRate),
	}

	stereo := h.cfg.Stereo
	adapter := func(input, output []byte, frameCount uint, timeInfo *portaudio.StreamCallbackTimeInfo, statusFlags portaudio.StreamCallbackFlags) portaudio.StreamCallbackResult {
		c.mu.Lock()
		cb := c.monoCB
		if stereo && c.stereoCB != nil {
			cb = c.stereoCB
		}
		c.mu.Unlock()

		if cb == nil {
			return portaudio.Complete
		}

		produced, endSample := cb(output, int(frameCount), stereo)
		if endSample {
			return portaudio.Complete
		}
		_ = produced
		return portaudio.Continue
	}

	if err := stream.OpenCallback(h.cfg.FramesPerBuffer, adapter); err != nil {
		return fmt.Errorf("portaudio: failed to open callback stream: %w", err)
	}
	if err := stream.StartStream(); err != nil {
		return fmt.Errorf("portaudio: failed to start callback stream: %w", err)
	}

	c.playing.Store(true)
	c.mu.Lock()
	c.stream = stream
	c.callbackMode = true
	c.mu.Unlock()

	return nil
}

func (h *HostAudio) ChannelStop(ch int) error {
	c, err := h.channelAt(ch)
	if err != nil {
		return err
	}

	c.mu.Lock()
	stream := c.stream
	callbackMode := c.callbackMode
	c.stream = nil
	c.mu.Unlock()

	c.playing.Store(false)

	if stream == nil {
		return nil
	}
	if err := stream.StopStream(); err != nil {
		slog.Warn("portaudio: failed to stop stream", "error", err)
	}

	var closeErr error
	if callbackMode {
		closeErr = stream.CloseCallback()
	} else {
		closeErr = stream.Close()
	}
	if closeErr != nil {
		slog.Warn("portaudio: failed to close stream", "error", closeErr)
	}
	return nil
}

func (h *HostAudio) ChannelStatus(ch int) bridgetypes.ChannelPlayState {
	c, err := h.channelAt(ch)
	if err != nil {
		return bridgetypes.ChannelStopped
	}
	if c.playing.Load() {
		return bridgetypes.ChannelPlaying
	}
	return bridgetypes.ChannelStopped
}

// DeviceYield cooperatively yields for ms milliseconds.
func (h *HostAudio) DeviceYield(ms int) {
	if ms <= 0 {
		return
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func (h *HostAudio) DeviceCheckQuitRequest() bool  { return h.quitRequested.Load() }
func (h *HostAudio) DeviceCheckPauseRequest() bool { return h.pauseRequested.Load() }

func (h *HostAudio) TimerGetMs() int64 {
	return time.Now().UnixMilli()
}

// ThreadStart runs fn on its own goroutine. The returned Thread's Stop is
// cooperative only: Go provides no safe mechanism to force another
// goroutine to exit (spec §9 "volatile fields"; see bridgetypes.Thread).
func (h *HostAudio) ThreadStart(fn func()) bridgetypes.Thread {
	go fn()
	return goroutineThread{}
}

type goroutineThread struct{}

func (goroutineThread) Stop() {}

// SemCreate creates a counting semaphore (pkg/hostsem) with the given
// initial count.
func (h *HostAudio) SemCreate(initial int) bridgetypes.Semaphore {
	return hostsem.New(semCapacity, initial)
}

func (h *HostAudio) channelAt(ch int) (*channel, error) {
	if ch < 0 || ch >= len(h.channels) {
		return nil, bridgetypes.ErrChannelUnavailable
	}
	return h.channels[ch], nil
}
