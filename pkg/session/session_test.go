package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
	"github.com/drgolem/audiobridge/pkg/hostsem"
)

// fakeMixer fills every mix request with an incrementing byte so tests can
// tell mixed regions apart from untouched ones.
type fakeMixer struct {
	calls atomic.Int64
}

func (m *fakeMixer) Mix(dest []byte, nframes int) {
	n := byte(m.calls.Add(1))
	for i := range dest {
		dest[i] = n
	}
}

// fakeHost is a minimal in-memory HostAudio for exercising Session without
// any real audio device. Threads are modeled as goroutines started
// directly, bypassing the host's own thread pool.
type fakeHost struct {
	freeChannel   int
	channelErr    error
	stereoEnabled int
	outputFreq    int

	played  [][]byte
	stopped atomic.Int64
	status  bridgetypes.ChannelPlayState

	quit  atomic.Bool
	pause atomic.Bool
}

func (h *fakeHost) GetFreeChannel() (int, error) {
	if h.channelErr != nil {
		return 0, h.channelErr
	}
	return h.freeChannel, nil
}

func (h *fakeHost) GetInt(key bridgetypes.IntKey) int {
	switch key {
	case bridgetypes.StereoEnabled:
		return h.stereoEnabled
	case bridgetypes.OutputFreq:
		return h.outputFreq
	}
	return 0
}

func (h *fakeHost) ChannelRegister(channel int, event bridgetypes.ChannelEvent, cb bridgetypes.AudioCallback) error {
	return nil
}

func (h *fakeHost) ChannelUnregister(channel int, event bridgetypes.ChannelEvent) error {
	return nil
}

func (h *fakeHost) ChannelPlay(channel int, buf []byte, loop bool) error {
	h.played = append(h.played, buf)
	h.status = bridgetypes.ChannelPlaying
	return nil
}

func (h *fakeHost) ChannelStop(channel int) error {
	h.stopped.Add(1)
	h.status = bridgetypes.ChannelStopped
	return nil
}

func (h *fakeHost) ChannelStatus(channel int) bridgetypes.ChannelPlayState {
	return h.status
}

func (h *fakeHost) DeviceYield(ms int) {}

func (h *fakeHost) DeviceCheckQuitRequest() bool  { return h.quit.Load() }
func (h *fakeHost) DeviceCheckPauseRequest() bool { return h.pause.Load() }

func (h *fakeHost) TimerGetMs() int64 { return time.Now().UnixMilli() }

func (h *fakeHost) ThreadStart(fn func()) bridgetypes.Thread {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	return &fakeThread{done: done}
}

func (h *fakeHost) SemCreate(initial int) bridgetypes.Semaphore {
	return hostsem.New(64, initial)
}

type fakeThread struct {
	done chan struct{}
}

func (t *fakeThread) Stop() {}

func newFakeHost() *fakeHost {
	return &fakeHost{freeChannel: 3, outputFreq: 22050}
}

func TestOpenRejectsMismatchedName(t *testing.T) {
	host := newFakeHost()

	s, err := Open(host, "audiobridge", "some-other-backend")
	if err != nil {
		t.Fatalf("Open returned error for a name mismatch, want nil,nil rejection: %v", err)
	}
	if s != nil {
		t.Fatal("Open returned a session for a name mismatch")
	}
}

func TestOpenAcceptsEmptyOrMatchingName(t *testing.T) {
	for _, name := range []string{"", "audiobridge"} {
		host := newFakeHost()

		s, err := Open(host, "audiobridge", name)
		if err != nil {
			t.Fatalf("Open(%q) returned error: %v", name, err)
		}
		if s == nil {
			t.Fatalf("Open(%q) returned nil session", name)
		}
		if s.Channel() != host.freeChannel {
			t.Fatalf("session channel = %d, want %d", s.Channel(), host.freeChannel)
		}
	}
}

func TestOpenPrimesSilenceBeforeReturning(t *testing.T) {
	host := newFakeHost()

	if _, err := Open(host, "audiobridge", ""); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if len(host.played) != 1 {
		t.Fatalf("expected exactly one silence-priming ChannelPlay call, got %d", len(host.played))
	}
	if host.stopped.Load() != 1 {
		t.Fatalf("expected silence priming to stop the channel once, got %d stops", host.stopped.Load())
	}
}

func TestResetStartsProducerAndPlayback(t *testing.T) {
	host := newFakeHost()
	mixer := &fakeMixer{}

	s, err := Open(host, "audiobridge", "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	if err := s.Reset(64, mixer); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for mixer.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if mixer.calls.Load() == 0 {
		t.Fatal("producer never mixed after Reset")
	}

	// 1 priming play + 1 real playback start.
	if len(host.played) != 2 {
		t.Fatalf("expected 2 ChannelPlay calls (priming + playback), got %d", len(host.played))
	}

	s.Stop()
	s.Close()
}

func TestCallbackReturnsFullCountOnUnderrun(t *testing.T) {
	host := newFakeHost()
	mixer := &fakeMixer{}

	s, err := Open(host, "audiobridge", "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := s.Reset(8, mixer); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	// Drain whatever the producer managed to mix so the ring is empty
	// before the assertion.
	s.ring.Reset()

	dest := make([]byte, 8*s.Layout().FrameSize())
	for i := range dest {
		dest[i] = 0xAB
	}

	produced, endSample := s.Callback(dest, 8, false)
	if produced != 8 {
		t.Fatalf("produced = %d, want 8 (return-full-on-empty policy)", produced)
	}
	if endSample {
		t.Fatal("endSample should be false on a plain underrun")
	}
	for i, b := range dest {
		if b != 0xAB {
			t.Fatalf("destination byte %d was modified on an empty ring: got %x", i, b)
		}
	}

	s.Stop()
	s.Close()
}

func TestCallbackSignalsEndSampleAfterKill(t *testing.T) {
	host := newFakeHost()
	mixer := &fakeMixer{}

	s, err := Open(host, "audiobridge", "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := s.Reset(8, mixer); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	s.Stop()

	dest := make([]byte, 8*s.Layout().FrameSize())
	produced, endSample := s.Callback(dest, 8, false)
	if produced != 8 {
		t.Fatalf("produced = %d, want 8 even when draining", produced)
	}
	if !endSample {
		t.Fatal("endSample should be true once kill has been observed")
	}

	s.Close()
}

func TestStopIsIdempotent(t *testing.T) {
	host := newFakeHost()
	mixer := &fakeMixer{}

	s, err := Open(host, "audiobridge", "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := s.Reset(8, mixer); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	s.Stop()
	s.Stop() // must not panic or double-close the semaphore

	s.Close()
}
