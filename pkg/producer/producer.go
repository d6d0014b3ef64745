// Package producer implements the mixing worker: a dedicated goroutine that
// fills the free region of the ring buffer by calling the Mixer, then waits
// on a semaphore until space frees up again (spec §4.2).
//
// The Mixer is the only thing in this whole module allowed to take its own
// internal locks — it is only ever called from here, never from the
// Callback's host thread. That separation is the core correctness property
// of the design (spec §5).
package producer

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
	"github.com/drgolem/audiobridge/pkg/ringbuffer"
)

// waitTimeout bounds how long the Producer blocks on the semaphore before
// re-checking the host's quit/pause probes (spec §4.2 step 4, §5).
const waitTimeout = 10 * time.Millisecond

// Producer mixes audio into a ring buffer on a dedicated goroutine.
type Producer struct {
	ring       *ringbuffer.RingBuffer
	mixer      bridgetypes.Mixer
	sem        bridgetypes.Semaphore
	host       bridgetypes.HostAudio
	updateSize int

	kill         atomic.Bool
	threadExited atomic.Bool
}

// New builds a Producer that mixes up to updateSize frames per iteration
// into ring, waking on sem. It consults host's pause probe before every mix
// and its quit probe whenever a semaphore wait times out.
func New(ring *ringbuffer.RingBuffer, mixer bridgetypes.Mixer, sem bridgetypes.Semaphore, host bridgetypes.HostAudio, updateSize int) *Producer {
	return &Producer{
		ring:       ring,
		mixer:      mixer,
		sem:        sem,
		host:       host,
		updateSize: updateSize,
	}
}

// Kill requests cooperative termination. The caller is responsible for
// posting the semaphore afterward so a sleeping Producer wakes promptly
// (spec §5 "Controller always posts the semaphore after setting kill").
func (p *Producer) Kill() {
	p.kill.Store(true)
}

// Killed reports whether Kill has been called.
func (p *Producer) Killed() bool {
	return p.kill.Load()
}

// Exited reports whether Run has returned.
func (p *Producer) Exited() bool {
	return p.threadExited.Load()
}

// Run is the Producer's loop body, intended to be started on its own
// goroutine (e.g. via HostAudio.ThreadStart). It returns once kill is set
// or the host reports a quit request observed during an idle wait.
func (p *Producer) Run() {
	defer p.threadExited.Store(true)

	for !p.kill.Load() {
		free := p.ring.AvailableWrite()
		toMix := min(uint64(p.updateSize), free)

		if toMix > 0 && !p.host.DeviceCheckPauseRequest() {
			first, second := p.ring.WritableSpan(toMix)
			ok := p.mixSafely(first)
			if len(second) > 0 {
				ok = p.mixSafely(second) && ok
			}
			if ok {
				p.ring.CommitWrite(toMix)
			}
		}

		if woke := p.sem.Wait(waitTimeout); !woke {
			if p.host.DeviceCheckQuitRequest() {
				slog.Info("producer observed quit request, shutting down")
				p.kill.Store(true)
			}
		}
	}
}

// mixSafely calls Mixer.Mix, recovering from a panic rather than crashing
// the whole session (spec §9's open question: "error from Mixer.mix is
// unmodeled ... an implementer may choose to zero-fill and continue"). It
// reports false on panic, and Run then commits nothing for that iteration;
// the Callback's empty-ring fallback (which never zero-fills either) means a
// failing Mixer simply starves the ring until it recovers or the session is
// torn down.
func (p *Producer) mixSafely(dest []byte) (ok bool) {
	if len(dest) == 0 {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("mixer panicked, skipping this iteration", "panic", r)
			ok = false
		}
	}()
	p.mixer.Mix(dest, len(dest)/p.ring.FrameSize())
	return true
}
