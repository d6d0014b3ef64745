// Package prime implements the silence-priming workaround for the host
// streaming quirk described in spec §4.4 and §9: immediately after
// acquiring a channel, play a short burst of zeroed audio, yield briefly,
// stop the channel, and wait (bounded) for it to leave the playing state.
// Without this step the host has been observed to mute the subsequent real
// playback.
package prime

import (
	"time"

	"github.com/drgolem/audiobridge/pkg/bridgetypes"
)

// silenceFrames is the ~2048 samples of zeroed audio spec §4.4 calls for.
const silenceFrames = 2048

// drainTimeout bounds how long Silence waits for the channel to report it
// has stopped playing the silence burst (spec §4.4, §5: "bounded to ~150ms").
const drainTimeout = 150 * time.Millisecond

// pollInterval is how often Silence re-checks channel status while waiting
// for the drain, via DeviceYield — it must not sleep on a lock-holding
// thread, so it always goes through the host's own cooperative yield.
const pollInterval = 2 * time.Millisecond

// Silence plays ~2048 zeroed frames on channel, yields briefly, stops the
// channel, and waits up to drainTimeout for it to report stopped. Any
// ChannelPlay/ChannelStop failure is returned; a timed-out drain is not an
// error — the caller proceeds regardless, since the workaround is
// best-effort (spec never specifies failure behavior here, and the
// original source treats this purely as a drain wait, not a hard gate).
func Silence(host bridgetypes.HostAudio, channel int, layout bridgetypes.Layout) error {
	buf := make([]byte, silenceFrames*layout.FrameSize())

	if err := host.ChannelPlay(channel, buf, false); err != nil {
		return err
	}

	host.DeviceYield(1)

	if err := host.ChannelStop(channel); err != nil {
		return err
	}

	deadline := time.Now().Add(drainTimeout)
	for host.ChannelStatus(channel) == bridgetypes.ChannelPlaying && time.Now().Before(deadline) {
		host.DeviceYield(int(pollInterval / time.Millisecond))
	}

	return nil
}
