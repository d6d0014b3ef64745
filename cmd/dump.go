package cmd

import (
	"log/slog"
	"os"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/drgolem/audiobridge/pkg/backend"
	"github.com/drgolem/audiobridge/pkg/bridgetypes"
	"github.com/drgolem/audiobridge/pkg/democontent/wavmixer"
	"github.com/drgolem/audiobridge/pkg/diagnostics/dump"
	hostportaudio "github.com/drgolem/audiobridge/pkg/hostaudio/portaudio"
)

var (
	dumpDeviceIdx   int
	dumpSampleRate  int
	dumpStereo      bool
	dumpFrames      int
	dumpOutFile     string
	dumpVerbose     bool
)

// dumpCmd is identical to run, except every frame the Producer mixes is
// also captured to a WAV file on disk (pkg/diagnostics/dump). Spec §1/§9
// call this file-based variant a debugging detour, not the production
// design — it exists here purely to make the pipeline's output inspectable
// offline.
var dumpCmd = &cobra.Command{
	Use:   "dump <wav_file>",
	Short: "Run the playback pipeline and capture everything it produces to a WAV file",
	Long: `dump behaves exactly like run, but wraps the Mixer in a diagnostic tee that
writes every frame the Producer mixes to an output WAV file, so the
pipeline's behavior can be inspected offline rather than only heard live.

Examples:
  audiobridge dump --out capture.wav content.wav`,
	Args: cobra.ExactArgs(1),
	Run:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().IntVarP(&dumpDeviceIdx, "device", "d", 1, "Audio output device index")
	dumpCmd.Flags().IntVar(&dumpSampleRate, "rate", 44100, "Output sample rate in Hz")
	dumpCmd.Flags().BoolVar(&dumpStereo, "stereo", true, "Negotiate stereo output")
	dumpCmd.Flags().IntVarP(&dumpFrames, "frames", "f", 512, "Nominal frames per callback (update_size)")
	dumpCmd.Flags().StringVar(&dumpOutFile, "out", "capture.wav", "Path to write the captured WAV file")
	dumpCmd.Flags().BoolVarP(&dumpVerbose, "verbose", "v", false, "Verbose (debug) logging")
}

func runDump(cmd *cobra.Command, args []string) {
	contentFile := args[0]
	setupLogging(dumpVerbose)

	if _, err := os.Stat(contentFile); os.IsNotExist(err) {
		slog.Error("content file not found", "path", contentFile)
		os.Exit(1)
	}

	slog.Info("initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	host := hostportaudio.New(hostportaudio.Config{
		DeviceIndex:     dumpDeviceIdx,
		SampleRate:      dumpSampleRate,
		Stereo:          dumpStereo,
		FramesPerBuffer: dumpFrames,
	})

	var capture *dump.Mixer
	newMixer := func(layout bridgetypes.Layout, outputFreq int) (bridgetypes.Mixer, error) {
		inner, err := wavmixer.Load(contentFile, outputFreq, layout)
		if err != nil {
			return nil, err
		}
		c, err := dump.New(inner, dumpOutFile, outputFreq, layout)
		if err != nil {
			return nil, err
		}
		capture = c
		return c, nil
	}

	registry := backend.New(host, newMixer)
	runSession(registry, dumpFrames)

	if capture != nil {
		slog.Info("closing capture file", "path", dumpOutFile)
		if err := capture.Close(); err != nil {
			slog.Warn("failed to close capture file", "error", err)
		}
	}
}
