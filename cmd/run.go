package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/drgolem/audiobridge/pkg/backend"
	"github.com/drgolem/audiobridge/pkg/bridgetypes"
	"github.com/drgolem/audiobridge/pkg/democontent/wavmixer"
	hostportaudio "github.com/drgolem/audiobridge/pkg/hostaudio/portaudio"
)

var (
	runDeviceIdx   int
	runSampleRate  int
	runStereo      bool
	runFrames      int
	runContentFile string
	runVerbose     bool
)

// runCmd wires the whole pipeline together end to end: a PortAudio-backed
// HostAudio, a looping WAV-file Mixer standing in for the real mixing
// engine, and the backend.Registry that drives open/reset/stop/close.
var runCmd = &cobra.Command{
	Use:   "run <wav_file>",
	Short: "Open a playback session and loop a WAV file through the pull-callback pipeline",
	Long: `run opens a PortAudio output stream driven by the audiobridge decoupling
layer: a dedicated Producer goroutine mixes audio into a lock-free ring
buffer, and PortAudio's pull callback drains it, never blocking, never
mixing, never sleeping.

The content source is a looping WAV file (pkg/democontent/wavmixer) rather
than a real mixing engine, since the mixing engine itself is out of scope
(spec §1 names it as an external collaborator).

Examples:
  audiobridge run content.wav
  audiobridge run --rate 48000 --stereo content.wav`,
	Args: cobra.ExactArgs(1),
	Run:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runDeviceIdx, "device", "d", 1, "Audio output device index")
	runCmd.Flags().IntVar(&runSampleRate, "rate", 44100, "Output sample rate in Hz")
	runCmd.Flags().BoolVar(&runStereo, "stereo", true, "Negotiate stereo output")
	runCmd.Flags().IntVarP(&runFrames, "frames", "f", 512, "Nominal frames per callback (update_size)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose (debug) logging")
}

func runRun(cmd *cobra.Command, args []string) {
	runContentFile = args[0]
	setupLogging(runVerbose)

	if _, err := os.Stat(runContentFile); os.IsNotExist(err) {
		slog.Error("content file not found", "path", runContentFile)
		os.Exit(1)
	}

	slog.Info("initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	host := hostportaudio.New(hostportaudio.Config{
		DeviceIndex:     runDeviceIdx,
		SampleRate:      runSampleRate,
		Stereo:          runStereo,
		FramesPerBuffer: runFrames,
	})

	newMixer := func(layout bridgetypes.Layout, outputFreq int) (bridgetypes.Mixer, error) {
		return wavmixer.Load(runContentFile, outputFreq, layout)
	}

	registry := backend.New(host, newMixer)
	runSession(registry, runFrames)
}

// runSession drives a single open/reset/stop/close cycle until a signal is
// received. Shared by run and dump.
func runSession(registry *backend.Registry, updateSize int) {
	slog.Info("opening playback", "backend", backend.Name)
	if !registry.OpenPlayback("") {
		slog.Error("open_playback failed")
		os.Exit(1)
	}

	slog.Info("resetting playback", "update_size", updateSize)
	if !registry.ResetPlayback(updateSize) {
		slog.Error("reset_playback failed")
		registry.ClosePlayback()
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statusDone := make(chan struct{})
	go reportStatus(statusDone)

	sig := <-sigChan
	slog.Info("signal received, stopping", "signal", fmt.Sprint(sig))
	close(statusDone)

	registry.StopPlayback()
	registry.ClosePlayback()
	slog.Info("exiting")
}

func reportStatus(done chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			slog.Debug("session running")
		case <-done:
			return
		}
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
