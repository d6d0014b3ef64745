package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "audiobridge",
	Short: "Pull-callback audio backend bridging a mixing engine to a host audio subsystem",
	Long: `audiobridge - a decoupling layer between a mixing engine that produces PCM
audio on demand and a host audio subsystem that drives playback via a pull
callback invoked from a restricted main thread.

The core is a producer/consumer pipeline: a lock-free SPSC ring buffer, a
dedicated mixing worker, and a semaphore-plus-flag handshake that lets the
host's callback obtain mixed samples without ever taking a lock the mixing
engine might hold.

Commands:
  - run: open a PortAudio-backed session and loop a demo WAV file through it
  - dump: same as run, but also captures every produced frame to a WAV file`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
