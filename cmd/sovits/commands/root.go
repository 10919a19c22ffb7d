package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "sovits",
	Short: "Dataset and training utilities for singing voice conversion",
	Long: `sovits - dataset and training support tools for singing voice conversion.

The training pipeline stores each corpus clip as a feature bundle
(content embedding, f0, spectrograms, waveform, speaker id) next to the
audio. These commands inspect prepared bundles, maintain checkpoint
directories and provision pretrained assets.

Examples:
  # Check every manifest entry against the config's frame contract
  sovits dataset verify -c configs/44k/config.json

  # Keep the 3 newest G/D checkpoints, never touching the _0 inits
  sovits checkpoint clean --dir logs/44k --keep 3

  # Fetch the init checkpoints and content-encoder weights
  sovits pretrained download --dir logs/44k --content-encoder`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
