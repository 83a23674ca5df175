// Package cmd implements the ragline command-line interface.
//
// Design: following the pattern used by kubectl, hugo, and other
// standard Go CLI tools, all application logic lives in the cmd
// package, leaving main.go as a minimal entry point.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/koopa0/ragline/internal/config"
	"github.com/koopa0/ragline/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ragline",
	Short: "ragline - retrieval-augmented chat over your own documents",
	Long: `ragline answers questions over documents you ingest, grounding a
local or hosted language model with retrieved context and keeping
conversation history so follow-up questions work naturally.

Running ragline with no arguments starts an interactive chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// initRuntime loads configuration and installs the structured logger.
// Called by every subcommand that needs the full application.
func initRuntime() (*config.Config, log.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.NewWithWriter(os.Stderr, log.Config{Level: level})
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
