package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/koopa0/ragline/internal/app"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [url...]",
	Short: "Fetch web pages into the knowledge base",
	Long: `Fetch one or more web pages, extract their readable text, and load
it into the knowledge base as embedded chunks. Re-ingesting the same
URL updates its chunks in place.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := initRuntime()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("closing application", "error", cerr)
		}
	}()

	var failed int
	for _, url := range args {
		result, err := a.Ingestor.IngestURL(ctx, url)
		if err != nil {
			failed++
			fmt.Printf("FAIL %s: %v\n", url, err)
			continue
		}
		fmt.Printf("OK   %s: %d chunks (%d chars) in %s\n",
			url, result.ChunksAdded, result.TotalChars, result.Duration.Round(time.Millisecond))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d pages failed", failed, len(args))
	}
	return nil
}
