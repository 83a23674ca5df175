package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koopa0/ragline/internal/app"
)

var describeCmd = &cobra.Command{
	Use:   "describe [image] [question...]",
	Short: "Answer a question about an image",
	Long: `Send an image to the configured vision model, optionally with a
question about it. Without a question the image is described in detail.
Requires vision_model to be set in the configuration.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
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

	imagePath := args[0]
	question := strings.Join(args[1:], " ")

	answer, err := a.Pipeline.Describe(ctx, imagePath, question)
	if err != nil {
		return err
	}

	fmt.Println(answer)
	return nil
}
