package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/koopa0/ragline/internal/app"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
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

	sessionID := uuid.NewString()
	fmt.Printf("ragline (%s on %s)\n", cfg.ModelName, cfg.Provider)
	fmt.Println("Type /help for commands, /exit to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			// EOF (Ctrl+D)
			fmt.Println("\nGoodbye!")
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch input {
		case "/exit", "/quit":
			fmt.Println("Goodbye!")
			return nil
		case "/help":
			printChatHelp()
			continue
		case "/clear":
			a.Pipeline.Reset(sessionID)
			fmt.Println("History cleared.")
			continue
		case "/new":
			sessionID = uuid.NewString()
			fmt.Println("Started a new session.")
			continue
		}

		if err := streamAnswer(ctx, a, sessionID, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		fmt.Println()
	}
}

// streamAnswer runs one turn, printing fragments as they arrive.
func streamAnswer(ctx context.Context, a *app.App, sessionID, question string) error {
	printed := false
	_, err := a.Pipeline.AskStream(ctx, sessionID, question,
		func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			fmt.Print(chunk.Text())
			printed = true
			return nil
		})
	if printed {
		fmt.Println()
	}
	return err
}

func printChatHelp() {
	fmt.Println(`Commands:
  /help   show this help
  /clear  clear the conversation history
  /new    start a fresh session
  /exit   quit`)
}
