package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pearlgull/pearlgull/internal/chat"
	"github.com/pearlgull/pearlgull/internal/config"
	"github.com/pearlgull/pearlgull/internal/dependency"
	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/shared/cmdutils"
)

var (
	chatMessage string
	chatThread  string
	chatModel   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the model",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&chatThread, "thread", "t", "cli:direct", "Thread ID")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Model ID (overrides config)")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runChat(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	engine := container.Engine()

	if chatMessage != "" {
		return runSingleMessage(engine)
	}
	return runInteractive(engine)
}

// runSingleMessage runs one turn and prints the reply.
func runSingleMessage(engine *chat.Engine) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	reply, err := runTurn(ctx, engine, chatMessage, false)
	if err != nil {
		return err
	}
	cmdutils.PrintResponse(reply)
	return nil
}

// runInteractive starts the REPL loop: reads lines from stdin and runs
// one turn per line, streaming the reply as it arrives.
func runInteractive(engine *chat.Engine) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n\n", logo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenForSignals(cancel)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")

		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		fmt.Printf("\n%s pearlgull\n", logo)
		if _, err := runTurn(ctx, engine, line, true); err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
		fmt.Print("\n\n")
	}
}

// runTurn executes one turn and returns the full reply text. When
// stream is set, deltas are printed as they arrive.
func runTurn(ctx context.Context, engine *chat.Engine, text string, stream bool) (string, error) {
	var sb strings.Builder
	err := engine.Run(ctx, chat.TurnRequest{
		ThreadID: chatThread,
		UserText: text,
		Model:    chatModel,
	}, func(ev schema.TurnEvent) {
		if ev.Type == schema.EventDelta {
			if stream {
				fmt.Print(ev.Delta)
			}
			sb.WriteString(ev.Delta)
		}
	})
	return sb.String(), err
}

// listenForSignals cancels ctx on SIGINT or SIGTERM and exits.
func listenForSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nGoodbye!")
		cancel()
		os.Exit(0)
	}()
}
