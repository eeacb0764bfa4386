// Package cmd implements the pearlgull CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"
const logo = "🐚"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "pearlgull",
	Short: logo + " pearlgull — Context manager for local LLM chat",
	Long:  logo + " pearlgull — a context-window manager for chat backed by a locally hosted model",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modelsCmd)
}
