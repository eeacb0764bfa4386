package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pearlgull/pearlgull/internal/config"
	"github.com/pearlgull/pearlgull/internal/providers"
	"github.com/pearlgull/pearlgull/internal/schema"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pearlgull status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	fmt.Printf("%s pearlgull Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", cfgPath, cfgMark)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	dataDir := config.DataDir()
	_, dirErr := os.Stat(dataDir)
	dirMark := "✗"
	if dirErr == nil {
		dirMark = "✓"
	}
	fmt.Printf("Data dir:  %s %s\n", dataDir, dirMark)
	fmt.Printf("Model:     %s\n\n", cfg.Model.DefaultModel)

	fmt.Printf("Model server: %s\n", cfg.Model.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := providers.NewLMStudioClient(cfg.Model.BaseURL, nil)
	models, err := client.ListModels(ctx)
	if err != nil {
		fmt.Printf("  ✗ unreachable: %v\n", err)
		return nil
	}

	loaded := 0
	for _, m := range models {
		if m.State == schema.ModelStateLoaded {
			loaded++
		}
	}
	fmt.Printf("  ✓ reachable, %d models (%d loaded)\n", len(models), loaded)
	return nil
}
