package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pearlgull/pearlgull/internal/config"
	"github.com/pearlgull/pearlgull/internal/providers"
	"github.com/pearlgull/pearlgull/internal/schema"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models on the model server",
	RunE:  runModels,
}

func runModels(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := providers.NewLMStudioClient(cfg.Model.BaseURL, nil)
	models, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	if len(models) == 0 {
		fmt.Println("No models found.")
		return nil
	}

	for _, m := range models {
		mark := " "
		if m.State == schema.ModelStateLoaded {
			mark = "✓"
		}
		window := "?"
		switch {
		case m.LoadedContext > 0:
			window = fmt.Sprintf("%d (loaded)", m.LoadedContext)
		case m.MaxContext > 0:
			window = fmt.Sprintf("%d (max)", m.MaxContext)
		}
		defaultMark := ""
		if m.ID == cfg.Model.DefaultModel {
			defaultMark = "  [default]"
		}
		fmt.Printf("  %s %-40s ctx %s%s\n", mark, m.ID, window, defaultMark)
	}
	return nil
}
