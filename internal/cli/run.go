package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/montagehq/montage/internal/config"
	"github.com/montagehq/montage/internal/pipeline"
)

func run(cmd *cobra.Command, transcript string) error {
	outPath, _ := cmd.Flags().GetString("out")
	configPath, _ := cmd.Flags().GetString("config")
	storePath, _ := cmd.Flags().GetString("store")
	providerURL, _ := cmd.Flags().GetString("provider-url")

	apiKey := os.Getenv("PEXELS_API_KEY")
	if apiKey == "" {
		return errors.New("PEXELS_API_KEY is required (set it in .env)")
	}

	absIn, err := filepath.Abs(transcript)
	if err != nil {
		return err
	}

	engineCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("top-k") {
		engineCfg.Match.TopK, _ = cmd.Flags().GetInt("top-k")
	}
	if cmd.Flags().Changed("zoom-threshold") {
		engineCfg.Effects.ZoomThreshold, _ = cmd.Flags().GetFloat64("zoom-threshold")
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	cfg := pipeline.Config{
		TranscriptPath: absIn,
		OutPath:        outPath,
		StorePath:      storePath,
		PexelsAPIKey:   apiKey,
		PexelsBaseURL:  providerURL,
		Engine:         engineCfg,
		Logger:         log,
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return pipeline.Run(ctx, cfg)
}
