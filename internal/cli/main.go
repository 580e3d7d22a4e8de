package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "montage <transcript.json>",
		Short:        "Resolve a time-aligned transcript into a renderable timeline",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	// Visible flags
	root.Flags().String("out", "timeline.json", "Resolved timeline output path")
	root.Flags().String("config", "", "Engine config file (yaml)")
	root.Flags().String("store", "", "SQLite snapshot store path (disabled when empty)")
	root.Flags().Int("top-k", 0, "Candidates kept per segment (overrides config)")
	root.Flags().Float64("zoom-threshold", 0, "Emphasis level that triggers a zoom (overrides config)")

	// Hidden tuning flag (internal)
	root.Flags().String("provider-url", "", "Override footage provider base URL")
	_ = root.Flags().MarkHidden("provider-url")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
