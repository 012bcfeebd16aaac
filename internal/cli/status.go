package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KafClaw/taskclaw/internal/config"
	"github.com/KafClaw/taskclaw/internal/provider"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "taskclaw %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and model status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		printHeader(out, "taskclaw status")
		fmt.Fprintf(out, "Version: %s\n", version)

		configPath, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintln(out, "Config:  ✓ Found ("+configPath+")")
			} else {
				fmt.Fprintln(out, "Config:  ✗ Not found, using defaults ("+configPath+")")
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		provID, model := provider.ParseModelString(cfg.Model.Name)
		fmt.Fprintf(out, "Model:   %s (provider %s)\n", model, provider.NormalizeProviderID(provID))
		if _, err := newGenerator(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(out, "LLM:     ✗ %v\n", err)
		} else {
			fmt.Fprintln(out, "LLM:     ✓ Configured")
		}

		switch cfg.Backend.Kind {
		case config.BackendREST:
			fmt.Fprintf(out, "Backend: rest (%s)\n", cfg.Backend.BaseURL)
		default:
			fmt.Fprintf(out, "Backend: local (%s)\n", cfg.Paths.DataDir)
		}
		fmt.Fprintf(out, "Slack:   %s\n", enabledMark(cfg.Channels.Slack.Enabled))
		fmt.Fprintf(out, "Kafka:   %s\n", enabledMark(cfg.Kafka.Enabled))

		tl, err := openTimeline(cfg)
		if err != nil {
			fmt.Fprintf(out, "History: ✗ %v\n", err)
			return nil
		}
		defer tl.Close()
		stats, err := tl.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "History: %d commands (%d succeeded, %d failed, %d canceled)\n",
			stats.Total, stats.Succeeded, stats.Failed, stats.Canceled)
		return nil
	},
}

func enabledMark(on bool) string {
	if on {
		return "✓ Enabled"
	}
	return "✗ Disabled"
}
