package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/KafClaw/taskclaw/internal/config"
	"github.com/KafClaw/taskclaw/internal/diag"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity to the model, backend and Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		report := &diag.Report{}

		gen, genErr := newGenerator(ctx, cfg)
		diag.CheckModel(report, cfg.Model.Name, gen, genErr)

		repo, local, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		if local != nil {
			defer local.Close()
		}
		target := cfg.Backend.BaseURL
		if cfg.Backend.Kind != config.BackendREST {
			target = "local"
		}
		diag.CheckBackend(ctx, report, target, repo, cfg.Backend.Timeout)

		if cfg.Kafka.Enabled {
			var brokers []string
			for _, b := range strings.Split(cfg.Kafka.Brokers, ",") {
				if b = strings.TrimSpace(b); b != "" {
					brokers = append(brokers, b)
				}
			}
			diag.CheckKafka(ctx, report, brokers, []string{cfg.Kafka.CommandTopic, cfg.Kafka.ResultTopic}, 0)
		} else {
			diag.Skip(report, "kafka", "Kafka relay disabled")
		}

		out := cmd.OutOrStdout()
		if doctorJSON {
			if err := writeJSON(out, report); err != nil {
				return err
			}
		} else {
			printHeader(out, "taskclaw doctor")
			report.Print(out)
		}
		if report.Failed() {
			return errCommandFailed
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output machine-readable JSON")
	rootCmd.AddCommand(doctorCmd)
}
