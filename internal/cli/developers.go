package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KafClaw/taskclaw/internal/backend"
	"github.com/KafClaw/taskclaw/internal/config"
)

var (
	developersRefresh bool
	developersJSON    bool
)

var developersCmd = &cobra.Command{
	Use:   "developers",
	Short: "List developers known to the REST backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Backend.Kind != config.BackendREST {
			return fmt.Errorf("developer listing needs backend.kind=%s (current: %s)", config.BackendREST, cfg.Backend.Kind)
		}
		client := backend.NewClient(cmd.Context(), cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout, cfg.Backend.DeveloperCacheTTL)
		client.PersistDevelopers(filepath.Join(cfg.Paths.DataDir, "developers.json"))
		if developersRefresh {
			client.InvalidateDevelopers()
		}
		users, err := client.Developers(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if developersJSON {
			return writeJSON(out, users)
		}
		if len(users) == 0 {
			fmt.Fprintln(out, "No developers found.")
			return nil
		}
		for _, u := range users {
			fmt.Fprintf(out, "%-24s  %-28s  %s\n", u.Name, u.Email, u.ID)
		}
		return nil
	},
}

func init() {
	developersCmd.Flags().BoolVar(&developersRefresh, "refresh", false, "Ignore the cached listing")
	developersCmd.Flags().BoolVar(&developersJSON, "json", false, "Output machine-readable JSON")
}
