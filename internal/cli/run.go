package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/taskclaw/internal/agent"
	"github.com/KafClaw/taskclaw/internal/executor"
)

var (
	runMessage string
	runDryRun  bool
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run [text]",
	Short: "Interpret and execute one natural-language command",
	Example: `  taskclaw run -m "Create a project called Website Revamp"
  taskclaw run --dry-run "Delete the Legacy project"`,
	Args: cobra.ArbitraryArgs,
	RunE: runCommand,
}

func init() {
	runCmd.Flags().StringVarP(&runMessage, "message", "m", "", "Command text")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Plan actions without changing anything")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Output machine-readable JSON")
}

func runCommand(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(runMessage)
	if text == "" {
		text = strings.TrimSpace(strings.Join(args, " "))
	}
	if text == "" {
		return fmt.Errorf("command text is required (use -m or pass it as arguments)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if cfg.Model.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Model.Timeout)
		defer cancel()
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	res := rt.pipeline.Process(ctx, agent.Request{
		Text:    text,
		Sender:  currentUser(),
		Channel: "cli",
		DryRun:  runDryRun,
	})
	if err := printResult(cmd.OutOrStdout(), res, runJSON); err != nil {
		return err
	}
	if !res.Success {
		return errCommandFailed
	}
	return nil
}

// errCommandFailed makes the process exit non-zero after the result was printed.
var errCommandFailed = errors.New("command failed")

func printResult(w io.Writer, res executor.Result, asJSON bool) error {
	if asJSON {
		return writeJSON(w, res)
	}
	switch {
	case res.Canceled:
		fmt.Fprintln(w, color.YellowString("⚠ %s", res.Message))
	case res.Success:
		fmt.Fprintln(w, color.GreenString("✓ ")+res.Message)
	default:
		fmt.Fprintln(w, color.RedString("✗ ")+res.Message)
	}
	if len(res.Actions) > 0 {
		fmt.Fprintf(w, "Actions: %s\n", strings.Join(res.Actions, ", "))
	}
	if res.CreatedProjectID != "" {
		fmt.Fprintf(w, "Project: %s\n", res.CreatedProjectID)
	}
	if len(res.CreatedTaskIDs) > 0 {
		fmt.Fprintf(w, "Tasks:   %s\n", strings.Join(res.CreatedTaskIDs, ", "))
	}
	return nil
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
