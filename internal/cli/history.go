package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/taskclaw/internal/timeline"
)

var (
	historyLimit   int
	historyJSON    bool
	historyFailed  bool
	historySender  string
	historyChannel string
)

var historyCmd = &cobra.Command{
	Use:   "history [trace-id]",
	Short: "List processed commands, or show one by trace id",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of commands to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output machine-readable JSON")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "Only list failed commands")
	historyCmd.Flags().StringVar(&historySender, "sender", "", "Filter by sender")
	historyCmd.Flags().StringVar(&historyChannel, "channel", "", "Filter by channel (cli, api, slack, kafka)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tl, err := openTimeline(cfg)
	if err != nil {
		return err
	}
	defer tl.Close()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		rec, err := tl.GetCommandByTraceID(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no command with trace id %s", args[0])
		}
		decisions, err := tl.ListPolicyDecisions(rec.TraceID)
		if err != nil {
			return err
		}
		if historyJSON {
			return writeJSON(out, map[string]any{"command": rec, "policyDecisions": decisions})
		}
		printCommandDetail(out, rec, decisions)
		return nil
	}

	records, err := tl.ListCommands(timeline.CommandFilter{
		Sender:    historySender,
		Channel:   historyChannel,
		OnlyFails: historyFailed,
		Limit:     historyLimit,
	})
	if err != nil {
		return err
	}
	if historyJSON {
		if records == nil {
			records = []timeline.CommandRecord{}
		}
		return writeJSON(out, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No commands recorded.")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(out, "%s  %s  %-5s  %s\n", statusMark(r), r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Channel, r.Input)
		fmt.Fprintf(out, "    %s  %s\n", color.HiBlackString(r.TraceID), firstLine(r.Message))
	}
	return nil
}

func printCommandDetail(w io.Writer, r *timeline.CommandRecord, decisions []timeline.PolicyDecisionRecord) {
	fmt.Fprintf(w, "Trace:    %s\n", r.TraceID)
	fmt.Fprintf(w, "When:     %s (%dms)\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.DurationMs)
	fmt.Fprintf(w, "From:     %s via %s\n", r.Sender, r.Channel)
	fmt.Fprintf(w, "Input:    %s\n", r.Input)
	fmt.Fprintf(w, "Intent:   %s\n", r.Intent)
	if r.Model != "" {
		fmt.Fprintf(w, "Model:    %s\n", r.Model)
	}
	if len(r.Actions) > 0 {
		fmt.Fprintf(w, "Actions:  %s\n", strings.Join(r.Actions, ", "))
	}
	fmt.Fprintf(w, "Result:   %s %s\n", statusMark(*r), r.Message)
	for _, d := range decisions {
		verdict := "allowed"
		if !d.Allowed {
			verdict = "denied"
		}
		fmt.Fprintf(w, "Policy:   %s tier=%d %s\n", verdict, d.Tier, d.Reason)
	}
	if r.Reply != "" {
		fmt.Fprintf(w, "Reply:\n%s\n", r.Reply)
	}
}

func statusMark(r timeline.CommandRecord) string {
	switch {
	case r.Canceled:
		return color.YellowString("⊘")
	case r.Success:
		return color.GreenString("✓")
	default:
		return color.RedString("✗")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
