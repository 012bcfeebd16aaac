package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/taskclaw/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _            _        _\n" +
		" | |_ __ _ ___| | _____| | __ ___      __\n" +
		" | __/ _` / __| |/ / __| |/ _` \\ \\ /\\ / /\n" +
		" | || (_| \\__ \\   < (__| | (_| |\\ V  V /\n" +
		"  \\__\\__,_|___/_|\\_\\___|_|\\__,_| \\_/\\_/\n"
)

var (
	verbose  bool
	logJSON  bool
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "taskclaw",
	Short: "taskclaw - natural-language project and task commands",
	Long:  color.CyanString(logo) + "\nTurns plain-English requests into project and task changes using an LLM.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errCommandFailed) {
		fmt.Fprintln(os.Stderr, color.RedString("Error: ")+err.Error())
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(developersCmd)
}

func configureLogging() {
	logLevel.Set(slog.LevelWarn)
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if logJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.New(color.FgCyan, color.Bold).Sprint(title))
}
