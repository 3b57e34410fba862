package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cogpy/swarmcog/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/cogpy/swarmcog/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  ___                        ___\n" +
		" / __|_ __ ____ _ _ _ _ __  / __|___  __ _\n" +
		" \\__ \\ V  V / _` | '_| '  \\| (__/ _ \\/ _` |\n" +
		" |___/\\_/\\_/\\__,_|_| |_|_|_|\\___\\___/\\__, |\n" +
		"                                     |___/\n"

	configFlag string
)

var rootCmd = &cobra.Command{
	Use:   "swarmcog",
	Short: "SwarmCog - cognitive agent swarm",
	Long:  color.CyanString(logo) + "\nA swarm of cognitive agents sharing one knowledge graph, driven by a seven-phase scheduler.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFlag != "" {
			os.Setenv("SWARMCOG_CONFIG", configFlag)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.swarmcog/config.json)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(knowledgeCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(configCmd)
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.CyanString(logo))
	if title != "" {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, "─────────────────────")
	}
}

// newLogger builds the slog handler selected by cfg.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
