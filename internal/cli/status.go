package cli

import (
	"fmt"
	"os"

	"github.com/cogpy/swarmcog/internal/config"
	"github.com/cogpy/swarmcog/internal/orchestrator"
	"github.com/cogpy/swarmcog/internal/timeline"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		printHeader(out, "🏷️ SwarmCog Version")
		fmt.Fprintf(out, "Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and persisted swarm state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printHeader(out, "📊 SwarmCog Status")
	fmt.Fprintf(out, "Version: %s\n", version)

	if path, err := config.ConfigPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintln(out, "Config:  ✓ Found ("+path+")")
		} else {
			fmt.Fprintln(out, "Config:  ✗ Not found (run 'swarmcog config init' to create one)")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "Scheduler: %s, %d workers, cycle every %s\n", cfg.Scheduler.Mode, cfg.Scheduler.Workers, cfg.Scheduler.CycleInterval)
	if cfg.Events.KafkaEnabled {
		fmt.Fprintf(out, "Kafka:   ✓ %s (events %s, inject %s)\n", cfg.Events.KafkaBrokers, cfg.Events.Topic, cfg.Events.InjectTopic)
	} else {
		fmt.Fprintln(out, "Kafka:   ✗ Disabled")
	}

	tl, err := openTimeline(cfg)
	if err != nil {
		fmt.Fprintf(out, "Timeline: ✗ %v\n", err)
		return nil
	}
	defer tl.Close()
	fmt.Fprintln(out, "Timeline: ✓ "+cfg.Timeline.DBPath)

	info, err := tl.SnapshotInfo()
	if err != nil {
		return err
	}
	if info.SavedAt.IsZero() {
		fmt.Fprintln(out, "Snapshot: none saved yet")
	} else {
		fmt.Fprintf(out, "Snapshot: %d entities (%d links), %d agents, saved %s\n",
			info.Entities, info.Links, info.Agents, info.SavedAt.Local().Format("2006-01-02 15:04:05"))
	}
	for _, job := range []string{orchestrator.JobDecay, orchestrator.JobSnapshot} {
		if v, err := tl.GetSetting("job:" + job); err == nil {
			fmt.Fprintf(out, "Job %-16s %s\n", job+":", v)
		}
	}
	return nil
}

// openTimeline opens the configured timeline database for reading. It does
// not create a missing database.
func openTimeline(cfg *config.Config) (*timeline.TimelineService, error) {
	if !cfg.Timeline.Enabled {
		return nil, fmt.Errorf("timeline disabled")
	}
	if _, err := os.Stat(cfg.Timeline.DBPath); err != nil {
		return nil, fmt.Errorf("no timeline at %s (run 'swarmcog run' first)", cfg.Timeline.DBPath)
	}
	return timeline.NewTimelineService(cfg.Timeline.DBPath)
}
