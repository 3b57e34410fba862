package cli

import (
	"fmt"

	"github.com/cogpy/swarmcog/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	tasksAgent   string
	tasksLimit   int
	tasksSummary bool
	tasksJSON    bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show recorded cognitive task runs",
	RunE:  runTasks,
}

func init() {
	tasksCmd.Flags().StringVar(&tasksAgent, "agent", "", "only runs of this agent")
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 20, "maximum runs to print")
	tasksCmd.Flags().BoolVar(&tasksSummary, "summary", false, "print per-phase totals instead of runs")
	tasksCmd.Flags().BoolVar(&tasksJSON, "json", false, "print JSON")
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	tl, err := openTimeline(cfg)
	if err != nil {
		return err
	}
	defer tl.Close()
	out := cmd.OutOrStdout()

	if tasksSummary {
		summary, err := tl.TaskRunSummary()
		if err != nil {
			return err
		}
		if tasksJSON {
			return printJSON(out, summary)
		}
		fmt.Fprintf(out, "%-12s %9s %6s %8s\n", "PHASE", "COMPLETED", "FAILED", "AVG MS")
		for _, p := range summary {
			fmt.Fprintf(out, "%-12s %9d %6d %8.2f\n", p.Phase, p.Completed, p.Failed, p.AvgMs)
		}
		return nil
	}

	runs, err := tl.ListTaskRuns(tasksAgent, tasksLimit)
	if err != nil {
		return err
	}
	if tasksJSON {
		return printJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No task runs recorded.")
		return nil
	}
	for _, r := range runs {
		status := color.GreenString(r.Status)
		if r.Status != "completed" {
			status = color.RedString(r.Status)
		}
		line := fmt.Sprintf("%s %-20s %-12s %s %dms", r.StartedAt.Local().Format("15:04:05"), r.AgentID, r.Phase, status, r.DurationMs)
		if r.ErrorText != "" {
			line += " " + r.ErrorText
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
