package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/cogpy/swarmcog/internal/config"
	"github.com/cogpy/swarmcog/internal/orchestrator"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	runAgents   int
	runDuration time.Duration
	runWorkers  int
	runMode     string
	runCycles   int
	runResume   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a research team swarm",
	Long: "Run creates a research team (or resumes the saved swarm) and drives it.\n" +
		"With --cycles the cycles run synchronously and the command exits;\n" +
		"otherwise the swarm runs autonomously until interrupted or --duration elapses.",
	RunE: runSwarm,
}

var runSignalNotify = signal.Notify
var runSignalStop = signal.Stop

func init() {
	runCmd.Flags().IntVar(&runAgents, "agents", 4, "team size when starting a new swarm")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "override scheduler.workers")
	runCmd.Flags().StringVar(&runMode, "mode", "", "override scheduler.mode (synchronous, asynchronous, distributed)")
	runCmd.Flags().IntVar(&runCycles, "cycles", 0, "run this many synchronous cycles and exit")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "restore the saved snapshot instead of creating a new team")
}

// teamMember is one role of the demo research team.
type teamMember struct {
	id           string
	capabilities []string
	goals        []string
	beliefs      map[string]string
}

var researchTeam = []teamMember{
	{
		id:           "lead_researcher",
		capabilities: []string{"project_management", "strategic_planning", "coordination"},
		goals:        []string{"coordinate_research_project", "ensure_team_collaboration", "deliver_results"},
		beliefs:      map[string]string{"leadership_style": "collaborative"},
	},
	{
		id:           "data_scientist",
		capabilities: []string{"data_analysis", "machine_learning", "statistics"},
		goals:        []string{"analyze_research_data", "build_predictive_models", "share_insights"},
		beliefs:      map[string]string{"collaboration_preference": "data_driven"},
	},
	{
		id:           "domain_expert",
		capabilities: []string{"domain_expertise", "literature_review", "hypothesis_generation"},
		goals:        []string{"provide_domain_insights", "validate_hypotheses", "mentor_team"},
		beliefs:      map[string]string{"research_philosophy": "evidence_based"},
	},
	{
		id:           "research_assistant",
		capabilities: []string{"research_support", "data_collection", "learning"},
		goals:        []string{"support_senior_researchers", "learn_new_methods", "contribute_meaningfully"},
		beliefs:      map[string]string{"career_stage": "early"},
	},
}

// buildTeam creates n agents, links each one to the lead, establishes
// baseline trust across the team and has the lead delegate the project.
func buildTeam(orch *orchestrator.Orchestrator, n int, trust float64) error {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		m := researchTeam[i%len(researchTeam)]
		id := m.id
		if i >= len(researchTeam) {
			id = fmt.Sprintf("%s_%d", m.id, i/len(researchTeam)+1)
		}
		if _, err := orch.CreateAgent(orchestrator.AgentSpec{
			ID:           id,
			Capabilities: m.capabilities,
			Goals:        m.goals,
			Beliefs:      m.beliefs,
		}); err != nil {
			return err
		}
		ids = append(ids, id)
		if i > 0 {
			if err := orch.Collaborate(researchTeam[0].id, id, "collaborative_research"); err != nil {
				return err
			}
		}
	}
	if _, err := orch.EstablishGlobalTrust(trust); err != nil {
		return err
	}
	const brief = "Investigate how shared knowledge changes team decisions"
	if _, err := orch.ShareKnowledge("project_brief", brief, researchTeam[0].id); err != nil {
		return err
	}
	_, err := orch.CoordinateTask(brief, ids, orchestrator.StrategyHierarchical)
	return err
}

func runSwarm(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printHeader(out, "🐝 SwarmCog Run")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if runWorkers > 0 {
		cfg.Scheduler.Workers = runWorkers
	}
	if runMode != "" {
		cfg.Scheduler.Mode = runMode
	}
	if runCycles > 0 {
		cfg.Scheduler.Mode = "synchronous"
	}
	if runAgents <= 0 {
		return fmt.Errorf("--agents must be positive")
	}

	orch, err := orchestrator.New(cfg, orchestrator.WithLogger(newLogger(cfg.Log, cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer orch.Close()

	if runResume {
		entities, agents, err := orch.RestoreSnapshot()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Restored %d entities and %d agents\n", entities, agents)
	}
	if orch.AgentCount() == 0 {
		if err := buildTeam(orch, runAgents, cfg.Swarm.DefaultTrust); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created a research team of %d agents\n", orch.AgentCount())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if runDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	if runCycles > 0 {
		for i := 0; i < runCycles; i++ {
			if _, err := orch.Step(ctx); err != nil {
				return err
			}
		}
		if orch.Timeline() != nil {
			if err := orch.SaveSnapshot(); err != nil {
				return err
			}
		}
	} else {
		sigChan := make(chan os.Signal, 1)
		runSignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer runSignalStop(sigChan)
		go func() {
			select {
			case <-sigChan:
				fmt.Fprintln(out, "\nShutting down...")
				cancel()
			case <-ctx.Done():
			}
		}()
		fmt.Fprintln(out, "Swarm running (Ctrl+C to stop)")
		if err := orch.Run(ctx); err != nil {
			return err
		}
	}

	printSwarmSummary(out, orch)
	return nil
}

func printSwarmSummary(out io.Writer, orch *orchestrator.Orchestrator) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, color.GreenString("Swarm status"))
	status := orch.Status()
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-26s %s\n", k+":", status[k])
	}

	topo := orch.Topology()
	fmt.Fprintln(out, color.GreenString("Topology"))
	fmt.Fprintf(out, "  agents: %d  trust links: %d  collaborations: %d\n", topo.TotalAgents, topo.TotalConnections, len(topo.Collaborations))
	fmt.Fprintf(out, "  density: %.2f  average trust: %.2f\n", topo.Density(), topo.AverageTrust)
	if central := topo.CentralAgents(3); len(central) > 0 {
		fmt.Fprintf(out, "  central agents: %s\n", strings.Join(central, ", "))
	}

	fmt.Fprintln(out, color.GreenString("Interactions"))
	all := orch.AllInteractions()
	for _, a := range orch.Agents() {
		in := all[a.ID]
		fmt.Fprintf(out, "  %-22s collaborators=%d delegations=%d evaluations=%d memories=%d\n",
			a.ID, len(in.Collaborators), len(in.Delegations), len(in.Evaluations), len(in.RecentMemories))
	}
}
