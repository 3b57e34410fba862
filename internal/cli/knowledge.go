package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/cogpy/swarmcog/internal/config"
	"github.com/cogpy/swarmcog/internal/knowledge"
	"github.com/spf13/cobra"
)

var (
	knowledgeJSON  bool
	knowledgeType  string
	knowledgeLimit int
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect the saved knowledge graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities ranked by importance",
	RunE:  runKnowledgeList,
}

var knowledgeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entity counts and stored agents",
	RunE:  runKnowledgeStats,
}

func init() {
	knowledgeCmd.PersistentFlags().BoolVar(&knowledgeJSON, "json", false, "print JSON")
	knowledgeListCmd.Flags().StringVar(&knowledgeType, "type", "", "only entities of this type (e.g. AgentNode, TrustLink)")
	knowledgeListCmd.Flags().IntVar(&knowledgeLimit, "limit", 20, "maximum entities to print")
	knowledgeCmd.AddCommand(knowledgeListCmd)
	knowledgeCmd.AddCommand(knowledgeStatsCmd)
}

// loadSavedStore rebuilds the last saved snapshot into a fresh store.
func loadSavedStore() (*knowledge.Store, []string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	tl, err := openTimeline(cfg)
	if err != nil {
		return nil, nil, err
	}
	defer tl.Close()

	records, states, err := tl.LoadSnapshot()
	if err != nil {
		return nil, nil, err
	}
	store := knowledge.NewStore(cfg.Space.Name, slog.New(slog.NewTextHandler(io.Discard, nil)))
	store.Restore(records)
	agents := make([]string, 0, len(states))
	for _, st := range states {
		agents = append(agents, st.AgentID+" ("+st.Phase+")")
	}
	return store, agents, nil
}

type entityView struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Value      string            `json:"value,omitempty"`
	Outgoing   []string          `json:"outgoing,omitempty"`
	Strength   float64           `json:"strength"`
	Confidence float64           `json:"confidence"`
	Importance float64           `json:"importance"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func runKnowledgeList(cmd *cobra.Command, args []string) error {
	store, _, err := loadSavedStore()
	if err != nil {
		return err
	}
	var filter *knowledge.EntityType
	if knowledgeType != "" {
		t, err := knowledge.ParseEntityType(knowledgeType)
		if err != nil {
			return err
		}
		filter = &t
	}

	var views []entityView
	for _, e := range store.MostImportant(-1) {
		if filter != nil && e.Type != *filter {
			continue
		}
		if knowledgeLimit > 0 && len(views) >= knowledgeLimit {
			break
		}
		tv := e.Truth()
		views = append(views, entityView{
			ID:         e.ID,
			Type:       e.Type.String(),
			Name:       e.Name,
			Value:      e.Value,
			Outgoing:   e.OutgoingIDs(),
			Strength:   tv.Strength,
			Confidence: tv.Confidence,
			Importance: e.Attention().Importance(),
			Metadata:   e.Metadata(),
		})
	}

	out := cmd.OutOrStdout()
	if knowledgeJSON {
		return printJSON(out, views)
	}
	if len(views) == 0 {
		fmt.Fprintln(out, "No entities.")
		return nil
	}
	for _, v := range views {
		label := v.Name
		if v.Value != "" {
			label += " = " + v.Value
		}
		fmt.Fprintf(out, "%-18s %-40s tv=(%.2f,%.2f) imp=%.2f\n", v.Type, label, v.Strength, v.Confidence, v.Importance)
	}
	return nil
}

func runKnowledgeStats(cmd *cobra.Command, args []string) error {
	store, agents, err := loadSavedStore()
	if err != nil {
		return err
	}
	stats := store.Statistics()
	byType := make(map[string]int, len(stats.ByType))
	for t, n := range stats.ByType {
		byType[t.String()] = n
	}

	out := cmd.OutOrStdout()
	if knowledgeJSON {
		return printJSON(out, map[string]any{
			"agentspace": store.Name(),
			"total":      stats.Total,
			"by_type":    byType,
			"agents":     agents,
		})
	}
	fmt.Fprintf(out, "Agentspace: %s\n", store.Name())
	fmt.Fprintf(out, "Entities:   %d\n", stats.Total)
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "  %-18s %d\n", t, byType[t])
	}
	fmt.Fprintf(out, "Agents:     %d\n", len(agents))
	for _, a := range agents {
		fmt.Fprintf(out, "  %s\n", a)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
