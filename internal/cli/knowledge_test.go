package cli

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRunCyclesThenInspect(t *testing.T) {
	isolateHome(t)

	out, err := runRootCommand(t, "run",
		"--cycles=2", "--agents=3", "--resume=false",
		"--mode=", "--workers=0", "--duration=0")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Created a research team of 3 agents") {
		t.Fatalf("unexpected run output: %s", out)
	}
	if !strings.Contains(out, "completed_tasks:") || !strings.Contains(out, "central agents:") {
		t.Fatalf("summary missing: %s", out)
	}
	if !strings.Contains(out, "delegations=2") {
		t.Fatalf("expected the lead to delegate the project to two agents: %s", out)
	}

	out, err = runRootCommand(t, "knowledge", "stats", "--json=false")
	if err != nil {
		t.Fatalf("knowledge stats: %v", err)
	}
	if !strings.Contains(out, "Agents:     3") || !strings.Contains(out, "lead_researcher") {
		t.Fatalf("unexpected stats: %s", out)
	}

	out, err = runRootCommand(t, "knowledge", "list", "--type=AgentNode", "--limit=10", "--json")
	if err != nil {
		t.Fatalf("knowledge list: %v", err)
	}
	var views []entityView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 agent nodes, got %d", len(views))
	}
	for _, v := range views {
		if v.Type != "AgentNode" || v.Metadata["agent_id"] == "" {
			t.Errorf("unexpected entity %+v", v)
		}
	}

	if _, err := runRootCommand(t, "knowledge", "list", "--type=Bogus", "--json=false"); err == nil {
		t.Error("expected error for unknown entity type")
	}

	out, err = runRootCommand(t, "tasks", "--summary", "--json=false", "--agent=", "--limit=20")
	if err != nil {
		t.Fatalf("tasks --summary: %v", err)
	}
	for _, phase := range []string{"perception", "reflection"} {
		if !strings.Contains(out, phase) {
			t.Errorf("summary missing %s: %s", phase, out)
		}
	}

	out, err = runRootCommand(t, "tasks", "--summary=false", "--json", "--agent=data_scientist", "--limit=5")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	var runs []struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs: %v\n%s", err, out)
	}
	if len(runs) != 5 {
		t.Fatalf("expected 5 runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.AgentID != "data_scientist" {
			t.Errorf("unexpected agent %s", r.AgentID)
		}
	}

	out, err = runRootCommand(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "3 agents") {
		t.Errorf("status missing snapshot: %s", out)
	}

	out, err = runRootCommand(t, "run", "--cycles=1", "--resume", "--agents=3")
	if err != nil {
		t.Fatalf("run --resume: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Restored ") || !strings.Contains(out, "and 3 agents") {
		t.Errorf("expected restore, got %s", out)
	}
	if strings.Contains(out, "Created a research team") {
		t.Errorf("resumed run should not create a new team: %s", out)
	}
}

func TestKnowledgeWithoutTimeline(t *testing.T) {
	isolateHome(t)
	_, err := runRootCommand(t, "knowledge", "stats", "--json=false")
	if err == nil || !strings.Contains(err.Error(), "no timeline") {
		t.Fatalf("expected missing timeline error, got %v", err)
	}
}

func TestInjectValidatesBeforeSending(t *testing.T) {
	isolateHome(t)
	_, err := runRootCommand(t, "inject", "--type=goal", "--agent=a1", "--key=", "--value=")
	if err == nil || !strings.Contains(err.Error(), "value is required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}
