package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolateHome points HOME at a temp dir and clears the swarmcog overrides.
func isolateHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("SWARMCOG_CONFIG", "")
	t.Setenv("SWARMCOG_HOME", "")
	t.Setenv("SWARMCOG_ENV_FILE", "")
	return tmpDir
}

func writeConfig(t *testing.T, home, name, content string) {
	t.Helper()
	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Space.Name != "swarm_agentspace" {
		t.Errorf("expected default space name, got %q", cfg.Space.Name)
	}
	if cfg.Scheduler.Workers != 4 || cfg.Scheduler.Mode != "asynchronous" || cfg.Scheduler.CycleInterval != time.Second {
		t.Errorf("unexpected scheduler defaults %+v", cfg.Scheduler)
	}
	if cfg.Swarm.MaxAgents != 50 {
		t.Errorf("expected 50 max agents, got %d", cfg.Swarm.MaxAgents)
	}
	if cfg.Events.KafkaEnabled {
		t.Error("expected kafka disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	home := isolateHome(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Errorf("expected default workers, got %d", cfg.Scheduler.Workers)
	}
	if want := filepath.Join(home, ".swarmcog", "timeline.db"); cfg.Timeline.DBPath != want {
		t.Errorf("expected expanded db path %q, got %q", want, cfg.Timeline.DBPath)
	}
}

func TestLoadFromFile(t *testing.T) {
	home := isolateHome(t)
	writeConfig(t, home, ConfigFile, `{
		"scheduler": {"workers": 8, "mode": "synchronous"},
		"swarm": {"maxAgents": 12}
	}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Workers != 8 || cfg.Scheduler.Mode != "synchronous" {
		t.Errorf("unexpected scheduler %+v", cfg.Scheduler)
	}
	if cfg.Swarm.MaxAgents != 12 {
		t.Errorf("expected 12 max agents, got %d", cfg.Swarm.MaxAgents)
	}
	if cfg.Swarm.DefaultTrust != 0.5 {
		t.Errorf("expected untouched fields to keep defaults, got %v", cfg.Swarm.DefaultTrust)
	}
}

func TestEnvOverride(t *testing.T) {
	home := isolateHome(t)
	writeConfig(t, home, ConfigFile, `{"scheduler": {"workers": 8}}`)
	t.Setenv("SWARMCOG_SCHEDULER_WORKERS", "16")
	t.Setenv("SWARMCOG_SCHEDULER_CYCLE_INTERVAL", "250ms")
	t.Setenv("SWARMCOG_EVENTS_KAFKA_ENABLED", "true")
	t.Setenv("SWARMCOG_LOG_LEVEL", " DEBUG ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Workers != 16 {
		t.Errorf("expected env to win over file, got %d", cfg.Scheduler.Workers)
	}
	if cfg.Scheduler.CycleInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms interval, got %s", cfg.Scheduler.CycleInterval)
	}
	if !cfg.Events.KafkaEnabled {
		t.Error("expected kafka enabled from env")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected normalised log level, got %q", cfg.Log.Level)
	}
}

func TestEnvOverrideInvalidValue(t *testing.T) {
	isolateHome(t)
	t.Setenv("SWARMCOG_SCHEDULER_WORKERS", "many")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric worker count")
	}
}

func TestConfigPathRespectsConfigAndHome(t *testing.T) {
	t.Setenv("SWARMCOG_HOME", "/srv/swarmhome")
	t.Setenv("SWARMCOG_CONFIG", "~/.swarmcog/custom.json")

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if path != filepath.Join("/srv/swarmhome", ".swarmcog", "custom.json") {
		t.Fatalf("unexpected config path: %q", path)
	}
}

func TestLoadUsesEnvFileCandidate(t *testing.T) {
	home := isolateHome(t)
	envDir := filepath.Join(home, ".config", "swarmcog")
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		t.Fatalf("mkdir env dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(envDir, "env"), []byte("SWARMCOG_SWARM_MAX_AGENTS=7\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	origMax, hadMax := os.LookupEnv("SWARMCOG_SWARM_MAX_AGENTS")
	_ = os.Unsetenv("SWARMCOG_SWARM_MAX_AGENTS")
	t.Cleanup(func() {
		if hadMax {
			os.Setenv("SWARMCOG_SWARM_MAX_AGENTS", origMax)
		} else {
			os.Unsetenv("SWARMCOG_SWARM_MAX_AGENTS")
		}
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Swarm.MaxAgents != 7 {
		t.Fatalf("expected max agents from env file, got %d", cfg.Swarm.MaxAgents)
	}
}

func TestLoadWithIncludeAndEnvSubstitution(t *testing.T) {
	home := isolateHome(t)
	writeConfig(t, home, "base.json", `{
		"space": {"name": "base-space"},
		"scheduler": {"workers": 2, "mode": "synchronous"}
	}`)
	writeConfig(t, home, ConfigFile, `{
		"$include": "base.json",
		"space": {"name": "${TEST_SPACE}"},
		"scheduler": {"workers": 6}
	}`)
	t.Setenv("TEST_SPACE", "env-space")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Space.Name != "env-space" {
		t.Errorf("expected env-substituted space name, got %q", cfg.Space.Name)
	}
	if cfg.Scheduler.Mode != "synchronous" {
		t.Errorf("expected mode from include file, got %q", cfg.Scheduler.Mode)
	}
	if cfg.Scheduler.Workers != 6 {
		t.Errorf("expected main file to override include, got %d", cfg.Scheduler.Workers)
	}
}

func TestLoadWithIncludeErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"invalid include type", map[string]string{ConfigFile: `{"$include": 123}`}},
		{"include cycle", map[string]string{
			ConfigFile: `{"$include": "a.json"}`,
			"a.json":   `{"$include": "b.json"}`,
			"b.json":   `{"$include": "a.json"}`,
		}},
		{"invalid json", map[string]string{ConfigFile: `{"scheduler":`}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			home := isolateHome(t)
			for name, content := range tc.files {
				writeConfig(t, home, name, content)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestParseIncludes(t *testing.T) {
	got, err := parseIncludes("one.json")
	if err != nil || len(got) != 1 || got[0] != "one.json" {
		t.Fatalf("unexpected parse result: got=%v err=%v", got, err)
	}
	got, err = parseIncludes([]any{"one.json", "", "two.json"})
	if err != nil || len(got) != 2 {
		t.Fatalf("unexpected array parse: got=%v err=%v", got, err)
	}
	if _, err := parseIncludes([]any{"ok.json", 42}); err == nil {
		t.Fatal("expected parse error for non-string include item")
	}
}

func TestSubstituteEnvValuesLeavesUnknownToken(t *testing.T) {
	out := substituteEnvValues(map[string]any{"value": "${NOT_SET_VAR}"}).(map[string]any)
	if out["value"] != "${NOT_SET_VAR}" {
		t.Fatalf("expected unknown env token unchanged, got %v", out["value"])
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero workers", func(c *Config) { c.Scheduler.Workers = 0 }, "scheduler.workers"},
		{"negative interval", func(c *Config) { c.Scheduler.CycleInterval = -time.Second }, "scheduler.cycleInterval"},
		{"unknown mode", func(c *Config) { c.Scheduler.Mode = "quantum" }, "scheduler.mode"},
		{"zero agents", func(c *Config) { c.Swarm.MaxAgents = 0 }, "swarm.maxAgents"},
		{"trust out of range", func(c *Config) { c.Swarm.DefaultTrust = 1.5 }, "swarm.defaultTrust"},
		{"bad decay cron", func(c *Config) { c.Swarm.DecayCron = "60 * * * *" }, "swarm.decayCron"},
		{"bad snapshot cron", func(c *Config) { c.Swarm.SnapshotCron = "* * *" }, "swarm.snapshotCron"},
		{"empty cron disables job", func(c *Config) { c.Swarm.SnapshotCron = "" }, ""},
		{"missing db path", func(c *Config) { c.Timeline.DBPath = " " }, "timeline.dbPath"},
		{"missing brokers", func(c *Config) { c.Events.KafkaEnabled = true; c.Events.KafkaBrokers = "" }, "events.kafkaBrokers"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSaveAndEnsureDir(t *testing.T) {
	home := isolateHome(t)

	cfg := DefaultConfig()
	cfg.Space.Name = "saved-space"
	if err := Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("saved config file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Space.Name != "saved-space" {
		t.Errorf("expected saved space name, got %q", loaded.Space.Name)
	}

	newDir := filepath.Join(home, "nested", "dir")
	if err := EnsureDir(newDir); err != nil {
		t.Fatalf("ensure dir: %v", err)
	}
	if info, err := os.Stat(newDir); err != nil || !info.IsDir() {
		t.Fatalf("expected created directory, err=%v", err)
	}
}
