package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestParseEnv(t *testing.T) {
	content := `
# comment
export FOO=bar
QUOTED="hello\tworld"
SINGLE='x \t y'
TRAILING=value # note
EMPTY=
`
	vars, err := parseEnv(strings.NewReader(content))
	if err != nil {
		t.Fatalf("parseEnv: %v", err)
	}
	want := [][2]string{
		{"FOO", "bar"},
		{"QUOTED", "hello\tworld"},
		{"SINGLE", `x \t y`},
		{"TRAILING", "value"},
		{"EMPTY", ""},
	}
	if !slices.Equal(vars, want) {
		t.Errorf("parseEnv = %q, want %q", vars, want)
	}
}

func TestParseEnvReportsMalformedLines(t *testing.T) {
	for _, tc := range []struct {
		name, content, lines string
	}{
		{"missing equals", "OK=1\nINVALID_LINE\n", "2"},
		{"bad key", "1ABC=x\nA-B=y\n", "1, 2"},
		{"bad quoting", "Q=\"unterminated \\\"\n", "1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseEnv(strings.NewReader(tc.content))
			if err == nil || !strings.Contains(err.Error(), "line(s) "+tc.lines) {
				t.Errorf("expected malformed line(s) %s, got %v", tc.lines, err)
			}
		})
	}
}

func TestEnvFileCandidatesFollowConfigPath(t *testing.T) {
	home := isolateHome(t)
	explicit := filepath.Join(home, "explicit.env")
	t.Setenv("SWARMCOG_ENV_FILE", explicit)
	t.Setenv("SWARMCOG_CONFIG", filepath.Join(home, "etc", "swarm.json"))

	want := []string{
		explicit,
		filepath.Join(home, "etc", EnvFileName),
		filepath.Join(home, ".config", "swarmcog", EnvFileName),
	}
	if got := EnvFileCandidates(); !slices.Equal(got, want) {
		t.Errorf("candidates = %v, want %v", got, want)
	}

	// The explicit file pointing at a default location is listed once.
	t.Setenv("SWARMCOG_CONFIG", "")
	t.Setenv("SWARMCOG_ENV_FILE", filepath.Join(home, ConfigDir, EnvFileName))
	if got := EnvFileCandidates(); len(got) != 2 {
		t.Errorf("expected duplicates removed, got %v", got)
	}
}

func TestLoadEnvFilesPrecedence(t *testing.T) {
	home := isolateHome(t)
	explicit := filepath.Join(home, "explicit.env")
	if err := os.WriteFile(explicit, []byte("SWARMCOG_TEST_A=explicit\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	writeConfig(t, home, EnvFileName, "SWARMCOG_TEST_A=beside_config\nSWARMCOG_TEST_B=beside_config\nSWARMCOG_TEST_C=file\n")
	t.Setenv("SWARMCOG_ENV_FILE", explicit)
	t.Setenv("SWARMCOG_TEST_C", "process")
	for _, k := range []string{"SWARMCOG_TEST_A", "SWARMCOG_TEST_B"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	loaded, err := LoadEnvFiles()
	if err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if len(loaded) != 2 || loaded[0] != explicit {
		t.Errorf("loaded = %v", loaded)
	}
	for k, want := range map[string]string{
		"SWARMCOG_TEST_A": "explicit",
		"SWARMCOG_TEST_B": "beside_config",
		"SWARMCOG_TEST_C": "process",
	} {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestLoadFailsOnMalformedEnvFile(t *testing.T) {
	home := isolateHome(t)
	writeConfig(t, home, EnvFileName, "SWARMCOG_TEST_D=1\nnot a variable\n")
	t.Setenv("SWARMCOG_TEST_D", "")
	os.Unsetenv("SWARMCOG_TEST_D")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "malformed line(s) 2") {
		t.Fatalf("expected malformed env file error, got %v", err)
	}
	if _, set := os.LookupEnv("SWARMCOG_TEST_D"); set {
		t.Error("a malformed file must not be applied")
	}
}
