package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// EnvFileName is the env file kept next to the config file.
const EnvFileName = "env"

// EnvFileCandidates lists the env files Load reads, in order: SWARMCOG_ENV_FILE,
// the env file beside the config file, then ~/.config/swarmcog/env. Paths are
// absolute and unique.
func EnvFileCandidates() []string {
	var candidates []string
	if explicit := strings.TrimSpace(os.Getenv("SWARMCOG_ENV_FILE")); explicit != "" {
		candidates = append(candidates, ExpandHome(explicit))
	}
	if cfgPath, err := ConfigPath(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(cfgPath), EnvFileName))
	}
	if home, err := resolveHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "swarmcog", EnvFileName))
	}

	out := candidates[:0]
	seen := make(map[string]bool, len(candidates))
	for _, p := range candidates {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// LoadEnvFiles applies every existing candidate env file to the process
// environment and returns the files read. Variables already set are never
// overridden, so earlier files win over later ones. Missing files are
// skipped; unreadable or malformed ones are reported.
func LoadEnvFiles() ([]string, error) {
	var loaded []string
	var errs []error
	for _, path := range EnvFileCandidates() {
		err := loadEnvFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			errs = append(errs, err)
		default:
			loaded = append(loaded, path)
		}
	}
	return loaded, errors.Join(errs...)
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	vars, err := parseEnv(f)
	if err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	for _, kv := range vars {
		if _, exists := os.LookupEnv(kv[0]); !exists {
			_ = os.Setenv(kv[0], kv[1])
		}
	}
	return nil
}

// parseEnv reads KEY=VALUE lines. Blank lines, "#" comments and an "export "
// prefix are allowed; double-quoted values take Go escapes, single-quoted
// values are literal, and unquoted values end at " #".
func parseEnv(r io.Reader) ([][2]string, error) {
	var vars [][2]string
	var bad []string
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || !validEnvKey(key) {
			bad = append(bad, strconv.Itoa(n))
			continue
		}
		val, err := envValue(strings.TrimSpace(val))
		if err != nil {
			bad = append(bad, strconv.Itoa(n))
			continue
		}
		vars = append(vars, [2]string{key, val})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("malformed line(s) %s", strings.Join(bad, ", "))
	}
	return vars, nil
}

func envValue(v string) (string, error) {
	switch {
	case len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"':
		return strconv.Unquote(v)
	case len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'':
		return v[1 : len(v)-1], nil
	}
	if i := strings.Index(v, " #"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v, nil
}

func validEnvKey(k string) bool {
	if k == "" {
		return false
	}
	for i, c := range k {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
