package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Env files carry secrets such as TASKCLAW_BACKEND_TOKEN or GEMINI_API_KEY
// that should stay out of config.json. A variable already set in the process
// environment is never replaced.

// envFilePaths lists the env files Load consults, highest priority first.
func envFilePaths() []string {
	var paths []string
	if explicit := strings.TrimSpace(os.Getenv("TASKCLAW_ENV_FILE")); explicit != "" {
		if p, err := expandTilde(explicit); err == nil {
			paths = append(paths, p)
		}
	}
	if home, err := resolveHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "taskclaw", "env"),
			filepath.Join(home, ConfigDir, "env"),
			filepath.Join(home, ConfigDir, ".env"),
		)
	}

	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
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

// LoadEnvFileCandidates applies every env file that exists and returns the
// paths that were read.
func LoadEnvFileCandidates() []string {
	var loaded []string
	for _, p := range envFilePaths() {
		n, err := loadEnvFile(p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Config: env file unreadable", "path", p, "error", err)
			}
			continue
		}
		slog.Debug("Config: env file loaded", "path", p, "applied", n)
		loaded = append(loaded, p)
	}
	return loaded
}

// loadEnvFile sets the variables of one file and reports how many it applied.
func loadEnvFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, line := range strings.Split(string(data), "\n") {
		key, val, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return applied, fmt.Errorf("set %s from %s: %w", key, path, err)
		}
		applied++
	}
	return applied, nil
}

// parseEnvLine reads "KEY=value" and "export KEY=value". Quoted values are
// taken verbatim; unquoted ones lose a trailing " # comment".
func parseEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, val, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if n := len(val); n >= 2 && (val[0] == '"' || val[0] == '\'') && val[n-1] == val[0] {
		return key, val[1 : n-1], true
	}
	if i := strings.Index(val, " #"); i >= 0 {
		val = strings.TrimSpace(val[:i])
	}
	return key, val, true
}
