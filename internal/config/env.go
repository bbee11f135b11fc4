// Package config resolves host and UI settings from defaults, a YAML file,
// FIGBRIDGE_* environment variables and command line flags, in that order.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "FIGBRIDGE_"

// GetEnv returns FIGBRIDGE_<key> or def when unset.
func GetEnv(key, def string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		return v
	}
	return def
}

// DefaultConfigPath returns the per-OS location of a config file such as "host.yaml".
func DefaultConfigPath(name string) string {
	home, _ := os.UserHomeDir()
	return ResolveConfigPath(runtime.GOOS, home, os.Getenv("ProgramData"), name)
}

// ResolveConfigPath builds the config path for goos from its base directories.
func ResolveConfigPath(goos, home, programData, name string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "figbridge", name)
	case "windows":
		if programData == "" {
			programData = "C:/ProgramData"
		}
		return filepath.Join(strings.TrimRight(programData, "\\/"), "figbridge", name)
	default:
		return filepath.Join("/etc", "figbridge", name)
	}
}

// ConfigFlag scans args for --config before flags are parsed so the file can
// be loaded underneath env and flags.
func ConfigFlag(args []string) (string, bool) {
	for i, a := range args {
		if (a == "--config" || a == "-config") && i+1 < len(args) {
			return args[i+1], true
		}
		for _, p := range []string{"--config=", "-config="} {
			if strings.HasPrefix(a, p) {
				return strings.TrimPrefix(a, p), true
			}
		}
	}
	return "", false
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
