package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HostConfig configures the figbridge host.
type HostConfig struct {
	Port           int           `yaml:"port"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ConfigFile     string        `yaml:"-"`
	LogLevel       string        `yaml:"log_level"`
	DocumentFile   string        `yaml:"document_file"`
	SettingsFile   string        `yaml:"settings_file"`
	SettingsKey    string        `yaml:"settings_key"`
	RedisAddr      string        `yaml:"redis_addr"`
	NodeTypes      []string      `yaml:"node_types"`
	WindowWidth    int           `yaml:"window_width"`
	WindowHeight   int           `yaml:"window_height"`
	NotifyTimeout  time.Duration `yaml:"notify_timeout"`
	ExportTimeout  time.Duration `yaml:"export_timeout"`
	Stdio          bool          `yaml:"stdio"`
}

// SetDefaults fills unset fields with built-in defaults.
func (c *HostConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SettingsKey == "" {
		c.SettingsKey = "presentator_storage"
	}
	if c.WindowWidth == 0 {
		c.WindowWidth = 450
	}
	if c.WindowHeight == 0 {
		c.WindowHeight = 390
	}
	if c.NotifyTimeout == 0 {
		c.NotifyTimeout = 4 * time.Second
	}
	if c.ExportTimeout == 0 {
		c.ExportTimeout = 30 * time.Second
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("host.yaml")
	}
}

// ApplyEnv overlays FIGBRIDGE_* variables.
func (c *HostConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = metricsAddr(v)
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("DOCUMENT", ""); v != "" {
		c.DocumentFile = v
	}
	if v := GetEnv("SETTINGS_FILE", ""); v != "" {
		c.SettingsFile = v
	}
	if v := GetEnv("SETTINGS_KEY", ""); v != "" {
		c.SettingsKey = v
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := GetEnv("NODE_TYPES", ""); v != "" {
		c.NodeTypes = splitComma(v)
	}
	if v := GetEnv("NOTIFY_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.NotifyTimeout = d
		}
	}
	if v := GetEnv("EXPORT_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ExportTimeout = d
		}
	}
	if v := GetEnv("STDIO", ""); v != "" {
		if b, ok := parseBool(v); ok {
			c.Stdio = b
		}
	}
}

// BindFlags registers flags on fs using the current values as defaults.
func (c *HostConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "host config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	fs.Func("metrics-port", "Prometheus listen address or port; defaults to the API port", func(v string) error {
		c.MetricsAddr = metricsAddr(v)
		return nil
	})
	fs.Func("allowed-origins", "comma separated list of allowed CORS and websocket origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.StringVar(&c.DocumentFile, "document", c.DocumentFile, "YAML or JSON design document to serve")
	fs.StringVar(&c.SettingsFile, "settings-file", c.SettingsFile, "JSON file persisting UI settings")
	fs.StringVar(&c.SettingsKey, "settings-key", c.SettingsKey, "storage key of the UI settings")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for UI settings")
	fs.Func("node-types", "comma separated node types to list and export; empty allows all", func(v string) error {
		c.NodeTypes = splitComma(v)
		return nil
	})
	fs.IntVar(&c.WindowWidth, "window-width", c.WindowWidth, "window width used when a resize omits it")
	fs.IntVar(&c.WindowHeight, "window-height", c.WindowHeight, "window height used when a resize omits it")
	fs.DurationVar(&c.NotifyTimeout, "notify-timeout", c.NotifyTimeout, "notification duration when the UI sends none")
	fs.DurationVar(&c.ExportTimeout, "export-timeout", c.ExportTimeout, "time allowed to render one export")
	fs.BoolVar(&c.Stdio, "stdio", c.Stdio, "serve one UI session over stdin/stdout instead of HTTP")
}

// LoadFile overlays a YAML file.
func (c *HostConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Resolve applies defaults < file < env < args. A missing config file is not an error.
func (c *HostConfig) Resolve(fs *flag.FlagSet, args []string) error {
	c.SetDefaults()
	c.ApplyEnv()
	if p, ok := ConfigFlag(args); ok {
		c.ConfigFile = p
	}
	if c.ConfigFile != "" {
		if err := c.LoadFile(c.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config %s: %w", c.ConfigFile, err)
		}
	}
	c.ApplyEnv()
	c.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	return nil
}

func metricsAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}
