package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// UIConfig configures the figbridge UI client.
type UIConfig struct {
	HostURL        string        `yaml:"host_url"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	NotifyTimeout  time.Duration `yaml:"notify_timeout"`
	Reconnect      bool          `yaml:"reconnect"`
	ExtraHeight    int           `yaml:"extra_height"`
	// Exec, when set, starts the host as a child process speaking over stdio.
	Exec string `yaml:"exec"`
}

func (c *UIConfig) SetDefaults() {
	if c.HostURL == "" {
		c.HostURL = "ws://localhost:8080/api/ui/connect"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.NotifyTimeout == 0 {
		c.NotifyTimeout = 3500 * time.Millisecond
	}
	if c.ExtraHeight == 0 {
		c.ExtraHeight = 30
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("ui.yaml")
	}
}

func (c *UIConfig) ApplyEnv() {
	if v := GetEnv("UI_CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("HOST_URL", ""); v != "" {
		c.HostURL = v
	}
	if v := GetEnv("REQUEST_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := GetEnv("UI_NOTIFY_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.NotifyTimeout = d
		}
	}
	if v := GetEnv("RECONNECT", ""); v != "" {
		if b, ok := parseBool(v); ok {
			c.Reconnect = b
		}
	}
	if v := GetEnv("EXTRA_HEIGHT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ExtraHeight = n
		}
	}
	if v := GetEnv("EXEC", ""); v != "" {
		c.Exec = v
	}
}

func (c *UIConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "UI config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.HostURL, "host-url", c.HostURL, "host websocket URL")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "time to wait for a host response")
	fs.DurationVar(&c.NotifyTimeout, "notify-timeout", c.NotifyTimeout, "default notification duration")
	fs.BoolVar(&c.Reconnect, "reconnect", c.Reconnect, "redial the host with backoff when the connection drops")
	fs.IntVar(&c.ExtraHeight, "extra-height", c.ExtraHeight, "padding added when fitting the window to its content")
	fs.StringVar(&c.Exec, "exec", c.Exec, "run this host command and talk to it over stdio instead of dialing")
}

func (c *UIConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Resolve applies defaults < file < env < args.
func (c *UIConfig) Resolve(fs *flag.FlagSet, args []string) error {
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
	return fs.Parse(args)
}
