package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL         = "http://localhost:8080"
	DefaultTimeout         = 15 * time.Second
	DefaultPollInterval    = 2 * time.Second
	DefaultRefreshInterval = 10 * time.Second
)

type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Account  AccountConfig `yaml:"account"`
	Poll     PollConfig    `yaml:"poll"`
	StateDir string        `yaml:"state_dir"`
	LogLevel string        `yaml:"log_level"`
}

type ServerConfig struct {
	BaseURL string        `yaml:"base_url"` // may carry a path prefix, e.g. http://host/api
	Timeout time.Duration `yaml:"timeout"`
}

// AccountConfig holds optional stored credentials. When either is empty
// the login screen asks for them.
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type PollConfig struct {
	// Interval between message polls.
	Interval time.Duration `yaml:"interval"`
	// RefreshInterval throttles inbox, group and presence refreshes.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "sschat")
}

// Load reads the YAML file at path, then applies a .env file next to it (if
// any) and SSCHAT_* environment variables on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SSCHAT_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("SSCHAT_USERNAME"); v != "" {
		c.Account.Username = v
	}
	if v := os.Getenv("SSCHAT_PASSWORD"); v != "" {
		c.Account.Password = v
	}
	if v := os.Getenv("SSCHAT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SSCHAT_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	for name, dst := range map[string]*time.Duration{
		"SSCHAT_TIMEOUT":          &c.Server.Timeout,
		"SSCHAT_POLL_INTERVAL":    &c.Poll.Interval,
		"SSCHAT_REFRESH_INTERVAL": &c.Poll.RefreshInterval,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

func (c *Config) applyDefaults(dir string) {
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = DefaultBaseURL
	}
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = DefaultTimeout
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = DefaultPollInterval
	}
	// Refreshing the conversation set is never more frequent than polling.
	if c.Poll.RefreshInterval < c.Poll.Interval {
		if c.Poll.RefreshInterval <= 0 {
			c.Poll.RefreshInterval = DefaultRefreshInterval
		}
		c.Poll.RefreshInterval = max(c.Poll.RefreshInterval, c.Poll.Interval)
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(dir, "state")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// HasCredentials reports whether the login screen can be skipped.
func (c *Config) HasCredentials() bool {
	return c.Account.Username != "" && c.Account.Password != ""
}
