// Package config defines the todomagic daemon configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Host kinds.
const (
	HostHass  = "hass"
	HostLocal = "local"
)

// Config is the top-level todomagic configuration.
type Config struct {
	Server       ServerConfig    `json:"server" yaml:"server" toml:"server"`
	Auth         AuthConfig      `json:"auth" yaml:"auth" toml:"auth"`
	Host         HostConfig      `json:"host" yaml:"host" toml:"host"`
	Lists        []ListConfig    `json:"lists" yaml:"lists" toml:"lists"`
	SmartLists   SmartListConfig `json:"smart_lists" yaml:"smart_lists" toml:"smart_lists"`
	PollInterval string          `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"` // e.g. "10s"
	GracePeriod  string          `json:"grace_period" yaml:"grace_period" toml:"grace_period"`    // just-created marker lifetime
	DataDir      string          `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	LogLevel     string          `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret" toml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user" toml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass" toml:"admin_pass"` // plain or bcrypt hash
}

// HostConfig selects where lists live.
type HostConfig struct {
	Kind    string `json:"kind" yaml:"kind" toml:"kind"` // "hass" or "local"
	URL     string `json:"url,omitempty" yaml:"url" toml:"url"`
	Token   string `json:"-" yaml:"token" toml:"token"`
	DBPath  string `json:"db_path,omitempty" yaml:"db_path" toml:"db_path"` // local only; relative to data_dir
	Timeout string `json:"timeout,omitempty" yaml:"timeout" toml:"timeout"`
}

// ListConfig holds the feature switches of one managed list.
type ListConfig struct {
	Entity        string `json:"entity" yaml:"entity" toml:"entity"`
	AutoDue       bool   `json:"auto_due" yaml:"auto_due" toml:"auto_due"`
	AutoSort      bool   `json:"auto_sort" yaml:"auto_sort" toml:"auto_sort"`
	Recurrence    bool   `json:"recurrence" yaml:"recurrence" toml:"recurrence"`
	AutoClear     bool   `json:"auto_clear" yaml:"auto_clear" toml:"auto_clear"`
	AutoClearDays int    `json:"auto_clear_days" yaml:"auto_clear_days" toml:"auto_clear_days"`
}

// SmartListConfig names the lists that mirror near-term tasks.
type SmartListConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Daily   string `json:"daily,omitempty" yaml:"daily" toml:"daily"`
	Weekly  string `json:"weekly,omitempty" yaml:"weekly" toml:"weekly"`
	Monthly string `json:"monthly,omitempty" yaml:"monthly" toml:"monthly"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		Host: HostConfig{
			Kind:    HostLocal,
			DBPath:  "lists.db",
			Timeout: "30s",
		},
		Lists: []ListConfig{
			{
				Entity:        "todo.inbox",
				AutoDue:       true,
				AutoSort:      true,
				Recurrence:    true,
				AutoClearDays: 7,
			},
		},
		PollInterval: "10s",
		GracePeriod:  "30s",
		DataDir:      "./data",
		LogLevel:     "info",
	}
}

// Load reads a YAML or TOML config file (chosen by extension) over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	// Lists given in the file replace the default list rather than merging into it.
	cfg.Lists = nil
	if err := unmarshal(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Host.Token == "" {
		cfg.Host.Token = os.Getenv("TODOMAGIC_HASS_TOKEN")
	}
	return cfg, nil
}

// LoadOrCreate loads path, writing the defaults there first when it does not exist.
func LoadOrCreate(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := Write(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// Write stores cfg at path in the format its extension selects.
func Write(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate reports every problem found in the config.
func (c *Config) Validate() error {
	var errs []error
	switch c.Host.Kind {
	case HostHass:
		if c.Host.URL == "" {
			errs = append(errs, errors.New("host.url is required for kind hass"))
		}
	case HostLocal:
	default:
		errs = append(errs, fmt.Errorf("host.kind %q must be %q or %q", c.Host.Kind, HostHass, HostLocal))
	}
	if c.Host.Timeout != "" {
		if _, err := time.ParseDuration(c.Host.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("host.timeout: %w", err))
		}
	}
	if _, err := c.PollEvery(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Grace(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool)
	for i, l := range c.Lists {
		switch {
		case strings.TrimSpace(l.Entity) == "":
			errs = append(errs, fmt.Errorf("lists[%d].entity is empty", i))
		case seen[l.Entity]:
			errs = append(errs, fmt.Errorf("lists[%d].entity %q is listed twice", i, l.Entity))
		}
		seen[l.Entity] = true
		if l.AutoClearDays < 0 {
			errs = append(errs, fmt.Errorf("lists[%d].auto_clear_days must not be negative", i))
		}
	}

	if c.SmartLists.Enabled {
		names := []string{c.SmartLists.Daily, c.SmartLists.Weekly, c.SmartLists.Monthly}
		any := false
		smart := make(map[string]bool)
		for _, n := range names {
			if n == "" {
				continue
			}
			any = true
			if smart[n] {
				errs = append(errs, fmt.Errorf("smart list %q is used for two timeframes", n))
			}
			smart[n] = true
		}
		if !any {
			errs = append(errs, errors.New("smart_lists.enabled needs at least one of daily, weekly, monthly"))
		}
	}
	return errors.Join(errs...)
}

// List returns the settings of entity.
func (c *Config) List(entity string) (ListConfig, bool) {
	for _, l := range c.Lists {
		if l.Entity == entity {
			return l, true
		}
	}
	return ListConfig{}, false
}

// IsSmartList reports whether entity is an enabled smart list.
func (c *Config) IsSmartList(entity string) bool {
	s := c.SmartLists
	return s.Enabled && entity != "" && (entity == s.Daily || entity == s.Weekly || entity == s.Monthly)
}

// Entities returns the managed list entities in config order.
func (c *Config) Entities() []string {
	out := make([]string, 0, len(c.Lists))
	for _, l := range c.Lists {
		out = append(out, l.Entity)
	}
	return out
}

// PollEvery returns the poll interval.
func (c *Config) PollEvery() (time.Duration, error) {
	return positiveDuration("poll_interval", c.PollInterval, 10*time.Second)
}

// Grace returns how long just-created markers live.
func (c *Config) Grace() (time.Duration, error) {
	return positiveDuration("grace_period", c.GracePeriod, 30*time.Second)
}

// HostTimeout returns the host request timeout, zero when unset.
func (c *Config) HostTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Host.Timeout)
	return d
}

// DBPath resolves the local store path against the data dir.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.Host.DBPath) {
		return c.Host.DBPath
	}
	return filepath.Join(c.DataDir, c.Host.DBPath)
}

func positiveDuration(name, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

// ParseLevel maps a log_level string to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level %q must be debug, info, warn or error", s)
}
