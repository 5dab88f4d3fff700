// Package config handles loading and managing mailsaver configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"github.com/wesm/mailsaver/internal/fileutil"
)

// Duration is a time.Duration decoded from strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DataConfig holds local storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// RemoteConfig points the client at a remote collection service.
type RemoteConfig struct {
	URL           string   `toml:"url"`
	AllowInsecure bool     `toml:"allow_insecure"` // Permit plain http
	Timeout       Duration `toml:"timeout"`
	QPS           float64  `toml:"qps"` // Client-side request rate, 0 = unlimited
}

// ListSettings controls pagination and the delete reload policy.
type ListSettings struct {
	PageSizes            []int `toml:"page_sizes"`
	DefaultPageSize      int   `toml:"default_page_size"`
	NeedsPagingThreshold int   `toml:"needs_paging_threshold"` // Lists at or below this size are shown whole
	ReloadAfterDeletes   int   `toml:"reload_after_deletes"`
}

// SearchSettings controls the search options.
type SearchSettings struct {
	Limits       []int `toml:"limits"`
	DefaultLimit int   `toml:"default_limit"`
}

// UISettings holds pacing delays. None carry correctness obligations.
type UISettings struct {
	ModalCloseDelay Duration `toml:"modal_close_delay"`
}

// FakeSettings controls simulated search results.
type FakeSettings struct {
	MinResults int      `toml:"min_results"`
	MaxResults int      `toml:"max_results"`
	Domains    []string `toml:"domains"`
	Seed       uint64   `toml:"seed"` // 0 = random
}

// AuthSettings holds client-side credential rules.
type AuthSettings struct {
	MinPasswordLength int `toml:"min_password_length"`
}

// ServerConfig holds the development server configuration.
type ServerConfig struct {
	APIPort        int      `toml:"api_port"`
	BindAddr       string   `toml:"bind_addr"`
	JWTSecret      string   `toml:"jwt_secret"`
	TokenTTL       Duration `toml:"token_ttl"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
	CORSOrigins    []string `toml:"cors_origins"`
}

// ScheduleConfig holds background job schedules.
type ScheduleConfig struct {
	Reconcile string `toml:"reconcile"` // Cron expression
}

// Config represents the mailsaver configuration.
type Config struct {
	Data     DataConfig     `toml:"data"`
	Remote   RemoteConfig   `toml:"remote"`
	List     ListSettings   `toml:"list"`
	Search   SearchSettings `toml:"search"`
	UI       UISettings     `toml:"ui"`
	Fake     FakeSettings   `toml:"fake"`
	Auth     AuthSettings   `toml:"auth"`
	Server   ServerConfig   `toml:"server"`
	Schedule ScheduleConfig `toml:"schedule"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DefaultHome returns the default mailsaver home directory.
// Respects MAILSAVER_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILSAVER_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailsaver"
	}
	return filepath.Join(home, ".mailsaver")
}

// Default returns the built-in configuration rooted at homeDir.
func Default(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data:    DataConfig{DataDir: homeDir},
		Remote: RemoteConfig{
			URL:           "http://127.0.0.1:8080",
			AllowInsecure: true, // the default URL is the local dev server
			Timeout:       Duration{30 * time.Second},
		},
		List: ListSettings{
			PageSizes:            []int{5, 10, 20, 50},
			DefaultPageSize:      10,
			NeedsPagingThreshold: 10,
			ReloadAfterDeletes:   3,
		},
		Search: SearchSettings{
			Limits:       []int{10, 20, 50},
			DefaultLimit: 10,
		},
		Fake: FakeSettings{
			MinResults: 5,
			MaxResults: 15,
			Domains:    []string{"example.com", "example.org", "mail.test"},
		},
		Auth: AuthSettings{MinPasswordLength: 8},
		Server: ServerConfig{
			APIPort:        8080,
			BindAddr:       "127.0.0.1",
			TokenTTL:       Duration{24 * time.Hour},
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Schedule: ScheduleConfig{Reconcile: "*/15 * * * *"},
	}
}

// Load reads the configuration from the specified file.
// If homeDir is empty, DefaultHome is used. If path is empty, uses
// config.toml in the home directory. A missing file yields the defaults.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	} else {
		homeDir = expandPath(homeDir)
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := Default(homeDir)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, nil
	}

	md, err := toml.DecodeFile(expandPath(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	// Expand ~ in paths
	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for internal consistency.
func (c *Config) Validate() error {
	if len(c.List.PageSizes) == 0 {
		return fmt.Errorf("list.page_sizes must not be empty")
	}
	for _, n := range c.List.PageSizes {
		if n <= 0 {
			return fmt.Errorf("list.page_sizes must be positive, got %d", n)
		}
	}
	if !slices.Contains(c.List.PageSizes, c.List.DefaultPageSize) {
		return fmt.Errorf("list.default_page_size %d is not one of %v", c.List.DefaultPageSize, c.List.PageSizes)
	}
	if c.List.NeedsPagingThreshold < 0 {
		return fmt.Errorf("list.needs_paging_threshold must not be negative")
	}
	if c.List.ReloadAfterDeletes <= 0 {
		return fmt.Errorf("list.reload_after_deletes must be positive")
	}
	if len(c.Search.Limits) == 0 || !slices.Contains(c.Search.Limits, c.Search.DefaultLimit) {
		return fmt.Errorf("search.default_limit %d is not one of %v", c.Search.DefaultLimit, c.Search.Limits)
	}
	if c.Fake.MinResults < 0 || c.Fake.MinResults > c.Fake.MaxResults {
		return fmt.Errorf("fake: min_results %d must be within [0, max_results %d]", c.Fake.MinResults, c.Fake.MaxResults)
	}
	if len(c.Fake.Domains) == 0 {
		return fmt.Errorf("fake.domains must not be empty")
	}
	if c.Schedule.Reconcile != "" {
		if _, err := cron.ParseStandard(c.Schedule.Reconcile); err != nil {
			return fmt.Errorf("schedule.reconcile: %w", err)
		}
	}
	return nil
}

// IsLoopback reports whether addr binds only to the local machine.
func IsLoopback(addr string) bool {
	if addr == "" || addr == "localhost" {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// ValidateSecure refuses to expose the server beyond loopback without a
// configured signing secret.
func (s ServerConfig) ValidateSecure() error {
	if !IsLoopback(s.BindAddr) && s.JWTSecret == "" {
		return fmt.Errorf("refusing to bind to %s without [server] jwt_secret; "+
			"set a secret or bind to 127.0.0.1", s.BindAddr)
	}
	return nil
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "mailsaver.db")
}

// ServerDatabasePath returns the path to the development server database.
func (c *Config) ServerDatabasePath() string {
	return filepath.Join(c.Data.DataDir, "server.db")
}

// EnsureHomeDir creates the data directory if it does not exist.
func (c *Config) EnsureHomeDir() error {
	if err := fileutil.PrivateDir(c.Data.DataDir); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
