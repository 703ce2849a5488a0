package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hypauto/internal/quota"
)

// Config holds all hypauto configuration.
type Config struct {
	Portal  PortalConfig  `yaml:"portal"`
	Browser BrowserConfig `yaml:"browser"`
	Run     RunSettings   `yaml:"run"`
	Quota   QuotaConfig   `yaml:"quota"`
	Paths   PathsConfig   `yaml:"paths"`
	Logging LoggingConfig `yaml:"logging"`
	Update  UpdateConfig  `yaml:"update"`
}

// PortalConfig describes the remote clinical portal.
type PortalConfig struct {
	URL               string `yaml:"url"`
	NavigationTimeout string `yaml:"navigation_timeout"`
}

// BrowserConfig configures how the browser session is obtained.
type BrowserConfig struct {
	// DebuggerURL is the DevTools endpoint of an already running browser.
	DebuggerURL    string `yaml:"debugger_url"`
	AttachExisting bool   `yaml:"attach_existing"`
	Bin            string `yaml:"bin"`
	Headless       bool   `yaml:"headless"`
	// ProfileDir keeps cookies and one-time consent between launches.
	ProfileDir string `yaml:"profile_dir"`
}

// RunSettings tunes the automation loop.
type RunSettings struct {
	SessionPercent    int      `yaml:"session_percent"`
	EnabledTypes      []string `yaml:"enabled_types"` // empty = all
	StepBudget        int      `yaml:"step_budget"`
	StuckThreshold    int      `yaml:"stuck_threshold"`
	CVRStuckThreshold int      `yaml:"cvr_stuck_threshold"`
	TransitionTimeout string   `yaml:"transition_timeout"`
	TransitionPoll    string   `yaml:"transition_poll"`
	PINWait           string   `yaml:"pin_wait"`
	PINPoll           string   `yaml:"pin_poll"`
	KeepAliveIdle     string   `yaml:"keep_alive_idle"`
	AutoSubmitPIN     bool     `yaml:"auto_submit_pin"`
	CVRExcessPolicy   string   `yaml:"cvr_excess_policy"` // leave, auto-delete-excess
	CacheMaxAge       string   `yaml:"cache_max_age"`
	QueueGrace        string   `yaml:"queue_grace"`
}

// QuotaConfig carries the monthly bookkeeping per task type code (HT_IZLEM, ...).
// Targets, Current and Deferred belong to Month; earlier months are kept in
// History.
type QuotaConfig struct {
	Month       string                `yaml:"month"` // YYYY-MM
	Targets     map[string]int        `yaml:"targets"`
	Current     map[string]int        `yaml:"current"`
	Deferred    map[string]int        `yaml:"deferred"`
	LastUpdated string                `yaml:"last_updated,omitempty"`
	History     map[string]MonthQuota `yaml:"history,omitempty"`
}

// PathsConfig lists local files. Relative paths resolve against DataDir.
type PathsConfig struct {
	DataDir         string `yaml:"data_dir"`
	CacheFile       string `yaml:"cache_file"`
	OptOutFile      string `yaml:"optout_file"`
	HistoryDB       string `yaml:"history_db"`
	PINFile         string `yaml:"pin_file"`
	IdentityFile    string `yaml:"identity_file"`
	PregnancyRoster string `yaml:"pregnancy_roster"`
	Inbox           string `yaml:"inbox"`
	Outbox          string `yaml:"outbox"`
}

// LoggingConfig configures the categorized debug logs.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// UpdateConfig points at the published version manifest.
type UpdateConfig struct {
	URL         string `yaml:"url"`
	CheckOnBoot bool   `yaml:"check_on_boot"`
	Timeout     string `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			URL:               "https://hyp.saglik.gov.tr/",
			NavigationTimeout: "30s",
		},

		Browser: BrowserConfig{
			DebuggerURL:    "http://127.0.0.1:9222",
			AttachExisting: true,
			Headless:       false,
		},

		Run: RunSettings{
			SessionPercent:    100,
			StepBudget:        25,
			StuckThreshold:    3,
			CVRStuckThreshold: 4,
			TransitionTimeout: "1s",
			TransitionPoll:    "100ms",
			PINWait:           "120s",
			PINPoll:           "2s",
			KeepAliveIdle:     "120s",
			AutoSubmitPIN:     true,
			CVRExcessPolicy:   string(quota.PolicyLeave),
			CacheMaxAge:       "720h",
			QueueGrace:        "2s",
		},

		Quota: QuotaConfig{
			Targets:  map[string]int{},
			Current:  map[string]int{},
			Deferred: map[string]int{},
		},

		Paths: PathsConfig{
			DataDir:      ".hypauto",
			CacheFile:    "completed.json",
			OptOutFile:   "sms_optout.json",
			HistoryDB:    "history.db",
			PINFile:      "pin.age",
			IdentityFile: "identity.txt",
			Inbox:        "inbox",
			Outbox:       "outbox",
		},

		Logging: LoggingConfig{
			Level: "info",
		},

		Update: UpdateConfig{
			CheckOnBoot: true,
			Timeout:     "5s",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// loadFile reads path over the defaults without environment overrides, so
// that what is written back contains only what the file held.
func loadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("HYPAUTO_PORTAL_URL"); url != "" {
		c.Portal.URL = url
	}
	if url := os.Getenv("HYPAUTO_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if dir := os.Getenv("HYPAUTO_DATA_DIR"); dir != "" {
		c.Paths.DataDir = dir
	}
	if p := os.Getenv("HYPAUTO_SESSION_PERCENT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			c.Run.SessionPercent = n
		}
	}
	if os.Getenv("HYPAUTO_DEBUG") == "1" {
		c.Logging.DebugMode = true
	}
}

// Resolve returns p joined onto the data directory unless p is absolute or empty.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.DataDir, p)
}

// ProfileDir returns the persistent browser profile location.
func (c *Config) ProfileDir() string {
	if c.Browser.ProfileDir != "" {
		return c.Browser.ProfileDir
	}
	return c.Resolve("profile")
}

// LogsDir is where categorized debug logs go.
func (c *Config) LogsDir() string {
	return c.Resolve("logs")
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetNavigationTimeout returns the page navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Portal.NavigationTimeout, 30*time.Second)
}

// GetTransitionTimeout returns how long a view change is awaited after an action.
func (c *Config) GetTransitionTimeout() time.Duration {
	return parseDuration(c.Run.TransitionTimeout, time.Second)
}

// GetTransitionPoll returns the view change polling interval.
func (c *Config) GetTransitionPoll() time.Duration {
	return parseDuration(c.Run.TransitionPoll, 100*time.Millisecond)
}

// GetPINWait returns how long manual PIN entry is awaited.
func (c *Config) GetPINWait() time.Duration {
	return parseDuration(c.Run.PINWait, 120*time.Second)
}

// GetPINPoll returns the manual PIN entry polling interval.
func (c *Config) GetPINPoll() time.Duration {
	return parseDuration(c.Run.PINPoll, 2*time.Second)
}

// GetKeepAliveIdle returns the idle period after which the session is poked.
func (c *Config) GetKeepAliveIdle() time.Duration {
	return parseDuration(c.Run.KeepAliveIdle, 120*time.Second)
}

// GetCacheMaxAge returns the idempotence cache expiry.
func (c *Config) GetCacheMaxAge() time.Duration {
	return parseDuration(c.Run.CacheMaxAge, 30*24*time.Hour)
}

// GetQueueGrace returns how long an empty inbox is tolerated before the listener finishes a batch.
func (c *Config) GetQueueGrace() time.Duration {
	return parseDuration(c.Run.QueueGrace, 2*time.Second)
}

// GetUpdateTimeout returns the update check HTTP timeout.
func (c *Config) GetUpdateTimeout() time.Duration {
	return parseDuration(c.Update.Timeout, 5*time.Second)
}

// QuotaSettings converts the quota section into tracker settings.
// Unknown task type codes are rejected.
func (c *Config) QuotaSettings() (quota.Settings, error) {
	s := quota.Settings{
		Targets:        map[quota.TaskType]int{},
		Current:        map[quota.TaskType]int{},
		Deferred:       map[quota.TaskType]int{},
		SessionPercent: c.Run.SessionPercent,
	}

	copyInto := func(dst map[quota.TaskType]int, src map[string]int) error {
		for code, n := range src {
			t, err := quota.ParseTaskType(code)
			if err != nil {
				return err
			}
			dst[t] = n
		}
		return nil
	}
	if err := copyInto(s.Targets, c.Quota.Targets); err != nil {
		return s, fmt.Errorf("quota.targets: %w", err)
	}
	if err := copyInto(s.Current, c.Quota.Current); err != nil {
		return s, fmt.Errorf("quota.current: %w", err)
	}
	if err := copyInto(s.Deferred, c.Quota.Deferred); err != nil {
		return s, fmt.Errorf("quota.deferred: %w", err)
	}

	for _, code := range c.Run.EnabledTypes {
		if strings.EqualFold(code, "all") {
			s.Enabled = nil
			break
		}
		t, err := quota.ParseTaskType(code)
		if err != nil {
			return s, fmt.Errorf("run.enabled_types: %w", err)
		}
		s.Enabled = append(s.Enabled, t)
	}

	return s, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url is required")
	}
	if c.Run.SessionPercent <= 0 || c.Run.SessionPercent > 100 {
		return fmt.Errorf("run.session_percent must be in 1..100, got %d", c.Run.SessionPercent)
	}
	if c.Run.StepBudget <= 0 {
		return fmt.Errorf("run.step_budget must be positive")
	}
	if c.Run.StuckThreshold <= 0 || c.Run.CVRStuckThreshold <= 0 {
		return fmt.Errorf("stuck thresholds must be positive")
	}
	switch quota.ExcessPolicy(c.Run.CVRExcessPolicy) {
	case quota.PolicyLeave, quota.PolicyAutoDelete:
	default:
		return fmt.Errorf("invalid run.cvr_excess_policy: %s (valid: %s, %s)",
			c.Run.CVRExcessPolicy, quota.PolicyLeave, quota.PolicyAutoDelete)
	}
	if _, err := c.QuotaSettings(); err != nil {
		return err
	}
	return nil
}
