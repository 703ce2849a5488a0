package config

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"hypauto/internal/quota"
)

// MonthLayout is the key format of a quota month.
const MonthLayout = "2006-01"

// MonthQuota is the archived bookkeeping of one month.
type MonthQuota struct {
	Targets     map[string]int `yaml:"targets"`
	Current     map[string]int `yaml:"current"`
	Deferred    map[string]int `yaml:"deferred"`
	LastUpdated string         `yaml:"last_updated,omitempty"`
}

// MonthKey formats t as a quota month key.
func MonthKey(t time.Time) string { return t.Format(MonthLayout) }

var monthNames = [...]string{"Ocak", "Şubat", "Mart", "Nisan", "Mayıs", "Haziran",
	"Temmuz", "Ağustos", "Eylül", "Ekim", "Kasım", "Aralık"}

// MonthDisplayName renders "2026-10" as "Ekim 2026". Malformed keys are
// returned unchanged.
func MonthDisplayName(key string) string {
	t, err := time.Parse(MonthLayout, key)
	if err != nil {
		return key
	}
	return fmt.Sprintf("%s %d", monthNames[t.Month()-1], t.Year())
}

// RollMonth moves the quota section to month. The figures of the previous
// month are archived in History and the new month starts with no targets and
// zero counts; it must be configured before a run. A section without a month
// that already has targets is adopted as month. RollMonth reports whether
// anything changed.
func (c *Config) RollMonth(month string) bool {
	q := &c.Quota
	if q.Month == month {
		return false
	}
	if q.Month == "" {
		q.Month = month
		return true
	}
	if q.History == nil {
		q.History = map[string]MonthQuota{}
	}
	q.History[q.Month] = MonthQuota{
		Targets:     copyCounts(q.Targets),
		Current:     copyCounts(q.Current),
		Deferred:    copyCounts(q.Deferred),
		LastUpdated: q.LastUpdated,
	}
	q.Month = month
	q.Targets = map[string]int{}
	q.Current = map[string]int{}
	q.Deferred = map[string]int{}
	q.LastUpdated = ""
	return true
}

// MonthConfigured reports whether targets were entered for month.
func (c *Config) MonthConfigured(month string) bool {
	if c.Quota.Month != month {
		return false
	}
	for _, n := range c.Quota.Targets {
		if n > 0 {
			return true
		}
	}
	return false
}

// Performance summarizes one month against its targets.
type Performance struct {
	Month       string
	TotalTarget int
	TotalDone   int // current + deferred
	Percent     float64
}

// MonthPerformance computes the performance of month from the live section
// or the history. ok is false for a month with no record.
func (c *Config) MonthPerformance(month string) (Performance, bool) {
	var targets, current, deferred map[string]int
	switch h, ok := c.Quota.History[month]; {
	case month == c.Quota.Month:
		targets, current, deferred = c.Quota.Targets, c.Quota.Current, c.Quota.Deferred
	case ok:
		targets, current, deferred = h.Targets, h.Current, h.Deferred
	default:
		return Performance{}, false
	}
	p := Performance{Month: month, TotalTarget: sum(targets), TotalDone: sum(current) + sum(deferred)}
	if p.TotalTarget > 0 {
		p.Percent = float64(p.TotalDone) * 100 / float64(p.TotalTarget)
	}
	return p, true
}

// Months lists every month with a record, newest first.
func (c *Config) Months() []string {
	var out []string
	for m := range c.Quota.History {
		if m != c.Quota.Month {
			out = append(out, m)
		}
	}
	if c.Quota.Month != "" {
		out = append(out, c.Quota.Month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// SetTarget records the monthly target of t for the current month.
func (c *Config) SetTarget(t quota.TaskType, n int) {
	if c.Quota.Targets == nil {
		c.Quota.Targets = map[string]int{}
	}
	c.Quota.Targets[string(t)] = n
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// QuotaStore writes completion counts back to the configuration file as soon
// as they change, so the next run starts from the real monthly figures. Each
// write re-reads the file and touches only quota.current, leaving command-line
// and environment overrides of the running process out of the file.
type QuotaStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewQuotaStore returns a store over the configuration file at path.
func NewQuotaStore(path string) *QuotaStore {
	return &QuotaStore{path: path, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (s *QuotaStore) SetClock(now func() time.Time) {
	s.now = now
}

// SetCurrent stores n as the completed count of t for the current month.
func (s *QuotaStore) SetCurrent(t quota.TaskType, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := loadFile(s.path)
	if err != nil {
		return err
	}
	now := s.now()
	if month := MonthKey(now); cfg.Quota.Month != month {
		return fmt.Errorf("quota in %s belongs to %q, not %s", s.path, cfg.Quota.Month, month)
	}
	if cfg.Quota.Current == nil {
		cfg.Quota.Current = map[string]int{}
	}
	cfg.Quota.Current[string(t)] = n
	cfg.Quota.LastUpdated = now.Format("2006-01-02 15:04")
	return cfg.Save(s.path)
}

// Update applies fn to the configuration file and writes it back when fn
// reports a change. The file as updated is returned.
func (s *QuotaStore) Update(fn func(c *Config) (bool, error)) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := loadFile(s.path)
	if err != nil {
		return nil, err
	}
	changed, err := fn(cfg)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := cfg.Save(s.path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// OpenMonth rolls the file over to the current month and returns the month
// key with the file as rolled.
func (s *QuotaStore) OpenMonth() (string, *Config, error) {
	month := MonthKey(s.now())
	cfg, err := s.Update(func(c *Config) (bool, error) {
		return c.RollMonth(month), nil
	})
	return month, cfg, err
}
