package quota

import (
	"sort"
	"sync"

	"hypauto/internal/logging"
)

// ExcessPolicy decides what happens to a linked cardiovascular follow-up that
// was completed after its monthly target was already met.
type ExcessPolicy string

const (
	PolicyLeave      ExcessPolicy = "leave"
	PolicyAutoDelete ExcessPolicy = "auto-delete-excess"
)

// Settings are the monthly figures a tracker starts from.
type Settings struct {
	Targets  map[TaskType]int
	Current  map[TaskType]int
	Deferred map[TaskType]int
	// SessionPercent scales the target for this session (70 or 100 in practice).
	SessionPercent int
	// Enabled restricts work to these types. Nil means all types.
	Enabled []TaskType
}

// Tracker computes remaining budget per task type. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	settings Settings
	enabled  map[TaskType]bool
	session  map[TaskType]int
}

// NewTracker returns a tracker with zero session completions.
func NewTracker(s Settings) *Tracker {
	if s.SessionPercent <= 0 {
		s.SessionPercent = 100
	}
	t := &Tracker{
		settings: s,
		session:  make(map[TaskType]int),
	}
	if s.Enabled != nil {
		t.enabled = make(map[TaskType]bool, len(s.Enabled))
		for _, e := range s.Enabled {
			t.enabled[e] = true
		}
	}
	return t
}

// RemainingTarget is floor(target×percent/100) minus current, deferred and
// session completions, never below zero.
func (t *Tracker) RemainingTarget(tt TaskType) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked(tt)
}

func (t *Tracker) remainingLocked(tt TaskType) int {
	scaled := t.settings.Targets[tt] * t.settings.SessionPercent / 100
	r := scaled - t.settings.Current[tt] - t.settings.Deferred[tt] - t.session[tt]
	if r < 0 {
		return 0
	}
	return r
}

// Enabled reports whether tt is in the operator's selection.
func (t *Tracker) Enabled(tt TaskType) bool {
	if t.enabled == nil {
		return true
	}
	return t.enabled[tt]
}

// ShouldProcess reports whether a card of type tt may be worked on now.
func (t *Tracker) ShouldProcess(tt TaskType) bool {
	if !t.Enabled(tt) {
		return false
	}
	return t.RemainingTarget(tt) > 0
}

// OnTaskSucceeded counts one session completion.
func (t *Tracker) OnTaskSucceeded(tt TaskType) {
	t.mu.Lock()
	t.session[tt]++
	n := t.session[tt]
	t.mu.Unlock()
	logging.QuotaDebug("%s session completions: %d", tt, n)
}

// OnTaskUndone reverts one session completion after an undo on the portal.
func (t *Tracker) OnTaskUndone(tt TaskType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session[tt] > 0 {
		t.session[tt]--
	}
	logging.QuotaDebug("%s session completions after undo: %d", tt, t.session[tt])
}

// Completed is the month's completed count of tt: the count the run started
// from plus this session's completions.
func (t *Tracker) Completed(tt TaskType) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings.Current[tt] + t.session[tt]
}

// SessionCompleted returns the session-local completion count for tt.
func (t *Tracker) SessionCompleted(tt TaskType) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session[tt]
}

// Row is one line of a quota report.
type Row struct {
	Type      TaskType
	Target    int
	Scaled    int
	Current   int
	Deferred  int
	Session   int
	Remaining int
	Enabled   bool
}

// Snapshot reports every known task type, sorted by code.
func (t *Tracker) Snapshot() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := make([]Row, 0, len(AllTypes))
	for _, tt := range AllTypes {
		rows = append(rows, Row{
			Type:      tt,
			Target:    t.settings.Targets[tt],
			Scaled:    t.settings.Targets[tt] * t.settings.SessionPercent / 100,
			Current:   t.settings.Current[tt],
			Deferred:  t.settings.Deferred[tt],
			Session:   t.session[tt],
			Remaining: t.remainingLocked(tt),
			Enabled:   t.enabled == nil || t.enabled[tt],
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Type < rows[j].Type })
	return rows
}
