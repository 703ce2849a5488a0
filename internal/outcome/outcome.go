// Package outcome accumulates what happened to every task card in a run and
// fans each item out to interested listeners.
package outcome

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"hypauto/internal/quota"
)

// Kind classifies a recorded item.
type Kind string

const (
	Succeeded Kind = "succeeded"
	Cancelled Kind = "cancelled"
	Skipped   Kind = "skipped"
	Failed    Kind = "failed"
)

// Item is one recorded card or patient outcome.
type Item struct {
	Kind        Kind
	PatientID   string
	PatientName string
	Task        quota.TaskType // empty for patient-level items
	Reason      string
	// MissingTests lists unresolved lab tests of a cancelled card.
	MissingTests  []string
	OptInRequired bool
	Steps         int
	At            time.Time
}

// Listener receives every item as it is recorded.
type Listener interface {
	OnItem(Item)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Item)

func (f ListenerFunc) OnItem(it Item) { f(it) }

// Stats are the run counters.
type Stats struct {
	Succeeded int
	Cancelled int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

// Summary is an immutable end-of-run report.
type Summary struct {
	Stats
	Started   time.Time
	ByTask    map[quota.TaskType]int // successes per task type
	Cancelled []Item
	Skipped   []Item
	Failed    []Item
}

// Recorder is safe for concurrent use; listeners are called outside its lock.
type Recorder struct {
	mu        sync.Mutex
	started   time.Time
	now       func() time.Time
	items     []Item
	names     map[string]string
	listeners []Listener
}

// NewRecorder starts the elapsed clock now.
func NewRecorder() *Recorder {
	return NewRecorderWithClock(time.Now)
}

// NewRecorderWithClock is NewRecorder with an injected clock.
func NewRecorderWithClock(now func() time.Time) *Recorder {
	return &Recorder{started: now(), now: now, names: map[string]string{}}
}

// NamePatient remembers the display name of patientID. Items recorded
// afterwards carry it, and so does the patient's verdict.
func (r *Recorder) NamePatient(patientID, name string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.names[patientID] = name
	r.mu.Unlock()
}

// PatientName returns the name given to NamePatient, or "".
func (r *Recorder) PatientName(patientID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names[patientID]
}

// AddListener registers l for subsequent items.
func (r *Recorder) AddListener(l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Record stores it and notifies listeners.
func (r *Recorder) Record(it Item) {
	r.mu.Lock()
	if it.At.IsZero() {
		it.At = r.now()
	}
	if it.PatientName == "" {
		it.PatientName = r.names[it.PatientID]
	}
	r.items = append(r.items, it)
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		l.OnItem(it)
	}
}

// Succeeded records a completed card.
func (r *Recorder) Succeeded(patientID string, task quota.TaskType, steps int) {
	r.Record(Item{Kind: Succeeded, PatientID: patientID, Task: task, Steps: steps})
}

// Skipped records a patient or card that was not worked on.
func (r *Recorder) Skipped(patientID string, task quota.TaskType, reason string) {
	r.Record(Item{Kind: Skipped, PatientID: patientID, Task: task, Reason: reason})
}

// Failed records a card that got stuck or raised an unexpected error.
func (r *Recorder) Failed(patientID string, task quota.TaskType, reason string) {
	r.Record(Item{Kind: Failed, PatientID: patientID, Task: task, Reason: reason})
}

// Cancelled records a card that was deliberately abandoned.
func (r *Recorder) Cancelled(patientID string, task quota.TaskType, reason string, missing []string, optIn bool) {
	r.Record(Item{
		Kind:          Cancelled,
		PatientID:     patientID,
		Task:          task,
		Reason:        reason,
		MissingTests:  append([]string(nil), missing...),
		OptInRequired: optIn,
	})
}

// Stats returns the counters so far.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statsLocked()
}

func (r *Recorder) statsLocked() Stats {
	s := Stats{Elapsed: r.now().Sub(r.started)}
	for _, it := range r.items {
		switch it.Kind {
		case Succeeded:
			s.Succeeded++
		case Cancelled:
			s.Cancelled++
		case Skipped:
			s.Skipped++
		case Failed:
			s.Failed++
		}
	}
	return s
}

// Summary snapshots the run.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := Summary{Stats: r.statsLocked(), Started: r.started, ByTask: map[quota.TaskType]int{}}
	for _, it := range r.items {
		switch it.Kind {
		case Succeeded:
			sum.ByTask[it.Task]++
		case Cancelled:
			sum.Cancelled = append(sum.Cancelled, it)
		case Skipped:
			sum.Skipped = append(sum.Skipped, it)
		case Failed:
			sum.Failed = append(sum.Failed, it)
		}
	}
	return sum
}

// Items returns the items recorded for patientID, in order.
func (r *Recorder) Items(patientID string) []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Item
	for _, it := range r.items {
		if it.PatientID == patientID {
			out = append(out, it)
		}
	}
	return out
}

// Operator channel statuses.
const (
	StatusSuccess      = "success"
	StatusError        = "error"
	StatusSMSGated     = "sms-gated"
	StatusMissingTests = "missing-tests"
)

// Verdict is the per-patient report for the operator channel.
type Verdict struct {
	PatientName  string
	Status       string
	Message      string
	MissingTests []string
}

// maxListedTests bounds how many missing tests a message spells out.
const maxListedTests = 5

// PatientVerdict folds the items of one patient into a single status. An
// opt-in gate wins over missing tests, which win over other failures.
func (r *Recorder) PatientVerdict(patientID string) Verdict {
	v := verdict(r.Items(patientID))
	v.PatientName = r.PatientName(patientID)
	return v
}

func verdict(items []Item) Verdict {
	var missing []string
	seen := map[string]bool{}
	var failures []string
	done := 0
	for _, it := range items {
		if it.OptInRequired {
			return Verdict{Status: StatusSMSGated, Message: "patient has not given SMS consent"}
		}
		for _, t := range it.MissingTests {
			if !seen[t] {
				seen[t] = true
				missing = append(missing, t)
			}
		}
		switch it.Kind {
		case Succeeded:
			done++
		case Cancelled, Failed:
			failures = append(failures, describe(it))
		}
	}

	if len(missing) > 0 {
		return Verdict{Status: StatusMissingTests, Message: MissingMessage(missing), MissingTests: missing}
	}
	if len(failures) > 0 {
		return Verdict{Status: StatusError, Message: strings.Join(failures, "; ")}
	}
	if done == 0 {
		msg := "no eligible tasks"
		for _, it := range items {
			if it.Kind == Skipped && it.Reason != "" {
				msg = it.Reason
				break
			}
		}
		return Verdict{Status: StatusSuccess, Message: msg}
	}
	return Verdict{Status: StatusSuccess, Message: fmt.Sprintf("%d task(s) completed", done)}
}

// MissingMessage names up to five tests and counts the rest.
func MissingMessage(tests []string) string {
	if len(tests) <= maxListedTests {
		return "missing tests: " + strings.Join(tests, ", ")
	}
	return fmt.Sprintf("missing tests: %s and %d more",
		strings.Join(tests[:maxListedTests], ", "), len(tests)-maxListedTests)
}

func describe(it Item) string {
	if it.Task == "" {
		return it.Reason
	}
	return fmt.Sprintf("%s: %s", it.Task, it.Reason)
}
