// Package protocol drives one task card from its start page to a finalized
// state. All five disease domains share a single control loop; what differs is
// data: a classifier table, per-state handlers and per-iteration hooks.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hypauto/internal/classify"
	"hypauto/internal/clinical"
	"hypauto/internal/logging"
	"hypauto/internal/portal"
	"hypauto/internal/quota"
	"hypauto/internal/recovery"
)

// Defaults for the control loop.
const (
	DefaultStepBudget     = 25
	DefaultStuckThreshold = 3
)

// AbortKind separates cancellations from failures.
type AbortKind int

const (
	// Cancelled runs stopped on purpose: unrecoverable lab value, opt-in gate.
	Cancelled AbortKind = iota + 1
	// Stuck runs saw the same state too many times in a row.
	Stuck
	// Exhausted runs used up the step budget.
	Exhausted
)

func (k AbortKind) String() string {
	switch k {
	case Cancelled:
		return "cancelled"
	case Stuck:
		return "stuck"
	case Exhausted:
		return "step-budget-exhausted"
	default:
		return fmt.Sprintf("abort(%d)", int(k))
	}
}

// Abort ends a protocol run before it reached a terminal state.
type Abort struct {
	Kind          AbortKind
	State         classify.State
	Reason        string
	MissingTests  []string
	OptInRequired bool
}

func (a *Abort) Error() string {
	msg := fmt.Sprintf("%s at %s", a.Kind, a.State)
	if a.Reason != "" {
		msg += ": " + a.Reason
	}
	return msg
}

// Failed reports whether the abort counts as a failure rather than a cancellation.
func (a *Abort) Failed() bool { return a.Kind == Stuck || a.Kind == Exhausted }

// AsAbort unwraps an *Abort.
func AsAbort(err error) (*Abort, bool) {
	var a *Abort
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

func cancelMissing(state classify.State, tests []string) *Abort {
	return &Abort{
		Kind:         Cancelled,
		State:        state,
		Reason:       "missing lab values: " + strings.Join(tests, ", "),
		MissingTests: tests,
	}
}

// Step is what a handler tells the loop.
type Step int

const (
	// Next keeps looping after the page transitions.
	Next Step = iota
	// Finished ends the run successfully.
	Finished
)

// Handler acts on one classified state.
type Handler func(ctx context.Context, run *Run) (Step, error)

// Hook runs on every iteration before dispatch. A hook that returns handled
// takes the iteration; dispatch is skipped.
type Hook func(ctx context.Context, run *Run) (handled bool, err error)

// Spec describes one protocol as data.
type Spec struct {
	Name           string
	Task           quota.TaskType
	Table          classify.Table
	Handlers       map[classify.State]Handler
	Always         []Hook
	StuckThreshold int
}

// Subject is the patient a card belongs to.
type Subject struct {
	ID          string
	Name        string
	Age         int
	Medications []clinical.Medication
}

// PregnancyLookup answers the mandatory pregnancy question.
type PregnancyLookup interface {
	IsPregnant(id, name string) bool
}

// Runner holds the collaborators shared by every protocol run.
type Runner struct {
	Recovery   *recovery.Recoverer
	Pregnancy  PregnancyLookup
	Drugs      *clinical.DrugAnalyzer
	Transition time.Duration
	Poll       time.Duration
	StepBudget int
	Now        func() time.Time
}

// NewRunner returns a runner with the default budget and timings.
func NewRunner(rec *recovery.Recoverer, preg PregnancyLookup, drugs *clinical.DrugAnalyzer) *Runner {
	if rec == nil {
		rec = recovery.New(recovery.DefaultCatalog)
	}
	if drugs == nil {
		drugs = clinical.NewDrugAnalyzer(nil)
	}
	return &Runner{
		Recovery:   rec,
		Pregnancy:  preg,
		Drugs:      drugs,
		Transition: time.Second,
		Poll:       100 * time.Millisecond,
		StepBudget: DefaultStepBudget,
		Now:        time.Now,
	}
}

// Run is the live state of one protocol run, handed to handlers and hooks.
type Run struct {
	Page    portal.Page
	Spec    Spec
	Subject Subject
	State   classify.State
	Steps   int
	Repeats int

	runner    *Runner
	submitted []recovery.LabValue
	notes     []string
}

// Result describes a finished run.
type Result struct {
	Protocol  string
	Steps     int
	States    []classify.State
	Submitted []recovery.LabValue
	Notes     []string
}

// Run drives page through spec until a handler reports Finished, the step
// budget runs out, or a handler aborts. The returned error is an *Abort for
// protocol outcomes and anything else for infrastructure trouble.
func (r *Runner) Run(ctx context.Context, page portal.Page, spec Spec, subj Subject) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryProtocol, "Run "+spec.Name)
	defer timer.Stop()

	threshold := spec.StuckThreshold
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	budget := r.StepBudget
	if budget <= 0 {
		budget = DefaultStepBudget
	}

	run := &Run{Page: page, Spec: spec, Subject: subj, runner: r}
	res := &Result{Protocol: spec.Name}
	finish := func() {
		res.Steps = run.Steps
		res.Submitted = run.submitted
		res.Notes = run.notes
	}

	var prev classify.State
	for run.Steps = 0; run.Steps < budget; run.Steps++ {
		if err := ctx.Err(); err != nil {
			finish()
			return res, err
		}

		state := classify.Classify(page, spec.Table)
		if run.Steps > 0 && state == prev {
			run.Repeats++
		} else {
			run.Repeats = 0
		}
		prev = state
		run.State = state
		res.States = append(res.States, state)
		logging.ProtocolDebug("%s step %d: %s (repeats=%d)", spec.Name, run.Steps, state, run.Repeats)

		// threshold consecutive observations of one state, the first included.
		if run.Repeats+1 >= threshold {
			finish()
			logging.ProtocolWarn("%s stuck at %s for patient %s", spec.Name, state, subj.ID)
			return res, &Abort{Kind: Stuck, State: state,
				Reason: fmt.Sprintf("no progress after %d attempts", run.Repeats+1)}
		}

		before := portal.Fingerprint(page)
		step, err := run.iterate(ctx)
		if err != nil {
			finish()
			if a, ok := AsAbort(err); ok {
				if a.State == "" {
					a.State = state
				}
				logging.Protocol("%s aborted for patient %s: %v", spec.Name, subj.ID, a)
				return res, a
			}
			return res, fmt.Errorf("%s at %s: %w", spec.Name, state, err)
		}
		if step == Finished {
			run.Steps++
			finish()
			logging.Protocol("%s finished for patient %s in %d steps", spec.Name, subj.ID, run.Steps)
			return res, nil
		}
		portal.WaitTransition(ctx, page, before, r.Transition, r.Poll)
	}

	finish()
	return res, &Abort{Kind: Exhausted, State: run.State,
		Reason: fmt.Sprintf("step budget of %d exhausted", budget)}
}

func (run *Run) iterate(ctx context.Context) (Step, error) {
	for _, hook := range run.Spec.Always {
		handled, err := hook(ctx, run)
		if err != nil {
			if _, ok := AsAbort(err); ok {
				return Next, err
			}
			logging.ProtocolWarn("%s hook failed: %v", run.Spec.Name, err)
			continue
		}
		if handled {
			return Next, nil
		}
	}

	h, ok := run.Spec.Handlers[run.State]
	if !ok {
		h, ok = commonHandlers[run.State]
	}
	if !ok {
		h = Advance
	}
	return h(ctx, run)
}

// Today is the runner's notion of the current day.
func (run *Run) Today() time.Time { return run.runner.Now() }

// Note attaches a free-form remark to the result.
func (run *Run) Note(format string, args ...interface{}) {
	run.notes = append(run.notes, fmt.Sprintf(format, args...))
}

// wait blocks until the page changes from before or the transition timeout passes.
func (run *Run) wait(ctx context.Context, before string) {
	portal.WaitTransition(ctx, run.Page, before, run.runner.Transition, run.runner.Poll)
}

// click clicks loc and waits for the page to react.
func (run *Run) click(ctx context.Context, loc portal.Locator) error {
	before := portal.Fingerprint(run.Page)
	if err := loc.Click(ctx, run.Page); err != nil {
		return err
	}
	run.wait(ctx, before)
	return nil
}
