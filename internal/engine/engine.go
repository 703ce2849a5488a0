// Package engine ties the pieces together: it opens the portal session, walks
// patients and their task cards, runs each eligible card through its protocol
// and books the outcome in the quota tracker, the idempotence cache and the
// outcome recorder.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"hypauto/internal/cache"
	"hypauto/internal/classify"
	"hypauto/internal/logging"
	"hypauto/internal/outcome"
	"hypauto/internal/portal"
	"hypauto/internal/protocol"
	"hypauto/internal/quota"
	"hypauto/internal/secrets"
	"hypauto/internal/worklist"
)

// CountStore persists the month's completed count of a task type.
// *config.QuotaStore implements it.
type CountStore interface {
	SetCurrent(t quota.TaskType, n int) error
}

// Session is the browser side of the engine. *browser.Controller implements it.
type Session interface {
	Connect(ctx context.Context, attach bool) error
	Login(ctx context.Context, pin string, autoSubmit bool) error
	KeepAlive(ctx context.Context) error
	Page() (portal.Page, error)
	Close() error
}

// Deps are the collaborators an Engine is built from. Only Session is required.
type Deps struct {
	Session  Session
	Secrets  secrets.SecretProvider
	Counts   CountStore
	Cache    *cache.Cache
	OptOut   *cache.OptOutList
	Runner   *protocol.Runner
	Reader   *worklist.Reader
	Recorder *outcome.Recorder
	Logger   *zap.Logger
	Now      func() time.Time
}

// Engine runs patients one at a time through a single browser session.
type Engine struct {
	cfg      RunConfig
	session  Session
	secrets  secrets.SecretProvider
	counts   CountStore
	tracker  *quota.Tracker
	cache    *cache.Cache
	optOut   *cache.OptOutList
	runner   *protocol.Runner
	reader   *worklist.Reader
	recorder *outcome.Recorder
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	started bool
}

// New builds an engine. Missing optional collaborators get defaults; a nil
// cache or opt-out list disables that bookkeeping.
func New(cfg RunConfig, d Deps) *Engine {
	e := &Engine{
		cfg:      cfg,
		session:  d.Session,
		secrets:  d.Secrets,
		counts:   d.Counts,
		tracker:  quota.NewTracker(cfg.Quota),
		cache:    d.Cache,
		optOut:   d.OptOut,
		runner:   d.Runner,
		reader:   d.Reader,
		recorder: d.Recorder,
		log:      d.Logger,
		now:      d.Now,
	}
	if e.secrets == nil {
		e.secrets = secrets.EnvProvider{}
	}
	if e.runner == nil {
		e.runner = protocol.NewRunner(nil, nil, nil)
	}
	if e.reader == nil {
		e.reader = worklist.NewReader()
	}
	if e.recorder == nil {
		e.recorder = outcome.NewRecorder()
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if cfg.StepBudget > 0 {
		e.runner.StepBudget = cfg.StepBudget
	}
	if cfg.Transition > 0 {
		e.runner.Transition = cfg.Transition
		e.reader.Transition = cfg.Transition
		if e.runner.Recovery != nil {
			e.runner.Recovery.Transition = cfg.Transition
		}
	}
	if cfg.TransitionPoll > 0 {
		e.runner.Poll = cfg.TransitionPoll
		e.reader.Poll = cfg.TransitionPoll
		if e.runner.Recovery != nil {
			e.runner.Recovery.Poll = cfg.TransitionPoll
		}
	}
	e.runner.Now = e.now
	return e
}

// Tracker exposes the quota tracker for reporting.
func (e *Engine) Tracker() *quota.Tracker { return e.tracker }

// Recorder exposes the outcome recorder.
func (e *Engine) Recorder() *outcome.Recorder { return e.recorder }

// Start connects and logs in once. Later calls are no-ops until Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if e.cache != nil && e.cfg.CacheMaxAge > 0 {
		if n, err := e.cache.PurgeOlderThan(e.cfg.CacheMaxAge); err != nil {
			e.log.Warn("cache purge failed", zap.Error(err))
		} else if n > 0 {
			e.log.Info("purged stale cache entries", zap.Int("count", n))
		}
	}

	if err := e.session.Connect(ctx, e.cfg.AttachExisting); err != nil {
		return &ConnectError{Err: err}
	}

	pin, err := e.secrets.PIN(ctx)
	if err != nil && !errors.Is(err, secrets.ErrNoPIN) {
		e.log.Warn("PIN unavailable, waiting for manual entry", zap.Error(err))
	}
	if err := e.session.Login(ctx, pin, e.cfg.AutoSubmitPIN); err != nil {
		if cerr := e.session.Close(); cerr != nil {
			logging.SessionWarn("close after failed login: %v", cerr)
		}
		return &LoginError{Err: err}
	}

	e.started = true
	e.log.Info("session ready")
	return nil
}

// Stop closes the browser session. The engine can be started again.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false
	return e.session.Close()
}

// PatientResult tallies what happened to one patient.
type PatientResult struct {
	Patient   worklist.Patient
	Succeeded []quota.TaskType
	Cancelled []quota.TaskType
	Failed    []quota.TaskType
	// OptedOut is set when the patient hit the SMS consent gate.
	OptedOut bool
}

// Worked reports whether any card was attempted.
func (r PatientResult) Worked() bool {
	return len(r.Succeeded)+len(r.Cancelled)+len(r.Failed) > 0
}

// ProcessPatient opens the patient matching query and runs every eligible card.
// Cards are re-enumerated after each one since completing a card can reveal
// others. Skips are recorded and returned as ErrSkipped; only session errors
// and cancellation are returned otherwise.
func (e *Engine) ProcessPatient(ctx context.Context, query string) (PatientResult, error) {
	res := PatientResult{}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := e.Start(ctx); err != nil {
		return res, err
	}
	page, err := e.session.Page()
	if err != nil {
		return res, &ConnectError{Err: err}
	}

	query = strings.TrimSpace(query)
	if worklist.IsNaturalID(query) && e.optedOut(query) {
		return res, e.skip(query, "patient is on the SMS opt-out list")
	}

	timer := logging.StartTimer(logging.CategoryEngine, "patient "+query)
	defer timer.Stop()

	patient, err := e.reader.Search(ctx, page, query)
	if err != nil {
		if errors.Is(err, worklist.ErrPatientNotFound) {
			e.recorder.Failed(query, "", "patient not found")
			e.log.Warn("patient not found", zap.String("query", query))
			return res, nil
		}
		e.recorder.Failed(query, "", err.Error())
		return res, nil
	}
	res.Patient = patient
	pid := patient.ID
	if pid == "" {
		pid = query
	}
	e.recorder.NamePatient(pid, patient.Name)
	if e.optedOut(pid) {
		return res, e.skip(pid, "patient is on the SMS opt-out list")
	}

	meds, err := e.reader.ReadMedications(ctx, page)
	if err != nil {
		logging.WorklistDebug("medications unreadable for %s: %v", pid, err)
	}
	subj := protocol.Subject{ID: pid, Name: patient.Name, Age: patient.Age, Medications: meds}

	attempted := map[quota.TaskType]bool{}
	reasons := map[string]bool{}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		cards, err := e.reader.Cards(ctx, page)
		if err != nil {
			e.recorder.Failed(pid, "", fmt.Sprintf("task cards unreadable: %v", err))
			return res, nil
		}
		card, ok := e.pick(pid, cards, attempted, reasons)
		if !ok {
			break
		}
		attempted[card.Type] = true

		switch e.runCard(ctx, page, subj, card) {
		case cardSucceeded:
			res.Succeeded = append(res.Succeeded, card.Type)
		case cardCancelled:
			res.Cancelled = append(res.Cancelled, card.Type)
		case cardOptedOut:
			res.Cancelled = append(res.Cancelled, card.Type)
			res.OptedOut = true
		case cardFailed:
			res.Failed = append(res.Failed, card.Type)
		case cardAlreadyDone:
			reasons[fmt.Sprintf("%s already completed", card.Type)] = true
		}
		if res.OptedOut {
			break
		}
	}

	if !res.Worked() {
		return res, e.skip(pid, skipReason(reasons))
	}
	return res, nil
}

func (e *Engine) skip(pid, reason string) error {
	e.recorder.Skipped(pid, "", reason)
	logging.Engine("skipped %s: %s", pid, reason)
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}

func skipReason(reasons map[string]bool) string {
	if len(reasons) == 0 {
		return "no eligible tasks"
	}
	list := make([]string, 0, len(reasons))
	for r := range reasons {
		list = append(list, r)
	}
	sort.Strings(list)
	return strings.Join(list, "; ")
}

func (e *Engine) optedOut(id string) bool {
	if e.optOut == nil {
		return false
	}
	ok, err := e.optOut.Contains(id)
	if err != nil {
		e.log.Warn("opt-out list unreadable", zap.Error(err))
		return false
	}
	return ok
}

// pick returns the first card that is due, has quota left and is not cached.
func (e *Engine) pick(pid string, cards []worklist.Card, attempted map[quota.TaskType]bool, reasons map[string]bool) (worklist.Card, bool) {
	today := e.now()
	for _, c := range cards {
		if !c.Known || attempted[c.Type] {
			continue
		}
		if _, ok := protocol.For(c.Type); !ok {
			continue
		}
		if !worklist.Eligible(c, today) {
			logging.WorklistDebug("%s %s not eligible (%s)", pid, c.Type, worklist.DueLabel(c, today))
			continue
		}
		if e.cache != nil {
			done, err := e.cache.Has(pid, c.Type)
			if err != nil {
				e.log.Warn("cache unreadable", zap.Error(err))
			}
			if done {
				reasons[fmt.Sprintf("%s already completed", c.Type)] = true
				continue
			}
		}
		if !e.tracker.ShouldProcess(c.Type) {
			reasons[fmt.Sprintf("%s quota reached or disabled", c.Type)] = true
			continue
		}
		return c, true
	}
	return worklist.Card{}, false
}

type cardOutcome int

const (
	cardSucceeded cardOutcome = iota
	cardAlreadyDone
	cardCancelled
	cardOptedOut
	cardFailed
)

// runCard drives one card to a terminal state. The card runs on a context
// that ignores cancellation so a stop request never leaves it half-filled.
// Panics are contained here and recorded as failures.
func (e *Engine) runCard(ctx context.Context, page portal.Page, subj protocol.Subject, card worklist.Card) (out cardOutcome) {
	pid := subj.ID
	cardCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			logging.EngineError("panic in %s for %s: %v", card.Type, pid, r)
			e.log.Error("card panicked", zap.String("patient", pid), zap.String("task", string(card.Type)), zap.Any("panic", r))
			e.recorder.Failed(pid, card.Type, fmt.Sprintf("internal error: %v", r))
			e.cancelCard(cardCtx, page)
			out = cardFailed
		}
	}()

	spec, _ := protocol.For(card.Type)
	e.applyThreshold(&spec)

	e.log.Info("starting card", zap.String("patient", pid), zap.String("task", string(card.Type)), zap.String("due", worklist.DueLabel(card, e.now())))
	if card.Ref != nil {
		before := portal.Fingerprint(page)
		if err := card.Ref.Click(cardCtx); err != nil {
			e.recorder.Failed(pid, card.Type, fmt.Sprintf("card could not be opened: %v", err))
			return cardFailed
		}
		portal.WaitTransition(cardCtx, page, before, e.runner.Transition, e.runner.Poll)
	}

	res, err := e.runner.Run(cardCtx, page, spec, subj)
	if err == nil {
		if len(res.States) > 0 && res.States[0] == classify.Done {
			e.remember(pid, card.Type, cache.StatusAlreadyDone)
			e.recorder.Skipped(pid, card.Type, "already completed on the portal")
			return cardAlreadyDone
		}
		e.succeeded(cardCtx, page, pid, card.Type, res.Steps)
		return cardSucceeded
	}

	if a, ok := protocol.AsAbort(err); ok {
		if a.Failed() {
			e.recorder.Failed(pid, card.Type, a.Error())
			e.log.Warn("card failed", zap.String("patient", pid), zap.String("task", string(card.Type)), zap.Error(a))
			e.cancelCard(cardCtx, page)
			return cardFailed
		}
		e.recorder.Cancelled(pid, card.Type, a.Reason, a.MissingTests, a.OptInRequired)
		e.log.Info("card cancelled", zap.String("patient", pid), zap.String("task", string(card.Type)), zap.String("reason", a.Reason))
		e.cancelCard(cardCtx, page)
		if a.OptInRequired {
			if e.optOut != nil {
				if err := e.optOut.Add(pid, subj.Name, a.Reason); err != nil {
					e.log.Warn("opt-out list not updated", zap.Error(err))
				}
			}
			return cardOptedOut
		}
		return cardCancelled
	}

	e.recorder.Failed(pid, card.Type, err.Error())
	e.log.Warn("card error", zap.String("patient", pid), zap.String("task", string(card.Type)), zap.Error(err))
	e.cancelCard(cardCtx, page)
	return cardFailed
}

func (e *Engine) applyThreshold(spec *protocol.Spec) {
	if spec.Task.Domain() == quota.Cardiovascular {
		if e.cfg.KVRStuckThreshold > 0 {
			spec.StuckThreshold = e.cfg.KVRStuckThreshold
		}
		return
	}
	if e.cfg.StuckThreshold > 0 {
		spec.StuckThreshold = e.cfg.StuckThreshold
	}
}

// succeeded books a finished card, including the cardiovascular follow-up
// the portal completes together with a hypertension follow-up.
func (e *Engine) succeeded(ctx context.Context, page portal.Page, pid string, t quota.TaskType, steps int) {
	e.tracker.OnTaskSucceeded(t)
	e.saveCount(t)
	e.remember(pid, t, cache.StatusSuccess)
	e.recorder.Succeeded(pid, t, steps)
	e.log.Info("card completed", zap.String("patient", pid), zap.String("task", string(t)), zap.Int("steps", steps))

	linked, ok := quota.LinkedFollowUp(t)
	if !ok {
		return
	}
	remaining := e.tracker.RemainingTarget(linked)
	e.tracker.OnTaskSucceeded(linked)
	e.saveCount(linked)
	e.remember(pid, linked, cache.StatusSuccess)

	if remaining > 0 || e.cfg.ExcessPolicy != quota.PolicyAutoDelete {
		e.recorder.Succeeded(pid, linked, 0)
		if remaining == 0 {
			e.log.Info("linked follow-up exceeds target, left in place", zap.String("task", string(linked)))
		}
		return
	}

	if err := e.undoLastFollowUp(ctx, page); err != nil {
		e.recorder.Succeeded(pid, linked, 0)
		e.log.Warn("excess follow-up could not be deleted", zap.String("task", string(linked)), zap.Error(err))
		return
	}
	e.tracker.OnTaskUndone(linked)
	e.saveCount(linked)
	if e.cache != nil {
		if err := e.cache.Evict(pid, linked); err != nil {
			e.log.Warn("cache evict failed", zap.Error(err))
		}
	}
	e.log.Info("deleted excess linked follow-up", zap.String("patient", pid), zap.String("task", string(linked)))
}

// saveCount persists the month's completed count of t. A failed write is
// logged; the in-memory tracker stays authoritative for this run.
func (e *Engine) saveCount(t quota.TaskType) {
	if e.counts == nil {
		return
	}
	n := e.tracker.Completed(t)
	if err := e.counts.SetCurrent(t, n); err != nil {
		e.log.Warn("completed count not saved", zap.String("task", string(t)), zap.Int("count", n), zap.Error(err))
	}
}

func (e *Engine) undoLastFollowUp(ctx context.Context, page portal.Page) error {
	before := portal.Fingerprint(page)
	if err := portal.DeleteLastFollowUp.Click(ctx, page); err != nil {
		return err
	}
	portal.WaitTransition(ctx, page, before, e.runner.Transition, e.runner.Poll)
	if portal.ConfirmDialog.Present(ctx, page) {
		before = portal.Fingerprint(page)
		if err := portal.ConfirmDialog.Click(ctx, page); err != nil {
			return err
		}
		portal.WaitTransition(ctx, page, before, e.runner.Transition, e.runner.Poll)
	}
	return nil
}

// cancelCard clicks the card's cancel action so nothing stays mid-protocol.
func (e *Engine) cancelCard(ctx context.Context, page portal.Page) {
	before := portal.Fingerprint(page)
	if err := portal.CancelTask.Click(ctx, page); err != nil {
		logging.EngineError("cancel action unavailable: %v", err)
		return
	}
	portal.WaitTransition(ctx, page, before, e.runner.Transition, e.runner.Poll)
	if portal.ConfirmDialog.Present(ctx, page) {
		if err := portal.ConfirmDialog.Click(ctx, page); err != nil {
			logging.EngineError("cancel confirm failed: %v", err)
		}
	}
}

func (e *Engine) remember(pid string, t quota.TaskType, s cache.Status) {
	if e.cache == nil {
		return
	}
	if err := e.cache.RecordOutcome(pid, t, s); err != nil {
		e.log.Warn("cache write failed", zap.String("patient", pid), zap.Error(err))
	}
}
