package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hypauto/internal/logging"
	"hypauto/internal/outcome"
	"hypauto/internal/worklist"
)

// RunPatients processes queries in order. A stop request is honoured between
// patients; the summary so far is returned together with ctx.Err(). Only
// connect and login errors end the run early.
func (e *Engine) RunPatients(ctx context.Context, queries []string) (outcome.Summary, error) {
	if err := e.Start(ctx); err != nil {
		return e.recorder.Summary(), err
	}
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			e.log.Info("stop requested", zap.Int("remaining", len(queries)-i))
			return e.recorder.Summary(), err
		}
		if err := e.session.KeepAlive(ctx); err != nil {
			logging.SessionWarn("keep-alive failed: %v", err)
		}

		res, err := e.ProcessPatient(ctx, q)
		switch {
		case err == nil:
			e.log.Info("patient done", zap.String("patient", res.Patient.ID),
				zap.Int("succeeded", len(res.Succeeded)),
				zap.Int("cancelled", len(res.Cancelled)),
				zap.Int("failed", len(res.Failed)))
		case errors.Is(err, ErrSkipped):
			e.log.Info("patient skipped", zap.String("query", q), zap.Error(err))
		case IsFatal(err):
			logging.EngineError("run aborted: %v", err)
			return e.recorder.Summary(), err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return e.recorder.Summary(), err
		default:
			e.log.Warn("patient error", zap.String("query", q), zap.Error(err))
		}
	}
	return e.recorder.Summary(), nil
}

// RunDailyList works through the patient list the portal currently shows.
// Patients on the opt-out list are left out before any search.
func (e *Engine) RunDailyList(ctx context.Context) (outcome.Summary, error) {
	if err := e.Start(ctx); err != nil {
		return e.recorder.Summary(), err
	}
	page, err := e.session.Page()
	if err != nil {
		return e.recorder.Summary(), &ConnectError{Err: err}
	}
	patients, err := e.reader.ListPatients(ctx, page)
	if err != nil {
		return e.recorder.Summary(), fmt.Errorf("read patient list: %w", err)
	}
	ids := e.queueable(patients, nil)
	e.log.Info("daily list", zap.Int("patients", len(patients)), zap.Int("queued", len(ids)))
	return e.RunPatients(ctx, ids)
}

// RunDates works through the patients booked on each of days. All lists are
// read first so processing never has to find its way back to the
// appointment view; a patient booked on several days is queued once.
func (e *Engine) RunDates(ctx context.Context, days []time.Time) (outcome.Summary, error) {
	if err := e.Start(ctx); err != nil {
		return e.recorder.Summary(), err
	}
	page, err := e.session.Page()
	if err != nil {
		return e.recorder.Summary(), &ConnectError{Err: err}
	}

	var ids []string
	seen := map[string]bool{}
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return e.recorder.Summary(), err
		}
		patients, err := e.reader.ListPatientsOn(ctx, page, day)
		if err != nil {
			return e.recorder.Summary(), fmt.Errorf("read appointments of %s: %w", day.Format(worklist.DateLayout), err)
		}
		queued := e.queueable(patients, seen)
		e.log.Info("appointment list", zap.String("date", day.Format(worklist.DateLayout)),
			zap.Int("patients", len(patients)), zap.Int("queued", len(queued)))
		ids = append(ids, queued...)
	}
	return e.RunPatients(ctx, ids)
}

// queueable drops opted-out patients and those already in seen, which may be nil.
func (e *Engine) queueable(patients []worklist.Patient, seen map[string]bool) []string {
	var ids []string
	for _, p := range patients {
		if seen[p.ID] {
			continue
		}
		if seen != nil {
			seen[p.ID] = true
		}
		if e.optedOut(p.ID) {
			logging.Engine("leaving out opted-out patient %s", p.ID)
			continue
		}
		ids = append(ids, p.ID)
	}
	return ids
}

// LastDays returns the n days before today, oldest first.
func LastDays(today time.Time, n int) []time.Time {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	out := make([]time.Time, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, day.AddDate(0, 0, -i))
	}
	return out
}
