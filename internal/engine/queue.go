package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hypauto/internal/logging"
	"hypauto/internal/notify"
	"hypauto/internal/outcome"
)

// ServeQueue processes patient ids dropped into inbox, one at a time, and
// writes a notice per id to outbox. The browser session stays open while work
// keeps arriving and is closed once the inbox has been empty for the grace
// period. ServeQueue returns when ctx is done.
func (e *Engine) ServeQueue(ctx context.Context, inbox *notify.Inbox, outbox *notify.Outbox) error {
	grace := e.cfg.QueueGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}

	g, gctx := errgroup.WithContext(ctx)
	// Unbuffered: an id is only handed over when the worker is ready for it,
	// so nothing sits claimed in a buffer when the queue stops.
	ids := make(chan string)

	g.Go(func() error {
		return inbox.Run(gctx, ids)
	})

	g.Go(func() error {
		idle := time.NewTimer(grace)
		defer idle.Stop()
		defer e.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-idle.C:
				e.mu.Lock()
				open := e.started
				e.mu.Unlock()
				if open {
					logging.Queue("inbox idle for %s, closing session", grace)
					if err := e.Stop(); err != nil {
						logging.QueueWarn("close session: %v", err)
					}
				}
			case id := <-ids:
				if e.serveOne(gctx, id, outbox) {
					if err := inbox.Done(id); err != nil {
						logging.QueueWarn("inbox: finish %s: %v", id, err)
					}
				} else if err := inbox.Release(id); err != nil {
					logging.QueueWarn("inbox: release %s: %v", id, err)
				}
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(grace)
			}
		}
	})

	return g.Wait()
}

// serveOne processes one queue item and writes its notice. It reports false
// when a stop request interrupted the item, which then stays queued.
func (e *Engine) serveOne(ctx context.Context, id string, outbox *notify.Outbox) bool {
	logging.Queue("processing %s", id)
	_, err := e.ProcessPatient(ctx, id)

	var v outcome.Verdict
	switch {
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		logging.Queue("stopped while processing %s, left in the inbox", id)
		return false
	case err == nil, errors.Is(err, ErrSkipped):
		v = e.recorder.PatientVerdict(id)
	case IsFatal(err):
		e.log.Error("queue item aborted", zap.String("patient", id), zap.Error(err))
		v = outcome.Verdict{Status: outcome.StatusError, Message: err.Error()}
		if stopErr := e.Stop(); stopErr != nil {
			logging.QueueWarn("close session: %v", stopErr)
		}
	default:
		v = outcome.Verdict{Status: outcome.StatusError, Message: err.Error()}
	}

	if v.PatientName == "" {
		v.PatientName = e.recorder.PatientName(id)
	}
	if outbox == nil {
		return true
	}
	path, werr := outbox.Write(id, v)
	if werr != nil {
		logging.QueueWarn("notice for %s not written: %v", id, werr)
		return true
	}
	logging.Queue("notice %s: %s", path, v.Status)
	return true
}
