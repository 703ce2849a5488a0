package portal

import (
	"context"
	"time"
)

// Fingerprint identifies the current view for change detection.
func Fingerprint(p Page) string {
	return p.CurrentURL() + "\x00" + p.VisibleText()
}

// WaitTransition polls until the page fingerprint differs from before or
// timeout elapses. It reports whether a change was seen.
func WaitTransition(ctx context.Context, p Page, before string, timeout, interval time.Duration) bool {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if Fingerprint(p) != before {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return Fingerprint(p) != before
		case <-ticker.C:
		}
	}
}

// PollUntil calls cond every interval until it returns true, timeout elapses
// or ctx is done.
func PollUntil(ctx context.Context, timeout, interval time.Duration, cond func() bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if cond() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return cond()
		case <-ticker.C:
		}
	}
}
