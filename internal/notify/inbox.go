// Package notify is the file-drop operator channel: patients to process
// arrive as files in an inbox directory and each patient's outcome is
// written as a JSON notice to an outbox directory.
package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"hypauto/internal/logging"
)

// InboxExt is the extension of work item files: <natural id>.tc
const InboxExt = ".tc"

// DefaultPollInterval is how often the inbox is rescanned without events.
const DefaultPollInterval = 200 * time.Millisecond

// Inbox watches a directory for work item files.
type Inbox struct {
	dir      string
	interval time.Duration
}

// NewInbox returns an inbox over dir polled every DefaultPollInterval.
func NewInbox(dir string) *Inbox {
	return &Inbox{dir: dir, interval: DefaultPollInterval}
}

// SetInterval overrides the poll interval.
func (in *Inbox) SetInterval(d time.Duration) {
	if d > 0 {
		in.interval = d
	}
}

// Dir returns the watched directory.
func (in *Inbox) Dir() string { return in.dir }

// Enqueue drops a work item for id into dir.
func Enqueue(dir, id string) error {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return fmt.Errorf("invalid natural id %q", id)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}
	tmp := filepath.Join(dir, "."+id+".tmp")
	if err := os.WriteFile(tmp, []byte(id+"\n"), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, id+InboxExt))
}

func validID(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// processingExt marks an item handed to the worker but not yet finished.
const processingExt = ".processing"

// Pending lists the waiting items, oldest first, without claiming them.
// Files that do not name a natural id are discarded.
func (in *Inbox) Pending() ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type pending struct {
		id  string
		mod time.Time
	}
	var items []pending
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, InboxExt) {
			continue
		}
		id := strings.TrimSuffix(name, InboxExt)
		if !validID(id) {
			logging.QueueWarn("discarding inbox file %s: not a natural id", name)
			os.Remove(filepath.Join(in.dir, name))
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, pending{id: id, mod: info.ModTime()})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].mod.Equal(items[j].mod) {
			return items[i].id < items[j].id
		}
		return items[i].mod.Before(items[j].mod)
	})

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.id)
	}
	return ids, nil
}

func (in *Inbox) itemPath(id string) string       { return filepath.Join(in.dir, id+InboxExt) }
func (in *Inbox) processingPath(id string) string { return in.itemPath(id) + processingExt }

// Claim marks id as being processed. It reports false when the item is gone,
// for instance because another reader claimed it first.
func (in *Inbox) Claim(id string) bool {
	return os.Rename(in.itemPath(id), in.processingPath(id)) == nil
}

// Done removes a claimed item once its patient has been processed.
func (in *Inbox) Done(id string) error {
	err := os.Remove(in.processingPath(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Release puts a claimed item back so the next run picks it up.
func (in *Inbox) Release(id string) error {
	err := os.Rename(in.processingPath(id), in.itemPath(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// requeueUnfinished releases items left claimed by a run that did not finish them.
func (in *Inbox) requeueUnfinished() {
	matches, err := filepath.Glob(filepath.Join(in.dir, "*"+InboxExt+processingExt))
	if err != nil {
		return
	}
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), InboxExt+processingExt)
		if err := in.Release(id); err != nil {
			logging.QueueWarn("inbox: release %s: %v", id, err)
			continue
		}
		logging.Queue("inbox: requeued unfinished %s", id)
	}
}

// Run claims pending ids and delivers them on out, one at a time, until ctx
// is done. The receiver must call Done or Release for every id it takes. An
// id claimed but not taken when ctx ends is released. Filesystem events
// trigger an immediate scan; the ticker covers platforms where events are
// unavailable.
func (in *Inbox) Run(ctx context.Context, out chan<- string) error {
	if err := os.MkdirAll(in.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}
	in.requeueUnfinished()

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.QueueWarn("inbox: fsnotify unavailable, polling only: %v", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(in.dir); err != nil {
			logging.QueueWarn("inbox: watch %s failed, polling only: %v", in.dir, err)
		} else {
			events = watcher.Events
			errs = watcher.Errors
		}
	}
	logging.Queue("inbox: watching %s", in.dir)

	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	scan := func() error {
		ids, err := in.Pending()
		if err != nil {
			logging.QueueWarn("inbox scan failed: %v", err)
			return nil
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !in.Claim(id) {
				continue
			}
			logging.Queue("inbox: claimed %s", id)
			select {
			case out <- id:
			case <-ctx.Done():
				if err := in.Release(id); err != nil {
					logging.QueueWarn("inbox: release %s: %v", id, err)
				}
				return ctx.Err()
			}
		}
		return nil
	}

	if err := scan(); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			if err := scan(); err != nil {
				return nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logging.QueueWarn("inbox watcher error: %v", err)
		case <-ticker.C:
			if err := scan(); err != nil {
				return nil
			}
		}
	}
}
