// Package cache persists which (patient, task type) pairs were already
// completed, and which patients permanently opted out of SMS-gated tasks.
//
// Every mutating call loads the file, changes it and replaces it atomically.
// There is one writer per process; the mutex only guards against the CLI and
// the engine touching the same Cache value concurrently.
package cache

import (
	"sort"
	"sync"
	"time"

	"hypauto/internal/logging"
	"hypauto/internal/quota"
)

const dateLayout = "2006-01-02"

// Status is the recorded outcome of a card.
type Status string

const (
	// StatusSuccess marks a card finalized by the engine.
	StatusSuccess Status = "success"
	// StatusAlreadyDone marks a card the portal already showed as completed.
	StatusAlreadyDone Status = "already-completed"
)

// Entry is one cached outcome.
type Entry struct {
	Status Status `json:"status"`
	Date   string `json:"date"`
}

// file layout: {patient: {type: entry}}
type document map[string]map[string]Entry

// Cache is the idempotence cache.
type Cache struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New returns a cache backed by path. The file is created on first write.
func New(path string) *Cache {
	return &Cache{path: path, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Path returns the backing file.
func (c *Cache) Path() string { return c.path }

func (c *Cache) load() (document, error) {
	doc := document{}
	if err := readJSON(c.path, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Cache) mutate(fn func(doc document) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return err
	}
	if !fn(doc) {
		return nil
	}
	return writeJSONAtomic(c.path, doc)
}

// RecordOutcome upserts the entry for (patient, t) dated today.
func (c *Cache) RecordOutcome(patient string, t quota.TaskType, s Status) error {
	date := c.now().Format(dateLayout)
	logging.CacheDebug("record %s %s -> %s", patient, t, s)
	return c.mutate(func(doc document) bool {
		rec := doc[patient]
		if rec == nil {
			rec = map[string]Entry{}
			doc[patient] = rec
		}
		rec[string(t)] = Entry{Status: s, Date: date}
		return true
	})
}

// Lookup returns the entry for (patient, t) if present.
func (c *Cache) Lookup(patient string, t quota.TaskType) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := doc[patient][string(t)]
	return e, ok, nil
}

// Has reports whether (patient, t) already has an outcome.
func (c *Cache) Has(patient string, t quota.TaskType) (bool, error) {
	_, ok, err := c.Lookup(patient, t)
	return ok, err
}

// Evict removes one entry so the card will be retried.
func (c *Cache) Evict(patient string, t quota.TaskType) error {
	return c.mutate(func(doc document) bool {
		rec, ok := doc[patient]
		if !ok {
			return false
		}
		if _, ok := rec[string(t)]; !ok {
			return false
		}
		delete(rec, string(t))
		if len(rec) == 0 {
			delete(doc, patient)
		}
		return true
	})
}

// EvictPatient removes every entry of a patient.
func (c *Cache) EvictPatient(patient string) error {
	return c.mutate(func(doc document) bool {
		if _, ok := doc[patient]; !ok {
			return false
		}
		delete(doc, patient)
		return true
	})
}

// PurgeOlderThan drops entries dated more than maxAge ago and any patient
// left without entries. Entries carry only a day, so the cutoff is cut down
// to its calendar day: an entry dated exactly on that day is kept.
// Undated or unparsable entries are dropped as well.
func (c *Cache) PurgeOlderThan(maxAge time.Duration) (int, error) {
	at := c.now().Add(-maxAge)
	cutoff := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	removed := 0
	err := c.mutate(func(doc document) bool {
		for patient, rec := range doc {
			for t, e := range rec {
				d, err := time.ParseInLocation(dateLayout, e.Date, cutoff.Location())
				if err != nil || d.Before(cutoff) {
					delete(rec, t)
					removed++
				}
			}
			if len(rec) == 0 {
				delete(doc, patient)
			}
		}
		return removed > 0
	})
	if removed > 0 {
		logging.CacheDebug("purged %d entries older than %v", removed, maxAge)
	}
	return removed, err
}

// Record is a flattened cache entry for listing.
type Record struct {
	Patient string
	Type    quota.TaskType
	Entry
}

// Entries lists all cached outcomes sorted by patient then type.
func (c *Cache) Entries() ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return nil, err
	}
	var out []Record
	for patient, rec := range doc {
		for t, e := range rec {
			out = append(out, Record{Patient: patient, Type: quota.TaskType(t), Entry: e})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Patient != out[j].Patient {
			return out[i].Patient < out[j].Patient
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}
