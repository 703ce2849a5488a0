package cache

import (
	"sort"
	"sync"
	"time"
)

// OptOut is a patient that hit the SMS consent gate.
type OptOut struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
	Date   string `json:"date"`
}

// OptOutList is the permanent exclusion list for SMS-gated patients.
// Entries are never re-validated against the portal; only an operator
// removes them.
type OptOutList struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewOptOutList returns a list backed by path.
func NewOptOutList(path string) *OptOutList {
	return &OptOutList{path: path, now: time.Now}
}

func (l *OptOutList) load() (map[string]OptOut, error) {
	doc := map[string]OptOut{}
	if err := readJSON(l.path, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Add records id. Re-adding keeps the original date.
func (l *OptOutList) Add(id, name, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return err
	}
	if _, ok := doc[id]; ok {
		return nil
	}
	doc[id] = OptOut{ID: id, Name: name, Reason: reason, Date: l.now().Format(dateLayout)}
	return writeJSONAtomic(l.path, doc)
}

// Contains reports whether id is excluded.
func (l *OptOutList) Contains(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return false, err
	}
	_, ok := doc[id]
	return ok, nil
}

// Remove deletes id. Returns false if it was not listed.
func (l *OptOutList) Remove(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return false, err
	}
	if _, ok := doc[id]; !ok {
		return false, nil
	}
	delete(doc, id)
	return true, writeJSONAtomic(l.path, doc)
}

// List returns all entries sorted by id.
func (l *OptOutList) List() ([]OptOut, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return nil, err
	}
	out := make([]OptOut, 0, len(doc))
	for _, o := range doc {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
