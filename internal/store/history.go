// Package store keeps a local SQLite history of runs and of the lab tests
// that blocked cards, so the operator can review them after the fact.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"hypauto/internal/logging"
	"hypauto/internal/outcome"
)

// KeepRuns is how many runs survive pruning.
const KeepRuns = 50

// HistoryStore is the run history database.
type HistoryStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  int
	Cancelled  int
	Skipped    int
	Failed     int
}

// MissingTest is one ledger row: a lab test that blocked a card.
type MissingTest struct {
	PatientID  string
	Task       string
	Test       string
	RecordedAt time.Time
}

// Open creates or opens the history database at path.
func Open(path string) (*HistoryStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}

	s := &HistoryStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("history store ready at %s", path)
	return s, nil
}

func (s *HistoryStore) initialize() error {
	schema := []string{`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		succeeded INTEGER DEFAULT 0,
		cancelled INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0
	);`, `
	CREATE TABLE IF NOT EXISTS run_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		patient_id TEXT NOT NULL,
		task TEXT,
		kind TEXT NOT NULL,
		reason TEXT,
		at INTEGER NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS idx_run_items_run ON run_items(run_id);`, `
	CREATE TABLE IF NOT EXISTS missing_tests (
		patient_id TEXT NOT NULL,
		task TEXT NOT NULL,
		test TEXT NOT NULL,
		day TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		UNIQUE(patient_id, task, test, day)
	);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// BeginRun inserts a run and returns its id.
func (s *HistoryStore) BeginRun(started time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	if _, err := s.db.Exec("INSERT INTO runs (id, started_at) VALUES (?, ?)", id, started.UnixMilli()); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordItem appends an outcome item to a run, and ledger rows for its
// missing tests.
func (s *HistoryStore) RecordItem(runID string, it outcome.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := it.At
	if at.IsZero() {
		at = time.Now()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO run_items (run_id, patient_id, task, kind, reason, at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, it.PatientID, string(it.Task), string(it.Kind), it.Reason, at.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	day := at.Format("2006-01-02")
	for _, test := range it.MissingTests {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO missing_tests (patient_id, task, test, day, recorded_at) VALUES (?, ?, ?, ?, ?)",
			it.PatientID, string(it.Task), test, day, at.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert missing test: %w", err)
		}
	}
	return tx.Commit()
}

// FinishRun stores the final counters and prunes old runs.
func (s *HistoryStore) FinishRun(runID string, finished time.Time, st outcome.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, succeeded = ?, cancelled = ?, skipped = ?, failed = ? WHERE id = ?`,
		finished.UnixMilli(), st.Succeeded, st.Cancelled, st.Skipped, st.Failed, runID,
	); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return s.pruneLocked()
}

func (s *HistoryStore) pruneLocked() error {
	rows, err := s.db.Query("SELECT id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?", KeepRuns)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		stale = append(stale, id)
	}
	rows.Close()
	if len(stale) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(stale)), ",")
	args := make([]interface{}, len(stale))
	for i, id := range stale {
		args[i] = id
	}
	if _, err := s.db.Exec("DELETE FROM run_items WHERE run_id IN ("+placeholders+")", args...); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM runs WHERE id IN ("+placeholders+")", args...); err != nil {
		return err
	}
	logging.StoreDebug("pruned %d old runs", len(stale))
	return nil
}

// RecentRuns lists runs, newest first.
func (s *HistoryStore) RecentRuns(limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = KeepRuns
	}
	rows, err := s.db.Query(
		`SELECT id, started_at, COALESCE(finished_at, 0), succeeded, cancelled, skipped, failed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Succeeded, &r.Cancelled, &r.Skipped, &r.Failed); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		if finished > 0 {
			r.FinishedAt = time.UnixMilli(finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MissingTests lists ledger rows for a patient, or for everyone when
// patientID is empty, newest first.
func (s *HistoryStore) MissingTests(patientID string) ([]MissingTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := "SELECT patient_id, task, test, recorded_at FROM missing_tests"
	var args []interface{}
	if patientID != "" {
		q += " WHERE patient_id = ?"
		args = append(args, patientID)
	}
	q += " ORDER BY recorded_at DESC, test"
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MissingTest
	for rows.Next() {
		var m MissingTest
		var at int64
		if err := rows.Scan(&m.PatientID, &m.Task, &m.Test, &at); err != nil {
			return nil, err
		}
		m.RecordedAt = time.UnixMilli(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Listener returns an outcome listener that records items under runID.
// Write failures are logged, never surfaced to the run.
func (s *HistoryStore) Listener(runID string) outcome.Listener {
	return outcome.ListenerFunc(func(it outcome.Item) {
		if err := s.RecordItem(runID, it); err != nil {
			logging.Get(logging.CategoryStore).Error("record item for %s: %v", it.PatientID, err)
		}
	})
}
