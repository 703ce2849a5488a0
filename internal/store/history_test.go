package store

import (
	"path/filepath"
	"testing"
	"time"

	"hypauto/internal/outcome"
	"hypauto/internal/quota"
)

func openTemp(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTemp(t)
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	id, err := s.BeginRun(start)
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	rec := outcome.NewRecorder()
	rec.AddListener(s.Listener(id))
	rec.Succeeded("12345678901", quota.HTFollowUp, 6)
	rec.Cancelled("10000000146", quota.HTFollowUp, "missing lab values", []string{"Kreatinin"}, false)

	if err := s.FinishRun(id, start.Add(time.Minute), rec.Stats()); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := s.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Succeeded != 1 || runs[0].Cancelled != 1 {
		t.Errorf("Unexpected counters: %+v", runs[0])
	}
	if !runs[0].FinishedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("Unexpected finish time: %v", runs[0].FinishedAt)
	}

	missing, err := s.MissingTests("10000000146")
	if err != nil {
		t.Fatalf("MissingTests failed: %v", err)
	}
	if len(missing) != 1 || missing[0].Test != "Kreatinin" || missing[0].Task != "HT_IZLEM" {
		t.Errorf("Unexpected ledger: %+v", missing)
	}
}

func TestMissingTestsDedupedPerDay(t *testing.T) {
	s := openTemp(t)
	id, _ := s.BeginRun(time.Now())
	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	it := outcome.Item{Kind: outcome.Cancelled, PatientID: "1", Task: quota.DIYScreening, MissingTests: []string{"HbA1c"}, At: at}

	for i := 0; i < 3; i++ {
		if err := s.RecordItem(id, it); err != nil {
			t.Fatalf("RecordItem failed: %v", err)
		}
	}
	it.At = at.AddDate(0, 0, 1)
	if err := s.RecordItem(id, it); err != nil {
		t.Fatalf("RecordItem failed: %v", err)
	}

	all, err := s.MissingTests("")
	if err != nil {
		t.Fatalf("MissingTests failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected one row per day, got %d", len(all))
	}
}

func TestPruneKeepsNewestRuns(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var first string
	for i := 0; i < KeepRuns+5; i++ {
		id, err := s.BeginRun(base.Add(time.Duration(i) * time.Hour))
		if err != nil {
			t.Fatalf("BeginRun failed: %v", err)
		}
		if i == 0 {
			first = id
		}
		if err := s.FinishRun(id, base.Add(time.Duration(i)*time.Hour+time.Minute), outcome.Stats{}); err != nil {
			t.Fatalf("FinishRun failed: %v", err)
		}
	}

	runs, err := s.RecentRuns(1000)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != KeepRuns {
		t.Errorf("Expected %d runs, got %d", KeepRuns, len(runs))
	}
	for _, r := range runs {
		if r.ID == first {
			t.Errorf("Oldest run %s should have been pruned", first)
		}
	}
}
