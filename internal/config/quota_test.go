package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hypauto/internal/quota"
)

func TestMonthDisplayName(t *testing.T) {
	if got := MonthDisplayName("2026-10"); got != "Ekim 2026" {
		t.Errorf("expected Ekim 2026, got %q", got)
	}
	if got := MonthDisplayName("2027-02"); got != "Şubat 2027" {
		t.Errorf("expected Şubat 2027, got %q", got)
	}
	if got := MonthDisplayName("ekim"); got != "ekim" {
		t.Errorf("malformed key should pass through, got %q", got)
	}
}

func TestRollMonth_AdoptsUnkeyedSection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quota.Targets["HT_IZLEM"] = 30

	if !cfg.RollMonth("2026-10") {
		t.Fatal("expected a change")
	}
	if !cfg.MonthConfigured("2026-10") {
		t.Error("adopted targets should configure the month")
	}
	if len(cfg.Quota.History) != 0 {
		t.Errorf("nothing to archive, got %v", cfg.Quota.History)
	}
	if cfg.RollMonth("2026-10") {
		t.Error("rolling to the same month should be a no-op")
	}
}

func TestRollMonth_ArchivesPreviousMonth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quota.Month = "2026-09"
	cfg.Quota.Targets = map[string]int{"HT_IZLEM": 30, "DIY_TARAMA": 10}
	cfg.Quota.Current = map[string]int{"HT_IZLEM": 27}
	cfg.Quota.Deferred = map[string]int{"DIY_TARAMA": 4}

	cfg.RollMonth("2026-10")

	if cfg.MonthConfigured("2026-10") {
		t.Error("a new month starts without targets")
	}
	if cfg.MonthConfigured("2026-09") {
		t.Error("a past month is not the configured one")
	}
	if n := cfg.Quota.Current["HT_IZLEM"]; n != 0 {
		t.Errorf("counts should restart, got %d", n)
	}
	h, ok := cfg.Quota.History["2026-09"]
	if !ok || h.Targets["HT_IZLEM"] != 30 || h.Current["HT_IZLEM"] != 27 {
		t.Fatalf("september not archived: %+v", h)
	}

	p, ok := cfg.MonthPerformance("2026-09")
	if !ok {
		t.Fatal("expected september performance")
	}
	if p.TotalTarget != 40 || p.TotalDone != 31 || math.Abs(p.Percent-77.5) > 1e-9 {
		t.Errorf("unexpected performance %+v", p)
	}
	if _, ok := cfg.MonthPerformance("2026-08"); ok {
		t.Error("august has no record")
	}

	cfg.SetTarget(quota.HTFollowUp, 25)
	if !cfg.MonthConfigured("2026-10") {
		t.Error("setting a target configures the month")
	}
	months := cfg.Months()
	if len(months) != 2 || months[0] != "2026-10" || months[1] != "2026-09" {
		t.Errorf("expected newest first, got %v", months)
	}
}

func TestMonthConfigured_ZeroTargets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quota.Month = "2026-10"
	cfg.Quota.Targets = map[string]int{"HT_IZLEM": 0}
	if cfg.MonthConfigured("2026-10") {
		t.Error("all-zero targets do not configure a month")
	}
}

func TestQuotaStore_SetCurrentKeepsFileOnly(t *testing.T) {
	t.Setenv("HYPAUTO_PORTAL_URL", "")
	path := filepath.Join(t.TempDir(), "hypauto.yaml")

	cfg := DefaultConfig()
	cfg.Quota.Month = "2026-10"
	cfg.Quota.Targets["HT_IZLEM"] = 30
	cfg.Run.SessionPercent = 70
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("HYPAUTO_PORTAL_URL", "https://override.test/")
	s := NewQuotaStore(path)
	s.SetClock(func() time.Time { return time.Date(2026, 10, 18, 11, 5, 0, 0, time.Local) })
	if err := s.SetCurrent(quota.HTFollowUp, 12); err != nil {
		t.Fatalf("SetCurrent failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "override.test") {
		t.Error("environment override written to the file")
	}
	loaded, err := loadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Quota.Current["HT_IZLEM"] != 12 {
		t.Errorf("expected current 12, got %d", loaded.Quota.Current["HT_IZLEM"])
	}
	if loaded.Quota.LastUpdated != "2026-10-18 11:05" {
		t.Errorf("unexpected last_updated %q", loaded.Quota.LastUpdated)
	}
	if loaded.Run.SessionPercent != 70 || loaded.Quota.Targets["HT_IZLEM"] != 30 {
		t.Error("other settings were not kept")
	}
}

func TestQuotaStore_SetCurrentRefusesOtherMonth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hypauto.yaml")
	cfg := DefaultConfig()
	cfg.Quota.Month = "2026-09"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	s := NewQuotaStore(path)
	s.SetClock(func() time.Time { return time.Date(2026, 10, 1, 0, 10, 0, 0, time.Local) })
	if err := s.SetCurrent(quota.HTFollowUp, 1); err == nil {
		t.Error("expected an error for a count of another month")
	}
}

func TestQuotaStore_OpenMonth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hypauto.yaml")
	cfg := DefaultConfig()
	cfg.Quota.Month = "2026-09"
	cfg.Quota.Targets["HT_IZLEM"] = 30
	cfg.Quota.Current["HT_IZLEM"] = 30
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	s := NewQuotaStore(path)
	s.SetClock(func() time.Time { return time.Date(2026, 10, 2, 8, 0, 0, 0, time.Local) })
	month, file, err := s.OpenMonth()
	if err != nil {
		t.Fatalf("OpenMonth failed: %v", err)
	}
	if month != "2026-10" || file.Quota.Month != "2026-10" {
		t.Errorf("expected october, got %s / %s", month, file.Quota.Month)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.MonthConfigured("2026-10") {
		t.Error("october should still need targets")
	}
	if loaded.Quota.History["2026-09"].Current["HT_IZLEM"] != 30 {
		t.Error("september not archived in the file")
	}
}
