package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hypauto/internal/cache"
	"hypauto/internal/config"
	"hypauto/internal/outcome"
	"hypauto/internal/quota"
)

// execute runs the root command with args against a fresh data directory.
func execute(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	out, err := executeErr(t, dataDir, args...)
	if err != nil {
		t.Fatalf("%v returned error: %v\n%s", args, err, out)
	}
	return out
}

func executeErr(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HYPAUTO_DATA_DIR", dataDir)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(dataDir, "missing.yaml")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	html := `<html><body><h1>Diyabet Taraması</h1><div>Tetkik Sonuçları</div><p>HbA1c: 6.1</p></body></html>`
	if err := os.WriteFile(page, []byte(html), 0644); err != nil {
		t.Fatal(err)
	}

	out := execute(t, dir, "classify", "--html", page,
		"--url", "https://hyp.test/#/diyabet-tarama/laboratuvar", "--protocol", "DIY_TARAMA")
	if !strings.Contains(out, "DIY_TARAMA: LABS") {
		t.Fatalf("expected labs classification, got: %s", out)
	}
}

func TestCacheCommands(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(filepath.Join(dir, "completed.json"))
	if err := c.RecordOutcome("12345678901", quota.HTFollowUp, cache.StatusSuccess); err != nil {
		t.Fatal(err)
	}

	out := execute(t, dir, "cache", "list")
	if !strings.Contains(out, "12345678901") || !strings.Contains(out, "HT_IZLEM") {
		t.Fatalf("expected cached entry, got: %s", out)
	}

	execute(t, dir, "cache", "evict", "12345678901", "HT_IZLEM")
	out = execute(t, dir, "cache", "list")
	if !strings.Contains(out, "Cache is empty") {
		t.Fatalf("expected empty cache after evict, got: %s", out)
	}
}

func TestOptOutCommands(t *testing.T) {
	dir := t.TempDir()
	list := cache.NewOptOutList(filepath.Join(dir, "sms_optout.json"))
	if err := list.Add("12345678901", "AYŞE YILMAZ", "patient has not given SMS consent"); err != nil {
		t.Fatal(err)
	}

	out := execute(t, dir, "optout", "list")
	if !strings.Contains(out, "AYŞE YILMAZ") {
		t.Fatalf("expected listed patient, got: %s", out)
	}
	execute(t, dir, "optout", "remove", "12345678901")
	if ok, _ := list.Contains("12345678901"); ok {
		t.Fatal("patient still opted out after remove")
	}
}

func TestTargetsCommands(t *testing.T) {
	dir := t.TempDir()
	month := config.MonthKey(time.Now())

	out := execute(t, dir, "targets", "set", "HT_IZLEM=30", "DIY_TARAMA=12")
	if !strings.Contains(out, config.MonthDisplayName(month)) || !strings.Contains(out, "HT_IZLEM") {
		t.Fatalf("expected the month's targets, got: %s", out)
	}

	saved, err := config.Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if saved.Quota.Month != month || saved.Quota.Targets["HT_IZLEM"] != 30 || saved.Quota.Targets["DIY_TARAMA"] != 12 {
		t.Fatalf("targets not saved: %+v", saved.Quota)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), dir) {
		t.Fatal("environment override written to the config file")
	}

	out = execute(t, dir, "targets", "show", "--history")
	if !strings.Contains(out, "0 / 42") {
		t.Fatalf("expected performance line, got: %s", out)
	}

	if _, err := executeErr(t, dir, "targets", "set", "HT_IZLEM"); err == nil {
		t.Fatal("expected an error for a malformed target")
	}
}

func TestRun_RefusesUnconfiguredMonth(t *testing.T) {
	dir := t.TempDir()
	_, err := executeErr(t, dir, "run")
	if err == nil {
		t.Fatal("expected run to be refused")
	}
	if !strings.Contains(err.Error(), config.MonthDisplayName(config.MonthKey(time.Now()))) {
		t.Fatalf("error should name the month: %v", err)
	}
}

func TestAppointmentDays(t *testing.T) {
	defer func() { runDates, runLast = nil, 0 }()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.Local)

	runDates = []string{"16.10.2026", " 14.10.2026"}
	days, err := appointmentDays(now)
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 2 || days[0].Day() != 14 || days[1].Day() != 16 {
		t.Fatalf("expected sorted days, got %v", days)
	}

	runDates = []string{"31.02.2026"}
	if _, err := appointmentDays(now); err == nil {
		t.Fatal("expected an invalid date error")
	}

	runDates, runLast = nil, 3
	days, err = appointmentDays(now)
	if err != nil || len(days) != 3 || days[2].Day() != 17 {
		t.Fatalf("expected the last three days, got %v (%v)", days, err)
	}

	runDates = []string{"16.10.2026"}
	if _, err := appointmentDays(now); err == nil {
		t.Fatal("expected --dates and --last to conflict")
	}
}

func TestRenderSummary(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	r := outcome.NewRecorderWithClock(func() time.Time { return now })
	r.Succeeded("12345678901", quota.HTFollowUp, 4)
	r.Cancelled("10000000146", quota.DIYScreening, "missing lab values: Kreatinin", []string{"Kreatinin"}, false)

	tr := quota.NewTracker(quota.Settings{Targets: map[quota.TaskType]int{quota.HTFollowUp: 10}})
	tr.OnTaskSucceeded(quota.HTFollowUp)

	out := renderSummary(r.Summary(), tr.Snapshot())
	for _, want := range []string{"Run summary", "10000000146 DIY_TARAMA", "Kreatinin", "HT_IZLEM", "remaining   9"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
