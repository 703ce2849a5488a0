package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	logsDir = ""
	configMu.Lock()
	config = Options{}
	logLevel = LevelInfo
	configMu.Unlock()
}

// TestAllCategoriesLog tests that all categories create log files when debug mode is on
func TestAllCategoriesLog(t *testing.T) {
	resetState()
	defer resetState()

	dir := filepath.Join(t.TempDir(), "logs")
	if err := Initialize(Options{Dir: dir, DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategorySession, CategoryBrowser, CategoryClassifier,
		CategoryProtocol, CategoryRecovery, CategoryWorklist, CategoryQuota,
		CategoryCache, CategoryQueue, CategoryStore, CategoryEngine,
	}
	for _, cat := range categories {
		Get(cat).Info("hello from %s", cat)
	}
	CloseAll()

	date := time.Now().Format("2006-01-02")
	for _, cat := range categories {
		path := filepath.Join(dir, date+"_"+string(cat)+".log")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("missing log file for %s: %v", cat, err)
			continue
		}
		if !strings.Contains(string(data), "hello from "+string(cat)) {
			t.Errorf("log file for %s lacks message: %q", cat, data)
		}
	}
}

// TestDebugModeDisabled verifies nothing is written in production mode
func TestDebugModeDisabled(t *testing.T) {
	resetState()
	defer resetState()

	dir := filepath.Join(t.TempDir(), "logs")
	if err := Initialize(Options{Dir: dir, DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Get(CategoryEngine).Error("should not be written")
	Engine("nor this")

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected no logs directory in production mode, stat err=%v", err)
	}
}

func TestCategoryToggle(t *testing.T) {
	resetState()
	defer resetState()

	dir := filepath.Join(t.TempDir(), "logs")
	err := Initialize(Options{
		Dir:        dir,
		DebugMode:  true,
		Categories: map[string]bool{"quota": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryQuota) {
		t.Error("quota should be disabled")
	}
	if !IsCategoryEnabled(CategoryCache) {
		t.Error("categories missing from the filter default to enabled")
	}
}

func TestJSONFormat(t *testing.T) {
	resetState()
	defer resetState()

	dir := filepath.Join(t.TempDir(), "logs")
	if err := Initialize(Options{Dir: dir, DebugMode: true, JSONFormat: true}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	Get(CategoryStore).StructuredLog("info", "saved run", map[string]interface{}{"items": 3})
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(dir, date+"_store.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"saved run"`) {
		t.Errorf("expected JSON entry, got %q", data)
	}
}

func TestTimerLogging(t *testing.T) {
	resetState()
	defer resetState()

	elapsed := StartTimer(CategoryEngine, "noop").StopWithThreshold(time.Hour)
	if elapsed < 0 {
		t.Errorf("negative elapsed %v", elapsed)
	}
}
