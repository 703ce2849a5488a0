// Package logging provides config-driven categorized file-based logging for hypauto.
// Logs are written to <data_dir>/logs/ with separate files per category.
// Logging is controlled by logging.debug_mode in the YAML config - when false, no logs are written.
//
// The operator-facing run log is a zap logger owned by the CLI; this package is
// the per-subsystem trace used to diagnose portal layout changes.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup, config, update check
	CategorySession    Category = "session"    // Connect, login, keep-alive
	CategoryBrowser    Category = "browser"    // Low-level rod operations
	CategoryClassifier Category = "classifier" // Page classification decisions
	CategoryProtocol   Category = "protocol"   // Protocol state machine steps
	CategoryRecovery   Category = "recovery"   // Missing-test recovery
	CategoryWorklist   Category = "worklist"   // Patient search, card reading
	CategoryQuota      Category = "quota"      // Target bookkeeping
	CategoryCache      Category = "cache"      // Idempotence cache, opt-out list
	CategoryQueue      Category = "queue"      // File-drop inbox/outbox
	CategoryStore      Category = "store"      // Run history database
	CategoryEngine     Category = "engine"     // Orchestration
)

// Options mirrors config.LoggingConfig to avoid circular imports.
type Options struct {
	Dir        string
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// StructuredLogEntry represents a JSON log entry
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`  // Unix milliseconds
	Category  string                 `json:"cat"` // Log category
	Level     string                 `json:"lvl"` // debug/info/warn/error
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    Options
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize applies opts. With DebugMode off every logger is a no-op and no
// directory is created.
func Initialize(opts Options) error {
	configMu.Lock()
	config = opts
	logLevel = parseLevel(opts.Level)
	configMu.Unlock()

	if !opts.DebugMode {
		return nil
	}
	if opts.Dir == "" {
		return fmt.Errorf("logs directory required in debug mode")
	}

	logsDir = opts.Dir
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== hypauto logging initialized ===")
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", opts.Level)
	if len(opts.Categories) == 0 {
		bootLogger.Info("All categories enabled (no category filter)")
	}

	return nil
}

func parseLevel(s string) int {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := fmt.Sprintf("%s%c%s_%s.log", logsDir, os.PathSeparator, date, category)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

func (l *Logger) write(level string, minLevel int, format string, args ...interface{}) {
	if l.logger == nil || logLevel > minLevel {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if IsJSONFormat() {
		l.logJSON(level, msg, nil)
		return
	}
	l.logger.Printf("[%s] %s", upper(level), msg)
}

func upper(level string) string {
	switch level {
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn":
		return "WARN"
	default:
		return "ERROR"
	}
}

func (l *Logger) logJSON(level, msg string, fields map[string]interface{}) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", upper(level), msg)
		return
	}
	l.logger.Printf("%s", data)
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write("debug", LevelDebug, format, args...)
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	l.write("info", LevelInfo, format, args...)
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write("warn", LevelWarn, format, args...)
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("error", LevelError, format, args...)
}

// StructuredLog writes a fully structured log entry with custom fields
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	if IsJSONFormat() {
		l.logJSON(level, msg, fields)
		return
	}
	l.logger.Printf("[%s] %s | fields=%v", upper(level), msg, fields)
}

// IsJSONFormat returns whether JSON logging is enabled
func IsJSONFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

func Boot(format string, args ...interface{})     { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }
func Session(format string, args ...interface{})  { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}
func SessionWarn(format string, args ...interface{}) { Get(CategorySession).Warn(format, args...) }
func BrowserDebug(format string, args ...interface{}) {
	Get(CategoryBrowser).Debug(format, args...)
}
func BrowserWarn(format string, args ...interface{}) { Get(CategoryBrowser).Warn(format, args...) }
func ClassifierDebug(format string, args ...interface{}) {
	Get(CategoryClassifier).Debug(format, args...)
}
func Protocol(format string, args ...interface{}) { Get(CategoryProtocol).Info(format, args...) }
func ProtocolDebug(format string, args ...interface{}) {
	Get(CategoryProtocol).Debug(format, args...)
}
func ProtocolWarn(format string, args ...interface{}) { Get(CategoryProtocol).Warn(format, args...) }
func Recovery(format string, args ...interface{})     { Get(CategoryRecovery).Info(format, args...) }
func RecoveryDebug(format string, args ...interface{}) {
	Get(CategoryRecovery).Debug(format, args...)
}
func WorklistDebug(format string, args ...interface{}) {
	Get(CategoryWorklist).Debug(format, args...)
}
func QuotaDebug(format string, args ...interface{}) { Get(CategoryQuota).Debug(format, args...) }
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debug(format, args...) }
func Queue(format string, args ...interface{})      { Get(CategoryQueue).Info(format, args...) }
func QueueWarn(format string, args ...interface{})  { Get(CategoryQueue).Warn(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func Engine(format string, args ...interface{})     { Get(CategoryEngine).Info(format, args...) }
func EngineError(format string, args ...interface{}) {
	Get(CategoryEngine).Error(format, args...)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
