// Package logging provides categorized file-based logging for artificer.
// Logs are written to the configured log directory with separate files per
// category. When logging is disabled every call is a silent no-op, so hot
// paths can log unconditionally.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup, wiring, shutdown
	CategoryOrchestrator Category = "orchestrator" // Job lifecycle, job table, janitor
	CategoryLadder       Category = "ladder"       // Retry/fallback ladder decisions
	CategoryCleaner      Category = "cleaner"      // Artifact cleaning, prose clipping
	CategoryValidation   Category = "validation"   // Rule evaluation, rule reloads
	CategoryVersions     Category = "versions"     // Version store reads/writes
	CategoryEvents       Category = "events"       // Event bus topics and drops
	CategoryFeedback     Category = "feedback"     // Feedback recording, normalization
	CategoryTraining     Category = "training"     // Pool admission, batch emission
	CategoryPerformance  Category = "performance"  // Metrics history, best models
	CategoryBackend      Category = "backend"      // Model backend calls and health
	CategoryContext      Category = "context"      // Context assembly and caching
	CategoryService      Category = "service"      // Facade operations
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options controls logger behavior. Supplied by the config package at boot
// to avoid a circular import.
type Options struct {
	Enabled    bool
	Level      string // debug|info|warn|error
	JSONFormat bool
}

// StructuredLogEntry is the JSON form of one log line.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"` // Unix milliseconds
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	JobID     string                 `json:"job,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	optsMu    sync.RWMutex
	opts      Options
	logLevel  int
)

// Initialize sets up the logging directory. Call once at startup; calls
// before Initialize (or with Enabled=false) are no-ops.
func Initialize(dir string, o Options) error {
	optsMu.Lock()
	opts = o
	switch o.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	optsMu.Unlock()

	if !o.Enabled {
		return nil
	}
	if dir == "" {
		return fmt.Errorf("log directory required when logging is enabled")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	loggersMu.Lock()
	logsDir = dir
	loggersMu.Unlock()

	boot := Get(CategoryBoot)
	boot.Info("=== artificer logging initialized ===")
	boot.Info("Logs directory: %s", dir)
	boot.Info("Log level: %s", o.Level)
	return nil
}

// Enabled reports whether logging is active.
func Enabled() bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return opts.Enabled
}

// SetLevel changes the runtime log level. Unknown names fall back to info.
func SetLevel(level string) {
	optsMu.Lock()
	defer optsMu.Unlock()
	opts.Level = level
	switch level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
}

// SetEnabled toggles logging at runtime. Re-enabling reuses the directory
// given to Initialize; category files reopen lazily on the next Get.
func SetEnabled(enabled bool) {
	optsMu.Lock()
	opts.Enabled = enabled
	optsMu.Unlock()
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging is disabled.
func Get(category Category) *Logger {
	if !Enabled() {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	dir := logsDir
	loggersMu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock.
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a plain directory cleanup.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

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

func jsonFormat() bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return opts.JSONFormat
}

func currentLevel() int {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return logLevel
}

func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if jsonFormat() {
		l.logJSON("debug", msg)
	} else {
		l.logger.Printf("[DEBUG] %s", msg)
	}
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if jsonFormat() {
		l.logJSON("info", msg)
	} else {
		l.logger.Printf("[INFO] %s", msg)
	}
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if jsonFormat() {
		l.logJSON("warn", msg)
	} else {
		l.logger.Printf("[WARN] %s", msg)
	}
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if jsonFormat() {
		l.logJSON("error", msg)
	} else {
		l.logger.Printf("[ERROR] %s", msg)
	}
}

// CloseAll closes all open log files (call at shutdown).
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
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootError logs error to the boot category.
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Orchestrator logs to the orchestrator category.
func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Info(format, args...)
}

// OrchestratorDebug logs debug to the orchestrator category.
func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debug(format, args...)
}

// OrchestratorWarn logs warning to the orchestrator category.
func OrchestratorWarn(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Warn(format, args...)
}

// OrchestratorError logs error to the orchestrator category.
func OrchestratorError(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Error(format, args...)
}

// Ladder logs to the ladder category.
func Ladder(format string, args ...interface{}) {
	Get(CategoryLadder).Info(format, args...)
}

// LadderDebug logs debug to the ladder category.
func LadderDebug(format string, args ...interface{}) {
	Get(CategoryLadder).Debug(format, args...)
}

// Cleaner logs to the cleaner category.
func Cleaner(format string, args ...interface{}) {
	Get(CategoryCleaner).Info(format, args...)
}

// CleanerDebug logs debug to the cleaner category.
func CleanerDebug(format string, args ...interface{}) {
	Get(CategoryCleaner).Debug(format, args...)
}

// Validation logs to the validation category.
func Validation(format string, args ...interface{}) {
	Get(CategoryValidation).Info(format, args...)
}

// ValidationDebug logs debug to the validation category.
func ValidationDebug(format string, args ...interface{}) {
	Get(CategoryValidation).Debug(format, args...)
}

// ValidationWarn logs warning to the validation category.
func ValidationWarn(format string, args ...interface{}) {
	Get(CategoryValidation).Warn(format, args...)
}

// Versions logs to the versions category.
func Versions(format string, args ...interface{}) {
	Get(CategoryVersions).Info(format, args...)
}

// VersionsDebug logs debug to the versions category.
func VersionsDebug(format string, args ...interface{}) {
	Get(CategoryVersions).Debug(format, args...)
}

// VersionsError logs error to the versions category.
func VersionsError(format string, args ...interface{}) {
	Get(CategoryVersions).Error(format, args...)
}

// Events logs to the events category.
func Events(format string, args ...interface{}) {
	Get(CategoryEvents).Info(format, args...)
}

// EventsDebug logs debug to the events category.
func EventsDebug(format string, args ...interface{}) {
	Get(CategoryEvents).Debug(format, args...)
}

// Feedback logs to the feedback category.
func Feedback(format string, args ...interface{}) {
	Get(CategoryFeedback).Info(format, args...)
}

// FeedbackDebug logs debug to the feedback category.
func FeedbackDebug(format string, args ...interface{}) {
	Get(CategoryFeedback).Debug(format, args...)
}

// Training logs to the training category.
func Training(format string, args ...interface{}) {
	Get(CategoryTraining).Info(format, args...)
}

// TrainingDebug logs debug to the training category.
func TrainingDebug(format string, args ...interface{}) {
	Get(CategoryTraining).Debug(format, args...)
}

// TrainingWarn logs warning to the training category.
func TrainingWarn(format string, args ...interface{}) {
	Get(CategoryTraining).Warn(format, args...)
}

// Performance logs to the performance category.
func Performance(format string, args ...interface{}) {
	Get(CategoryPerformance).Info(format, args...)
}

// PerformanceDebug logs debug to the performance category.
func PerformanceDebug(format string, args ...interface{}) {
	Get(CategoryPerformance).Debug(format, args...)
}

// Backend logs to the backend category.
func Backend(format string, args ...interface{}) {
	Get(CategoryBackend).Info(format, args...)
}

// BackendDebug logs debug to the backend category.
func BackendDebug(format string, args ...interface{}) {
	Get(CategoryBackend).Debug(format, args...)
}

// BackendWarn logs warning to the backend category.
func BackendWarn(format string, args ...interface{}) {
	Get(CategoryBackend).Warn(format, args...)
}

// Context logs to the context category.
func Context(format string, args ...interface{}) {
	Get(CategoryContext).Info(format, args...)
}

// ContextDebug logs debug to the context category.
func ContextDebug(format string, args ...interface{}) {
	Get(CategoryContext).Debug(format, args...)
}

// Service logs to the service category.
func Service(format string, args ...interface{}) {
	Get(CategoryService).Info(format, args...)
}

// ServiceDebug logs debug to the service category.
func ServiceDebug(format string, args ...interface{}) {
	Get(CategoryService).Debug(format, args...)
}

// =============================================================================
// JOB-SCOPED LOGGING
// =============================================================================

// JobLogger prefixes every line with a job id so one job's trail can be
// grepped out of a shared category file.
type JobLogger struct {
	logger *Logger
	jobID  string
	fields map[string]interface{}
}

// WithJobID creates a job-scoped logger.
func WithJobID(category Category, jobID string) *JobLogger {
	return &JobLogger{
		logger: Get(category),
		jobID:  jobID,
		fields: make(map[string]interface{}),
	}
}

// WithField adds a field to the job logger.
func (j *JobLogger) WithField(key string, value interface{}) *JobLogger {
	j.fields[key] = value
	return j
}

func (j *JobLogger) formatMsg(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if len(j.fields) > 0 {
		return fmt.Sprintf("[job:%s] %s | %v", j.jobID, msg, j.fields)
	}
	return fmt.Sprintf("[job:%s] %s", j.jobID, msg)
}

func (j *JobLogger) Debug(format string, args ...interface{}) {
	if j.logger.logger == nil || currentLevel() > LevelDebug {
		return
	}
	j.logger.logger.Printf("[DEBUG] %s", j.formatMsg(format, args...))
}

func (j *JobLogger) Info(format string, args ...interface{}) {
	if j.logger.logger == nil || currentLevel() > LevelInfo {
		return
	}
	j.logger.logger.Printf("[INFO] %s", j.formatMsg(format, args...))
}

func (j *JobLogger) Warn(format string, args ...interface{}) {
	if j.logger.logger == nil || currentLevel() > LevelWarn {
		return
	}
	j.logger.logger.Printf("[WARN] %s", j.formatMsg(format, args...))
}

func (j *JobLogger) Error(format string, args ...interface{}) {
	if j.logger.logger == nil {
		return
	}
	j.logger.logger.Printf("[ERROR] %s", j.formatMsg(format, args...))
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds the threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
