package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/swarm/internal/events"
)

// FileLogger writes the swarm's event stream to a timestamped run log under
// dir, maintaining a latest.log symlink to the current run, adapted from
// the teacher's FileLogger: same run-file/symlink/level-filter scheme, but
// driven by events.Event. When jsonMode is set, every event, whatever its
// level, is also appended as a JSON object (via events.Event's own MarshalJSON) to a sibling
// events.jsonl file, for offline replay or ingestion by another tool.
type FileLogger struct {
	mu       sync.Mutex
	runLog   *os.File
	jsonLog  *os.File
	logLevel string
	bar      *ProgressBar
}

// NewFileLogger creates dir (and a latest.log symlink inside it) and opens a
// timestamped run log at info level. jsonMode additionally opens
// dir/events.jsonl and appends the raw event there.
func NewFileLogger(dir string, jsonMode bool) (*FileLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(dir, fmt.Sprintf("run-%s.log", timestamp))
	f, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create run log file: %w", err)
	}

	symlinkPath := filepath.Join(dir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		os.Remove(symlinkPath)
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		f.Close()
		return nil, fmt.Errorf("create latest.log symlink: %w", err)
	}

	fl := &FileLogger{runLog: f, logLevel: "info", bar: NewProgressBar(0, 20, false)}

	if jsonMode {
		jf, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create events.jsonl: %w", err)
		}
		fl.jsonLog = jf
	}

	fl.writeRunLog(fmt.Sprintf("=== swarm run log ===\nstarted at: %s\n\n", time.Now().Format(time.RFC3339)))
	return fl, nil
}

func (fl *FileLogger) writeRunLog(s string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.runLog.WriteString(s)
}

func (fl *FileLogger) shouldLog(level string) bool {
	return logLevelToInt(level) >= logLevelToInt(fl.logLevel)
}

func (fl *FileLogger) logLine(level, message string) {
	if !fl.shouldLog(level) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format("15:04:05"), level, message))
}

// Close flushes and closes the run log and, if open, the JSON event log.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.jsonLog != nil {
		fl.jsonLog.Close()
	}
	return fl.runLog.Close()
}

// Publish implements events.Sink. Every event is appended to the JSON log
// (when enabled) regardless of level; the run log only receives the
// human-readable subset a post-mortem reader cares about, at info level and
// above.
func (fl *FileLogger) Publish(e events.Event) {
	if fl.jsonLog != nil {
		if b, err := json.Marshal(e); err == nil {
			fl.mu.Lock()
			fl.jsonLog.Write(b)
			fl.jsonLog.Write([]byte("\n"))
			fl.mu.Unlock()
		}
	}

	switch e.Kind {
	case events.KindStart:
		fl.logLine("INFO", fmt.Sprintf("starting: %v", e.Fields["objective"]))
	case events.KindTasksLoaded:
		if n, ok := asInt(e.Fields, "count"); ok {
			fl.bar = NewProgressBar(n, 20, false)
		}
		fl.logLine("INFO", fmt.Sprintf("loaded %v tasks", e.Fields["count"]))
	case events.KindWaveStart:
		fl.logLine("INFO", fmt.Sprintf("wave %v starting", e.Fields["wave"]))
	case events.KindWaveComplete:
		fl.logLine("INFO", fmt.Sprintf("wave %v complete", e.Fields["wave"]))
	case events.KindTaskCompleted:
		fl.mu.Lock()
		fl.bar.Increment()
		fl.mu.Unlock()
		fl.logLine("INFO", fmt.Sprintf("completed %v [%s]", e.Fields["taskId"], fl.bar.Render()))
	case events.KindTaskFailed:
		fl.mu.Lock()
		fl.bar.Increment()
		fl.mu.Unlock()
		fl.logLine("WARN", fmt.Sprintf("failed %v: %v [%s]", e.Fields["taskId"], e.Fields["reason"], fl.bar.Render()))
	case events.KindQualityRejected:
		fl.logLine("WARN", fmt.Sprintf("quality rejected %v: score %v", e.Fields["taskId"], e.Fields["score"]))
	case events.KindCircuitOpen:
		fl.logLine("WARN", fmt.Sprintf("circuit breaker %q opened", e.Fields["breaker"]))
	case events.KindReplan:
		fl.logLine("WARN", fmt.Sprintf("replanning: %v stuck tasks", e.Fields["oldStuck"]))
	case events.KindAbort:
		fl.logLine("ERROR", fmt.Sprintf("aborted: %v", e.Fields["reason"]))
	case events.KindError:
		fl.logLine("ERROR", fmt.Sprintf("%v", e.Fields["error"]))
	case events.KindComplete:
		fl.logLine("INFO", fmt.Sprintf("\n=== summary ===\n%v\n", e.Fields["summary"]))
	}
}
