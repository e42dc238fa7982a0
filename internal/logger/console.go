package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/swarm/internal/events"
)

// ConsoleLogger renders the swarm's event stream to a writer with
// "[HH:MM:SS] [LEVEL] message" lines, adapted from the teacher's
// ConsoleLogger: same timestamp/level-filter/color-detection scheme, but
// driven by events.Event instead of direct LogXxx call sites scattered
// through the executor. It implements events.Sink so it registers on the
// bus the same way display.WaveProgress and events.NATSSink do.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger writing to writer at the given
// level. enableColor is honored only when writer is a TTY (os.Stdout or
// os.Stderr); color never leaks into a redirected file or pipe.
func NewConsoleLogger(writer io.Writer, logLevel string, enableColor bool) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: enableColor && isTerminal(writer),
	}
}

// isTerminal reports whether w is one of the standard streams and is a TTY.
func isTerminal(w io.Writer) bool {
	if w == os.Stdout {
		return isatty.IsTerminal(os.Stdout.Fd())
	}
	if w == os.Stderr {
		return isatty.IsTerminal(os.Stderr.Fd())
	}
	return false
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

func (cl *ConsoleLogger) colorize(c *color.Color, s string) string {
	if !cl.colorOutput {
		return s
	}
	return c.Sprint(s)
}

func (cl *ConsoleLogger) logWithLevel(level, message string) {
	if !cl.shouldLog(level) {
		return
	}
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", time.Now().Format("15:04:05"), level, message)
}

// LogTrace logs a trace-level message, the logger's own equivalent of the
// teacher's identically-named method.
func (cl *ConsoleLogger) LogTrace(message string) { cl.logWithLevel("TRACE", message) }

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) { cl.logWithLevel("DEBUG", message) }

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) { cl.logWithLevel("INFO", message) }

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) { cl.logWithLevel("WARN", message) }

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) { cl.logWithLevel("ERROR", message) }

var (
	colorBlue   = color.New(color.FgBlue)
	colorGreen  = color.New(color.FgGreen)
	colorRed    = color.New(color.FgRed)
	colorYellow = color.New(color.FgYellow)
)

// Publish implements events.Sink, translating the event kinds that matter
// to an operator watching logs into leveled, colorized lines.
func (cl *ConsoleLogger) Publish(e events.Event) {
	switch e.Kind {
	case events.KindStart:
		cl.LogInfo(fmt.Sprintf("swarm starting: %v", e.Fields["objective"]))
	case events.KindTasksLoaded:
		cl.LogInfo(fmt.Sprintf("loaded %v tasks", e.Fields["count"]))
	case events.KindWaveStart:
		cl.LogInfo(cl.colorize(colorBlue, fmt.Sprintf("wave %v starting", e.Fields["wave"])))
	case events.KindWaveComplete:
		cl.LogInfo(cl.colorize(colorBlue, fmt.Sprintf("wave %v complete", e.Fields["wave"])))
	case events.KindWaveAllFailed:
		cl.LogWarn(fmt.Sprintf("wave %v: all %v tasks failed", e.Fields["wave"], e.Fields["count"]))
	case events.KindTaskDispatched:
		cl.LogDebug(fmt.Sprintf("dispatched %v", e.Fields["taskId"]))
	case events.KindTaskCompleted:
		metrics := formatColorizedTaskMetrics(e.Fields)
		line := fmt.Sprintf("completed %v", e.Fields["taskId"])
		if metrics != "" {
			line += " (" + metrics + ")"
		}
		cl.LogInfo(cl.colorize(colorGreen, line))
	case events.KindTaskFailed:
		cl.LogWarn(cl.colorize(colorRed, fmt.Sprintf("failed %v: %v", e.Fields["taskId"], e.Fields["reason"])))
	case events.KindTaskSkipped:
		cl.LogDebug(fmt.Sprintf("skipped %v", e.Fields["taskId"]))
	case events.KindQualityRejected:
		cl.LogWarn(fmt.Sprintf("quality gate rejected %v: score %v, %v", e.Fields["taskId"], e.Fields["score"], e.Fields["feedback"]))
	case events.KindBudgetUpdate:
		cost, _ := asFloat(e.Fields, "totalCost")
		cl.LogDebug(fmt.Sprintf("budget: %v tokens, $%.4f spent", e.Fields["totalTokens"], cost))
	case events.KindCircuitOpen:
		cl.LogWarn(cl.colorize(colorYellow, fmt.Sprintf("circuit breaker %q opened", e.Fields["breaker"])))
	case events.KindCircuitClosed:
		cl.LogInfo(fmt.Sprintf("circuit breaker %q closed", e.Fields["breaker"]))
	case events.KindModelFailover:
		cl.LogWarn(fmt.Sprintf("model failover: %v -> %v (%v)", e.Fields["from"], e.Fields["to"], e.Fields["reason"]))
	case events.KindModelHealth:
		cl.LogDebug(fmt.Sprintf("model health: %v", e.Fields))
	case events.KindStateCheckpoint:
		cl.LogDebug(fmt.Sprintf("checkpoint saved: phase %v", e.Fields["phase"]))
	case events.KindStateResume:
		cl.LogInfo(fmt.Sprintf("resumed from phase %v: %v tasks, %v reconciled", e.Fields["phase"], e.Fields["tasks"], e.Fields["reconciledStale"]))
	case events.KindReplan:
		cl.LogWarn(fmt.Sprintf("replanning: %v tasks stuck, %v new tasks", e.Fields["oldStuck"], e.Fields["newTasks"]))
	case events.KindFixupSpawned:
		cl.LogInfo(fmt.Sprintf("spawned %v fixup tasks from %v", e.Fields["count"], e.Fields["source"]))
	case events.KindAbort:
		cl.LogError(fmt.Sprintf("aborting: %v", e.Fields["reason"]))
	case events.KindStall:
		cl.LogWarn(fmt.Sprintf("stalled: %v", e.Fields["reason"]))
	case events.KindError:
		cl.LogError(fmt.Sprintf("%v", e.Fields["error"]))
	case events.KindComplete:
		if success, _ := e.Fields["success"].(bool); success {
			cl.LogInfo(cl.colorize(colorGreen, fmt.Sprintf("swarm complete: %v", e.Fields["summary"])))
		} else {
			cl.LogWarn(cl.colorize(colorYellow, fmt.Sprintf("swarm finished: %v", e.Fields["summary"])))
		}
	}
}
