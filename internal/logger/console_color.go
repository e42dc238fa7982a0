package logger

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// colorScheme defines consistent colors for different metric types.
// Green: success/positive metrics
// Red: failure/error metrics
// Yellow: warning/threshold metrics
// Cyan: labels and identifiers
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	value   *color.Color
}

// newColorScheme creates the standard color scheme for metrics.
func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		value:   color.New(color.FgWhite),
	}
}

// formatColorizedMetric formats a single metric with colorized label and value.
// Label is colored cyan, value is colored based on the metric type and value.
// Format: "label: value"
func formatColorizedMetric(label string, value interface{}, scheme *colorScheme) string {
	labelColored := scheme.label.Sprint(label)
	valueColored := scheme.value.Sprintf("%v", value)
	return fmt.Sprintf("%s: %s", labelColored, valueColored)
}

// asInt reads k from fields as an int, accepting both int (set directly by
// in-process callers) and float64 (what a NATS round-trip through
// encoding/json would produce).
func asInt(fields map[string]interface{}, k string) (int, bool) {
	switch v := fields[k].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func asFloat(fields map[string]interface{}, k string) (float64, bool) {
	switch v := fields[k].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// formatColorizedTaskMetrics formats a completed task's KindTaskCompleted
// fields with color coding. Returns empty string if no relevant metrics are
// present. Format: "tokens: N, tool calls: N, files: N, cost: $X.XXXX".
// Colors are automatically disabled when output is not a TTY, via
// fatih/color's built-in detection.
func formatColorizedTaskMetrics(fields map[string]interface{}) string {
	if fields == nil {
		return ""
	}

	scheme := newColorScheme()
	var parts []string

	if tokens, ok := asInt(fields, "tokensUsed"); ok && tokens > 0 {
		parts = append(parts, formatColorizedMetric("tokens", tokens, scheme))
	}

	if toolCalls, ok := asInt(fields, "toolCalls"); ok && toolCalls > 0 {
		labelColored := scheme.success.Sprint("tool calls")
		valueColored := scheme.value.Sprintf("%d", toolCalls)
		parts = append(parts, fmt.Sprintf("%s: %s", labelColored, valueColored))
	}

	if files, ok := asInt(fields, "filesModified"); ok && files > 0 {
		labelColored := scheme.success.Sprint("files")
		valueColored := scheme.value.Sprintf("%d", files)
		parts = append(parts, fmt.Sprintf("%s: %s", labelColored, valueColored))
	}

	if cost, ok := asFloat(fields, "costUsed"); ok && cost > 0 {
		costStr := fmt.Sprintf("$%.4f", cost)
		if cost > 0.10 {
			labelColored := scheme.warn.Sprint("cost")
			valueColored := scheme.warn.Sprint(costStr)
			parts = append(parts, fmt.Sprintf("%s: %s", labelColored, valueColored))
		} else {
			parts = append(parts, formatColorizedMetric("cost", costStr, scheme))
		}
	}

	if len(parts) == 0 {
		return ""
	}

	return strings.Join(parts, ", ")
}
