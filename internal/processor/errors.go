package processor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrZeroDuration is returned by the prober when the container reports no duration.
var ErrZeroDuration = errors.New("probed duration is zero")

// ErrNegativeDuration is returned by the prober when the container reports a
// duration below zero.
var ErrNegativeDuration = errors.New("probed duration is negative")

// ToolExecutionError reports an external tool that failed to start, exited
// non-zero, or did not produce the file it was asked to write.
type ToolExecutionError struct {
	Command  []string
	ExitCode int // -1 if the process never ran to completion
	Stderr   string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Command, " "), e.Err)
	if stderr := lastLine(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ParseError reports tool output that could not be turned into a number.
type ParseError struct {
	Source string // "probe" or the metric name
	Input  string // the offending text, trimmed
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s output %q: %v", e.Source, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MetricNotFoundError reports metric output with no line containing the prefix.
type MetricNotFoundError struct {
	Metric string
	Prefix string
	Stream string
}

func (e *MetricNotFoundError) Error() string {
	return fmt.Sprintf("metric %s: no line containing %q on %s", e.Metric, e.Prefix, e.Stream)
}

// lastLine returns the last non-empty line of s, which is usually where tools
// print the reason they gave up.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
