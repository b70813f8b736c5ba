package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/linuxmatters/peaqer/internal/processor"
)

// ConsoleObserver returns an observer that prints every external invocation
// followed by the achieved bitrate or metric score it produced. It is used
// instead of the TUI when stdout is not a terminal. Lines from concurrent
// workers never interleave.
func ConsoleObserver(w io.Writer) processor.Observer {
	var mu sync.Mutex
	return func(e processor.Event) {
		lines := consoleLines(e)
		if len(lines) == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, line := range lines {
			fmt.Fprintf(w, "[w%d] %s\n", e.Worker+1, line)
		}
	}
}

func consoleLines(e processor.Event) []string {
	name := filepath.Base(e.File)
	var lines []string
	if len(e.Command) > 0 {
		lines = append(lines, "$ "+strings.Join(e.Command, " "))
	}

	switch e.Stage {
	case processor.StageFileStart:
		lines = append(lines, fmt.Sprintf("%s: measuring %d units", name, e.UnitsTotal))
	case processor.StageProbe:
		lines = append(lines, fmt.Sprintf("%s %s @ %d kbps: %.2f kbps achieved", name, e.Encoder, e.Bitrate, e.KBPS))
	case processor.StageMetric:
		if e.Err != nil {
			lines = append(lines, fmt.Sprintf("%s %s @ %d kbps %s: %v", name, e.Encoder, e.Bitrate, e.Metric, e.Err))
		} else {
			lines = append(lines, fmt.Sprintf("%s %s @ %d kbps %s: %g", name, e.Encoder, e.Bitrate, e.Metric, e.Score))
		}
	case processor.StageUnitFailed:
		lines = append(lines, fmt.Sprintf("%s %s @ %d kbps failed: %v", name, e.Encoder, e.Bitrate, e.Err))
	case processor.StageFileDone:
		lines = append(lines, fmt.Sprintf("%s: done", name))
	}
	return lines
}
