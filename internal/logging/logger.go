package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
)

// DebugLogFile is the name of the debug log written with --logs.
const DebugLogFile = "peaqer-debug.log"

// NewLogger creates the root logger writing to w at the named level.
// An unknown level name is an error rather than a silent default.
func NewLogger(w io.Writer, level string) (hclog.Logger, error) {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "peaqer",
		Level:  lvl,
		Output: w,
	}), nil
}

// OpenDebugLog creates the debug log in dir and returns a logger writing to it
// at debug level. The caller closes the returned file.
func OpenDebugLog(dir string) (hclog.Logger, *os.File, error) {
	f, err := os.Create(filepath.Join(dir, DebugLogFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create debug log: %w", err)
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:            "peaqer",
		Level:           hclog.Debug,
		Output:          f,
		IncludeLocation: true,
	})
	return logger, f, nil
}
