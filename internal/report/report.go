// Package report writes and reads the JSON document describing a benchmark run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/linuxmatters/peaqer/internal/audio"
	"github.com/linuxmatters/peaqer/internal/config"
	"github.com/linuxmatters/peaqer/internal/ordered"
	"github.com/linuxmatters/peaqer/internal/processor"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// DefaultPath is where the report is written unless told otherwise.
const DefaultPath = "all_results.json"

// Report is the complete record of one run: the settings used, every score
// record per input, and the cross-file averages.
type Report struct {
	RunID     string                       `json:"run_id"`
	Started   time.Time                    `json:"started"`
	Finished  time.Time                    `json:"finished"`
	Timezone  string                       `json:"timezone"`
	Workers   int                          `json:"workers"`
	PlotFiles []string                     `json:"plotfiles"`
	Settings  *config.Config               `json:"settings"`
	Inputs    ordered.Map[*audio.Metadata] `json:"inputs,omitempty"`
	Results   processor.Results            `json:"results"`
	Averages  processor.Summary            `json:"averages"`
	Failures  int                          `json:"failures"`
}

// LocalTimezone returns the IANA name of the local timezone, or "UTC" if it
// cannot be determined.
func LocalTimezone() string {
	tz, err := tzlocal.RuntimeTZ()
	if err != nil || tz == "" {
		return "UTC"
	}
	return tz
}

// Write stores r as indented JSON at path. The file is written to a temporary
// name in the same directory and renamed, so a reader never sees half a report.
func Write(path string, r *Report) error {
	if r.PlotFiles == nil {
		r.PlotFiles = []string{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".peaqer-report-*.json")
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Read loads a report written by Write.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", path, err)
	}
	return &r, nil
}
