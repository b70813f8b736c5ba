// Package logging handles run logs and text reports for benchmark runs

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/peaqer/internal/audio"
	"github.com/linuxmatters/peaqer/internal/config"
	"github.com/linuxmatters/peaqer/internal/ordered"
	"github.com/linuxmatters/peaqer/internal/processor"
)

// ReportFile is the name of the text report written next to the debug log.
const ReportFile = "peaqer-report.txt"

// writeSection writes a section header with title and dashed underline.
// The underline length matches the title length.
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// ReportData contains all the information needed to generate a text report
type ReportData struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Timezone  string
	Workers   int
	Settings  *config.Config
	Inputs    ordered.Map[*audio.Metadata]
	Results   processor.Results
	Summary   processor.Summary
	PlotFiles []string
	JSONPath  string
}

// GenerateReport writes the text report to path.
//
// Report structure:
// 1. Header - run id and timestamps
// 2. Processing Summary - workers, inputs, timing, failures
// 3. Average scores per metric, and achieved bitrates
// 4. Per-file score tables
// 5. Failures - every failed score record with its error
func GenerateReport(path string, data ReportData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	WriteReport(f, data)
	return f.Close()
}

// WriteReport renders the text report to w.
func WriteReport(w io.Writer, data ReportData) {
	writeReportHeader(w, data)
	writeProcessingSummary(w, data)
	writeAverages(w, data)
	writeFileTables(w, data)
	writeFailures(w, data)
}

func writeReportHeader(w io.Writer, data ReportData) {
	fmt.Fprintln(w, "Peaqer Benchmark Report")
	fmt.Fprintln(w, "=======================")
	fmt.Fprintf(w, "Run: %s\n", data.RunID)
	fmt.Fprintf(w, "Started: %s\n", data.StartTime.Format("2006-01-02 15:04:05 MST"))
	if data.Timezone != "" {
		fmt.Fprintf(w, "Timezone: %s\n", data.Timezone)
	}
	if data.JSONPath != "" {
		fmt.Fprintf(w, "Results: %s\n", data.JSONPath)
	}
	fmt.Fprintln(w, "")
}

// writeProcessingSummary outputs timings and counts for the run.
func writeProcessingSummary(w io.Writer, data ReportData) {
	writeSection(w, "Processing Summary")

	units := 0
	if data.Settings != nil {
		units = len(data.Results) * len(data.Settings.Encoders) * len(data.Settings.Bitrates)
	}
	failures := processor.CountFailures(data.Results)

	fmt.Fprintf(w, "Inputs:   %d\n", len(data.Results))
	fmt.Fprintf(w, "Workers:  %d\n", data.Workers)
	fmt.Fprintf(w, "Units:    %d (file x encoder x bitrate)\n", units)
	fmt.Fprintf(w, "Failures: %d score records\n", failures)

	totalTime := data.EndTime.Sub(data.StartTime)
	fmt.Fprintf(w, "Total:    %s", formatDuration(totalTime))

	audioSecs := 0.0
	for _, in := range data.Inputs {
		if in.Value != nil {
			audioSecs += in.Value.Duration
		}
	}
	if audioSecs > 0 && totalTime > 0 {
		audioDuration := time.Duration(audioSecs * float64(time.Second))
		fmt.Fprintf(w, " for %s of audio", formatDuration(audioDuration))
	}
	fmt.Fprintln(w, "")

	if len(data.Inputs) > 0 {
		fmt.Fprintln(w, "")
		for _, in := range data.Inputs {
			m := in.Value
			if m == nil {
				fmt.Fprintf(w, "  %s\n", filepath.Base(in.Key))
				continue
			}
			fmt.Fprintf(w, "  %s: %s, %d Hz, %d-bit %s\n",
				filepath.Base(in.Key),
				formatDuration(time.Duration(m.Duration*float64(time.Second))),
				m.SampleRate, m.BitDepth, channelName(m.Channels))
		}
	}
	fmt.Fprintln(w, "")
}

func writeAverages(w io.Writer, data ReportData) {
	if data.Settings == nil {
		return
	}
	for _, metric := range data.Settings.Metrics.Keys() {
		writeSection(w, fmt.Sprintf("Average %s (%d files)", data.Settings.MetricLabel(metric), len(data.Results)))
		fmt.Fprint(w, AverageScoreTable(data.Settings, data.Summary, metric).String())
		fmt.Fprintln(w, "")
	}

	if len(data.Settings.Metrics) > 0 {
		// Achieved bitrate does not depend on the metric; any one will do
		first := data.Settings.Metrics.Keys()[0]
		writeSection(w, "Average Achieved Bitrate")
		fmt.Fprint(w, AverageBitrateTable(data.Settings, data.Summary, first).String())
		fmt.Fprintln(w, "")
	}

	if len(data.PlotFiles) > 0 {
		writeSection(w, "Plots")
		for _, p := range data.PlotFiles {
			fmt.Fprintln(w, p)
		}
		fmt.Fprintln(w, "")
	}
}

func writeFileTables(w io.Writer, data ReportData) {
	if data.Settings == nil {
		return
	}
	for _, file := range data.Results {
		for _, metric := range data.Settings.Metrics.Keys() {
			writeSection(w, fmt.Sprintf("%s: %s", file.Key, data.Settings.MetricLabel(metric)))
			fmt.Fprint(w, FileScoreTable(data.Settings, file.Value, metric).String())
			fmt.Fprintln(w, "")
		}
	}
}

func writeFailures(w io.Writer, data ReportData) {
	var lines []string
	for _, file := range data.Results {
		for _, enc := range file.Value {
			for _, metric := range enc.Value {
				for _, rec := range metric.Value {
					if rec.OK() {
						continue
					}
					lines = append(lines, fmt.Sprintf("%s %s %s @ %d kbps: %s",
						filepath.Base(file.Key), enc.Key, metric.Key, rec.Bitrate, rec.Error))
				}
			}
		}
	}
	if len(lines) == 0 {
		return
	}

	writeSection(w, "Failures")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, "")
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// channelName returns a human-readable channel name
func channelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}
