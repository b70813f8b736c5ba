// Package logging provides run logs and text summaries of benchmark results.
// This file contains reusable table formatting infrastructure for bitrate by
// encoder score tables.

package logging

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/linuxmatters/peaqer/internal/config"
	"github.com/linuxmatters/peaqer/internal/processor"
)

// MetricRow represents a single row in a score table.
// Values are pre-formatted strings to allow for mixed formatting (decimals, scientific notation).
type MetricRow struct {
	Label          string   // Row label, e.g., "64 kbps"
	Values         []string // One value per column (one column per encoder)
	Unit           string   // Unit suffix, e.g., "kbps", "" for unitless
	Interpretation string   // Optional note (only shown if non-empty)
}

// MetricTable formats aligned columns for encoder comparison.
// Handles variable column widths, missing values, and optional note column.
type MetricTable struct {
	Headers []string    // Column headers, usually encoder labels
	Rows    []MetricRow // Data rows
}

// String renders the table with aligned columns.
// - Labels are left-aligned
// - Numeric values are right-aligned within their column
// - Units are appended after the last value column
// - Note column only shown if any row has one
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	hasInterpretation := false
	for _, row := range t.Rows {
		if row.Interpretation != "" {
			hasInterpretation = true
			break
		}
	}

	labelWidth := 0
	for _, row := range t.Rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
	}

	// Value column widths (one per header)
	valueWidths := make([]int, len(t.Headers))
	for i, header := range t.Headers {
		valueWidths[i] = len(header)
	}
	for _, row := range t.Rows {
		for i, val := range row.Values {
			if i < len(valueWidths) && len(val) > valueWidths[i] {
				valueWidths[i] = len(val)
			}
		}
	}

	unitWidth := 0
	for _, row := range t.Rows {
		if len(row.Unit) > unitWidth {
			unitWidth = len(row.Unit)
		}
	}

	var sb strings.Builder

	// Header row
	sb.WriteString(strings.Repeat(" ", labelWidth+2))
	for i, header := range t.Headers {
		sb.WriteString(fmt.Sprintf("%*s  ", valueWidths[i], header))
	}
	if unitWidth > 0 {
		sb.WriteString(strings.Repeat(" ", unitWidth+1))
	}
	if hasInterpretation {
		sb.WriteString("Notes")
	}
	sb.WriteString("\n")

	for _, row := range t.Rows {
		sb.WriteString(fmt.Sprintf("%-*s  ", labelWidth, row.Label))

		for i := 0; i < len(t.Headers); i++ {
			val := MissingValue
			if i < len(row.Values) && row.Values[i] != "" {
				val = row.Values[i]
			}
			sb.WriteString(fmt.Sprintf("%*s  ", valueWidths[i], val))
		}

		if unitWidth > 0 {
			sb.WriteString(fmt.Sprintf("%-*s ", unitWidth, row.Unit))
		}
		if hasInterpretation {
			sb.WriteString(row.Interpretation)
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

// =============================================================================
// Metric Formatting Helpers
// =============================================================================

// MissingValue is the placeholder for unavailable measurements
const MissingValue = "-"

// formatMetric formats a numeric value with appropriate precision.
// Handles:
// - Regular floats: formatted to specified decimal places
// - Very small values (< 0.0001): scientific notation
// - NaN/Inf: returns MissingValue
func formatMetric(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}

	if value != 0 && math.Abs(value) < 0.0001 {
		return fmt.Sprintf("%.2e", value)
	}

	format := fmt.Sprintf("%%.%df", decimals)
	return fmt.Sprintf(format, value)
}

// formatMetricSigned formats a value with explicit sign for positive values.
// Used for score differences like "+0.12" or "-0.40".
func formatMetricSigned(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}

	format := fmt.Sprintf("%%+.%df", decimals)
	return fmt.Sprintf(format, value)
}

// ScoreDecimals is the precision used for metric scores in tables.
const ScoreDecimals = 3

// =============================================================================
// Table Builder Helpers
// =============================================================================

// NewMetricTable creates a new MetricTable with the given column headers.
func NewMetricTable(headers ...string) *MetricTable {
	return &MetricTable{
		Headers: headers,
		Rows:    make([]MetricRow, 0),
	}
}

// AddRow adds a row to the table with pre-formatted values.
func (t *MetricTable) AddRow(label string, values []string, unit string, interpretation string) {
	t.Rows = append(t.Rows, MetricRow{
		Label:          label,
		Values:         values,
		Unit:           unit,
		Interpretation: interpretation,
	})
}

// AddMetricRow adds a row with numeric values, formatting them automatically.
// Pass math.NaN() for missing values - they will display as "-".
func (t *MetricTable) AddMetricRow(label string, values []float64, decimals int, unit string, interpretation string) {
	formatted := make([]string, len(values))
	for i, v := range values {
		formatted[i] = formatMetric(v, decimals)
	}
	t.AddRow(label, formatted, unit, interpretation)
}

func encoderHeaders(cfg *config.Config) []string {
	keys := cfg.Encoders.Keys()
	headers := make([]string, len(keys))
	for i, name := range keys {
		headers[i] = cfg.EncoderLabel(name)
	}
	return headers
}

func bitrateLabel(rate int) string {
	return strconv.Itoa(rate) + " kbps"
}

// AverageScoreTable lays out the cross-file mean score of one metric: one row
// per configured bitrate, one column per encoder. Rows where some files had
// no successful record are annotated, since those means are diluted.
func AverageScoreTable(cfg *config.Config, summary processor.Summary, metric string) *MetricTable {
	t := NewMetricTable(encoderHeaders(cfg)...)
	encoders, _ := summary.Get(metric)

	for i, rate := range cfg.Bitrates {
		values := make([]float64, len(cfg.Encoders))
		var notes []string
		for j, name := range cfg.Encoders.Keys() {
			values[j] = math.NaN()
			points, ok := encoders.Get(name)
			if !ok || i >= len(points) {
				continue
			}
			p := points[i]
			if p.Samples > 0 {
				values[j] = p.Score
			}
			if p.Missing > 0 {
				notes = append(notes, fmt.Sprintf("%s %d/%d", cfg.EncoderLabel(name), p.Samples, p.Samples+p.Missing))
			}
		}
		t.AddMetricRow(bitrateLabel(rate), values, ScoreDecimals, "", strings.Join(notes, ", "))
	}
	return t
}

// AverageBitrateTable lays out the mean achieved bitrate per requested bitrate
// and encoder, with the deviation from the request.
func AverageBitrateTable(cfg *config.Config, summary processor.Summary, metric string) *MetricTable {
	t := NewMetricTable(encoderHeaders(cfg)...)
	encoders, _ := summary.Get(metric)

	for i, rate := range cfg.Bitrates {
		values := make([]string, len(cfg.Encoders))
		for j, name := range cfg.Encoders.Keys() {
			values[j] = MissingValue
			points, ok := encoders.Get(name)
			if !ok || i >= len(points) || points[i].Samples == 0 {
				continue
			}
			kbps := points[i].KBPS
			values[j] = fmt.Sprintf("%s (%s)", formatMetric(kbps, 1), formatMetricSigned(kbps-float64(rate), 1))
		}
		t.AddRow(bitrateLabel(rate), values, "kbps", "")
	}
	return t
}

// FileScoreTable lays out one input's scores for one metric. Failed units
// show as missing and are counted in the note column.
func FileScoreTable(cfg *config.Config, scores processor.EncoderScores, metric string) *MetricTable {
	t := NewMetricTable(encoderHeaders(cfg)...)

	for i, rate := range cfg.Bitrates {
		values := make([]float64, len(cfg.Encoders))
		failed := 0
		for j, name := range cfg.Encoders.Keys() {
			values[j] = math.NaN()
			metrics, ok := scores.Get(name)
			if !ok {
				continue
			}
			records, _ := metrics.Get(metric)
			if i >= len(records) {
				continue
			}
			if records[i].OK() {
				values[j] = records[i].Score
			} else {
				failed++
			}
		}
		note := ""
		if failed > 0 {
			note = fmt.Sprintf("%d failed", failed)
		}
		t.AddMetricRow(bitrateLabel(rate), values, ScoreDecimals, "", note)
	}
	return t
}
