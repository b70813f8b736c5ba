// Package processor drives the codec measurement pipeline: it encodes each
// reference file at every configured bitrate, probes and decodes the result,
// scores it with every metric tool, and spreads files across parallel workers.
package processor

import (
	"github.com/linuxmatters/peaqer/internal/ordered"
)

// ScoreRecord is one observation for a (file, encoder, metric, bitrate).
// A failed unit still produces a record, with Error set and Score zero, so a
// record sequence always lines up with the configured bitrate list.
type ScoreRecord struct {
	Bitrate int     `json:"bitrate"` // requested kbps
	KBPS    float64 `json:"kbps"`    // achieved kbps, zero if probing never succeeded
	Score   float64 `json:"score"`
	Error   string  `json:"error,omitempty"`
}

// OK reports whether the record holds a real measurement.
func (r ScoreRecord) OK() bool { return r.Error == "" }

// MetricScores maps metric name to records ordered like the configured bitrates.
type MetricScores = ordered.Map[[]ScoreRecord]

// EncoderScores maps encoder name to that encoder's metric scores for one file.
type EncoderScores = ordered.Map[MetricScores]

// Results maps input file to its encoder scores, in input file order.
type Results = ordered.Map[EncoderScores]

// CountFailures returns the number of records carrying an error.
func CountFailures(results Results) int {
	failures := 0
	for _, file := range results {
		for _, enc := range file.Value {
			for _, metric := range enc.Value {
				for _, rec := range metric.Value {
					if !rec.OK() {
						failures++
					}
				}
			}
		}
	}
	return failures
}

// Stage identifies a step reported to an Observer.
type Stage int

const (
	StageFileStart Stage = iota
	StageEncode
	StageProbe
	StageDecode
	StageMetric
	StageUnitFailed
	StageFileDone
)

func (s Stage) String() string {
	switch s {
	case StageFileStart:
		return "start"
	case StageEncode:
		return "encode"
	case StageProbe:
		return "probe"
	case StageDecode:
		return "decode"
	case StageMetric:
		return "metric"
	case StageUnitFailed:
		return "failed"
	case StageFileDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is a progress notification from a worker.
type Event struct {
	Stage     Stage
	Worker    int
	FileIndex int
	File      string
	Encoder   string
	Metric    string
	Bitrate   int
	Command   []string // StageEncode, StageProbe, StageDecode, StageMetric
	KBPS      float64  // StageProbe
	Score     float64  // StageMetric
	Err       error    // StageMetric, StageUnitFailed, StageFileDone

	// Units completed and total for the file, one unit per (encoder, bitrate)
	UnitsDone  int
	UnitsTotal int
}

// Observer receives progress events. Workers call it concurrently, so it must
// be safe for concurrent use.
type Observer func(Event)
