package store

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/linuxmatters/peaqer/internal/config"
	"github.com/linuxmatters/peaqer/internal/processor"
	"github.com/linuxmatters/peaqer/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file:"+t.Name()+"?mode=memory&cache=shared", hclog.New(&hclog.LoggerOptions{
		Name:  "test-store",
		Level: hclog.Error,
	}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testReport(id string, started time.Time) *report.Report {
	cfg := &config.Config{Bitrates: []int{128, 48}}
	cfg.Encoders.Set("opus", config.Encoder{Cmd: "opusenc", Extension: "opus", Decoder: "opusdec"})
	cfg.Encoders.Set("lame", config.Encoder{Cmd: "lame", Extension: "mp3", Decoder: "mpg123"})
	cfg.Metrics.Set("visqol", config.Metric{Cmd: "visqol", Prefix: "MOS-LQO:"})
	cfg.Metrics.Set("peaq", config.Metric{Cmd: "peaq", Prefix: "ODG: "})

	var results processor.Results
	for fi, file := range []string{"speech.wav", "applause.wav"} {
		var scores processor.EncoderScores
		for ei, enc := range cfg.Encoders.Keys() {
			var metrics processor.MetricScores
			for mi, metric := range cfg.Metrics.Keys() {
				base := float64(fi*100 + ei*10 + mi)
				metrics.Set(metric, []processor.ScoreRecord{
					{Bitrate: 128, KBPS: 127.5, Score: base + 0.5},
					{Bitrate: 48, KBPS: 49, Score: base + 0.25},
				})
			}
			scores.Set(enc, metrics)
		}
		results.Set(file, scores)
	}
	// One failed unit
	lame, _ := results[1].Value.Get("lame")
	peaq, _ := lame.Get("peaq")
	peaq[1] = processor.ScoreRecord{Bitrate: 48, Error: "lame: exit status 1"}

	return &report.Report{
		RunID:    id,
		Started:  started,
		Finished: started.Add(time.Minute),
		Timezone: "UTC",
		Workers:  2,
		Settings: cfg,
		Results:  results,
		Failures: processor.CountFailures(results),
	}
}

func TestSaveAndLoadResults(t *testing.T) {
	s := openTestStore(t)
	r := testReport("run-a", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	require.NoError(t, s.SaveRun(r))

	got, err := s.LoadResults("run-a")
	require.NoError(t, err)
	assert.Equal(t, r.Results, got)
	assert.Equal(t, []string{"speech.wav", "applause.wav"}, got.Keys())

	enc, _ := got[0].Value.Get("opus")
	assert.Equal(t, []string{"visqol", "peaq"}, enc.Keys(), "metric order restored")
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)
	older := testReport("run-old", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := testReport("run-new", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveRun(older))
	require.NoError(t, s.SaveRun(newer))

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].UUID)
	assert.Equal(t, "run-old", runs[1].UUID)
	assert.Equal(t, 2, runs[0].Files)
	assert.Equal(t, 1, runs[0].Failures)
	assert.Contains(t, runs[0].Settings, `"bitrates":[128,48]`)
}

func TestSaveRunDuplicateID(t *testing.T) {
	s := openTestStore(t)
	r := testReport("run-dup", time.Now())
	require.NoError(t, s.SaveRun(r))
	assert.Error(t, s.SaveRun(r))

	// The failed save left nothing behind
	runs, err := s.Runs()
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestLoadResultsUnknownRun(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadResults("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("", nil)
	assert.Error(t, err)
}
