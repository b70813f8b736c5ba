package processor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/linuxmatters/peaqer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScratchPaths(t *testing.T) {
	s := Scratch{Dir: "/tmp", Namespace: "ab12cd34"}

	assert.Equal(t, "/tmp/peaqer-ab12cd34-w0.opus", s.EncodedPath(0, "opus"))
	assert.Equal(t, "/tmp/peaqer-ab12cd34-w0-decoded.wav", s.DecodedPath(0))

	seen := map[string]int{}
	for w := 0; w < 8; w++ {
		for _, p := range []string{s.EncodedPath(w, "opus"), s.EncodedPath(w, "m4a"), s.DecodedPath(w)} {
			if other, dup := seen[p]; dup {
				t.Fatalf("worker %d and worker %d share scratch path %s", w, other, p)
			}
			seen[p] = w
		}
	}

	other := Scratch{Dir: "/tmp", Namespace: "ffff0000"}
	assert.NotEqual(t, s.DecodedPath(0), other.DecodedPath(0), "runs must not share scratch names")
}

func TestNewPipeline(t *testing.T) {
	cfg := newTestConfig(t, nil)
	p := newTestPipeline(t, cfg, &fakeTools{})

	assert.Equal(t, 6, p.UnitsPerFile())
	require.Len(t, p.encoders, 2)
	assert.Equal(t, "alpha", p.encoders[0].name)
	assert.Equal(t, "beta", p.encoders[1].name)
	require.Len(t, p.metrics, 2)
	assert.Equal(t, "odg", p.metrics[0].Name())
	assert.Equal(t, "snr", p.metrics[1].Name())
}

func TestMeasureFile(t *testing.T) {
	dir := t.TempDir()
	scratch := t.TempDir()
	inputs := createInputs(t, dir, 2)
	cfg := newTestConfig(t, nil)
	tools := &fakeTools{}

	m := NewMeasurer(newTestPipeline(t, cfg, tools), MeasurerOptions{
		Worker:  3,
		Scratch: Scratch{Dir: scratch, Namespace: "test"},
	})

	scores, err := m.MeasureFile(context.Background(), 1, inputs[1])
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, scores.Keys())
	for _, enc := range scores {
		assert.Equal(t, []string{"odg", "snr"}, enc.Value.Keys(), "metric order for %s", enc.Key)
		for _, metric := range enc.Value {
			require.Len(t, metric.Value, len(cfg.Bitrates))
			for i, rec := range metric.Value {
				assert.Equal(t, cfg.Bitrates[i], rec.Bitrate)
				assert.True(t, rec.OK(), "unexpected error %q", rec.Error)
				assert.Equal(t, float64(cfg.Bitrates[i]), rec.KBPS)
				assert.Equal(t, expectedScore("xx", cfg.Bitrates[i]), rec.Score)
			}
		}
	}

	// Every encode went to this worker's scratch name
	for _, call := range tools.callsFor("enc") {
		assert.Equal(t, inputs[1], call[1])
		assert.Contains(t, filepath.Base(call[2]), "peaqer-test-w3.")
	}

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch artifacts should be removed after each unit")
}

func TestMeasureFilePipelineFailure(t *testing.T) {
	inputs := createInputs(t, t.TempDir(), 1)
	cfg := newTestConfig(t, func(c *config.Config) {
		beta, _ := c.Encoders.Get("beta")
		beta.Cmd = "silentenc $INPUT $OUTPUT"
		c.Encoders.Set("beta", beta)
	})

	var failed []Event
	m := NewMeasurer(newTestPipeline(t, cfg, &fakeTools{}), MeasurerOptions{
		Scratch: Scratch{Dir: t.TempDir(), Namespace: "fail"},
		Observer: func(e Event) {
			if e.Stage == StageUnitFailed {
				failed = append(failed, e)
			}
		},
	})

	scores, err := m.MeasureFile(context.Background(), 0, inputs[0])
	require.NoError(t, err, "unit failures are recorded, not returned")

	alpha, _ := scores.Get("alpha")
	beta, _ := scores.Get("beta")
	for _, metric := range cfg.Metrics.Keys() {
		good, _ := alpha.Get(metric)
		for _, rec := range good {
			assert.True(t, rec.OK())
		}

		bad, _ := beta.Get(metric)
		require.Len(t, bad, len(cfg.Bitrates), "failed units keep their slot")
		for i, rec := range bad {
			assert.Equal(t, cfg.Bitrates[i], rec.Bitrate)
			assert.False(t, rec.OK())
			assert.Contains(t, rec.Error, "was not written")
			assert.Zero(t, rec.Score)
			assert.Zero(t, rec.KBPS)
		}
	}

	require.Len(t, failed, len(cfg.Bitrates))
	for _, e := range failed {
		assert.Equal(t, "beta", e.Encoder)
		var toolErr *ToolExecutionError
		assert.True(t, errors.As(e.Err, &toolErr))
	}

	assert.Equal(t, 2*len(cfg.Bitrates), CountFailures(Results{{Key: inputs[0], Value: scores}}))
}

func TestMeasureFileMetricFailure(t *testing.T) {
	inputs := createInputs(t, t.TempDir(), 1)
	cfg := newTestConfig(t, func(c *config.Config) {
		snr, _ := c.Metrics.Get("snr")
		snr.Cmd = "silentmetric $REFERENCE $TESTFILE"
		c.Metrics.Set("snr", snr)
	})

	m := NewMeasurer(newTestPipeline(t, cfg, &fakeTools{}), MeasurerOptions{
		Scratch: Scratch{Dir: t.TempDir(), Namespace: "metric"},
	})
	scores, err := m.MeasureFile(context.Background(), 0, inputs[0])
	require.NoError(t, err)

	for _, enc := range scores {
		odg, _ := enc.Value.Get("odg")
		snr, _ := enc.Value.Get("snr")
		for i := range cfg.Bitrates {
			assert.True(t, odg[i].OK(), "odg still measured when snr fails")
			assert.False(t, snr[i].OK())
			assert.Contains(t, snr[i].Error, `no line containing "score="`)
			assert.Equal(t, float64(cfg.Bitrates[i]), snr[i].KBPS, "achieved bitrate kept on metric failure")
		}
	}
}

func TestMeasureFileFailFast(t *testing.T) {
	inputs := createInputs(t, t.TempDir(), 1)
	cfg := newTestConfig(t, nil)
	tools := &fakeTools{fail: map[string]error{"dec": errors.New("exit status 1")}}

	m := NewMeasurer(newTestPipeline(t, cfg, tools), MeasurerOptions{
		Scratch:  Scratch{Dir: t.TempDir(), Namespace: "ff"},
		FailFast: true,
	})
	_, err := m.MeasureFile(context.Background(), 0, inputs[0])

	var toolErr *ToolExecutionError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "dec", toolErr.Command[0])
	assert.Len(t, tools.callsFor("enc"), 1, "no further units after the first failure")
}

func TestMeasureFileScratchRemovalFailure(t *testing.T) {
	inputs := createInputs(t, t.TempDir(), 1)
	cfg := newTestConfig(t, nil)

	attempts := 0
	removeFile = func(string) error {
		attempts++
		return &fs.PathError{Op: "remove", Path: "x", Err: fs.ErrPermission}
	}
	t.Cleanup(func() { removeFile = os.Remove })

	m := NewMeasurer(newTestPipeline(t, cfg, &fakeTools{}), MeasurerOptions{
		Scratch: Scratch{Dir: t.TempDir(), Namespace: "rm"},
	})
	scores, err := m.MeasureFile(context.Background(), 0, inputs[0])
	require.NoError(t, err)
	assert.Zero(t, CountFailures(Results{{Key: inputs[0], Value: scores}}), "cleanup failures do not fail units")
	assert.Equal(t, 4*len(cfg.Encoders)*len(cfg.Bitrates), attempts, "two paths removed before and after every unit")
}

func TestMeasureFileCancelled(t *testing.T) {
	inputs := createInputs(t, t.TempDir(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMeasurer(newTestPipeline(t, newTestConfig(t, nil), &fakeTools{}), MeasurerOptions{
		Scratch: Scratch{Dir: t.TempDir(), Namespace: "cancel"},
	})
	_, err := m.MeasureFile(ctx, 0, inputs[0])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMeasureFileReportsUnitProgress(t *testing.T) {
	dir := t.TempDir()
	inputs := createInputs(t, dir, 1)
	cfg := newTestConfig(t, nil)

	var events []Event
	m := NewMeasurer(newTestPipeline(t, cfg, &fakeTools{}), MeasurerOptions{
		Scratch:  Scratch{Dir: t.TempDir(), Namespace: "test"},
		Observer: func(e Event) { events = append(events, e) },
	})
	_, err := m.MeasureFile(context.Background(), 0, inputs[0])
	require.NoError(t, err)

	var encodes []int
	for _, e := range events {
		assert.Equal(t, 6, e.UnitsTotal, "stage %s", e.Stage)
		if e.Stage == StageEncode {
			encodes = append(encodes, e.UnitsDone)
		}
		if e.Stage == StageProbe || e.Stage == StageMetric {
			require.NotEmpty(t, e.Command, "stage %s reports the invocation", e.Stage)
		}
		if e.Stage == StageProbe {
			assert.Equal(t, "probe", e.Command[0])
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, encodes)

	last := events[len(events)-1]
	assert.Equal(t, StageFileDone, last.Stage)
	assert.Equal(t, 6, last.UnitsDone)
}
