package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/linuxmatters/peaqer/internal/config"
)

// DecodedExtension is the container every decoder is asked to write.
const DecodedExtension = "wav"

// removeFile is swapped in tests to simulate scratch cleanup failures.
var removeFile = os.Remove

// Scratch names the transient artifacts each worker writes.
//
// Every name carries the run namespace and the worker id, so concurrent workers
// (and concurrent runs sharing a temp dir) never write the same path. A worker
// reuses its two names for every unit and removes them before and after each one.
type Scratch struct {
	Dir       string
	Namespace string
}

// EncodedPath returns the worker's encoded artifact path for an extension.
func (s Scratch) EncodedPath(worker int, ext string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("peaqer-%s-w%d.%s", s.Namespace, worker, ext))
}

// DecodedPath returns the worker's decoded artifact path.
func (s Scratch) DecodedPath(worker int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("peaqer-%s-w%d-decoded.%s", s.Namespace, worker, DecodedExtension))
}

type encoderStage struct {
	name      string
	extension string
	encode    Template
	decode    Template
}

// Pipeline is the compiled form of the settings: parsed command templates for
// every encoder, decoder, metric and the prober. It is read-only and shared by
// all workers.
type Pipeline struct {
	bitrates []int
	encoders []encoderStage
	metrics  []*MetricExtractor
	prober   *Prober
	runner   Runner
}

// NewPipeline compiles cfg. cfg must already be validated. A nil runner
// selects ExecRunner.
func NewPipeline(cfg *config.Config, runner Runner) (*Pipeline, error) {
	if runner == nil {
		runner = ExecRunner{}
	}
	p := &Pipeline{
		bitrates: append([]int(nil), cfg.Bitrates...),
		runner:   runner,
	}

	for _, e := range cfg.Encoders {
		encode, err := ParseTemplate(e.Value.Cmd)
		if err != nil {
			return nil, fmt.Errorf("encoder %s: %w", e.Key, err)
		}
		dec, ok := cfg.Decoders.Get(e.Value.Decoder)
		if !ok {
			return nil, fmt.Errorf("encoder %s: unknown decoder %q", e.Key, e.Value.Decoder)
		}
		decode, err := ParseTemplate(dec.Cmd)
		if err != nil {
			return nil, fmt.Errorf("decoder %s: %w", e.Value.Decoder, err)
		}
		p.encoders = append(p.encoders, encoderStage{
			name:      e.Key,
			extension: e.Value.Extension,
			encode:    encode,
			decode:    decode,
		})
	}

	for _, m := range cfg.Metrics {
		extractor, err := NewMetricExtractor(m.Key, m.Value, runner)
		if err != nil {
			return nil, err
		}
		p.metrics = append(p.metrics, extractor)
	}

	prober, err := NewProber(cfg.ProbeCommand(), runner)
	if err != nil {
		return nil, err
	}
	p.prober = prober

	return p, nil
}

// UnitsPerFile returns the number of (encoder, bitrate) units measured per file.
func (p *Pipeline) UnitsPerFile() int {
	return len(p.encoders) * len(p.bitrates)
}

// Measurer runs the pipeline for one worker. It is not safe for concurrent use;
// each worker owns exactly one Measurer and therefore one pair of scratch names.
type Measurer struct {
	pipeline *Pipeline
	worker   int
	scratch  Scratch
	failFast bool
	logger   hclog.Logger
	observe  Observer
}

// MeasurerOptions configures a Measurer.
type MeasurerOptions struct {
	Worker   int
	Scratch  Scratch
	FailFast bool // return the first unit failure instead of recording it
	Logger   hclog.Logger
	Observer Observer
}

// NewMeasurer creates the measurer for one worker.
func NewMeasurer(p *Pipeline, opts MeasurerOptions) *Measurer {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	observe := opts.Observer
	if observe == nil {
		observe = func(Event) {}
	}
	return &Measurer{
		pipeline: p,
		worker:   opts.Worker,
		scratch:  opts.Scratch,
		failFast: opts.FailFast,
		logger:   logger.With("worker", opts.Worker),
		observe:  observe,
	}
}

// MeasureFile measures input with every encoder at every bitrate, in settings
// order. Unit failures are recorded in the returned scores; an error is only
// returned when ctx is cancelled or fail-fast is set.
func (m *Measurer) MeasureFile(ctx context.Context, index int, input string) (EncoderScores, error) {
	p := m.pipeline
	total := p.UnitsPerFile()
	done := 0

	m.observe(Event{Stage: StageFileStart, Worker: m.worker, FileIndex: index, File: input, UnitsTotal: total})
	m.logger.Info("measuring file", "file", input, "units", total)

	var scores EncoderScores
	for _, enc := range p.encoders {
		var metrics MetricScores
		for _, metric := range p.metrics {
			metrics.Set(metric.Name(), make([]ScoreRecord, 0, len(p.bitrates)))
		}

		for _, rate := range p.bitrates {
			u := unit{index: index, input: input, enc: enc, rate: rate, done: done, total: total}
			records, err := m.measureUnit(ctx, u)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			for i, metric := range p.metrics {
				name := metric.Name()
				seq, _ := metrics.Get(name)
				metrics.Set(name, append(seq, records[i]))
			}

			done++
			if err != nil {
				m.logger.Warn("unit failed", "file", input, "encoder", enc.name, "bitrate", rate, "error", err)
				m.observe(u.event(m.worker, StageUnitFailed, func(e *Event) {
					e.Err = err
					e.UnitsDone, e.UnitsTotal = done, total
				}))
				if m.failFast {
					return nil, fmt.Errorf("%s: %s at %d kbps: %w", input, enc.name, rate, err)
				}
			}
		}
		scores.Set(enc.name, metrics)
	}

	m.observe(Event{Stage: StageFileDone, Worker: m.worker, FileIndex: index, File: input, UnitsDone: done, UnitsTotal: total})
	return scores, nil
}

type unit struct {
	index int
	input string
	enc   encoderStage
	rate  int
	done  int // units of the file finished before this one
	total int
}

func (u unit) event(worker int, stage Stage, fill func(*Event)) Event {
	e := Event{
		Stage:     stage,
		Worker:    worker,
		FileIndex: u.index,
		File:      u.input,
		Encoder:   u.enc.name,
		Bitrate:   u.rate,

		UnitsDone:  u.done,
		UnitsTotal: u.total,
	}
	if fill != nil {
		fill(&e)
	}
	return e
}

// measureUnit encodes, probes, decodes and scores one (file, encoder, bitrate).
// It always returns one record per metric. The returned error is the first
// failure: a pipeline failure marks every record, a metric failure marks only
// that metric's record.
func (m *Measurer) measureUnit(ctx context.Context, u unit) ([]ScoreRecord, error) {
	p := m.pipeline
	encPath := m.scratch.EncodedPath(m.worker, u.enc.extension)
	decPath := m.scratch.DecodedPath(m.worker)

	m.removeArtifacts(encPath, decPath)
	defer m.removeArtifacts(encPath, decPath)

	records := make([]ScoreRecord, len(p.metrics))
	for i := range records {
		records[i].Bitrate = u.rate
	}
	failAll := func(err error) ([]ScoreRecord, error) {
		for i := range records {
			records[i].Error = err.Error()
		}
		return records, err
	}

	encodeArgs := u.enc.encode.Expand(EncodeVars(u.input, encPath, u.rate))
	m.observe(u.event(m.worker, StageEncode, func(e *Event) { e.Command = encodeArgs }))
	if err := m.run(ctx, encodeArgs, encPath); err != nil {
		return failAll(err)
	}

	probeArgs := p.prober.Command(encPath)
	kbps, err := p.prober.Probe(ctx, encPath)
	if err != nil {
		return failAll(err)
	}
	for i := range records {
		records[i].KBPS = kbps
	}
	m.observe(u.event(m.worker, StageProbe, func(e *Event) {
		e.Command = probeArgs
		e.KBPS = kbps
	}))
	m.logger.Debug("probed", "file", u.input, "encoder", u.enc.name, "bitrate", u.rate, "kbps", kbps)

	decodeArgs := u.enc.decode.Expand(DecodeVars(encPath, decPath))
	m.observe(u.event(m.worker, StageDecode, func(e *Event) { e.Command = decodeArgs }))
	if err := m.run(ctx, decodeArgs, decPath); err != nil {
		return failAll(err)
	}

	var firstErr error
	for i, metric := range p.metrics {
		args := metric.Command(u.input, decPath)
		score, err := metric.Extract(ctx, u.input, decPath)
		if err != nil {
			records[i].Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			records[i].Score = score
		}
		m.observe(u.event(m.worker, StageMetric, func(e *Event) {
			e.Metric = metric.Name()
			e.Command = args
			e.KBPS = kbps
			e.Score = score
			e.Err = err
		}))
	}
	return records, firstErr
}

// run executes a tool that must leave a file at artifact.
func (m *Measurer) run(ctx context.Context, argv []string, artifact string) error {
	m.logger.Debug("executing", "argv", argv)
	if _, err := m.pipeline.runner.Run(ctx, argv); err != nil {
		return err
	}
	if _, err := os.Stat(artifact); err != nil {
		return &ToolExecutionError{
			Command:  argv,
			ExitCode: 0,
			Err:      fmt.Errorf("expected output %s was not written", artifact),
		}
	}
	return nil
}

// removeArtifacts deletes scratch files. Failures are logged, not returned:
// the next unit in this worker removes and rewrites the same paths.
func (m *Measurer) removeArtifacts(paths ...string) {
	for _, path := range paths {
		if err := removeFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("failed to remove scratch file", "path", path, "error", err)
		}
	}
}
