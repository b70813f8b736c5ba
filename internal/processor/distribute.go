package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/linuxmatters/peaqer/internal/ordered"
	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/sync/errgroup"
)

// cpuCount is swapped in tests.
var cpuCount = func() (int, error) { return cpu.Counts(true) }

// DefaultWorkers returns half the logical CPUs, never less than one.
func DefaultWorkers() int {
	n, err := cpuCount()
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	if n/2 < 1 {
		return 1
	}
	return n / 2
}

// Partition deals file positions round-robin across workers: worker i gets
// positions i, i+workers, i+2*workers, and so on. Workers beyond the number of
// files receive empty partitions.
func Partition(files, workers int) [][]int {
	if workers < 1 {
		workers = 1
	}
	parts := make([][]int, workers)
	for i := 0; i < files; i++ {
		w := i % workers
		parts[w] = append(parts[w], i)
	}
	return parts
}

// Options configures a Run.
type Options struct {
	Workers  int // zero selects DefaultWorkers
	Scratch  Scratch
	FailFast bool
	Logger   hclog.Logger
	Observer Observer
}

// measured is one file's result, owned by the worker that produced it until join.
type measured struct {
	index  int
	scores EncoderScores
}

// Run measures every file and returns results in the order of files, whatever
// the number of workers. Each worker measures its partition sequentially and
// keeps its results private; they are merged only after every worker has
// finished. With FailFast the first failed unit cancels the remaining work.
func Run(ctx context.Context, pipeline *Pipeline, files []string, opts Options) (Results, error) {
	if len(files) == 0 {
		return nil, errors.New("no input files")
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f] {
			return nil, fmt.Errorf("input %s listed twice", f)
		}
		seen[f] = true
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > len(files) {
		workers = len(files)
	}

	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	scratch := opts.Scratch
	if scratch.Dir == "" {
		scratch.Dir = os.TempDir()
	}
	if scratch.Namespace == "" {
		scratch.Namespace = uuid.NewString()[:8]
	}

	logger.Info("starting workers", "workers", workers, "files", len(files), "scratch", scratch.Dir)

	parts := Partition(len(files), workers)
	owned := make([][]measured, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := range parts {
		positions := parts[w]
		measurer := NewMeasurer(pipeline, MeasurerOptions{
			Worker:   w,
			Scratch:  scratch,
			FailFast: opts.FailFast,
			Logger:   logger.Named("worker"),
			Observer: opts.Observer,
		})

		g.Go(func() error {
			out := make([]measured, 0, len(positions))
			for _, i := range positions {
				scores, err := measurer.MeasureFile(gctx, i, files[i])
				if err != nil {
					return err
				}
				out = append(out, measured{index: i, scores: scores})
			}
			owned[w] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("measurement aborted: %w", err)
	}

	byIndex := make([]EncoderScores, len(files))
	for _, part := range owned {
		for _, m := range part {
			byIndex[m.index] = m.scores
		}
	}

	results := make(Results, 0, len(files))
	for i, file := range files {
		results = append(results, ordered.Entry[EncoderScores]{Key: file, Value: byIndex[i]})
	}
	return results, nil
}
