package plot

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/linuxmatters/peaqer/internal/config"
	"github.com/linuxmatters/peaqer/internal/processor"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Chart dimensions in pixels (16:9)
const (
	Width  = 1280
	Height = 720
)

// ErrNoData is returned when asked to render a figure with nothing to draw.
var ErrNoData = errors.New("no data points to plot")

var gridStyle = chart.Style{
	StrokeColor: drawing.ColorFromHex("e0e0e0"),
	StrokeWidth: 1,
}

// Render draws fig as SVG.
func Render(fig Figure, w io.Writer) error {
	if fig.Empty() {
		return ErrNoData
	}

	var series []chart.Series
	var xs, ys []float64
	for _, s := range fig.Series {
		if len(s.X) == 0 {
			continue
		}
		xs = append(xs, s.X...)
		ys = append(ys, s.Y...)
		series = append(series, chart.ContinuousSeries{
			Name: s.Label,
			Style: chart.Style{
				StrokeColor:     s.Style.Color,
				StrokeWidth:     2,
				StrokeDashArray: s.Style.dashArray(),
				DotColor:        s.Style.Color,
				DotWidth:        s.Style.dotWidth(),
			},
			XValues: s.X,
			YValues: s.Y,
		})
	}
	for _, rate := range fig.Ticks {
		xs = append(xs, float64(rate))
	}
	xMin, xMax := paddedRange(xs)
	yMin, yMax := paddedRange(ys)

	graph := chart.Chart{
		Title:  fig.Title,
		Width:  Width,
		Height: Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 30, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           fig.XLabel,
			Ticks:          xTicks(fig.Ticks, xMin, xMax),
			Range:          &chart.ContinuousRange{Min: xMin, Max: xMax},
			GridMajorStyle: gridStyle,
		},
		YAxis: chart.YAxis{
			Name:           fig.YLabel,
			Range:          &chart.ContinuousRange{Min: yMin, Max: yMax},
			GridMajorStyle: gridStyle,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.SVG, w)
}

// xTicks labels the configured bitrates in ascending order. go-chart takes the
// x range from the outermost ticks when ticks are given, so unlabelled ticks
// at lo and hi keep the padded range, which also covers achieved bitrates
// outside the configured ones.
func xTicks(rates []int, lo, hi float64) []chart.Tick {
	sorted := append([]int(nil), rates...)
	sort.Ints(sorted)

	ticks := make([]chart.Tick, 0, len(sorted)+2)
	ticks = append(ticks, chart.Tick{Value: lo})
	for _, rate := range sorted {
		v := float64(rate)
		if v <= lo || v >= hi {
			continue
		}
		ticks = append(ticks, chart.Tick{Value: v, Label: strconv.Itoa(rate)})
	}
	return append(ticks, chart.Tick{Value: hi})
}

// paddedRange returns the extent of values widened by 5%, or by one unit
// either side when every value is the same.
func paddedRange(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo == 0 {
		return lo - 1, hi + 1
	}
	pad := (hi - lo) * 0.05
	return lo - pad, hi + pad
}

// WriteFigure renders fig into dir and returns the written path.
func WriteFigure(dir string, fig Figure) (string, error) {
	path := filepath.Join(dir, fig.Name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating plot: %w", err)
	}
	if err := Render(fig, f); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("rendering %s: %w", fig.Name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing %s: %w", fig.Name, err)
	}
	return path, nil
}

// Figures builds every chart for a run: the averages for each metric first,
// then each input's charts in input order.
func Figures(cfg *config.Config, results processor.Results, summary processor.Summary) []Figure {
	var figs []Figure
	for _, metric := range cfg.Metrics.Keys() {
		figs = append(figs, AverageFigure(cfg, summary, metric, len(results)))
	}

	stems := fileStems(results.Keys())
	for i, file := range results {
		for _, metric := range cfg.Metrics.Keys() {
			figs = append(figs, FileFigure(cfg, file.Key, FileFigureName(stems[i], metric), file.Value, metric))
		}
	}
	return figs
}

// WriteAll renders every chart with data into dir and returns the written
// paths in Figures order. Charts without data are skipped; rendering
// failures are collected and returned together.
func WriteAll(dir string, cfg *config.Config, results processor.Results, summary processor.Summary) ([]string, error) {
	var paths []string
	var errs []error
	for _, fig := range Figures(cfg, results, summary) {
		if fig.Empty() {
			continue
		}
		path, err := WriteFigure(dir, fig)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

// fileStems names each input's charts after its base name. Inputs from
// different directories sharing a base name get a numeric suffix.
func fileStems(inputs []string) []string {
	stems := make([]string, len(inputs))
	used := make(map[string]bool, len(inputs))
	for i, input := range inputs {
		stem := filepath.Base(input)
		for n := 2; used[stem]; n++ {
			stem = fmt.Sprintf("%s-%d", filepath.Base(input), n)
		}
		used[stem] = true
		stems[i] = stem
	}
	return stems
}
