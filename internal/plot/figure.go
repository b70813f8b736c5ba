package plot

import (
	"fmt"

	"github.com/linuxmatters/peaqer/internal/config"
	"github.com/linuxmatters/peaqer/internal/processor"
)

// Series is one encoder's curve.
type Series struct {
	Encoder string
	Label   string
	X       []float64 // achieved kbps
	Y       []float64 // score
	Style   Style
}

// Figure is everything needed to draw one chart.
type Figure struct {
	Name   string // file name, without directory
	Title  string
	XLabel string
	YLabel string
	Ticks  []int // configured bitrates
	Series []Series
}

// Empty reports whether no series has a point to draw.
func (f Figure) Empty() bool {
	for _, s := range f.Series {
		if len(s.X) > 0 {
			return false
		}
	}
	return true
}

// FileFigureName is the chart name for one input and metric.
func FileFigureName(input, metric string) string {
	return input + "." + metric + ".svg"
}

// AverageFigureName is the chart name for the cross-file average of a metric.
func AverageFigureName(metric string) string {
	return "all_files_average." + metric + ".svg"
}

// FileFigure plots one input's scores for metric: one series per encoder, in
// settings order. Failed records have no achieved bitrate and are left out.
func FileFigure(cfg *config.Config, input, name string, scores processor.EncoderScores, metric string) Figure {
	fig := Figure{
		Name:   name,
		Title:  input,
		XLabel: "Bitrate (kbps)",
		YLabel: cfg.MetricLabel(metric),
		Ticks:  cfg.Bitrates,
	}

	for i, encoder := range cfg.Encoders.Keys() {
		s := Series{Encoder: encoder, Label: cfg.EncoderLabel(encoder), Style: StyleFor(i)}
		if metrics, ok := scores.Get(encoder); ok {
			records, _ := metrics.Get(metric)
			for _, rec := range records {
				if !rec.OK() {
					continue
				}
				s.X = append(s.X, rec.KBPS)
				s.Y = append(s.Y, rec.Score)
			}
		}
		fig.Series = append(fig.Series, s)
	}
	return fig
}

// AverageFigure plots the cross-file means for metric. Points no file
// contributed to are left out.
func AverageFigure(cfg *config.Config, summary processor.Summary, metric string, files int) Figure {
	fig := Figure{
		Name:   AverageFigureName(metric),
		Title:  fmt.Sprintf("Average for %d files", files),
		XLabel: "Average bitrate (kbps)",
		YLabel: cfg.MetricLabel(metric),
		Ticks:  cfg.Bitrates,
	}

	encoders, _ := summary.Get(metric)
	for i, encoder := range cfg.Encoders.Keys() {
		s := Series{Encoder: encoder, Label: cfg.EncoderLabel(encoder), Style: StyleFor(i)}
		points, _ := encoders.Get(encoder)
		for _, p := range points {
			if p.Samples == 0 {
				continue
			}
			s.X = append(s.X, p.KBPS)
			s.Y = append(s.Y, p.Score)
		}
		fig.Series = append(fig.Series, s)
	}
	return fig
}
