package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/linuxmatters/peaqer/internal/config"
)

// MetricExtractor runs one configured quality-metric tool and scrapes its score.
type MetricExtractor struct {
	name     string
	metric   config.Metric
	template Template
	runner   Runner
}

// NewMetricExtractor prepares the metric called name.
func NewMetricExtractor(name string, metric config.Metric, runner Runner) (*MetricExtractor, error) {
	t, err := ParseTemplate(metric.Cmd)
	if err != nil {
		return nil, fmt.Errorf("metric %s: %w", name, err)
	}
	return &MetricExtractor{name: name, metric: metric, template: t, runner: runner}, nil
}

// Name returns the metric's settings key.
func (e *MetricExtractor) Name() string { return e.name }

// Command returns the argument vector comparing testFile against reference.
func (e *MetricExtractor) Command(reference, testFile string) []string {
	return e.template.Expand(MetricVars(reference, testFile))
}

// Extract runs the metric tool and returns the score found in its configured stream.
func (e *MetricExtractor) Extract(ctx context.Context, reference, testFile string) (float64, error) {
	out, err := e.runner.Run(ctx, e.Command(reference, testFile))
	if err != nil {
		return 0, err
	}

	stream := e.metric.Stream()
	score, err := ExtractScore(out.Stream(stream), e.metric.Prefix, e.metric.Suffix, e.metric.MatchPolicy())
	if err != nil {
		var notFound *MetricNotFoundError
		if errors.As(err, &notFound) {
			notFound.Metric = e.name
			notFound.Stream = stream
		}
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.Source = e.name
		}
		return 0, err
	}
	return score, nil
}

// ExtractScore finds the line containing prefix and parses the number that
// follows it, up to the first suffix after the prefix or the end of the line.
//
// When several lines contain the prefix, policy picks one: config.MatchLast
// takes the final line (tools often print progress lines before the result),
// config.MatchFirst takes the first. A missing suffix leaves the rest of the
// line as the candidate number.
func ExtractScore(text, prefix, suffix, policy string) (float64, error) {
	line, found := "", false
	for _, l := range strings.Split(text, "\n") {
		if !strings.Contains(l, prefix) {
			continue
		}
		line, found = strings.TrimRight(l, "\r"), true
		if policy == config.MatchFirst {
			break
		}
	}
	if !found {
		return 0, &MetricNotFoundError{Prefix: prefix}
	}

	value := line[strings.Index(line, prefix)+len(prefix):]
	if suffix != "" {
		if end := strings.Index(value, suffix); end >= 0 {
			value = value[:end]
		}
	}
	value = strings.TrimSpace(value)

	score, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &ParseError{Source: "metric", Input: abbreviate(line), Err: err}
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, &ParseError{Source: "metric", Input: abbreviate(line), Err: errors.New("score is not a finite number")}
	}
	return score, nil
}
