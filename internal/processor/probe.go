package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ffprobeFormat is the subset of `ffprobe -print_format json -show_format` we read.
// ffprobe reports both fields as decimal strings; some wrappers emit plain numbers.
type ffprobeFormat struct {
	Format struct {
		Size     json.Number `json:"size"`
		Duration json.Number `json:"duration"`
	} `json:"format"`
}

// Prober measures the bitrate an encoder actually achieved.
type Prober struct {
	template Template
	runner   Runner
}

// NewProber creates a prober that runs the given command template ($INPUT is the artifact).
func NewProber(cmd string, runner Runner) (*Prober, error) {
	t, err := ParseTemplate(cmd)
	if err != nil {
		return nil, fmt.Errorf("probe command: %w", err)
	}
	return &Prober{template: t, runner: runner}, nil
}

// Command returns the argument vector used to probe path.
func (p *Prober) Command(path string) []string {
	return p.template.Expand(Vars{PlaceholderInput: path})
}

// Probe runs the probe tool on path and returns the achieved bitrate in kbps.
func (p *Prober) Probe(ctx context.Context, path string) (float64, error) {
	out, err := p.runner.Run(ctx, p.Command(path))
	if err != nil {
		return 0, err
	}
	return ParseProbeOutput(out.Stdout)
}

// ParseProbeOutput computes kbps from probe JSON:
// (size_bytes * 8) / duration_seconds / 1000.
func ParseProbeOutput(stdout string) (float64, error) {
	var probe ffprobeFormat
	if err := json.Unmarshal([]byte(stdout), &probe); err != nil {
		return 0, &ParseError{Source: "probe", Input: abbreviate(stdout), Err: err}
	}

	size, err := parseNumber(probe.Format.Size)
	if err != nil {
		return 0, &ParseError{Source: "probe", Input: probe.Format.Size.String(), Err: fmt.Errorf("format.size: %w", err)}
	}
	duration, err := parseNumber(probe.Format.Duration)
	if err != nil {
		return 0, &ParseError{Source: "probe", Input: probe.Format.Duration.String(), Err: fmt.Errorf("format.duration: %w", err)}
	}
	switch {
	case duration == 0:
		return 0, &ParseError{Source: "probe", Input: probe.Format.Duration.String(), Err: ErrZeroDuration}
	case duration < 0:
		return 0, &ParseError{Source: "probe", Input: probe.Format.Duration.String(), Err: ErrNegativeDuration}
	}

	return size * 8 / duration / 1000, nil
}

func parseNumber(n json.Number) (float64, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return 0, errors.New("missing")
	}
	return strconv.ParseFloat(s, 64)
}

// abbreviate keeps error messages readable when a tool dumps pages of output.
// The cut never splits a UTF-8 sequence.
func abbreviate(s string) string {
	s = strings.TrimSpace(s)
	const limit = 120
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
