// Package config loads and validates the benchmark settings document.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/linuxmatters/peaqer/internal/ordered"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid settings")

// Output stream selectors for metric tools
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Match policies for metric output containing more than one prefixed line
const (
	MatchLast  = "last"
	MatchFirst = "first"
)

// DefaultProbeCommand asks ffprobe for container size and duration as JSON.
const DefaultProbeCommand = "ffprobe -v quiet -print_format json -show_format $INPUT"

// Config holds the complete benchmark settings. It is read-only once loaded.
type Config struct {
	Bitrates []int                `json:"bitrates" yaml:"bitrates"`
	Encoders ordered.Map[Encoder] `json:"encoders" yaml:"encoders"`
	Decoders ordered.Map[Decoder] `json:"decoders" yaml:"decoders"`
	Metrics  ordered.Map[Metric]  `json:"metrics" yaml:"metrics"`
	Probe    *Probe               `json:"probe,omitempty" yaml:"probe,omitempty"`
}

// Encoder describes an external encoding tool.
// Cmd may use $INPUT, $OUTPUT, $BPS and $KBPS.
type Encoder struct {
	Cmd       string `json:"cmd" yaml:"cmd"`
	Extension string `json:"extension" yaml:"extension"`
	Decoder   string `json:"decoder" yaml:"decoder"`
	Label     string `json:"label" yaml:"label"`
}

// Decoder describes an external decoding tool. Cmd may use $INPUT and $OUTPUT.
type Decoder struct {
	Cmd string `json:"cmd" yaml:"cmd"`
}

// Metric describes an external quality-metric tool and how to scrape its score.
// Cmd may use $REFERENCE and $TESTFILE.
type Metric struct {
	Cmd    string `json:"cmd" yaml:"cmd"`
	Prefix string `json:"prefix" yaml:"prefix"`
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	Out    string `json:"out,omitempty" yaml:"out,omitempty"`
	Match  string `json:"match,omitempty" yaml:"match,omitempty"`
	Label  string `json:"label" yaml:"label"`
}

// Probe overrides the media-inspection command. Cmd may use $INPUT.
type Probe struct {
	Cmd string `json:"cmd" yaml:"cmd"`
}

// Stream returns the output stream the metric score is scraped from.
func (m Metric) Stream() string {
	if m.Out == "" {
		return StreamStdout
	}
	return m.Out
}

// MatchPolicy returns the tie-break used when several lines carry the prefix.
func (m Metric) MatchPolicy() string {
	if m.Match == "" {
		return MatchLast
	}
	return m.Match
}

// ProbeCommand returns the configured probe template or the ffprobe default.
func (c *Config) ProbeCommand() string {
	if c.Probe == nil || c.Probe.Cmd == "" {
		return DefaultProbeCommand
	}
	return c.Probe.Cmd
}

// EncoderLabel returns the display label for an encoder, falling back to its name.
func (c *Config) EncoderLabel(name string) string {
	if enc, ok := c.Encoders.Get(name); ok && enc.Label != "" {
		return enc.Label
	}
	return name
}

// MetricLabel returns the display label for a metric, falling back to its name.
func (c *Config) MetricLabel(name string) string {
	if m, ok := c.Metrics.Get(name); ok && m.Label != "" {
		return m.Label
	}
	return name
}

// Load reads a settings file. Files ending in .yaml or .yml are parsed as YAML,
// everything else as JSON. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	default:
		cfg, err = ParseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseJSON decodes a JSON settings document without validating it.
// Unknown fields are rejected at every level, including inside encoders,
// decoders and metrics, so typos in optional keys surface early.
func ParseJSON(data []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return &cfg, nil
}

// ParseYAML decodes a YAML settings document without validating it.
// As with ParseJSON, unknown fields are rejected at every level.
func ParseYAML(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings for missing keys and broken references.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if len(c.Bitrates) == 0 {
		fail("bitrates: at least one bitrate is required")
	}
	seen := make(map[int]bool, len(c.Bitrates))
	for i, rate := range c.Bitrates {
		if rate <= 0 {
			fail("bitrates[%d]: %d is not a positive kbps value", i, rate)
		}
		if seen[rate] {
			fail("bitrates[%d]: %d is listed twice", i, rate)
		}
		seen[rate] = true
	}

	if len(c.Encoders) == 0 {
		fail("encoders: at least one encoder is required")
	}
	for _, e := range c.Encoders {
		enc := e.Value
		if strings.TrimSpace(enc.Cmd) == "" {
			fail("encoders.%s: cmd is required", e.Key)
		}
		if enc.Extension == "" {
			fail("encoders.%s: extension is required", e.Key)
		} else if strings.ContainsAny(enc.Extension, "/\\ \t") {
			fail("encoders.%s: extension %q must be a bare file extension", e.Key, enc.Extension)
		}
		if enc.Decoder == "" {
			fail("encoders.%s: decoder is required", e.Key)
		} else if !c.Decoders.Has(enc.Decoder) {
			fail("encoders.%s: decoder %q is not defined in decoders", e.Key, enc.Decoder)
		}
	}

	for _, d := range c.Decoders {
		if strings.TrimSpace(d.Value.Cmd) == "" {
			fail("decoders.%s: cmd is required", d.Key)
		}
	}

	if len(c.Metrics) == 0 {
		fail("metrics: at least one metric is required")
	}
	for _, m := range c.Metrics {
		metric := m.Value
		if strings.TrimSpace(metric.Cmd) == "" {
			fail("metrics.%s: cmd is required", m.Key)
		}
		if metric.Prefix == "" {
			fail("metrics.%s: prefix is required", m.Key)
		}
		if metric.Out != "" && metric.Out != StreamStdout && metric.Out != StreamStderr {
			fail("metrics.%s: out must be %q or %q, got %q", m.Key, StreamStdout, StreamStderr, metric.Out)
		}
		if metric.Match != "" && metric.Match != MatchFirst && metric.Match != MatchLast {
			fail("metrics.%s: match must be %q or %q, got %q", m.Key, MatchFirst, MatchLast, metric.Match)
		}
	}

	if c.Probe != nil && strings.TrimSpace(c.Probe.Cmd) == "" {
		fail("probe: cmd is required when probe is set")
	}

	return errors.Join(errs...)
}
