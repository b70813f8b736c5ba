package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
	"bitrates": [64, 96, 128],
	"encoders": {
		"opus": {"cmd": "opusenc --bitrate $KBPS $INPUT $OUTPUT", "extension": "opus", "decoder": "opusdec", "label": "Opus"},
		"aac": {"cmd": "ffmpeg -y -i $INPUT -b:a $BPS $OUTPUT", "extension": "m4a", "decoder": "ffmpeg", "label": "AAC"}
	},
	"decoders": {
		"opusdec": {"cmd": "opusdec $INPUT $OUTPUT"},
		"ffmpeg": {"cmd": "ffmpeg -y -i $INPUT $OUTPUT"}
	},
	"metrics": {
		"peaq": {"cmd": "peaq --gst-reference $REFERENCE --gst-test $TESTFILE", "prefix": "Objective Difference Grade: ", "label": "ODG"},
		"visqol": {"cmd": "visqol --reference_file $REFERENCE --degraded_file $TESTFILE", "prefix": "MOS-LQO:", "suffix": " ", "out": "stderr", "match": "first", "label": "MOS"}
	}
}`

const validYAML = `
bitrates: [32, 48]
encoders:
  vorbis:
    cmd: oggenc -b $KBPS -o $OUTPUT $INPUT
    extension: ogg
    decoder: oggdec
    label: Vorbis
decoders:
  oggdec:
    cmd: oggdec -o $OUTPUT $INPUT
metrics:
  odg:
    cmd: peaq $REFERENCE $TESTFILE
    prefix: "ODG: "
    suffix: " ("
    label: ODG
probe:
  cmd: mediainfo --json $INPUT
`

func writeSettings(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSONKeepsDocumentOrder(t *testing.T) {
	cfg, err := Load(writeSettings(t, "settings.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, []int{64, 96, 128}, cfg.Bitrates)
	assert.Equal(t, []string{"opus", "aac"}, cfg.Encoders.Keys())
	assert.Equal(t, []string{"opusdec", "ffmpeg"}, cfg.Decoders.Keys())
	assert.Equal(t, []string{"peaq", "visqol"}, cfg.Metrics.Keys())

	visqol, ok := cfg.Metrics.Get("visqol")
	require.True(t, ok)
	assert.Equal(t, StreamStderr, visqol.Stream())
	assert.Equal(t, MatchFirst, visqol.MatchPolicy())

	peaq, _ := cfg.Metrics.Get("peaq")
	assert.Equal(t, StreamStdout, peaq.Stream())
	assert.Equal(t, MatchLast, peaq.MatchPolicy())
	assert.Equal(t, DefaultProbeCommand, cfg.ProbeCommand())
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeSettings(t, "settings.yaml", validYAML))
	require.NoError(t, err)

	assert.Equal(t, []int{32, 48}, cfg.Bitrates)
	assert.Equal(t, "Vorbis", cfg.EncoderLabel("vorbis"))
	assert.Equal(t, "mediainfo --json $INPUT", cfg.ProbeCommand())

	odg, ok := cfg.Metrics.Get("odg")
	require.True(t, ok)
	assert.Equal(t, " (", odg.Suffix)
}

func TestLabelsFallBackToNames(t *testing.T) {
	cfg, err := ParseJSON([]byte(validJSON))
	require.NoError(t, err)

	assert.Equal(t, "AAC", cfg.EncoderLabel("aac"))
	assert.Equal(t, "unknown", cfg.EncoderLabel("unknown"))
	assert.Equal(t, "ODG", cfg.MetricLabel("peaq"))
	assert.Equal(t, "other", cfg.MetricLabel("other"))
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeSettings(t, "settings.json", `{"bitrates": [64], "bitrate": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bitrate")
}

func TestLoadRejectsUnknownNestedFields(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		field   string
	}{
		{
			name:    "json metric",
			file:    "settings.json",
			content: strings.Replace(validJSON, `"suffix": " "`, `"sufix": " "`, 1),
			field:   "sufix",
		},
		{
			name:    "json encoder",
			file:    "settings.json",
			content: strings.Replace(validJSON, `"extension": "m4a"`, `"extention": "m4a"`, 1),
			field:   "extention",
		},
		{
			name:    "yaml metric",
			file:    "settings.yaml",
			content: strings.Replace(validYAML, "suffix:", "sufix:", 1),
			field:   "sufix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no bitrates", func(c *Config) { c.Bitrates = nil }, "at least one bitrate"},
		{"negative bitrate", func(c *Config) { c.Bitrates = []int{64, -1} }, "not a positive"},
		{"duplicate bitrate", func(c *Config) { c.Bitrates = []int{64, 64} }, "listed twice"},
		{"no encoders", func(c *Config) { c.Encoders = nil }, "at least one encoder"},
		{"unknown decoder", func(c *Config) {
			enc, _ := c.Encoders.Get("aac")
			enc.Decoder = "faad"
			c.Encoders.Set("aac", enc)
		}, `decoder "faad" is not defined`},
		{"missing extension", func(c *Config) {
			enc, _ := c.Encoders.Get("opus")
			enc.Extension = ""
			c.Encoders.Set("opus", enc)
		}, "extension is required"},
		{"extension with separator", func(c *Config) {
			enc, _ := c.Encoders.Get("opus")
			enc.Extension = "../opus"
			c.Encoders.Set("opus", enc)
		}, "bare file extension"},
		{"empty decoder cmd", func(c *Config) { c.Decoders.Set("ffmpeg", Decoder{}) }, "decoders.ffmpeg: cmd is required"},
		{"no metrics", func(c *Config) { c.Metrics = nil }, "at least one metric"},
		{"missing prefix", func(c *Config) {
			m, _ := c.Metrics.Get("peaq")
			m.Prefix = ""
			c.Metrics.Set("peaq", m)
		}, "prefix is required"},
		{"bad stream", func(c *Config) {
			m, _ := c.Metrics.Get("peaq")
			m.Out = "stdlog"
			c.Metrics.Set("peaq", m)
		}, "out must be"},
		{"bad match", func(c *Config) {
			m, _ := c.Metrics.Get("peaq")
			m.Match = "middle"
			c.Metrics.Set("peaq", m)
		}, "match must be"},
		{"empty probe", func(c *Config) { c.Probe = &Probe{} }, "probe: cmd is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseJSON([]byte(validJSON))
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"bitrate", "encoder", "metric"} {
		assert.True(t, strings.Contains(msg, want), "expected %q in %q", want, msg)
	}
}
