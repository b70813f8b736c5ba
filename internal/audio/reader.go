// Package audio reads header metadata from reference WAV files
package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrNotWAV is returned for files without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

// Metadata contains audio file metadata
type Metadata struct {
	Duration   float64 `json:"duration"` // seconds
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	BitDepth   int     `json:"bit_depth"`
	Format     string  `json:"format"`
}

// ReadMetadata reads the format chunk of a WAV file without decoding samples
func ReadMetadata(filename string) (*Metadata, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", filename, ErrNotWAV)
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	duration, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("failed to compute duration: %w", err)
	}

	return &Metadata{
		Duration:   duration.Seconds(),
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Format:     formatName(dec.WavAudioFormat),
	}, nil
}

func formatName(code uint16) string {
	switch code {
	case wavFormatPCM:
		return "pcm"
	case wavFormatFloat:
		return "float"
	case wavFormatExtensible:
		return "extensible"
	default:
		return fmt.Sprintf("0x%04x", code)
	}
}

// WAVE format tags from the fmt chunk
const (
	wavFormatPCM        = 0x0001
	wavFormatFloat      = 0x0003
	wavFormatExtensible = 0xFFFE
)
