package processor

import (
	"github.com/linuxmatters/peaqer/internal/config"
	"github.com/linuxmatters/peaqer/internal/ordered"
)

// AveragePoint is the cross-file mean for one (metric, encoder, bitrate).
type AveragePoint struct {
	Bitrate int     `json:"bitrate"` // requested kbps
	KBPS    float64 `json:"kbps"`    // mean achieved kbps
	Score   float64 `json:"score"`   // mean score
	Samples int     `json:"samples"` // files that contributed a successful record
	Missing int     `json:"missing"` // files without one
}

// EncoderAverages maps encoder name to points aligned with the configured bitrates.
type EncoderAverages = ordered.Map[[]AveragePoint]

// Summary maps metric name to per-encoder averages.
type Summary = ordered.Map[EncoderAverages]

// Aggregate computes, for every metric, encoder and configured bitrate, the
// mean score and mean achieved bitrate across all files.
//
// Sums include only successful records but are always divided by the total
// number of files, so a file without a usable record pulls the mean towards
// zero. Missing counts how many files did that. With no files every mean is zero.
func Aggregate(cfg *config.Config, results Results) Summary {
	var summary Summary
	for _, metric := range cfg.Metrics.Keys() {
		var encoders EncoderAverages
		for _, encoder := range cfg.Encoders.Keys() {
			points := make([]AveragePoint, len(cfg.Bitrates))
			for i, rate := range cfg.Bitrates {
				points[i] = averageAt(results, encoder, metric, rate)
			}
			encoders.Set(encoder, points)
		}
		summary.Set(metric, encoders)
	}
	return summary
}

func averageAt(results Results, encoder, metric string, rate int) AveragePoint {
	point := AveragePoint{Bitrate: rate}

	var scoreSum, kbpsSum float64
	for _, file := range results {
		metrics, ok := file.Value.Get(encoder)
		if !ok {
			continue
		}
		records, ok := metrics.Get(metric)
		if !ok {
			continue
		}
		for _, rec := range records {
			if rec.Bitrate == rate && rec.OK() {
				scoreSum += rec.Score
				kbpsSum += rec.KBPS
				point.Samples++
			}
		}
	}

	files := len(results)
	point.Missing = files - point.Samples
	if files > 0 {
		point.Score = scoreSum / float64(files)
		point.KBPS = kbpsSum / float64(files)
	}
	return point
}
