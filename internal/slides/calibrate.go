package slides

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
)

// Threshold clamp bounds. The calibrated scene threshold always lands in
// this range.
const (
	minSceneThreshold = 0.05
	maxSceneThreshold = 0.30
)

// defaultSceneThreshold is used when calibration cannot run (too short a
// video, frame extraction failure).
const defaultSceneThreshold = 0.12

// calibration is the outcome of threshold auto-tuning.
type calibration struct {
	Threshold  float64
	Confidence float64
	Strategy   string // "hash" when calibrated from samples, "none" otherwise
}

// calibrate samples evenly spaced frames between 5% and 95% of the
// duration, fingerprints them with the average hash, and derives a scene
// threshold from the consecutive Hamming-ratio differences.
func (p *Pipeline) calibrate(ctx context.Context, source string, duration float64, samples int, tempDir string) calibration {
	fallback := calibration{Threshold: defaultSceneThreshold, Strategy: "none"}

	n := clampInt(samples, 3, 12)
	if duration <= 0 {
		return fallback
	}

	start := duration * 0.05
	end := duration * 0.95
	step := (end - start) / float64(n-1)

	hashes := make([]frameHash, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return fallback
		}
		ts := start + float64(i)*step
		framePath := filepath.Join(tempDir, fmt.Sprintf("calib_%02d.png", i))
		if err := p.extractFrameAt(ctx, source, ts, framePath); err != nil {
			p.logger.Debug("calibration frame failed", "ts", ts, "error", err)
			continue
		}
		h, err := hashImageFile(framePath)
		if err != nil {
			continue
		}
		hashes = append(hashes, h)
	}
	if len(hashes) < 2 {
		return fallback
	}

	diffs := make([]float64, 0, len(hashes)-1)
	for i := 1; i < len(hashes); i++ {
		diffs = append(diffs, hammingRatio(hashes[i-1], hashes[i]))
	}

	return calibrateFromDiffs(diffs)
}

// calibrateFromDiffs derives the threshold from sampled frame differences.
func calibrateFromDiffs(diffs []float64) calibration {
	if len(diffs) == 0 {
		return calibration{Threshold: defaultSceneThreshold, Strategy: "none"}
	}

	median := percentile(diffs, 0.50)
	p75 := percentile(diffs, 0.75)
	p90 := percentile(diffs, 0.90)

	threshold := math.Max(median*0.15, math.Max(p75*0.20, p90*0.25))

	switch {
	case p75 >= 0.12:
		// Very active content: raise the bar so motion noise does not read
		// as scene changes.
		threshold = math.Max(threshold, p75*0.50)
	case p90 < 0.05:
		// Very static content: even small differences are real transitions.
		threshold = minSceneThreshold
	}

	threshold = clampFloat(threshold, minSceneThreshold, maxSceneThreshold)
	confidence := clampFloat(p75/0.25, 0, 1)

	return calibration{Threshold: threshold, Confidence: confidence, Strategy: "hash"}
}

// percentile returns the p-quantile (0..1) of values using nearest-rank on
// a sorted copy.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
