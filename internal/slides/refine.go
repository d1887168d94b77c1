package slides

import (
	"context"
	"math"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Dim-frame thresholds. The first slide of a video often lands on a fade-in,
// so an early first slide gets stricter bounds.
const (
	dimBrightness = 0.24
	dimContrast   = 0.16

	firstSlideWindow     = 8.0
	firstSlideBrightness = 0.58
	firstSlideContrast   = 0.20
)

// Candidate probe offsets, tried in order on both sides of the original
// timestamp.
var refineOffsets = []float64{2, 4, 6, 8, 10}

// Minimum score improvements to accept a replacement.
const (
	refineMinGain           = 0.03
	refineMinGainFirstSlide = 0.015
)

// frameScore weights brightness over contrast and penalizes distance from
// the original timestamp.
func frameScore(stats frameStats, offsetSeconds float64) float64 {
	return 0.55*stats.Brightness + 0.45*stats.Contrast - 0.05*math.Abs(offsetSeconds)/10
}

// isDim reports whether a frame needs refinement.
func isDim(f extractedFrame, isFirst bool) bool {
	if isFirst && f.Timestamp < firstSlideWindow {
		return f.Stats.Brightness < firstSlideBrightness || f.Stats.Contrast < firstSlideContrast
	}
	return f.Stats.Brightness < dimBrightness || f.Stats.Contrast < dimContrast
}

// refineFrames replaces dim frames with brighter nearby candidates. Each
// dim frame probes ±2,4,6,8,10 s and keeps the best candidate when its score
// improves on the original by the minimum gain. Returns how many frames were
// replaced; replaced frames get a bumped image version.
func (p *Pipeline) refineFrames(ctx context.Context, source string, frames []extractedFrame, duration float64, workers int) (replaced []bool, err error) {
	replaced = make([]bool, len(frames))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range frames {
		isFirst := i == 0
		if !isDim(frames[i], isFirst) {
			continue
		}
		g.Go(func() error {
			didReplace, rErr := p.refineOne(gctx, source, &frames[i], isFirst, duration)
			if rErr != nil {
				// Refinement is best-effort; the original frame stands.
				p.logger.Debug("refinement failed", "ts", frames[i].Timestamp, "error", rErr)
				return nil
			}
			if didReplace {
				mu.Lock()
				replaced[i] = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return replaced, nil
}

func (p *Pipeline) refineOne(ctx context.Context, source string, frame *extractedFrame, isFirst bool, duration float64) (bool, error) {
	minGain := refineMinGain
	if isFirst && frame.Timestamp < firstSlideWindow {
		minGain = refineMinGainFirstSlide
	}

	baseScore := frameScore(frame.Stats, 0)
	bestScore := baseScore
	var bestStats frameStats
	bestTs := -1.0

	candPath := frame.Path + ".cand"
	defer os.Remove(candPath)

	for _, off := range refineOffsets {
		for _, sign := range []float64{1, -1} {
			ts := frame.Timestamp + sign*off
			if ts < 0 || ts >= duration {
				continue
			}
			if err := p.extractFrameAt(ctx, source, ts, candPath); err != nil {
				continue
			}
			stats, err := measureFrameFile(candPath)
			if err != nil {
				continue
			}
			if score := frameScore(stats, sign*off); score > bestScore {
				bestScore = score
				bestStats = stats
				bestTs = ts
			}
		}
	}

	if bestTs < 0 || bestScore-baseScore < minGain {
		return false, nil
	}

	// Re-extract the winning candidate into place. The slide keeps its
	// original timestamp identity; only the image content changes.
	if err := p.extractFrameAt(ctx, source, bestTs, frame.Path); err != nil {
		return false, err
	}
	frame.Stats = bestStats
	return true, nil
}
