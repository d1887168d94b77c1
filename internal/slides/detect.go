package slides

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// minSegmentSeconds is the floor for one detection chunk; segmentation never
// produces chunks shorter than this.
const minSegmentSeconds = 60

// segment is one detection chunk.
type segment struct {
	Start  float64
	Length float64
}

// splitSegments divides the duration into at most workers chunks, none
// shorter than a minute.
func splitSegments(duration float64, workers int) []segment {
	if duration <= 0 {
		return nil
	}
	n := workers
	if maxByLength := int(duration / minSegmentSeconds); maxByLength < n {
		n = maxByLength
	}
	if n < 1 {
		n = 1
	}

	length := duration / float64(n)
	segs := make([]segment, 0, n)
	for i := 0; i < n; i++ {
		segs = append(segs, segment{Start: float64(i) * length, Length: length})
	}
	return segs
}

var ptsTimePattern = regexp.MustCompile(`pts_time:([0-9]+(?:\.[0-9]+)?)`)

// parseShowinfoTimestamps extracts frame timestamps from ffmpeg showinfo
// output.
func parseShowinfoTimestamps(output string) []float64 {
	matches := ptsTimePattern.FindAllStringSubmatch(output, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		if ts, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, ts)
		}
	}
	return out
}

// detectScenes runs scene detection in parallel across segments. A result of
// zero detections triggers one retry with the threshold halved.
func (p *Pipeline) detectScenes(ctx context.Context, source string, duration, threshold float64, workers int, progress func(done, total int)) ([]float64, error) {
	timestamps, err := p.detectScenesOnce(ctx, source, duration, threshold, workers, progress)
	if err != nil {
		return nil, err
	}
	if retry, ok := retryThreshold(threshold, len(timestamps)); ok {
		p.logger.Debug("no scenes detected, retrying with halved threshold",
			"threshold", threshold, "retry", retry)
		return p.detectScenesOnce(ctx, source, duration, retry, workers, progress)
	}
	return timestamps, nil
}

// retryThreshold decides whether a zero-detection pass gets a second attempt
// and at what threshold: halved, but never below the calibration floor.
func retryThreshold(threshold float64, detections int) (float64, bool) {
	if detections > 0 {
		return 0, false
	}
	return math.Max(threshold/2, minSceneThreshold), true
}

func (p *Pipeline) detectScenesOnce(ctx context.Context, source string, duration, threshold float64, workers int, progress func(done, total int)) ([]float64, error) {
	segs := splitSegments(duration, workers)
	if len(segs) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var all []float64
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, seg := range segs {
		g.Go(func() error {
			timestamps, err := p.detectSegment(gctx, source, seg, threshold)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, timestamps...)
			done++
			if progress != nil {
				progress(done, len(segs))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Float64s(all)
	return all, nil
}

// detectSegment runs ffmpeg scene detection over one chunk, returning
// absolute timestamps.
func (p *Pipeline) detectSegment(ctx context.Context, source string, seg segment, threshold float64) ([]float64, error) {
	// showinfo logs to stderr, so capture both streams.
	out, err := p.runner.RunCombined(ctx, p.binaries.FFmpeg,
		"-hide_banner",
		"-v", "info",
		"-ss", formatSeconds(seg.Start),
		"-t", formatSeconds(seg.Length),
		"-i", source,
		"-vf", "select='gt(scene,"+strconv.FormatFloat(threshold, 'f', 4, 64)+")',showinfo",
		"-fps_mode", "vfr",
		"-f", "null", "-",
	)
	if err != nil {
		return nil, err
	}

	rel := parseShowinfoTimestamps(string(out))
	abs := make([]float64, 0, len(rel))
	for _, ts := range rel {
		abs = append(abs, seg.Start+ts)
	}
	return abs, nil
}

// dedupeTimestamps sorts and removes picks closer together than the minimum
// gap.
func dedupeTimestamps(timestamps []float64, minGap float64) []float64 {
	if len(timestamps) == 0 {
		return nil
	}
	sorted := make([]float64, len(timestamps))
	copy(sorted, timestamps)
	sort.Float64s(sorted)

	out := sorted[:1]
	for _, ts := range sorted[1:] {
		if ts-out[len(out)-1] >= minGap {
			out = append(out, ts)
		}
	}
	return out
}

// uniformGrid produces the interval-fallback timestamps:
// min(maxSlides, max(3, round(duration/120))) points spread evenly.
func uniformGrid(duration float64, maxSlides int) []float64 {
	if duration <= 0 {
		return nil
	}
	n := int(math.Round(duration / 120))
	if n < 3 {
		n = 3
	}
	if maxSlides > 0 && n > maxSlides {
		n = maxSlides
	}

	interval := duration / float64(n+1)
	out := make([]float64, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, interval*float64(i))
	}
	return out
}

// mergeWithGrid combines detected scene timestamps with the uniform grid.
// When detections exist, each grid point snaps to the nearest detection
// within ±clamp(2, 10, interval·0.35) seconds; unsnapped grid points are
// kept as-is.
func mergeWithGrid(detected, grid []float64, duration float64) []float64 {
	if len(grid) == 0 {
		return detected
	}

	interval := duration / float64(len(grid)+1)
	snapWindow := clampFloat(interval*0.35, 2, 10)

	merged := make([]float64, 0, len(detected)+len(grid))
	merged = append(merged, detected...)

	for _, g := range grid {
		if len(detected) > 0 {
			nearest, dist := nearestTimestamp(detected, g)
			if dist <= snapWindow {
				merged = append(merged, nearest)
				continue
			}
		}
		merged = append(merged, g)
	}

	sort.Float64s(merged)
	return merged
}

func nearestTimestamp(sorted []float64, target float64) (float64, float64) {
	idx := sort.SearchFloat64s(sorted, target)
	best := math.Inf(1)
	var nearest float64
	for _, i := range []int{idx - 1, idx} {
		if i >= 0 && i < len(sorted) {
			if d := math.Abs(sorted[i] - target); d < best {
				best = d
				nearest = sorted[i]
			}
		}
	}
	return nearest, best
}

// selectTimestamps applies spacing and the slide cap: enforce minDuration
// between picks, keep the earliest maxSlides.
func selectTimestamps(timestamps []float64, minDuration float64, maxSlides int) []float64 {
	gap := math.Max(0.1, minDuration)
	spaced := dedupeTimestamps(timestamps, gap)
	if maxSlides > 0 && len(spaced) > maxSlides {
		spaced = spaced[:maxSlides]
	}
	return spaced
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
