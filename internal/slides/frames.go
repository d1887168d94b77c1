package slides

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// extractFrameAt grabs a single frame from the source at the given
// timestamp.
func (p *Pipeline) extractFrameAt(ctx context.Context, source string, ts float64, outPath string) error {
	_, err := p.runner.Run(ctx, p.binaries.FFmpeg,
		"-hide_banner",
		"-v", "error",
		"-ss", formatSeconds(ts),
		"-i", source,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		outPath,
	)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(outPath); statErr != nil || info.Size() == 0 {
		return fmt.Errorf("no frame produced at %.3fs", ts)
	}
	return nil
}

// frameStats are the normalized luminance statistics used by refinement.
type frameStats struct {
	Brightness float64 // mean luminance, 0..1
	Contrast   float64 // p90−p10 luminance spread, 0..1
}

// measureFrame computes stats from a decoded frame.
func measureFrame(img image.Image) frameStats {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return frameStats{}
	}

	// Luminance histogram over 8-bit values.
	var hist [256]int
	var sum int64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma, 16-bit channels down to 8 bits.
			luma := (299*int64(r) + 587*int64(g) + 114*int64(b)) / 1000 >> 8
			if luma > 255 {
				luma = 255
			}
			hist[luma]++
			sum += luma
		}
	}

	brightness := float64(sum) / float64(total) / 255

	p10 := histPercentile(hist[:], total, 0.10)
	p90 := histPercentile(hist[:], total, 0.90)
	contrast := float64(p90-p10) / 255

	return frameStats{Brightness: brightness, Contrast: contrast}
}

func histPercentile(hist []int, total int, p float64) int {
	target := int(p * float64(total))
	cum := 0
	for v, count := range hist {
		cum += count
		if cum >= target {
			return v
		}
	}
	return len(hist) - 1
}

func measureFrameFile(path string) (frameStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return frameStats{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return frameStats{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return measureFrame(img), nil
}

// extractedFrame couples a timestamp with its on-disk frame and stats.
type extractedFrame struct {
	Timestamp float64
	Path      string
	Stats     frameStats
}

// extractFrames grabs one frame per timestamp in parallel. Results come back
// sorted by timestamp regardless of worker completion order. A frame failure
// fails the whole stage so the pipeline can retry against a downloaded
// source.
func (p *Pipeline) extractFrames(ctx context.Context, source string, timestamps []float64, dir string, workers int, progress func(done, total int)) ([]extractedFrame, error) {
	frames := make([]extractedFrame, len(timestamps))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ts := range timestamps {
		g.Go(func() error {
			framePath := filepath.Join(dir, fmt.Sprintf("slide_%04d.png", i+1))
			if err := p.extractFrameAt(gctx, source, ts, framePath); err != nil {
				return fmt.Errorf("frame at %.3fs: %w", ts, err)
			}
			stats, err := measureFrameFile(framePath)
			if err != nil {
				return err
			}
			frames[i] = extractedFrame{Timestamp: ts, Path: framePath, Stats: stats}
			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(timestamps))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].Timestamp < frames[j].Timestamp })
	return frames, nil
}
