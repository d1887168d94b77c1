package slides

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/errgroup"
)

// ocrResult is the cleaned text and confidence for one slide image.
type ocrResult struct {
	Text       string
	Confidence float64
}

// runOCR recognizes text on every slide image in parallel. Per-slide
// failures clear that slide's text rather than failing the stage.
func (p *Pipeline) runOCR(ctx context.Context, imagePaths []string, workers int, progress func(done, total int)) ([]ocrResult, error) {
	results := make([]ocrResult, len(imagePaths))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range imagePaths {
		g.Go(func() error {
			res, err := p.ocrOne(gctx, path)
			if err != nil {
				p.logger.Debug("ocr failed", "image", path, "error", err)
			} else {
				results[i] = res
			}
			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(imagePaths))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) ocrOne(ctx context.Context, imagePath string) (ocrResult, error) {
	outBase := imagePath + ".ocr"
	defer os.Remove(outBase + ".txt")

	// tesseract writes <outBase>.txt
	_, err := p.runner.Run(ctx, p.binaries.Tesseract, imagePath, outBase)
	if err != nil {
		return ocrResult{}, err
	}

	raw, err := os.ReadFile(filepath.Clean(outBase + ".txt"))
	if err != nil {
		return ocrResult{}, err
	}

	text := cleanOCRText(string(raw))
	return ocrResult{Text: text, Confidence: ocrConfidence(text)}, nil
}

// cleanOCRText drops recognition noise: lines shorter than 2 characters,
// space-less runs longer than 20 characters, and lines with no alphanumeric
// content.
func cleanOCRText(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 2 {
			continue
		}
		if len(line) > 20 && !strings.Contains(line, " ") {
			continue
		}
		if !containsAlnum(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// ocrConfidence approximates recognition quality as the alphanumeric ratio
// of the cleaned text, clamped to [0,1].
func ocrConfidence(text string) float64 {
	if text == "" {
		return 0
	}
	alnum := 0
	total := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total == 0 {
		return 0
	}
	return clampFloat(float64(alnum)/float64(total), 0, 1)
}

func containsAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
