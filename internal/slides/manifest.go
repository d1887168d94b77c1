package slides

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/summarize/internal/models"
)

const manifestFileName = "slides.json"

// slidesDirID is a stable fingerprint of the slides directory path, used to
// reject manifests that were produced for a relocated directory.
func slidesDirID(dir string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(dir)))
	return hex.EncodeToString(sum[:8])
}

// writeManifest persists the extraction result atomically next to the slide
// images.
func writeManifest(dir string, result *models.SlideExtractionResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	path := filepath.Join(dir, manifestFileName)
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// readManifest loads a previously written slides.json, if any.
func readManifest(dir string) (*models.SlideExtractionResult, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return nil, err
	}
	var result models.SlideExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &result, nil
}

// validateManifest decides whether a cached manifest can be served instead of
// re-extracting. All of the following must hold: the source identity matches,
// the directory has not moved, the extraction settings match, and every slide
// image resolves inside the slides directory and exists on disk.
func validateManifest(result *models.SlideExtractionResult, req Request, slidesDir string) error {
	if result.SourceID != req.SourceID {
		return fmt.Errorf("sourceId mismatch: %q != %q", result.SourceID, req.SourceID)
	}
	if result.SourceKind != req.SourceKind {
		return fmt.Errorf("sourceKind mismatch: %q != %q", result.SourceKind, req.SourceKind)
	}
	if result.SourceURL != req.URL {
		return fmt.Errorf("sourceUrl mismatch")
	}
	if filepath.Clean(result.SlidesDir) != filepath.Clean(slidesDir) {
		return fmt.Errorf("slidesDir moved: %q != %q", result.SlidesDir, slidesDir)
	}
	if result.SlidesDirID != slidesDirID(slidesDir) {
		return fmt.Errorf("slidesDirId mismatch")
	}
	if result.SceneThreshold != req.SceneThreshold && !(req.SceneThreshold == 0 && result.AutoTune.Enabled) {
		return fmt.Errorf("sceneThreshold mismatch: %v != %v", result.SceneThreshold, req.SceneThreshold)
	}
	if result.MaxSlides != req.MaxSlides {
		return fmt.Errorf("maxSlides mismatch: %d != %d", result.MaxSlides, req.MaxSlides)
	}
	if result.MinSlideDuration != req.MinSlideDuration {
		return fmt.Errorf("minSlideDuration mismatch: %v != %v", result.MinSlideDuration, req.MinSlideDuration)
	}
	if req.OCR && !result.OcrRequested {
		return fmt.Errorf("cached manifest has no OCR")
	}

	for _, slide := range result.Slides {
		path, err := resolveInsideDir(slidesDir, slide.ImagePath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("slide image missing: %s", slide.ImagePath)
		}
	}
	return nil
}

// resolveInsideDir resolves an image path against the slides directory and
// rejects anything that escapes it.
func resolveInsideDir(dir, imagePath string) (string, error) {
	path := imagePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	path = filepath.Clean(path)

	cleanDir := filepath.Clean(dir)
	if path != cleanDir && !strings.HasPrefix(path, cleanDir+string(filepath.Separator)) {
		return "", fmt.Errorf("image path escapes slides directory: %s", imagePath)
	}
	return path, nil
}
