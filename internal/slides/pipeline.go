package slides

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmylchreest/summarize/internal/ffmpeg"
	"github.com/jmylchreest/summarize/internal/httpclient"
	"github.com/jmylchreest/summarize/internal/mediacache"
	"github.com/jmylchreest/summarize/internal/models"
)

// Worker-count bounds for the parallel stages.
const (
	DefaultWorkers = 8
	minWorkers     = 1
	maxWorkers     = 16
)

// DefaultSamples is the calibration sample count when the caller does not
// override it.
const DefaultSamples = 8

// Default slide selection limits.
const (
	DefaultMaxSlides        = 40
	DefaultMinSlideDuration = 10.0
)

// Request describes one slide-extraction job.
type Request struct {
	URL        string
	SourceKind models.SourceKind
	SourceID   string

	// SceneThreshold of 0 enables auto-tuning.
	SceneThreshold   float64
	MaxSlides        int
	MinSlideDuration float64
	OCR              bool

	Workers int
	Samples int

	// YtdlpFormat overrides the download format selector.
	YtdlpFormat string
	// PreferStream extracts directly from the stream URL and falls back to
	// a download on failure.
	PreferStream bool

	Progress ProgressFunc
	OnQueued func()
}

// Options configure a Pipeline.
type Options struct {
	Binaries   ffmpeg.Binaries
	OutputDir  string
	HTTPClient *httpclient.Client
	MediaCache *mediacache.Cache
	Logger     *slog.Logger
	// CommandTimeout bounds each subprocess invocation.
	CommandTimeout time.Duration
}

// Pipeline extracts per-scene slide images from videos. One Pipeline serves
// all jobs; per-slidesDir locking serializes concurrent extraction of the
// same source.
type Pipeline struct {
	binaries  ffmpeg.Binaries
	runner    *ffmpeg.Runner
	prober    *ffmpeg.Prober
	httpc     *httpclient.Client
	media     *mediacache.Cache
	outputDir string
	logger    *slog.Logger
	locks     *dirLocks
}

// New builds a Pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "slides")

	runner := ffmpeg.NewRunner(logger, opts.CommandTimeout)
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = httpclient.New(httpclient.Config{Logger: logger})
	}

	return &Pipeline{
		binaries:  opts.Binaries,
		runner:    runner,
		prober:    ffmpeg.NewProber(opts.Binaries.FFprobe, runner),
		httpc:     httpc,
		media:     opts.MediaCache,
		outputDir: opts.OutputDir,
		logger:    logger,
		locks:     newDirLocks(),
	}
}

// SlidesDir returns the output directory for a source.
func (p *Pipeline) SlidesDir(sourceID string) string {
	return filepath.Join(p.outputDir, sourceID)
}

// ResolveImagePath resolves a manifest image path against a slides directory,
// rejecting paths that escape it.
func ResolveImagePath(slidesDir, imagePath string) (string, error) {
	return resolveInsideDir(slidesDir, imagePath)
}

// Extract runs the full pipeline for one source and returns the manifest.
// A valid cached manifest short-circuits the run. Concurrent extraction for
// the same source serializes on a per-directory lock; queued callers are
// notified through Request.OnQueued.
func (p *Pipeline) Extract(ctx context.Context, req Request) (*models.SlideExtractionResult, error) {
	req = withDefaults(req)
	slidesDir := p.SlidesDir(req.SourceID)
	tracker := newProgressTracker(req.Progress)

	release := p.locks.Acquire(slidesDir, req.OnQueued)
	defer release()

	// Another job may have produced a usable manifest while we waited.
	if cached, err := readManifest(slidesDir); err == nil {
		if vErr := validateManifest(cached, req, slidesDir); vErr == nil {
			p.logger.Debug("serving cached slides", "sourceId", req.SourceID)
			tracker.phase(phaseDone, "cached")
			return cached, nil
		} else {
			p.logger.Debug("cached slides rejected", "sourceId", req.SourceID, "reason", vErr)
		}
	}

	result, err := p.extract(ctx, req, slidesDir, tracker)
	if err != nil {
		return nil, models.NewKindError(models.ErrKindSlides, err)
	}
	tracker.phase(phaseDone, "done")
	return result, nil
}

func withDefaults(req Request) Request {
	if req.Workers == 0 {
		req.Workers = DefaultWorkers
	}
	req.Workers = clampInt(req.Workers, minWorkers, maxWorkers)
	if req.Samples == 0 {
		req.Samples = DefaultSamples
	}
	if req.MaxSlides == 0 {
		req.MaxSlides = DefaultMaxSlides
	}
	if req.MinSlideDuration == 0 {
		req.MinSlideDuration = DefaultMinSlideDuration
	}
	if req.YtdlpFormat == "" {
		req.YtdlpFormat = defaultYtdlpFormat
	}
	return req
}

func (p *Pipeline) extract(ctx context.Context, req Request, slidesDir string, tracker *progressTracker) (*models.SlideExtractionResult, error) {
	var warnings []string

	// Writers truncate before producing.
	if err := os.RemoveAll(slidesDir); err != nil {
		return nil, fmt.Errorf("clearing slides dir: %w", err)
	}
	if err := os.MkdirAll(slidesDir, 0o755); err != nil {
		return nil, fmt.Errorf("preparing slides dir: %w", err)
	}
	tempDir, err := os.MkdirTemp("", "summarize-calib-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)
	tracker.phase(phasePrepare, "prepare")

	source, err := p.acquireSource(ctx, req, tracker)
	if err != nil {
		return nil, err
	}
	defer source.cleanup()

	info, err := p.prober.Probe(ctx, source.Input)
	if err != nil {
		return nil, fmt.Errorf("probing source: %w", err)
	}
	if !info.HasVideo {
		return nil, fmt.Errorf("source has no video stream")
	}
	duration := info.Duration
	tracker.phase(phaseDownload, "probe")

	threshold := req.SceneThreshold
	autoTune := models.AutoTune{Strategy: "none"}
	if threshold <= 0 {
		cal := p.calibrate(ctx, source.Input, duration, req.Samples, tempDir)
		threshold = cal.Threshold
		autoTune = models.AutoTune{
			Enabled:         true,
			ChosenThreshold: cal.Threshold,
			Confidence:      cal.Confidence,
			Strategy:        cal.Strategy,
		}
		if cal.Strategy == "none" {
			warnings = append(warnings, "threshold calibration fell back to the default")
		}
	}

	detected, err := p.detectScenes(ctx, source.Input, duration, threshold, req.Workers,
		func(done, total int) {
			tracker.within(phaseDownload, phaseDetect, float64(done)/float64(total), "detect")
		})
	if err != nil {
		return nil, fmt.Errorf("scene detection: %w", err)
	}
	tracker.phase(phaseDetect, "detect")

	detected = dedupeTimestamps(detected, maxFloat(0.1, req.MinSlideDuration/2))
	grid := uniformGrid(duration, req.MaxSlides)
	timestamps := selectTimestamps(mergeWithGrid(detected, grid, duration), req.MinSlideDuration, req.MaxSlides)
	if len(timestamps) == 0 {
		return nil, fmt.Errorf("no slide timestamps selected")
	}

	frames, err := p.extractFrames(ctx, source.Input, timestamps, slidesDir, req.Workers,
		func(done, total int) {
			tracker.within(phaseDetect, phaseExtract, float64(done)/float64(total), "extract")
		})
	if err != nil && source.Streamed {
		// Stream reads can fail mid-extraction; download once and retry.
		p.logger.Warn("stream extraction failed, falling back to download", "error", err)
		warnings = append(warnings, "stream extraction failed; retried from download")

		downloaded, dlErr := p.downloadVideo(ctx, req.URL, req.YtdlpFormat, nil)
		if dlErr != nil {
			return nil, fmt.Errorf("download fallback: %w", dlErr)
		}
		source.cleanup()
		*source = *downloaded

		frames, err = p.extractFrames(ctx, source.Input, timestamps, slidesDir, req.Workers,
			func(done, total int) {
				tracker.within(phaseDetect, phaseExtract, float64(done)/float64(total), "extract")
			})
	}
	if err != nil {
		return nil, fmt.Errorf("frame extraction: %w", err)
	}
	tracker.phase(phaseExtract, "extract")

	replaced, err := p.refineFrames(ctx, source.Input, frames, duration, req.Workers)
	if err != nil {
		return nil, fmt.Errorf("frame refinement: %w", err)
	}
	tracker.phase(phaseRefine, "refine")

	slides, err := renameSlides(slidesDir, frames, replaced)
	if err != nil {
		return nil, err
	}

	ocrAvailable := p.binaries.HasTesseract()
	if req.OCR && !ocrAvailable {
		warnings = append(warnings, "OCR requested but tesseract is not installed")
	}
	if req.OCR && ocrAvailable {
		paths := make([]string, len(slides))
		for i, s := range slides {
			paths[i] = filepath.Join(slidesDir, s.ImagePath)
		}
		results, ocrErr := p.runOCR(ctx, paths, req.Workers, func(done, total int) {
			tracker.within(phaseRefine, phaseOCR, float64(done)/float64(total), "ocr")
		})
		if ocrErr != nil {
			return nil, fmt.Errorf("ocr: %w", ocrErr)
		}
		for i := range slides {
			slides[i].OcrText = results[i].Text
			slides[i].OcrConfidence = results[i].Confidence
		}
	}
	tracker.phase(phaseOCR, "finalize")

	result := &models.SlideExtractionResult{
		SourceURL:        req.URL,
		SourceKind:       req.SourceKind,
		SourceID:         req.SourceID,
		SlidesDir:        slidesDir,
		SlidesDirID:      slidesDirID(slidesDir),
		SceneThreshold:   threshold,
		AutoTune:         autoTune,
		MaxSlides:        req.MaxSlides,
		MinSlideDuration: req.MinSlideDuration,
		OcrRequested:     req.OCR,
		OcrAvailable:     ocrAvailable,
		Slides:           slides,
		Warnings:         warnings,
	}
	if err := writeManifest(slidesDir, result); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	return result, nil
}

// acquireSource resolves the job input into something ffmpeg can read.
func (p *Pipeline) acquireSource(ctx context.Context, req Request, tracker *progressTracker) (*videoSource, error) {
	switch req.SourceKind {
	case models.SourceYouTube:
		if req.PreferStream {
			if streamURL, err := p.resolveStreamURL(ctx, req.URL, req.YtdlpFormat); err == nil {
				tracker.phase(phaseFetch, "fetch")
				return &videoSource{Input: streamURL, Streamed: true}, nil
			} else {
				p.logger.Debug("stream URL resolution failed, downloading", "error", err)
			}
		}
		tracker.phase(phaseFetch, "fetch")
		return p.downloadVideo(ctx, req.URL, req.YtdlpFormat, func(fraction float64) {
			tracker.within(phaseFetch, phaseDownload, fraction, "download")
		})
	case models.SourceDirect:
		tracker.phase(phaseFetch, "fetch")
		src, err := p.acquireDirectMedia(ctx, req.URL)
		if err != nil {
			return nil, fmt.Errorf("fetching media: %w", err)
		}
		return src, nil
	default:
		// A bare path is a local file.
		if _, err := os.Stat(req.URL); err != nil {
			return nil, fmt.Errorf("unsupported slide source: %s", req.URL)
		}
		tracker.phase(phaseFetch, "fetch")
		return &videoSource{Input: req.URL}, nil
	}
}

// renameSlides gives the final frames their stable names,
// slide_NNNN_<timestamp>s.png, re-indexed from 1 in timestamp order.
func renameSlides(dir string, frames []extractedFrame, replaced []bool) ([]models.Slide, error) {
	slides := make([]models.Slide, 0, len(frames))
	for i, frame := range frames {
		name := fmt.Sprintf("slide_%04d_%ss.png", i+1, formatSeconds(frame.Timestamp))
		dest := filepath.Join(dir, name)
		if err := os.Rename(frame.Path, dest); err != nil {
			return nil, fmt.Errorf("renaming slide %d: %w", i+1, err)
		}

		slide := models.Slide{
			Index:     i + 1,
			Timestamp: frame.Timestamp,
			ImagePath: name,
		}
		if replaced[i] {
			slide.ImageVersion = 2
		}
		slides = append(slides, slide)
	}
	return slides, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
