package slides

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/summarize/internal/models"
)

func TestCalibrateFromDiffsStaticContent(t *testing.T) {
	// All diffs tiny: the threshold should hit the floor.
	cal := calibrateFromDiffs([]float64{0.01, 0.02, 0.01, 0.03, 0.02})
	assert.Equal(t, "hash", cal.Strategy)
	assert.Equal(t, minSceneThreshold, cal.Threshold)
	assert.Less(t, cal.Confidence, 0.2)
}

func TestCalibrateFromDiffsActiveContent(t *testing.T) {
	// High p75 raises the threshold to half of it.
	cal := calibrateFromDiffs([]float64{0.30, 0.35, 0.40, 0.45, 0.50})
	assert.Equal(t, "hash", cal.Strategy)
	assert.GreaterOrEqual(t, cal.Threshold, 0.45*0.50-1e-9)
	assert.LessOrEqual(t, cal.Threshold, maxSceneThreshold)
	assert.Equal(t, 1.0, cal.Confidence)
}

func TestCalibrateFromDiffsEmpty(t *testing.T) {
	cal := calibrateFromDiffs(nil)
	assert.Equal(t, "none", cal.Strategy)
	assert.Equal(t, defaultSceneThreshold, cal.Threshold)
}

func TestCalibrateThresholdAlwaysClamped(t *testing.T) {
	for _, diffs := range [][]float64{
		{0.9, 0.9, 0.9},
		{0.0001, 0.0001},
		{0.12, 0.08, 0.2, 0.05},
	} {
		cal := calibrateFromDiffs(diffs)
		assert.GreaterOrEqual(t, cal.Threshold, minSceneThreshold)
		assert.LessOrEqual(t, cal.Threshold, maxSceneThreshold)
	}
}

func TestSplitSegments(t *testing.T) {
	segs := splitSegments(600, 8)
	require.Len(t, segs, 8)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.InDelta(t, 75.0, segs[0].Length, 1e-9)

	// Short videos never produce sub-minute chunks.
	segs = splitSegments(90, 8)
	require.Len(t, segs, 1)
	assert.Equal(t, 90.0, segs[0].Length)

	assert.Nil(t, splitSegments(0, 8))
}

func TestParseShowinfoTimestamps(t *testing.T) {
	out := `[Parsed_showinfo_1 @ 0x1] n:   0 pts:  12345 pts_time:12.345 duration_time:0.04
[Parsed_showinfo_1 @ 0x1] n:   1 pts:  67890 pts_time:67.89 fmt:yuv420p`
	ts := parseShowinfoTimestamps(out)
	require.Len(t, ts, 2)
	assert.InDelta(t, 12.345, ts[0], 1e-9)
	assert.InDelta(t, 67.89, ts[1], 1e-9)
}

func TestRetryThreshold(t *testing.T) {
	// Detections present: no retry.
	_, ok := retryThreshold(0.2, 3)
	assert.False(t, ok)

	// Zero detections: halved.
	retry, ok := retryThreshold(0.2, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.1, retry, 1e-9)

	// Already at the calibration floor: a static video still gets its
	// second pass, at the floor.
	retry, ok = retryThreshold(minSceneThreshold, 0)
	require.True(t, ok)
	assert.InDelta(t, minSceneThreshold, retry, 1e-9)

	// Halving never drops below the floor.
	retry, ok = retryThreshold(0.08, 0)
	require.True(t, ok)
	assert.InDelta(t, minSceneThreshold, retry, 1e-9)
}

func TestDedupeTimestamps(t *testing.T) {
	out := dedupeTimestamps([]float64{10, 10.5, 30, 30.2, 60}, 5)
	assert.Equal(t, []float64{10, 30, 60}, out)
	assert.Nil(t, dedupeTimestamps(nil, 5))
}

func TestUniformGrid(t *testing.T) {
	// 10 minutes: round(600/120)=5 points.
	grid := uniformGrid(600, 40)
	require.Len(t, grid, 5)
	assert.InDelta(t, 100.0, grid[0], 1e-9)
	assert.InDelta(t, 500.0, grid[4], 1e-9)

	// Short video floors at 3 points.
	assert.Len(t, uniformGrid(60, 40), 3)

	// maxSlides caps the grid.
	assert.Len(t, uniformGrid(3600, 4), 4)
}

func TestMergeWithGridSnapsToDetections(t *testing.T) {
	detected := []float64{98, 205}
	grid := []float64{100, 200, 300}

	merged := mergeWithGrid(detected, grid, 600)

	// 98 and 205 absorb the nearby grid points; 300 survives as-is.
	assert.Contains(t, merged, 98.0)
	assert.Contains(t, merged, 205.0)
	assert.Contains(t, merged, 300.0)
	assert.NotContains(t, merged, 100.0)
	assert.NotContains(t, merged, 200.0)
}

func TestMergeWithGridNoDetections(t *testing.T) {
	grid := []float64{100, 200, 300}
	merged := mergeWithGrid(nil, grid, 600)
	assert.Equal(t, grid, merged)
}

func TestSelectTimestampsSpacingAndCap(t *testing.T) {
	in := []float64{10, 12, 30, 31, 50, 70, 90}
	out := selectTimestamps(in, 15, 3)
	assert.Equal(t, []float64{10, 30, 50}, out)

	// Spacing between every consecutive pair honors the minimum.
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i]-out[i-1], 15.0)
	}
}

func TestFrameScorePenalizesDistance(t *testing.T) {
	stats := frameStats{Brightness: 0.5, Contrast: 0.5}
	near := frameScore(stats, 2)
	far := frameScore(stats, 10)
	assert.Greater(t, near, far)
}

func TestIsDim(t *testing.T) {
	assert.True(t, isDim(extractedFrame{Timestamp: 100, Stats: frameStats{Brightness: 0.2, Contrast: 0.5}}, false))
	assert.False(t, isDim(extractedFrame{Timestamp: 100, Stats: frameStats{Brightness: 0.5, Contrast: 0.5}}, false))

	// First slide inside the fade-in window uses stricter bounds.
	early := extractedFrame{Timestamp: 3, Stats: frameStats{Brightness: 0.5, Contrast: 0.5}}
	assert.True(t, isDim(early, true))
	assert.False(t, isDim(early, false))
}

func TestMeasureFrame(t *testing.T) {
	// Half black, half white: brightness ~0.5, contrast ~1.
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if x < 5 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	stats := measureFrame(img)
	assert.InDelta(t, 0.5, stats.Brightness, 0.02)
	assert.InDelta(t, 1.0, stats.Contrast, 0.02)

	// Uniform gray: zero contrast.
	flat := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			flat.SetGray(x, y, color.Gray{Y: 128})
		}
	}
	stats = measureFrame(flat)
	assert.InDelta(t, 0.5, stats.Brightness, 0.02)
	assert.InDelta(t, 0.0, stats.Contrast, 0.02)
}

func TestAverageHashDistance(t *testing.T) {
	black := image.NewGray(image.Rect(0, 0, 64, 64))
	split := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 32; x < 64; x++ {
			split.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	same := hammingRatio(averageHash(black), averageHash(black))
	diff := hammingRatio(averageHash(black), averageHash(split))
	assert.Equal(t, 0.0, same)
	assert.Greater(t, diff, 0.1)
}

func TestCleanOCRText(t *testing.T) {
	raw := "Real Title Slide\nx\naaaaaaaaaaaaaaaaaaaaaaaaa\n----\nSecond line here\n"
	cleaned := cleanOCRText(raw)
	assert.Equal(t, "Real Title Slide\nSecond line here", cleaned)
}

func TestOcrConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ocrConfidence(""))
	assert.Equal(t, 1.0, ocrConfidence("abc123"))
	assert.InDelta(t, 0.5, ocrConfidence("ab!?"), 1e-9)
}

func TestProgressTrackerMonotone(t *testing.T) {
	var reported []int
	tracker := newProgressTracker(func(pct int, stage string) {
		reported = append(reported, pct)
	})

	tracker.phase(phasePrepare, "prepare")
	tracker.within(phaseFetch, phaseDownload, 0.5, "download")
	// A late low report never moves the percentage backwards.
	tracker.within(0, phaseFetch, 0.1, "fetch")
	tracker.phase(phaseDone, "done")

	for i := 1; i < len(reported); i++ {
		assert.GreaterOrEqual(t, reported[i], reported[i-1])
	}
	assert.Equal(t, phaseDone, reported[len(reported)-1])
}

func TestDirLocksQueueNotification(t *testing.T) {
	locks := newDirLocks()

	release := locks.Acquire("/tmp/slides/a", func() {
		t.Fatal("first acquire must not be queued")
	})

	queued := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		r := locks.Acquire("/tmp/slides/a", func() { close(queued) })
		close(acquired)
		r()
	}()

	<-queued
	release()
	<-acquired

	// Different directories never contend.
	var wg sync.WaitGroup
	for _, dir := range []string{"/tmp/slides/b", "/tmp/slides/c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := locks.Acquire(dir, func() { t.Error("unexpected queueing") })
			r()
		}()
	}
	wg.Wait()
}

func writeTestSlide(t *testing.T, dir, name string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 4, 4))))
}

func testManifest(dir string) *models.SlideExtractionResult {
	return &models.SlideExtractionResult{
		SourceURL:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		SourceKind:       models.SourceYouTube,
		SourceID:         "dQw4w9WgXcQ",
		SlidesDir:        dir,
		SlidesDirID:      slidesDirID(dir),
		SceneThreshold:   0.12,
		AutoTune:         models.AutoTune{Enabled: true, ChosenThreshold: 0.12, Strategy: "hash"},
		MaxSlides:        40,
		MinSlideDuration: 10,
		Slides: []models.Slide{
			{Index: 1, Timestamp: 12.5, ImagePath: "slide_0001_12.500s.png"},
			{Index: 2, Timestamp: 48.0, ImagePath: "slide_0002_48.000s.png"},
		},
	}
}

func testRequest() Request {
	return withDefaults(Request{
		URL:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		SourceKind: models.SourceYouTube,
		SourceID:   "dQw4w9WgXcQ",
	})
}

func TestManifestRoundTripAndValidate(t *testing.T) {
	dir := t.TempDir()
	writeTestSlide(t, dir, "slide_0001_12.500s.png")
	writeTestSlide(t, dir, "slide_0002_48.000s.png")

	manifest := testManifest(dir)
	require.NoError(t, writeManifest(dir, manifest))

	loaded, err := readManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, manifest.SourceID, loaded.SourceID)
	require.Len(t, loaded.Slides, 2)

	assert.NoError(t, validateManifest(loaded, testRequest(), dir))
}

func TestValidateManifestRejectsMismatches(t *testing.T) {
	dir := t.TempDir()
	writeTestSlide(t, dir, "slide_0001_12.500s.png")
	writeTestSlide(t, dir, "slide_0002_48.000s.png")

	t.Run("different source", func(t *testing.T) {
		m := testManifest(dir)
		m.SourceID = "otherVideo01"
		assert.Error(t, validateManifest(m, testRequest(), dir))
	})

	t.Run("relocated dir", func(t *testing.T) {
		m := testManifest(dir)
		other := t.TempDir()
		assert.Error(t, validateManifest(m, testRequest(), other))
	})

	t.Run("settings changed", func(t *testing.T) {
		m := testManifest(dir)
		req := testRequest()
		req.MaxSlides = 5
		assert.Error(t, validateManifest(m, req, dir))
	})

	t.Run("missing image", func(t *testing.T) {
		m := testManifest(dir)
		m.Slides = append(m.Slides, models.Slide{Index: 3, Timestamp: 90, ImagePath: "slide_0003_90.000s.png"})
		assert.Error(t, validateManifest(m, testRequest(), dir))
	})

	t.Run("path escape", func(t *testing.T) {
		m := testManifest(dir)
		m.Slides[0].ImagePath = "../../etc/passwd"
		assert.Error(t, validateManifest(m, testRequest(), dir))
	})

	t.Run("ocr now required", func(t *testing.T) {
		m := testManifest(dir)
		req := testRequest()
		req.OCR = true
		assert.Error(t, validateManifest(m, req, dir))
	})
}

func TestResolveImagePath(t *testing.T) {
	dir := t.TempDir()

	path, err := ResolveImagePath(dir, "slide_0001_10.000s.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "slide_0001_10.000s.png"), path)

	_, err = ResolveImagePath(dir, "../outside.png")
	assert.Error(t, err)

	_, err = ResolveImagePath(dir, "/etc/passwd")
	assert.Error(t, err)
}

func TestRenameSlides(t *testing.T) {
	dir := t.TempDir()
	writeTestSlide(t, dir, "slide_0001.png")
	writeTestSlide(t, dir, "slide_0002.png")

	frames := []extractedFrame{
		{Timestamp: 12.5, Path: filepath.Join(dir, "slide_0001.png")},
		{Timestamp: 48, Path: filepath.Join(dir, "slide_0002.png")},
	}
	slides, err := renameSlides(dir, frames, []bool{false, true})
	require.NoError(t, err)
	require.Len(t, slides, 2)

	assert.Equal(t, 1, slides[0].Index)
	assert.Equal(t, "slide_0001_12.500s.png", slides[0].ImagePath)
	assert.Equal(t, 0, slides[0].ImageVersion)
	assert.Equal(t, 2, slides[1].ImageVersion)

	for _, s := range slides {
		_, statErr := os.Stat(filepath.Join(dir, s.ImagePath))
		assert.NoError(t, statErr)
	}
}

func TestWithDefaults(t *testing.T) {
	req := withDefaults(Request{})
	assert.Equal(t, DefaultWorkers, req.Workers)
	assert.Equal(t, DefaultMaxSlides, req.MaxSlides)
	assert.Equal(t, DefaultMinSlideDuration, req.MinSlideDuration)
	assert.NotEmpty(t, req.YtdlpFormat)

	req = withDefaults(Request{Workers: 99})
	assert.Equal(t, maxWorkers, req.Workers)
}
