// Package ffmpeg locates and runs the external media tools the slides
// pipeline depends on: ffmpeg, ffprobe, yt-dlp, and tesseract.
package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
)

// Env var overrides for each tool path.
const (
	EnvFFmpegPath    = "FFMPEG_PATH"
	EnvFFprobePath   = "FFPROBE_PATH"
	EnvYtDlpPath     = "YT_DLP_PATH"
	EnvTesseractPath = "TESSERACT_PATH"
)

// Binaries holds resolved tool paths. Empty fields mean the tool was not
// found; callers decide whether that is fatal for their stage.
type Binaries struct {
	FFmpeg    string
	FFprobe   string
	YtDlp     string
	Tesseract string
}

// Detect resolves every tool path. ffmpeg and ffprobe are required; yt-dlp
// and tesseract are optional (stream sources and OCR degrade without them).
func Detect(getenv func(string) string) (Binaries, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	b := Binaries{}
	var err error
	if b.FFmpeg, err = findBinary("ffmpeg", getenv(EnvFFmpegPath)); err != nil {
		return b, fmt.Errorf("ffmpeg not found: %w", err)
	}
	if b.FFprobe, err = findBinary("ffprobe", getenv(EnvFFprobePath)); err != nil {
		return b, fmt.Errorf("ffprobe not found: %w", err)
	}
	b.YtDlp, _ = findBinary("yt-dlp", getenv(EnvYtDlpPath))
	b.Tesseract, _ = findBinary("tesseract", getenv(EnvTesseractPath))
	return b, nil
}

// HasYtDlp reports whether yt-dlp is available.
func (b Binaries) HasYtDlp() bool { return b.YtDlp != "" }

// HasTesseract reports whether tesseract is available.
func (b Binaries) HasTesseract() bool { return b.Tesseract != "" }

// findBinary resolves a tool path: explicit override, then the current
// directory, then PATH.
func findBinary(name, override string) (string, error) {
	if override != "" {
		if isExecutable(override) {
			return override, nil
		}
		return "", fmt.Errorf("configured path %q is not an executable", override)
	}

	localPath := "./" + name
	if isExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("binary %s not found", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
