package slides

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/summarize/internal/mediacache"
)

// defaultYtdlpFormat prefers a broadly decodable download: H.264 in MP4,
// capped at 720p.
const defaultYtdlpFormat = "bestvideo[height<=720][vcodec^=avc1]+bestaudio[ext=m4a]/best[height<=720][ext=mp4]/best[height<=720]"

// videoSource is the resolved input for detection and frame extraction.
type videoSource struct {
	// Input is what ffmpeg reads: a local file or a stream URL.
	Input string
	// Streamed is true when Input is a remote stream URL rather than a
	// local download.
	Streamed bool
	// tempDir holds a yt-dlp download; removed by cleanup.
	tempDir string
}

func (s *videoSource) cleanup() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

// resolveStreamURL asks yt-dlp for a direct stream URL without downloading.
func (p *Pipeline) resolveStreamURL(ctx context.Context, videoURL, format string) (string, error) {
	if !p.binaries.HasYtDlp() {
		return "", fmt.Errorf("yt-dlp is not available")
	}
	out, err := p.runner.Run(ctx, p.binaries.YtDlp,
		"--no-warnings",
		"-f", format,
		"-g", videoURL,
	)
	if err != nil {
		return "", err
	}
	// Multi-line output means separate video+audio URLs; the first line is
	// the video stream, which is all frame extraction needs.
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", fmt.Errorf("yt-dlp returned no stream URL")
	}
	return strings.TrimSpace(lines[0]), nil
}

// downloadVideo fetches the video into a fresh temp directory with yt-dlp.
// The temp directory is removed on failure; on success the caller owns it
// through videoSource.cleanup.
func (p *Pipeline) downloadVideo(ctx context.Context, videoURL, format string, progress func(fraction float64)) (*videoSource, error) {
	if !p.binaries.HasYtDlp() {
		return nil, fmt.Errorf("yt-dlp is not available")
	}

	tempDir, err := os.MkdirTemp("", "summarize-slides-*")
	if err != nil {
		return nil, err
	}

	outTemplate := filepath.Join(tempDir, "source.%(ext)s")
	_, err = p.runner.Run(ctx, p.binaries.YtDlp,
		"--no-warnings",
		"--no-playlist",
		"-f", format,
		"--merge-output-format", "mp4",
		"-o", outTemplate,
		videoURL,
	)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	if progress != nil {
		progress(1)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil || len(entries) == 0 {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("yt-dlp produced no output file")
	}
	return &videoSource{
		Input:   filepath.Join(tempDir, entries[0].Name()),
		tempDir: tempDir,
	}, nil
}

// acquireDirectMedia returns a local path for a direct media URL, going
// through the media cache when one is configured.
func (p *Pipeline) acquireDirectMedia(ctx context.Context, mediaURL string) (*videoSource, error) {
	if p.media != nil {
		if entry, payload, err := p.media.Get(mediaURL); err == nil && entry != nil {
			return &videoSource{Input: payload}, nil
		}
	}

	tempDir, err := os.MkdirTemp("", "summarize-slides-*")
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(tempDir, "source"+filepath.Ext(mediaURL))

	_, contentType, _, err := p.httpc.Download(ctx, mediaURL, dest)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	if p.media != nil {
		if entry, putErr := p.media.Put(mediaURL, dest, mediacache.PutMeta{MediaType: contentType}); putErr == nil && entry != nil {
			os.RemoveAll(tempDir)
			if _, payload, getErr := p.media.Get(mediaURL); getErr == nil && payload != "" {
				return &videoSource{Input: payload}, nil
			}
			return nil, fmt.Errorf("media cache lost the downloaded payload for %s", mediaURL)
		}
	}
	return &videoSource{Input: dest, tempDir: tempDir}, nil
}
