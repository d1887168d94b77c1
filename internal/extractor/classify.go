// Package extractor implements input classification and the content
// extraction pipeline: HTML article extraction, YouTube transcript
// resolution, direct media transcription, and the Firecrawl and
// LLM-Markdown fallbacks.
package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/jmylchreest/summarize/internal/models"
)

// InputTarget is the classified form of a raw input string.
type InputTarget struct {
	Kind models.InputKind
	// URL is set for every kind except InputFile.
	URL string
	// Path is the local filesystem path for InputFile.
	Path string
}

// Extensions that classify a URL as a direct media asset.
var mediaExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".mkv": true, ".mov": true, ".avi": true,
	".mp3": true, ".m4a": true, ".wav": true, ".ogg": true, ".flac": true,
	".aac": true, ".opus": true,
}

// Extensions that classify a URL as a non-media asset (document).
var assetExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".ppt": true, ".pptx": true,
	".xls": true, ".xlsx": true, ".csv": true, ".txt": true, ".epub": true,
}

// Classify turns a raw input string into an InputTarget. Local paths that
// exist become files; everything else must be an http(s) or file: URL. For
// other schemes, an embedded http(s) prefix is rescued if present — the last
// occurrence wins, which handles redirector and tracking wrappers.
func Classify(input string) (InputTarget, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return InputTarget{}, models.Errorf(models.ErrKindInput, "empty input")
	}

	// A bare existing path is a local file.
	if !strings.Contains(input, "://") {
		if _, err := os.Stat(input); err == nil {
			return InputTarget{Kind: models.InputFile, Path: input}, nil
		}
		return InputTarget{}, models.Errorf(models.ErrKindInput, "file not found: %s", input)
	}

	u, err := url.Parse(input)
	if err != nil {
		return InputTarget{}, models.Errorf(models.ErrKindInput, "invalid URL: %v", err)
	}

	switch u.Scheme {
	case "http", "https":
		return classifyHTTP(input, u), nil
	case "file":
		p := u.Path
		if _, err := os.Stat(p); err != nil {
			return InputTarget{}, models.Errorf(models.ErrKindInput, "file not found: %s", p)
		}
		return InputTarget{Kind: models.InputFile, Path: p}, nil
	}

	// Unknown scheme: rescue an embedded http(s) URL if one is present.
	if rescued := lastEmbeddedHTTPURL(input); rescued != "" {
		ru, err := url.Parse(rescued)
		if err == nil {
			return classifyHTTP(rescued, ru), nil
		}
	}
	return InputTarget{}, models.Errorf(models.ErrKindInput,
		"unsupported URL scheme %q (only http, https, and file are accepted)", u.Scheme)
}

func classifyHTTP(raw string, u *url.URL) InputTarget {
	if IsYouTubeURL(u) {
		return InputTarget{Kind: models.InputYouTube, URL: raw}
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if mediaExtensions[ext] {
		return InputTarget{Kind: models.InputMedia, URL: raw}
	}
	if assetExtensions[ext] {
		return InputTarget{Kind: models.InputAsset, URL: raw}
	}
	return InputTarget{Kind: models.InputWebsite, URL: raw}
}

// lastEmbeddedHTTPURL finds the last http(s):// occurrence in s and returns
// the remainder from there, or "" when none exists.
func lastEmbeddedHTTPURL(s string) string {
	idx := strings.LastIndex(s, "https://")
	if j := strings.LastIndex(s, "http://"); j > idx {
		idx = j
	}
	if idx <= 0 {
		return ""
	}
	return s[idx:]
}

var youtubeHosts = map[string]bool{
	"youtube.com": true, "www.youtube.com": true, "m.youtube.com": true,
	"music.youtube.com": true, "youtu.be": true, "www.youtube-nocookie.com": true,
}

// IsYouTubeURL reports whether u points at a YouTube video page.
func IsYouTubeURL(u *url.URL) bool {
	if !youtubeHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	if u.Hostname() == "youtu.be" {
		return strings.TrimPrefix(u.Path, "/") != ""
	}
	switch {
	case strings.HasPrefix(u.Path, "/watch"):
		return u.Query().Get("v") != ""
	case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/live/"), strings.HasPrefix(u.Path, "/embed/"):
		return true
	}
	return false
}

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

// YouTubeVideoID extracts the video ID from a YouTube URL, or "" if none.
func YouTubeVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	var id string
	switch {
	case u.Hostname() == "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")
	case strings.HasPrefix(u.Path, "/watch"):
		id = u.Query().Get("v")
	case strings.HasPrefix(u.Path, "/shorts/"):
		id = strings.TrimPrefix(u.Path, "/shorts/")
	case strings.HasPrefix(u.Path, "/live/"):
		id = strings.TrimPrefix(u.Path, "/live/")
	case strings.HasPrefix(u.Path, "/embed/"):
		id = strings.TrimPrefix(u.Path, "/embed/")
	}
	id = strings.SplitN(id, "/", 2)[0]
	if youtubeIDPattern.MatchString(id) {
		return id
	}
	return ""
}

// SourceID derives the stable per-source identifier used for slide
// directories: the video ID for YouTube, a slug plus a short URL hash for
// direct media.
func SourceID(rawURL string) string {
	if id := YouTubeVideoID(rawURL); id != "" {
		return id
	}

	sum := sha256.Sum256([]byte(rawURL))
	short := hex.EncodeToString(sum[:4])

	slug := "media"
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		base = strings.TrimSuffix(base, path.Ext(base))
		if s := slugify(base); s != "" {
			slug = s
		}
	}
	return fmt.Sprintf("%s-%s", slug, short)
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
