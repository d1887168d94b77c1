package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// FormatVersion participates in every cache key. Bump it whenever prompt
// shapes or stored value formats change: every prior entry then misses and
// ages out through the normal sweep.
const FormatVersion = "3"

// hashFields renders a collision-resistant digest over an ordered field
// list. Fields are length-prefixed so concatenation ambiguity cannot make
// two different inputs collide, and ordering is fixed by the caller.
func hashFields(fields ...string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(f)))
		h.Write(lenBuf[:])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TranscriptKey keys a cached transcript. namespace distinguishes resolution
// modes (yt:api, yt:captions, yt:actor, media). fileMtime is the source
// file's mtime for local files, empty for URLs.
func TranscriptKey(url, namespace, fileMtime string) string {
	return hashFields("transcript", url, namespace, fileMtime, FormatVersion)
}

// ContentKey keys extracted page content by URL and the extract settings
// that shaped it.
func ContentKey(url string, extractSettings string) string {
	return hashFields("content", url, extractSettings, FormatVersion)
}

// SummaryKey keys a summary by the normalized content hash rather than the
// URL, so identical content reached via different URLs shares one summary.
func SummaryKey(contentHash, promptHash, model, length, language string) string {
	return hashFields("summary", contentHash, promptHash, model, length, language, FormatVersion)
}

// SlidesKey keys a slide manifest by source URL and slide settings.
func SlidesKey(url string, slideSettings string) string {
	return hashFields("slides", url, slideSettings, FormatVersion)
}

// ContentHash fingerprints normalized content for summary keying.
func ContentHash(normalized string) string {
	return hashFields("content-hash", normalized)
}

// NormalizeContent collapses whitespace so trivially different renderings of
// the same text map to the same summary key.
func NormalizeContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// PromptHash fingerprints the prompt template text.
func PromptHash(prompt string) string {
	return hashFields("prompt", prompt)
}
