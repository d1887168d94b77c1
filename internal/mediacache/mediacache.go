// Package mediacache implements the file-backed download cache with TTL and
// LRU eviction, and configurable payload verification on read.
//
// The cache exclusively owns its directory: one payload file per entry named
// <key><ext>, plus index.json written atomically (temp file then rename).
// A corrupt index is tolerated by starting empty.
package mediacache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/summarize/internal/config"
)

const indexFileName = "index.json"

// Entry describes one cached download.
type Entry struct {
	URL            string `json:"url"`
	FileName       string `json:"fileName"`
	SizeBytes      int64  `json:"sizeBytes"`
	SHA256         string `json:"sha256,omitempty"`
	MediaType      string `json:"mediaType,omitempty"`
	Filename       string `json:"filename,omitempty"` // original remote filename
	CreatedAtMs    int64  `json:"createdAtMs"`
	LastAccessAtMs int64  `json:"lastAccessAtMs"`
	ExpiresAtMs    int64  `json:"expiresAtMs,omitempty"`
}

type index struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Options configures a Cache.
type Options struct {
	MaxBytes int64
	TTL      time.Duration
	Verify   config.VerifyMode
	Logger   *slog.Logger
	Now      func() time.Time
}

// Cache is the media cache. All operations take the cache lock; Put holds it
// across the index rewrite so concurrent puts serialize.
type Cache struct {
	dir      string
	maxBytes int64
	ttl      time.Duration
	verify   config.VerifyMode
	logger   *slog.Logger
	now      func() time.Time

	mu  sync.Mutex
	idx index
}

// Open loads (or initializes) the cache rooted at dir.
func Open(dir string, opts Options) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media cache directory: %w", err)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Verify == "" {
		opts.Verify = config.VerifySize
	}

	c := &Cache{
		dir:      dir,
		maxBytes: opts.MaxBytes,
		ttl:      opts.TTL,
		verify:   opts.Verify,
		logger:   opts.Logger.With("component", "mediacache"),
		now:      opts.Now,
	}
	c.loadIndex()
	return c, nil
}

// loadIndex reads index.json, starting empty when missing or corrupt.
func (c *Cache) loadIndex() {
	c.idx = index{Version: 1, Entries: make(map[string]*Entry)}

	data, err := os.ReadFile(filepath.Join(c.dir, indexFileName))
	if err != nil {
		return
	}
	var loaded index
	if err := json.Unmarshal(data, &loaded); err != nil || loaded.Entries == nil {
		c.logger.Warn("media cache index corrupt, starting empty")
		return
	}
	c.idx = loaded
}

// saveIndex writes index.json atomically.
func (c *Cache) saveIndex() error {
	data, err := json.MarshalIndent(&c.idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling media cache index: %w", err)
	}

	tmp := filepath.Join(c.dir, indexFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing media cache index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(c.dir, indexFileName)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing media cache index: %w", err)
	}
	return nil
}

// Key derives the cache key for a URL.
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// PutMeta carries optional metadata for a Put.
type PutMeta struct {
	MediaType string
	Filename  string // original remote filename, if known
}

// Put moves the file at srcPath into the cache under rawURL's key. Only
// http(s) URLs are cacheable; anything else returns (nil, nil) without
// touching the source. Oversized sources are rejected the same way.
func (c *Cache) Put(rawURL, srcPath string, meta PutMeta) (*Entry, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, nil
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	if c.maxBytes > 0 && info.Size() > c.maxBytes {
		c.logger.Debug("source exceeds media cache cap, not caching",
			"size", info.Size(), "cap", c.maxBytes)
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()

	key := Key(rawURL)
	fileName := key + inferExtension(parsed, meta.MediaType, meta.Filename)
	dest := filepath.Join(c.dir, fileName)

	// Replace any previous payload for this key.
	if old, ok := c.idx.Entries[key]; ok {
		_ = os.Remove(filepath.Join(c.dir, old.FileName))
	}

	if err := moveFile(srcPath, dest); err != nil {
		return nil, fmt.Errorf("moving payload into cache: %w", err)
	}

	now := c.now().UnixMilli()
	entry := &Entry{
		URL:            rawURL,
		FileName:       fileName,
		SizeBytes:      info.Size(),
		MediaType:      meta.MediaType,
		Filename:       meta.Filename,
		CreatedAtMs:    now,
		LastAccessAtMs: now,
	}
	if c.ttl > 0 {
		entry.ExpiresAtMs = now + c.ttl.Milliseconds()
	}
	if c.verify == config.VerifyHash {
		sum, err := hashFile(dest)
		if err != nil {
			return nil, fmt.Errorf("hashing payload: %w", err)
		}
		entry.SHA256 = sum
	}

	c.idx.Entries[key] = entry
	c.evict()

	if err := c.saveIndex(); err != nil {
		return nil, err
	}
	// The entry itself may have been evicted if it was the only way under cap.
	if _, ok := c.idx.Entries[key]; !ok {
		return nil, nil
	}
	return entry, nil
}

// Get returns the entry and absolute payload path for rawURL, or (nil, "")
// on a miss. Verification failures evict the entry and report a miss.
func (c *Cache) Get(rawURL string) (*Entry, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()

	key := Key(rawURL)
	entry, ok := c.idx.Entries[key]
	if !ok {
		return nil, "", nil
	}

	payload := filepath.Join(c.dir, entry.FileName)
	info, err := os.Stat(payload)
	if err != nil {
		// Missing on-disk file: remove the entry on observation.
		c.drop(key)
		return nil, "", c.saveIndex()
	}

	switch c.verify {
	case config.VerifySize:
		if info.Size() != entry.SizeBytes {
			c.dropWithFile(key, payload)
			return nil, "", c.saveIndex()
		}
	case config.VerifyHash:
		sum, err := hashFile(payload)
		if err != nil {
			return nil, "", fmt.Errorf("hashing payload: %w", err)
		}
		if entry.SHA256 != "" && sum != entry.SHA256 {
			c.dropWithFile(key, payload)
			return nil, "", c.saveIndex()
		}
		entry.SHA256 = sum
	case config.VerifyNone:
		entry.SizeBytes = info.Size()
	}

	entry.LastAccessAtMs = c.now().UnixMilli()
	if err := c.saveIndex(); err != nil {
		return nil, "", err
	}
	return entry, payload, nil
}

// Sweep removes expired entries. The daemon runs this on a schedule; reads
// and writes also sweep inline.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
}

// sweep removes entries past their expiry. Callers hold the cache lock.
func (c *Cache) sweep() {
	now := c.now().UnixMilli()
	changed := false
	for key, entry := range c.idx.Entries {
		if entry.ExpiresAtMs > 0 && entry.ExpiresAtMs <= now {
			c.dropWithFile(key, filepath.Join(c.dir, entry.FileName))
			changed = true
		}
	}
	if changed {
		_ = c.saveIndex()
	}
}

// evict removes oldest-accessed entries until total size fits the cap.
func (c *Cache) evict() {
	if c.maxBytes <= 0 {
		return
	}

	var total int64
	for _, e := range c.idx.Entries {
		total += e.SizeBytes
	}
	if total <= c.maxBytes {
		return
	}

	keys := make([]string, 0, len(c.idx.Entries))
	for k := range c.idx.Entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.idx.Entries[keys[i]].LastAccessAtMs < c.idx.Entries[keys[j]].LastAccessAtMs
	})

	for _, k := range keys {
		if total <= c.maxBytes {
			break
		}
		entry := c.idx.Entries[k]
		total -= entry.SizeBytes
		c.dropWithFile(k, filepath.Join(c.dir, entry.FileName))
	}
}

func (c *Cache) drop(key string) {
	delete(c.idx.Entries, key)
}

func (c *Cache) dropWithFile(key, payload string) {
	delete(c.idx.Entries, key)
	_ = os.Remove(payload)
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"totalBytes"`
}

// Stats returns entry count and total payload size.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Entries: len(c.idx.Entries)}
	for _, e := range c.idx.Entries {
		s.TotalBytes += e.SizeBytes
	}
	return s
}

// Clear removes every entry and payload.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.idx.Entries {
		c.dropWithFile(key, filepath.Join(c.dir, entry.FileName))
	}
	return c.saveIndex()
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// moveFile renames src to dest, falling back to copy+unlink across
// filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// inferExtension picks the payload extension from the URL path, the original
// filename, or the media type, in that order.
func inferExtension(u *url.URL, mediaType, filename string) string {
	if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	if ext := path.Ext(filename); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	switch strings.Split(mediaType, ";")[0] {
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "application/pdf":
		return ".pdf"
	}
	return ""
}
