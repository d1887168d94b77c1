// Package cache implements the transactional metadata cache used for
// transcripts, extracted content, summaries, and slide manifests.
//
// All namespaces share a single sqlite-backed table. Every read and write
// runs a TTL sweep and, when the total size exceeds the configured cap,
// evicts entries by ascending last access time until the store fits.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Namespaces for the four logical tables.
const (
	NamespaceTranscript = "transcript"
	NamespaceContent    = "content"
	NamespaceSummary    = "summary"
	NamespaceSlides     = "slides"
)

// Entry is one cached row.
type Entry struct {
	Key            string `gorm:"primaryKey"`
	Namespace      string `gorm:"index"`
	Value          []byte
	CreatedAt      int64 `gorm:"index"` // unix ms
	LastAccessedAt int64 `gorm:"index"` // unix ms
	SizeBytes      int64
}

// TableName keeps the table name stable across gorm versions.
func (Entry) TableName() string {
	return "cache_entries"
}

// Options configures a Store.
type Options struct {
	TTL      time.Duration
	MaxBytes int64
	Logger   *slog.Logger
	Now      func() time.Time
}

// Store is the metadata cache. Writes are serialized behind a single mutex;
// sqlite journaling keeps the file consistent across crashes.
type Store struct {
	db       *gorm.DB
	mu       sync.Mutex
	ttl      time.Duration
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

// Open opens (or creates) the cache database at path.
func Open(path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrating cache schema: %w", err)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		db:       db,
		ttl:      opts.TTL,
		maxBytes: opts.MaxBytes,
		logger:   opts.Logger.With("component", "cache"),
		now:      opts.Now,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the value for key in namespace, or (nil, false) on a miss.
// A hit touches the entry's last access time.
func (s *Store) Get(namespace, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	if err := s.sweepLocked(now); err != nil {
		return nil, false, err
	}

	var entry Entry
	err := s.db.Where("key = ? AND namespace = ?", key, namespace).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	if err := s.db.Model(&Entry{}).Where("key = ?", entry.Key).
		Update("last_accessed_at", now).Error; err != nil {
		return nil, false, fmt.Errorf("touching cache entry: %w", err)
	}
	return entry.Value, true, nil
}

// Put stores value under key in namespace, then enforces the byte cap.
func (s *Store) Put(namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	if err := s.sweepLocked(now); err != nil {
		return err
	}

	entry := Entry{
		Key:            key,
		Namespace:      namespace,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
		SizeBytes:      int64(len(value)),
	}
	if err := s.db.Save(&entry).Error; err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	return s.evictLocked()
}

// Delete removes a single entry.
func (s *Store) Delete(namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Where("key = ? AND namespace = ?", key, namespace).Delete(&Entry{}).Error
}

// Clear removes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Where("1 = 1").Delete(&Entry{}).Error
}

// Stats summarizes the store contents.
type Stats struct {
	Entries    int64            `json:"entries"`
	TotalBytes int64            `json:"totalBytes"`
	Namespaces map[string]int64 `json:"namespaces"`
}

// Stats returns entry counts and total size, per namespace.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Namespaces: make(map[string]int64)}
	if err := s.db.Model(&Entry{}).Count(&stats.Entries).Error; err != nil {
		return stats, err
	}

	var total *int64
	if err := s.db.Model(&Entry{}).Select("SUM(size_bytes)").Scan(&total).Error; err != nil {
		return stats, err
	}
	if total != nil {
		stats.TotalBytes = *total
	}

	rows := []struct {
		Namespace string
		N         int64
	}{}
	if err := s.db.Model(&Entry{}).Select("namespace, COUNT(*) as n").
		Group("namespace").Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, r := range rows {
		stats.Namespaces[r.Namespace] = r.N
	}
	return stats, nil
}

// Sweep runs TTL expiry and cap eviction. The daemon calls this on a
// schedule; reads and writes run it inline.
func (s *Store) Sweep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sweepLocked(s.now().UnixMilli()); err != nil {
		return err
	}
	return s.evictLocked()
}

// sweepLocked deletes rows past their TTL. Must be called with s.mu held.
func (s *Store) sweepLocked(nowMs int64) error {
	if s.ttl <= 0 {
		return nil
	}
	cutoff := nowMs - s.ttl.Milliseconds()
	res := s.db.Where("created_at < ?", cutoff).Delete(&Entry{})
	if res.Error != nil {
		return fmt.Errorf("sweeping expired entries: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Debug("swept expired cache entries", "count", res.RowsAffected)
	}
	return nil
}

// evictLocked removes oldest-accessed entries until under the byte cap.
// Must be called with s.mu held.
func (s *Store) evictLocked() error {
	if s.maxBytes <= 0 {
		return nil
	}

	var total *int64
	if err := s.db.Model(&Entry{}).Select("SUM(size_bytes)").Scan(&total).Error; err != nil {
		return fmt.Errorf("sizing cache: %w", err)
	}
	if total == nil || *total <= s.maxBytes {
		return nil
	}

	over := *total - s.maxBytes
	var victims []Entry
	if err := s.db.Order("last_accessed_at ASC").Find(&victims).Error; err != nil {
		return fmt.Errorf("selecting eviction victims: %w", err)
	}

	var freed int64
	var evicted int
	for _, v := range victims {
		if freed >= over {
			break
		}
		if err := s.db.Where("key = ?", v.Key).Delete(&Entry{}).Error; err != nil {
			return fmt.Errorf("evicting cache entry: %w", err)
		}
		freed += v.SizeBytes
		evicted++
	}
	s.logger.Debug("evicted cache entries over byte cap", "count", evicted, "freed", freed)
	return nil
}

// GetJSON unmarshals a cached JSON value into out; ok is false on a miss.
func GetJSON[T any](s *Store, namespace, key string, out *T) (bool, error) {
	data, ok, err := s.Get(namespace, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		// A decode failure means the stored shape is stale; drop it.
		_ = s.Delete(namespace, key)
		return false, nil
	}
	return true, nil
}

// PutJSON marshals value as JSON and stores it.
func PutJSON[T any](s *Store, namespace, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}
	return s.Put(namespace, key, data)
}
