// Package cache implements C4: the namespaced persistent cache. Storage is
// the local filesystem with SHA-256-of-key filenames — the same
// content-addressing shape as the teacher's core/pkg/artifacts.S3Store,
// adapted from S3 objects to local files per spec §4.4's explicit medium —
// plus an optional Redis-backed distributed layer grounded on the
// teacher's core/pkg/kernel.RedisLimiterStore wiring of go-redis/v9.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Namespace is one of the four fixed namespaces spec §4.4 names.
type Namespace string

const (
	Normattiva Namespace = "normattiva"
	EURLex     Namespace = "eurlex"
	Brocardi   Namespace = "brocardi"
	Tree       Namespace = "tree"
)

// entry is the on-disk/on-wire JSON shape: "{timestamp, data}" per spec
// §6's "Persisted state layout".
type entry struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Stats are the hit/miss/warmup counters spec §4.4 requires for /health,
// grounded on original_source's cache_manager.py statistics surface.
type Stats struct {
	Hits    int64
	Misses  int64
	Warmups int64
}

// HitRate returns Hits / (Hits+Misses), or 0 if there have been no reads.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the persistent, namespaced key-value store described in spec
// §4.4. The zero value is not usable; construct with New.
type Cache struct {
	baseDir string
	ttl     time.Duration
	redis   *redis.Client

	mu    sync.Mutex
	stats Stats

	log *slog.Logger
}

// New constructs a filesystem-backed Cache rooted at baseDir. If redisAddr
// is non-empty, reads/writes also go through a Redis client (same
// namespaced keys), matching spec §4.4's "storage medium is the local
// filesystem ... or an in-memory map" generalized with a distributed
// option the teacher's stack already carries.
func New(baseDir string, ttl time.Duration, redisAddr, redisPassword string, redisDB int) *Cache {
	c := &Cache{
		baseDir: baseDir,
		ttl:     ttl,
		log:     slog.Default().With("component", "cache"),
	}
	if redisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: redisPassword,
			DB:       redisDB,
		})
	}
	return c
}

func keyPath(baseDir string, ns Namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(baseDir, string(ns), hex.EncodeToString(sum[:]))
}

func redisKey(ns Namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("lexcore:%s:%s", ns, hex.EncodeToString(sum[:]))
}

// Get reads the value stored under (ns, key). Returns (nil, false, nil) on
// a clean miss, including a lazily-expired entry per spec §4.4 ("On read,
// if now - timestamp > TTL, the entry is deleted and a miss is returned").
func (c *Cache) Get(ctx context.Context, ns Namespace, key string) (json.RawMessage, bool, error) {
	var raw []byte
	var err error

	if c.redis != nil {
		raw, err = c.redis.Get(ctx, redisKey(ns, key)).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, false, fmt.Errorf("redis get %s/%s: %w", ns, key, err)
		}
		if errors.Is(err, redis.Nil) {
			raw = nil
		}
	}

	if raw == nil {
		path := keyPath(c.baseDir, ns, key)
		raw, err = os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				c.recordMiss()
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("reading cache file %s: %w", path, err)
		}
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.recordMiss()
		return nil, false, nil
	}

	if c.ttl > 0 && time.Since(time.Unix(e.Timestamp, 0)) > c.ttl {
		_ = c.Delete(ctx, ns, key)
		c.recordMiss()
		return nil, false, nil
	}

	c.recordHit()
	return e.Data, true, nil
}

// Set writes value under (ns, key), overwriting any prior value
// (last-write-wins, per spec §4.4's concurrency note). Writes are atomic
// at the entry level via a temp-file-then-rename on the filesystem path.
func (c *Cache) Set(ctx context.Context, ns Namespace, key string, value json.RawMessage) error {
	e := entry{Timestamp: time.Now().Unix(), Data: value}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling cache entry for %s/%s: %w", ns, key, err)
	}

	dir := filepath.Join(c.baseDir, string(ns))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache namespace dir %s: %w", dir, err)
	}
	path := keyPath(c.baseDir, ns, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing cache file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming cache file into place %s: %w", path, err)
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, redisKey(ns, key), raw, c.ttl).Err(); err != nil {
			c.log.Warn("redis cache write failed, filesystem write still succeeded", "ns", ns, "err", err)
		}
	}
	return nil
}

// Delete removes the entry under (ns, key), if any.
func (c *Cache) Delete(ctx context.Context, ns Namespace, key string) error {
	path := keyPath(c.baseDir, ns, key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting cache file %s: %w", path, err)
	}
	if c.redis != nil {
		if err := c.redis.Del(ctx, redisKey(ns, key)).Err(); err != nil {
			c.log.Warn("redis cache delete failed", "ns", ns, "err", err)
		}
	}
	return nil
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}

// RecordWarmup increments the warmup counter exposed via Stats, called once
// per URN the warmup pass successfully pre-resolves.
func (c *Cache) RecordWarmup() {
	c.mu.Lock()
	c.stats.Warmups++
	c.mu.Unlock()
}

// GetStats returns a snapshot of the current hit/miss/warmup counters, for
// the /health endpoint per spec §4.4.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
