// Package cache provides the two-tier response cache: a bounded in-memory
// LRU (L1) in front of a persistent on-disk store (L2). Lookup order is
// strictly L1 → L2; writes populate both tiers; an L2 hit is promoted into
// L1. Disk failures are demoted to misses — the cache never fails a
// request.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/extrato-ai/extrato/fingerprint"
	"github.com/extrato-ai/extrato/schema"
)

// Defaults for the cache tiers.
const (
	DefaultL1Capacity   = 100
	DefaultMaxDiskBytes = 1 << 30 // 1 GiB
	DefaultDiskTimeout  = 5 * time.Second
)

// Source identifies which tier served a hit.
type Source string

const (
	SourceL1 Source = "l1"
	SourceL2 Source = "l2"
)

// Stats are the cache's hit/miss counters.
type Stats struct {
	L1Size   int `json:"l1_size"`
	L1Hits   int `json:"l1_hits"`
	L1Misses int `json:"l1_misses"`
	L2Hits   int `json:"l2_hits"`
	L2Misses int `json:"l2_misses"`
}

// Cache is the two-tier store. The zero value is not usable; use New.
type Cache struct {
	l1   *lru.Cache[string, *schema.ExtractionResult]
	disk *DiskStore

	mu     sync.Mutex
	stats  Stats
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	l1Capacity   int
	dir          string
	maxDiskBytes int64
	diskTimeout  time.Duration
	logger       *slog.Logger
}

// WithL1Capacity bounds the in-memory tier.
func WithL1Capacity(n int) Option {
	return func(o *options) { o.l1Capacity = n }
}

// WithDir sets the disk tier's directory. An empty dir disables L2.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithMaxDiskBytes bounds the disk tier.
func WithMaxDiskBytes(n int64) Option {
	return func(o *options) { o.maxDiskBytes = n }
}

// WithDiskTimeout bounds individual disk operations.
func WithDiskTimeout(d time.Duration) Option {
	return func(o *options) { o.diskTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a Cache. Without WithDir the cache runs memory-only.
func New(opts ...Option) (*Cache, error) {
	o := options{
		l1Capacity:   DefaultL1Capacity,
		maxDiskBytes: DefaultMaxDiskBytes,
		diskTimeout:  DefaultDiskTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	l1, err := lru.New[string, *schema.ExtractionResult](o.l1Capacity)
	if err != nil {
		return nil, err
	}
	c := &Cache{l1: l1, logger: o.logger}
	if o.dir != "" {
		disk, err := NewDiskStore(o.dir, o.maxDiskBytes, o.diskTimeout)
		if err != nil {
			return nil, err
		}
		c.disk = disk
	}
	return c, nil
}

// Get looks up a fingerprint. The returned result is a private copy. A hit
// in L2 promotes the entry into L1.
func (c *Cache) Get(ctx context.Context, key fingerprint.Key) (*schema.ExtractionResult, Source, bool) {
	k := key.String()

	if res, ok := c.l1.Get(k); ok {
		c.count(func(s *Stats) { s.L1Hits++ })
		return res.Clone(), SourceL1, true
	}
	c.count(func(s *Stats) { s.L1Misses++ })

	if c.disk == nil {
		return nil, "", false
	}
	res, err := c.disk.Get(ctx, k)
	if err != nil {
		if err != ErrCorruptEntry {
			c.logger.Warn("disk cache read failed, treating as miss", "key", k, "error", err)
		}
		c.count(func(s *Stats) { s.L2Misses++ })
		return nil, "", false
	}
	if res == nil {
		c.count(func(s *Stats) { s.L2Misses++ })
		return nil, "", false
	}

	c.l1.Add(k, res)
	c.count(func(s *Stats) { s.L2Hits++ })
	return res.Clone(), SourceL2, true
}

// Put stores a result in both tiers. Idempotent: re-putting the same key
// refreshes metadata only, never the data. Disk failures are logged and
// swallowed.
func (c *Cache) Put(ctx context.Context, key fingerprint.Key, res *schema.ExtractionResult) {
	k := key.String()
	stored := res.Clone()

	c.l1.Add(k, stored)
	if c.disk == nil {
		return
	}
	if err := c.disk.Put(ctx, k, stored); err != nil {
		c.logger.Warn("disk cache write failed, entry kept in memory only", "key", k, "error", err)
	}
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.L1Size = c.l1.Len()
	return s
}

// Labels returns the labels present in the disk tier.
func (c *Cache) Labels() []string {
	if c.disk == nil {
		return nil
	}
	return c.disk.Labels()
}

// ClearMemory empties L1 only. Useful in tests to force L2 reads.
func (c *Cache) ClearMemory() {
	c.l1.Purge()
}

// Clear empties both tiers and resets counters.
func (c *Cache) Clear() error {
	c.l1.Purge()
	c.mu.Lock()
	c.stats = Stats{}
	c.mu.Unlock()
	if c.disk != nil {
		return c.disk.Clear()
	}
	return nil
}

func (c *Cache) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
