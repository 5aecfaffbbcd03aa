package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/extrato-ai/extrato/schema"
)

const entryExt = ".json"

// DiskStore is the persistent cache tier: one JSON file per fingerprint in
// a single directory. Entries survive restarts; eviction is LRU by access
// time under a byte quota. Every operation is bounded by the store's
// timeout so slow disks degrade the request to memory-only instead of
// stalling it.
type DiskStore struct {
	dir      string
	maxBytes int64
	timeout  time.Duration

	// Guards eviction scans; plain reads and writes rely on the
	// filesystem's own atomicity (write-then-rename).
	mu sync.Mutex
}

// ErrCorruptEntry marks an entry that could not be decoded. Callers treat
// it as a miss; the store removes the file.
var ErrCorruptEntry = fmt.Errorf("cache: corrupt disk entry")

// NewDiskStore opens (or creates) the disk tier at dir.
func NewDiskStore(dir string, maxBytes int64, timeout time.Duration) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDiskBytes
	}
	if timeout <= 0 {
		timeout = DefaultDiskTimeout
	}
	return &DiskStore{dir: dir, maxBytes: maxBytes, timeout: timeout}, nil
}

// Get reads the entry for key. A decode failure removes the file and
// returns ErrCorruptEntry. A hit refreshes the file's access time so quota
// eviction stays least-recently-used.
func (s *DiskStore) Get(ctx context.Context, key string) (*schema.ExtractionResult, error) {
	return runTimed(ctx, s.timeout, func() (*schema.ExtractionResult, error) {
		path := s.path(key)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("cache: read entry: %w", err)
		}
		var res schema.ExtractionResult
		if err := json.Unmarshal(data, &res); err != nil {
			os.Remove(path)
			return nil, ErrCorruptEntry
		}
		now := time.Now()
		os.Chtimes(path, now, now)
		return &res, nil
	})
}

// Put writes the entry for key atomically (temp file + rename), then
// enforces the byte quota. Rewriting an existing key is allowed; entry
// data is immutable by contract, so a rewrite only refreshes metadata.
func (s *DiskStore) Put(ctx context.Context, key string, res *schema.ExtractionResult) error {
	_, err := runTimed(ctx, s.timeout, func() (*schema.ExtractionResult, error) {
		data, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("cache: encode entry: %w", err)
		}
		path := s.path(key)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return nil, fmt.Errorf("cache: write entry: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return nil, fmt.Errorf("cache: commit entry: %w", err)
		}
		return nil, s.enforceQuota()
	})
	return err
}

// Len returns the number of stored entries.
func (s *DiskStore) Len() int {
	entries, _ := s.list()
	return len(entries)
}

// SizeBytes returns the total size of stored entries.
func (s *DiskStore) SizeBytes() int64 {
	entries, _ := s.list()
	var total int64
	for _, e := range entries {
		total += e.size
	}
	return total
}

// Labels returns the sorted set of labels present in the store, recovered
// from the {pdf}:{label}:{schema} key layout.
func (s *DiskStore) Labels() []string {
	entries, _ := s.list()
	set := make(map[string]struct{})
	for _, e := range entries {
		parts := strings.Split(strings.TrimSuffix(filepath.Base(e.path), entryExt), ":")
		if len(parts) == 3 {
			set[parts[1]] = struct{}{}
		}
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Clear removes every entry.
func (s *DiskStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.list()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

type diskEntry struct {
	path    string
	size    int64
	touched time.Time
}

func (s *DiskStore) list() ([]diskEntry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	entries := make([]diskEntry, 0, len(dirents))
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entryExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, diskEntry{
			path:    filepath.Join(s.dir, de.Name()),
			size:    info.Size(),
			touched: info.ModTime(),
		})
	}
	return entries, nil
}

func (s *DiskStore) enforceQuota() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.list()
	if err != nil {
		return err
	}
	var total int64
	for _, e := range entries {
		total += e.size
	}
	if total <= s.maxBytes {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].touched.Before(entries[j].touched) })
	for _, e := range entries {
		if total <= s.maxBytes {
			break
		}
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			continue
		}
		total -= e.size
	}
	return nil
}

func (s *DiskStore) path(key string) string {
	return filepath.Join(s.dir, key+entryExt)
}

// runTimed executes fn off the caller's goroutine and abandons it when the
// deadline passes. The disk tier is best-effort: an abandoned write
// finishes (or fails) in the background without holding up the request.
func runTimed(ctx context.Context, timeout time.Duration, fn func() (*schema.ExtractionResult, error)) (*schema.ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *schema.ExtractionResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn()
		done <- outcome{res, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.res, out.err
	}
}
