// Package disk provides a disk-backed cache.BlobCache.
package disk

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	digest "github.com/opencontainers/go-digest"

	"github.com/meigma/vpt/registry/cache"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700

	// tempPrefix marks files that are still being written.
	tempPrefix = ".tmp-"
)

var _ cache.BlobCache = (*Cache)(nil)

// config holds configuration for the disk cache.
type config struct {
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
}

// Option configures a disk cache.
type Option func(*config)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *config) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *config) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *config) {
		c.maxBytes = n
	}
}

// Cache stores digest->layer mappings on disk.
//
// Entries are stored under the hex part of their digest, sharded by
// prefix. Every read is verified against the digest; corrupted entries are
// deleted and reported as misses. When a size limit is set, the oldest
// entries are pruned to make room.
type Cache struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	bytes          atomic.Int64
	pruneMu        sync.Mutex
}

// New creates a disk-backed blob cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	cfg := config{
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if cfg.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, cfg.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: cfg.shardPrefixLen,
		dirPerm:        cfg.dirPerm,
		maxBytes:       cfg.maxBytes,
	}
	c.bytes.Store(size)
	return c, nil
}

// Get returns the cached bytes for a digest.
//
// Corrupted cache entries (digest mismatch) are automatically deleted.
func (c *Cache) Get(dgst string) ([]byte, bool) {
	path, err := c.path(dgst)
	if err != nil {
		return nil, false
	}

	root, err := os.OpenRoot(c.dir)
	if err != nil {
		return nil, false
	}
	defer root.Close()

	data, err := root.ReadFile(path)
	if err != nil {
		return nil, false
	}

	if match, err := digestMatches(dgst, data); err != nil || !match {
		_ = c.deleteByPath(root, path) //nolint:errcheck // best-effort cleanup
		return nil, false
	}
	return data, true
}

// Put caches raw layer bytes by digest. Data that does not match the digest
// is rejected. When the cache is full and cannot be pruned enough, Put
// silently skips the entry.
func (c *Cache) Put(dgst string, data []byte) error {
	path, err := c.path(dgst)
	if err != nil {
		return err
	}

	root, err := os.OpenRoot(c.dir)
	if err != nil {
		return fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	if _, err := root.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat cache entry: %w", err)
	}

	match, err := digestMatches(dgst, data)
	if err != nil {
		return err
	}
	if !match {
		return fmt.Errorf("layer digest mismatch for %q", dgst)
	}

	written := int64(len(data))
	if ok, err := c.ensureCapacity(written); err != nil {
		return err
	} else if !ok {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := root.MkdirAll(dir, c.dirPerm); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}

	tmp, tmpPath, err := createTemp(root, dir)
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = root.Remove(tmpPath)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = root.Remove(tmpPath)
		return fmt.Errorf("close cache file: %w", err)
	}

	if err := root.Rename(tmpPath, path); err != nil {
		_ = root.Remove(tmpPath)
		if _, statErr := root.Stat(path); statErr == nil {
			return nil
		}
		return fmt.Errorf("rename cache file: %w", err)
	}

	c.bytes.Add(written)
	return nil
}

// Delete removes a cached entry.
func (c *Cache) Delete(dgst string) error {
	path, err := c.path(dgst)
	if err != nil {
		return err
	}
	root, err := os.OpenRoot(c.dir)
	if err != nil {
		return fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()
	return c.deleteByPath(root, path)
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes the oldest entries until the cache is at or below
// targetBytes. Returns the number of bytes freed.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	targetBytes = max(targetBytes, 0)
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

// path returns the cache-relative path for a digest.
func (c *Cache) path(dgst string) (string, error) {
	parsed, err := digest.Parse(dgst)
	if err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", dgst, err)
	}
	hexHash := parsed.Encoded()
	if _, err := hex.DecodeString(hexHash); err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", dgst, err)
	}
	if c.shardPrefixLen <= 0 {
		return hexHash, nil
	}
	prefixLen := min(c.shardPrefixLen, len(hexHash))
	return filepath.Join(hexHash[:prefixLen], hexHash), nil
}

func (c *Cache) ensureCapacity(need int64) (bool, error) {
	if c.maxBytes <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}

func (c *Cache) deleteByPath(root *os.Root, path string) error {
	info, err := root.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := root.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	c.bytes.Add(-info.Size())
	return nil
}

func digestMatches(dgst string, data []byte) (bool, error) {
	parsed, err := digest.Parse(dgst)
	if err != nil {
		return false, fmt.Errorf("parse digest %q: %w", dgst, err)
	}
	algo := parsed.Algorithm()
	if !algo.Available() {
		return false, fmt.Errorf("digest algorithm %q unavailable", algo)
	}
	return algo.FromBytes(data) == parsed, nil
}

// createTemp creates a uniquely named temp file in dir inside root.
func createTemp(root *os.Root, dir string) (*os.File, string, error) {
	for range 100 {
		var suffix [8]byte
		if _, err := rand.Read(suffix[:]); err != nil {
			return nil, "", err
		}
		path := filepath.Join(dir, tempPrefix+hex.EncodeToString(suffix[:]))
		f, err := root.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, path, nil
	}
	return nil, "", errors.New("failed to create temp file")
}
