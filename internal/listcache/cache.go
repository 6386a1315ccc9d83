// Package listcache stores archive listings on disk, keyed by digest and
// compressed with zstd.
package listcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// Cache is a disk-backed listing cache.
// Entries are stored as <dir>/<algorithm>/<shard>/<hex>.
// The cache is safe for concurrent use.
type Cache struct {
	dir            string       // root directory for cached listings
	shardPrefixLen int          // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode  // permissions for created directories
	maxBytes       int64        // maximum cache size (0 = unlimited)
	bytes          atomic.Int64 // current total size of cached files
	pruneMu        sync.Mutex   // serializes prune operations

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Option configures a listing cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithMaxBytes sets the maximum cache size in bytes, measured after compression.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New creates a listing cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	c.enc = enc
	c.dec = dec
	return c, nil
}

// Get returns the listing stored under key.
// Unreadable or corrupt entries are reported as misses.
func (c *Cache) Get(key digest.Digest) ([]byte, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a validated digest
	if err != nil {
		return nil, false
	}
	listing, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false
	}
	return listing, true
}

// Put stores listing under key. Existing entries are kept.
func (c *Cache) Put(key digest.Digest, listing []byte) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if mkdirErr := os.MkdirAll(dir, c.dirPerm); mkdirErr != nil {
		return mkdirErr
	}

	data := c.enc.EncodeAll(listing, nil)
	written := int64(len(data))

	if ok, err := c.ensureCapacity(written); err != nil {
		return err
	} else if !ok {
		return nil
	}

	tmp, err := os.CreateTemp(dir, "listing-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	c.bytes.Add(written)
	return nil
}

// Delete removes the listing stored under key.
func (c *Cache) Delete(key digest.Digest) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	c.bytes.Add(-info.Size())
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes the oldest entries until the cache is at or below targetBytes.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

// Close releases the compression resources.
func (c *Cache) Close() error {
	c.dec.Close()
	return c.enc.Close()
}

func (c *Cache) path(key digest.Digest) (string, error) {
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("listing key %q: %w", key, err)
	}
	hexKey := key.Encoded()
	algDir := filepath.Join(c.dir, key.Algorithm().String())
	if c.shardPrefixLen <= 0 {
		return filepath.Join(algDir, hexKey), nil
	}
	prefixLen := min(c.shardPrefixLen, len(hexKey))
	return filepath.Join(algDir, hexKey[:prefixLen], hexKey), nil
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
