// Package cache keeps resolver results for a while so repeated runs do not
// refetch the same market data.
package cache

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dyike/IndexGo/config"
)

// Store is a byte-valued key/value store with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Key derives a cache key from an operation, its arguments and the time
// bucket of width ttl containing now. Argument order does not matter.
func Key(operation string, args []string, ttl time.Duration, now time.Time) string {
	sorted := append([]string(nil), args...)
	sort.Strings(sorted)
	hash := md5.Sum([]byte(strings.Join(sorted, "\x00")))

	var bucket int64
	if ttl > 0 {
		bucket = now.UnixNano() / int64(ttl)
	}
	return fmt.Sprintf("%s_%x_%d", operation, hash, bucket)
}

// Purger is implemented by stores that keep expired entries until asked to
// drop them.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Open returns the store configured by cfg. A disabled cache is a Noop.
func Open(cfg *config.Config) (Store, error) {
	if !cfg.CacheEnabled {
		return Noop{}, nil
	}
	switch strings.ToLower(cfg.CacheBackend) {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(cfg.DataCacheDir), nil
	case "sqlite":
		return NewSQLite(filepath.Join(cfg.DataCacheDir, "cache.db"))
	case "none":
		return Noop{}, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// Noop stores nothing.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error)          { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Close() error                                              { return nil }

var errClosed = errors.New("cache: store closed")
