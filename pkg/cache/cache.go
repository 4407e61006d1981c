// Package cache stores raw directory responses between runs.
//
// The directory client keeps the body and Last-Modified stamp of every page it
// fetched. On the next run it sends If-Modified-Since and, when the server
// answers 304 Not Modified, decodes the stored body instead of downloading the
// document again.
//
// Two implementations are provided:
//   - [FileCache]: one JSON envelope per key under a directory
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
//
// Get returns (data, true, nil) on a hit and (nil, false, nil) on a miss;
// an error means the store itself failed. A TTL of 0 stores without expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
