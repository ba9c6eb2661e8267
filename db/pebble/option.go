package pebble

import (
	"github.com/NethermindEth/starknet-replay/utils"
	"github.com/cockroachdb/pebble"
)

// minCacheSizeMB is pebble's own default block cache.
const minCacheSizeMB = 8

type Option func(*pebble.Options)

// WithCacheSize sizes the block cache in megabytes, never below pebble's
// default.
func WithCacheSize(cacheSizeMB uint) Option {
	return func(opts *pebble.Options) {
		opts.Cache = pebble.NewCache(int64(max(cacheSizeMB, minCacheSizeMB)) << 20)
	}
}

// WithLogger routes pebble's compaction and flush logging through log.
func WithLogger(log utils.Logger) Option {
	return func(opts *pebble.Options) {
		opts.Logger = log
	}
}
