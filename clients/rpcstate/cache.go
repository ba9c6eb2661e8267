package rpcstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/starknet-replay/db"
	"github.com/NethermindEth/starknet-replay/encoder"
	"github.com/NethermindEth/starknet-replay/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCompressionThreshold = 4 << 10
	DefaultMemoryEntries        = 1 << 16
	classMethod                 = "starknet_getClass"
)

type cacheKey [blake2b.Size256]byte

// cacheEntry is a call's answer: either a result or a not-found error.
// Other failures are never cached.
type cacheEntry struct {
	Code       int    `cbor:"1,keyasint,omitempty"`
	Message    string `cbor:"2,keyasint,omitempty"`
	Compressed bool   `cbor:"3,keyasint,omitempty"`
	Result     []byte `cbor:"4,keyasint,omitempty"`
}

func (e *cacheEntry) decode(method string, result any) error {
	if e.Code != 0 {
		return &CallError{Method: method, Code: e.Code, Err: errors.New(e.Message)}
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(e.Result, result)
}

// Cache memoises answers for pinned blocks, in memory and optionally in a
// persistent store. It is shared by every worker of a run and is safe for
// concurrent use.
type Cache struct {
	memory               *lru.Cache[cacheKey, *cacheEntry]
	store                db.KeyValueStore
	group                singleflight.Group
	compressionThreshold int
	log                  utils.SimpleLogger
	listener             EventListener
}

// NewCache creates a cache holding up to memEntries answers in memory. store
// may be nil for a memory only cache.
func NewCache(store db.KeyValueStore, memEntries int) (*Cache, error) {
	memory, err := lru.New[cacheKey, *cacheEntry](memEntries)
	if err != nil {
		return nil, fmt.Errorf("memory tier: %w", err)
	}
	return &Cache{
		memory:               memory,
		store:                store,
		compressionThreshold: DefaultCompressionThreshold,
		log:                  utils.NewNopZapLogger(),
		listener:             &SelectiveListener{},
	}, nil
}

func (c *Cache) WithLogger(log utils.SimpleLogger) *Cache {
	c.log = log
	return c
}

func (c *Cache) WithListener(l EventListener) *Cache {
	c.listener = l
	return c
}

// WithCompressionThreshold sets the result size above which persisted entries
// are zstd compressed. Classes are always compressed.
func (c *Cache) WithCompressionThreshold(size int) *Cache {
	c.compressionThreshold = size
	return c
}

// Caller wraps inner so its answers are cached under endpoint.
func (c *Cache) Caller(endpoint string, inner Caller) Caller {
	return &cachedCaller{cache: c, endpoint: endpoint, inner: inner}
}

type cachedCaller struct {
	cache    *Cache
	endpoint string
	inner    Caller
}

func (cc *cachedCaller) Call(ctx context.Context, result any, block BlockID, method string, args ...any) error {
	c := cc.cache
	if !block.Cacheable() {
		c.listener.OnCacheLookup(method, CacheBypass)
		return cc.inner.Call(ctx, result, block, method, args...)
	}

	key, err := cc.key(block, method, args)
	if err != nil {
		return err
	}
	if entry, outcome := c.load(key); entry != nil {
		c.listener.OnCacheLookup(method, outcome)
		return entry.decode(method, result)
	}
	c.listener.OnCacheLookup(method, CacheMiss)

	leader := false
	v, err, _ := c.group.Do(string(key[:]), func() (any, error) {
		leader = true
		return cc.fetch(ctx, key, block, method, args)
	})
	// A waiter does not inherit the leader's transient failure or cancellation.
	if err != nil && !leader && ctx.Err() == nil &&
		(IsTransient(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		v, err = cc.fetch(ctx, key, block, method, args)
	}
	if err != nil {
		return err
	}
	return v.(*cacheEntry).decode(method, result)
}

func (cc *cachedCaller) key(block BlockID, method string, args []any) (cacheKey, error) {
	params, err := json.Marshal(args)
	if err != nil {
		return cacheKey{}, fmt.Errorf("encode %s params: %w", method, err)
	}
	hash, err := blake2b.New256(nil)
	if err != nil {
		return cacheKey{}, err
	}
	for _, part := range [][]byte{[]byte(cc.endpoint), []byte(block.String()), []byte(method), params} {
		hash.Write(part)
		hash.Write([]byte{0})
	}

	var key cacheKey
	hash.Sum(key[:0])
	return key, nil
}

func (cc *cachedCaller) fetch(ctx context.Context, key cacheKey, block BlockID, method string, args []any) (*cacheEntry, error) {
	var raw json.RawMessage
	err := cc.inner.Call(ctx, &raw, block, method, args...)
	if err != nil {
		var callErr *CallError
		if errors.As(err, &callErr) && callErr.NotFound() {
			cc.cache.save(key, method, &cacheEntry{Code: callErr.Code, Message: callErr.Err.Error()})
		}
		return nil, err
	}

	entry := &cacheEntry{Result: raw}
	cc.cache.save(key, method, entry)
	return entry, nil
}

func (c *Cache) load(key cacheKey) (*cacheEntry, CacheOutcome) {
	if entry, ok := c.memory.Get(key); ok {
		return entry, CacheMemory
	}
	if c.store == nil {
		return nil, CacheMiss
	}

	entry := new(cacheEntry)
	err := c.store.Get(key[:], func(value []byte) error {
		return encoder.Unmarshal(value, entry)
	})
	if err == nil && entry.Compressed {
		entry.Result, err = utils.ZstdDecompress(entry.Result)
		entry.Compressed = false
	}
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.log.Warnw("Ignoring unreadable cache entry", "key", fmt.Sprintf("%x", key), "err", err)
		}
		return nil, CacheMiss
	}

	c.memory.Add(key, entry)
	return entry, CacheDisk
}

// save never fails the call: a cache that cannot persist only costs refetches.
func (c *Cache) save(key cacheKey, method string, entry *cacheEntry) {
	c.memory.Add(key, entry)
	if c.store == nil {
		return
	}

	persisted := *entry
	if len(entry.Result) > c.compressionThreshold || (method == classMethod && len(entry.Result) > 0) {
		compressed, err := utils.ZstdCompress(entry.Result)
		if err != nil {
			c.log.Warnw("Failed to compress cache entry", "method", method, "err", err)
			return
		}
		persisted.Result = compressed
		persisted.Compressed = true
	}

	data, err := encoder.Marshal(&persisted)
	if err == nil {
		err = c.store.Put(key[:], data)
	}
	if err != nil {
		c.log.Warnw("Failed to persist cache entry", "method", method, "err", err)
	}
}
