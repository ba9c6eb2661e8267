package crypto

import (
	"sync/atomic"

	"github.com/NethermindEth/starknet-replay/core/felt"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultHasherCacheSize = 1 << 16

type pedersenKey struct {
	x, y felt.Felt
}

// Hasher memoises Pedersen hashes. Storage variable addresses of hot contracts
// (fee token balances in particular) are recomputed for every transaction, so
// each executor owns one of these for the lifetime of a run.
type Hasher struct {
	cache  *lru.Cache[pedersenKey, felt.Felt]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewHasher(size int) (*Hasher, error) {
	cache, err := lru.New[pedersenKey, felt.Felt](size)
	if err != nil {
		return nil, err
	}
	return &Hasher{cache: cache}, nil
}

func (h *Hasher) Pedersen(a, b *felt.Felt) *felt.Felt {
	key := pedersenKey{x: *a, y: *b}
	if res, ok := h.cache.Get(key); ok {
		h.hits.Add(1)
		return &res
	}

	h.misses.Add(1)
	result := Pedersen(a, b)
	h.cache.Add(key, *result)
	return result
}

// Stats returns the number of cache hits and misses so far
func (h *Hasher) Stats() (hits, misses uint64) {
	return h.hits.Load(), h.misses.Load()
}
