package mempool

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LruCache is the tx admission filter (C7): a capacity-bounded, recency-ordered
// seen-before cache keyed by tx id. put/get follow LRU recency; has is a
// read-through probe that never disturbs ordering.
type LruCache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[TxID, *Tx]
}

// NewLruCache creates an LruCache holding up to capacity entries. capacity < 1
// is treated as 1, matching simplelru's own minimum.
func NewLruCache(capacity int) *LruCache {
	if capacity < 1 {
		capacity = 1
	}
	lru, err := simplelru.NewLRU[TxID, *Tx](capacity, nil)
	if err != nil {
		panic("mempool: failed to construct LruCache: " + err.Error())
	}
	return &LruCache{lru: lru}
}

// Put inserts or refreshes id as most-recently-used, evicting the least-recent
// entry if the cache is over capacity.
func (c *LruCache) Put(id TxID, tx *Tx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(id, tx)
}

// Get returns the tx cached under id, marking it most-recently-used on a hit.
func (c *LruCache) Get(id TxID) (*Tx, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(id)
}

// Has reports whether id is cached without affecting recency order.
func (c *LruCache) Has(id TxID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(id)
}

// Del removes id from the cache, reporting whether it was present.
func (c *LruCache) Del(id TxID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(id)
}

// Size returns the number of entries currently cached.
func (c *LruCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns every cached id, oldest to newest — the order eviction follows.
func (c *LruCache) Keys() []TxID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}
