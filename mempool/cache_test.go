package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLruCachePutGetHasDel(t *testing.T) {
	c := NewLruCache(3)

	tx1 := makeTx(t, "a", 0, 0)
	tx2 := makeTx(t, "b", 1, 0)
	tx3 := makeTx(t, "c", 2, 0)

	c.Put(tx1.ID, tx1)
	c.Put(tx2.ID, tx2)
	c.Put(tx3.ID, tx3)
	assert.Equal(t, 3, c.Size())

	assert.True(t, c.Has(tx1.ID))
	got, ok := c.Get(tx2.ID)
	require.True(t, ok)
	assert.Equal(t, tx2, got)

	assert.True(t, c.Del(tx3.ID))
	assert.False(t, c.Has(tx3.ID))
	assert.False(t, c.Del(tx3.ID))
}

func TestLruCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLruCache(2)

	tx1 := makeTx(t, "a", 0, 0)
	tx2 := makeTx(t, "b", 1, 0)
	tx3 := makeTx(t, "c", 2, 0)

	c.Put(tx1.ID, tx1)
	c.Put(tx2.ID, tx2)

	// Touch tx1 so tx2 becomes the least-recently-used entry.
	_, _ = c.Get(tx1.ID)

	c.Put(tx3.ID, tx3)

	assert.True(t, c.Has(tx1.ID))
	assert.False(t, c.Has(tx2.ID), "tx2 should have been evicted as least-recently-used")
	assert.True(t, c.Has(tx3.ID))
}

func TestLruCacheHasDoesNotPromote(t *testing.T) {
	c := NewLruCache(2)

	tx1 := makeTx(t, "a", 0, 0)
	tx2 := makeTx(t, "b", 1, 0)
	tx3 := makeTx(t, "c", 2, 0)

	c.Put(tx1.ID, tx1)
	c.Put(tx2.ID, tx2)

	// Has must not change eviction order.
	assert.True(t, c.Has(tx1.ID))

	c.Put(tx3.ID, tx3)

	assert.False(t, c.Has(tx1.ID), "Has must not promote tx1's recency")
	assert.True(t, c.Has(tx2.ID))
	assert.True(t, c.Has(tx3.ID))
}

func TestLruCacheKeysOldestToNewest(t *testing.T) {
	c := NewLruCache(3)
	tx1 := makeTx(t, "a", 0, 0)
	tx2 := makeTx(t, "b", 1, 0)
	tx3 := makeTx(t, "c", 2, 0)

	c.Put(tx1.ID, tx1)
	c.Put(tx2.ID, tx2)
	c.Put(tx3.ID, tx3)

	keys := c.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, []TxID{tx1.ID, tx2.ID, tx3.ID}, keys)
}
