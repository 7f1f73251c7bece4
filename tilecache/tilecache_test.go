package tilecache_test

import (
	"testing"

	"github.com/moleculax/tileengine/tilecache"
	"github.com/stretchr/testify/require"
)

func TestGetPutRoundTrip(t *testing.T) {
	c := tilecache.New(1 << 20)
	key := tilecache.Key{FragmentID: "f1", TileID: 3, AttrID: 0}
	c.Put(key, []byte("tile-bytes"))

	data, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "tile-bytes", string(data))
}

func TestEvictsOldestWhenOverBudget(t *testing.T) {
	c := tilecache.New(10)
	k1 := tilecache.Key{FragmentID: "f1", TileID: 1, AttrID: 0}
	k2 := tilecache.Key{FragmentID: "f1", TileID: 2, AttrID: 0}
	k3 := tilecache.Key{FragmentID: "f1", TileID: 3, AttrID: 0}

	c.Put(k1, make([]byte, 5))
	c.Put(k2, make([]byte, 5))
	require.Equal(t, 10, c.Bytes())

	c.Put(k3, make([]byte, 5))
	_, ok := c.Get(k1)
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get(k2)
	require.True(t, ok)
	_, ok = c.Get(k3)
	require.True(t, ok)
}

func TestPinnedEntryIsNeverEvicted(t *testing.T) {
	c := tilecache.New(10)
	pinned := tilecache.Key{FragmentID: "f1", TileID: 1, AttrID: 0}
	c.Put(pinned, make([]byte, 5))
	c.Pin(pinned)

	for i := 0; i < 5; i++ {
		c.Put(tilecache.Key{FragmentID: "f1", TileID: uint64(10 + i), AttrID: 0}, make([]byte, 5))
	}

	_, ok := c.Get(pinned)
	require.True(t, ok, "pinned entry must survive eviction pressure")

	// Unpin returns the entry to the LRU as its most recently used item, so
	// two further puts are needed before it is the oldest and gets evicted.
	c.Unpin(pinned)
	c.Put(tilecache.Key{FragmentID: "f1", TileID: 99, AttrID: 0}, make([]byte, 5))
	c.Put(tilecache.Key{FragmentID: "f1", TileID: 100, AttrID: 0}, make([]byte, 5))
	_, ok = c.Get(pinned)
	require.False(t, ok, "entry becomes evictable again once unpinned")
}

func TestNestedPinRequiresMatchingUnpins(t *testing.T) {
	c := tilecache.New(10)
	key := tilecache.Key{FragmentID: "f1", TileID: 1, AttrID: 0}
	c.Put(key, make([]byte, 5))
	c.Pin(key)
	c.Pin(key)
	c.Unpin(key)

	for i := 0; i < 5; i++ {
		c.Put(tilecache.Key{FragmentID: "f1", TileID: uint64(10 + i), AttrID: 0}, make([]byte, 5))
	}
	_, ok := c.Get(key)
	require.True(t, ok, "still pinned once")
}
