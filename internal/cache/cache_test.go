package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwatchdog/marketdata/internal/marketdata"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(ttl time.Duration, maxSize int) (*Cache, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	c := New(ttl, maxSize)
	c.now = clk.Now
	return c, clk
}

func snap(symbol string) *marketdata.Snapshot {
	return &marketdata.Snapshot{Symbol: symbol}
}

func TestGetMissOnAbsentSymbol(t *testing.T) {
	c, _ := newTestCache(0, 0)
	_, ok := c.Get("7203")
	assert.False(t, ok)
}

func TestPutGetRoundTrip(t *testing.T) {
	c, clk := newTestCache(900*time.Second, 100)
	c.Put("7203", snap("7203"))

	clk.Advance(899 * time.Second)
	got, ok := c.Get("7203")
	require.True(t, ok)
	assert.Equal(t, "7203", got.Symbol)
}

func TestStaleEntryRemovedOnGet(t *testing.T) {
	c, clk := newTestCache(900*time.Second, 100)
	c.Put("7203", snap("7203"))

	clk.Advance(901 * time.Second)
	_, ok := c.Get("7203")
	assert.False(t, ok, "expired entry served as fresh")
	assert.Equal(t, 0, c.Len(), "expired entry should be removed on lookup")
}

func TestPutEvictsSingleOldest(t *testing.T) {
	c, clk := newTestCache(time.Hour, 3)

	c.Put("a", snap("a"))
	clk.Advance(time.Second)
	c.Put("b", snap("b"))
	clk.Advance(time.Second)
	c.Put("c", snap("c"))
	clk.Advance(time.Second)
	c.Put("d", snap("d"))

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	for _, sym := range []string{"b", "c", "d"} {
		_, ok := c.Get(sym)
		assert.True(t, ok, "entry %q evicted by mistake", sym)
	}
}

func TestOverwriteRefreshesAge(t *testing.T) {
	c, clk := newTestCache(time.Hour, 2)

	c.Put("a", snap("a"))
	clk.Advance(time.Second)
	c.Put("b", snap("b"))
	clk.Advance(time.Second)
	c.Put("a", snap("a")) // refresh: "b" is now the oldest
	clk.Advance(time.Second)
	c.Put("c", snap("c"))

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(time.Hour, 10)
	c.Put("a", snap("a"))
	c.Put("b", snap("b"))
	require.Equal(t, 2, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}
