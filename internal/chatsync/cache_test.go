package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/duet/internal/domain"
)

func TestCacheLifecycle(t *testing.T) {
	c := newMessageCache()
	key := domain.CacheKey("conv", "name")
	assert.Equal(t, NotLoaded, c.state(key))

	gen, state, ok := c.begin(key)
	require.True(t, ok)
	assert.Equal(t, Loading, state)

	_, state, ok = c.begin(key)
	assert.False(t, ok, "duplicate begin while loading")
	assert.Equal(t, Loading, state)

	now := time.Now()
	msgs := []domain.Message{{ID: "1"}}
	prev, hadPrev, ok := c.finish(key, gen, msgs, now)
	require.True(t, ok)
	assert.False(t, hadPrev)
	assert.Nil(t, prev)
	assert.Equal(t, Loaded, c.state(key))
	assert.Equal(t, now, c.loadedAt(key))

	_, state, ok = c.begin(key)
	assert.False(t, ok, "loaded keys are not reloaded")
	assert.Equal(t, Loaded, state)

	c.invalidate(key)
	gen, _, ok = c.begin(key)
	require.True(t, ok)
	prev, hadPrev, ok = c.finish(key, gen, nil, now)
	require.True(t, ok)
	assert.True(t, hadPrev)
	assert.Equal(t, msgs, prev)
}

func TestCacheFailureAllowsRetry(t *testing.T) {
	c := newMessageCache()
	gen, _, ok := c.begin("k")
	require.True(t, ok)

	assert.True(t, c.fail("k", gen))
	assert.Equal(t, NotLoaded, c.state("k"))

	_, _, ok = c.begin("k")
	assert.True(t, ok)
}

func TestCacheInvalidateDiscardsInFlight(t *testing.T) {
	c := newMessageCache()
	stale, _, ok := c.begin("k")
	require.True(t, ok)

	c.invalidate("k")
	fresh, _, ok := c.begin("k")
	require.True(t, ok)

	_, _, ok = c.finish("k", stale, []domain.Message{{ID: "old"}}, time.Now())
	assert.False(t, ok)
	assert.False(t, c.fail("k", stale))
	assert.Equal(t, Loading, c.state("k"))

	_, _, ok = c.finish("k", fresh, nil, time.Now())
	assert.True(t, ok)
	assert.Equal(t, Loaded, c.state("k"))
}

func TestCacheKeysAreIndependent(t *testing.T) {
	c := newMessageCache()
	_, _, ok := c.begin(domain.CacheKey("conv", "Alice & Bob"))
	require.True(t, ok)
	_, _, ok = c.begin(domain.CacheKey("conv", "Alicia & Bob"))
	assert.True(t, ok)
}

func TestLoadStateString(t *testing.T) {
	assert.Equal(t, "not_loaded", NotLoaded.String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "loaded", Loaded.String())
}
