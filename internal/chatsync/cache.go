package chatsync

import (
	"time"

	"github.com/soyeahso/duet/internal/domain"
)

// LoadState is the load progress of one cache key.
type LoadState int

const (
	NotLoaded LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "not_loaded"
	}
}

type cacheEntry struct {
	state    LoadState
	gen      uint64
	messages []domain.Message
	loadedAt time.Time
}

// messageCache tracks loads per conversationId:conversationName key. It is
// not safe for concurrent use; the synchronizer guards it with its mutex.
type messageCache struct {
	entries map[string]*cacheEntry
}

func newMessageCache() *messageCache {
	return &messageCache{entries: make(map[string]*cacheEntry)}
}

func (c *messageCache) entry(key string) *cacheEntry {
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	return e
}

func (c *messageCache) state(key string) LoadState {
	if e, ok := c.entries[key]; ok {
		return e.state
	}
	return NotLoaded
}

// begin moves key from NotLoaded to Loading and returns the generation the
// load must present when it finishes. It returns false with the current
// state when the key is already Loading or Loaded.
func (c *messageCache) begin(key string) (uint64, LoadState, bool) {
	e := c.entry(key)
	if e.state != NotLoaded {
		return 0, e.state, false
	}
	e.state = Loading
	return e.gen, Loading, true
}

// finish stores msgs if gen is still current and returns the sequence of
// the previous successful load, if any. A false return means the key was
// invalidated while the load was in flight and the result is stale.
func (c *messageCache) finish(key string, gen uint64, msgs []domain.Message, at time.Time) (prev []domain.Message, hadPrev bool, ok bool) {
	e := c.entry(key)
	if e.gen != gen || e.state != Loading {
		return nil, false, false
	}
	prev, hadPrev = e.messages, !e.loadedAt.IsZero()
	e.state = Loaded
	e.messages = msgs
	e.loadedAt = at
	return prev, hadPrev, true
}

// loadedAt returns when key last finished loading.
func (c *messageCache) loadedAt(key string) time.Time {
	if e, ok := c.entries[key]; ok {
		return e.loadedAt
	}
	return time.Time{}
}

// fail returns key to NotLoaded so a later request can retry.
func (c *messageCache) fail(key string, gen uint64) bool {
	e := c.entry(key)
	if e.gen != gen || e.state != Loading {
		return false
	}
	e.state = NotLoaded
	return true
}

// invalidate forgets key's loaded state and bumps its generation so any
// in-flight load is discarded.
func (c *messageCache) invalidate(key string) {
	e := c.entry(key)
	e.state = NotLoaded
	e.gen++
}
