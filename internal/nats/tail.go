package nats

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// consumerInactiveThreshold is how long the server keeps an idle
	// activity consumer.
	consumerInactiveThreshold = 30 * time.Second

	// tailIdle retires parked consumers well before the server reaps them.
	tailIdle = 20 * time.Second

	maxTails = 1024
)

type tailKey struct {
	sessionID string
	position  uint64
}

type tail struct {
	consumer jetstream.Consumer
	lastUsed time.Time
}

// tailCache parks pull consumers at the stream position a reader stopped
// at. A read that resumes from that position takes the consumer back
// instead of creating a new one.
type tailCache struct {
	mu    sync.Mutex
	idle  time.Duration
	limit int
	now   func() time.Time
	tails map[tailKey]tail
}

func newTailCache(idle time.Duration, limit int) *tailCache {
	return &tailCache{
		idle:  idle,
		limit: limit,
		now:   time.Now,
		tails: make(map[tailKey]tail),
	}
}

// take removes and returns the consumer parked at key.
func (c *tailCache) take(key tailKey) (jetstream.Consumer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tails[key]
	if !ok {
		return nil, false
	}
	delete(c.tails, key)
	if c.now().Sub(t.lastUsed) >= c.idle {
		return nil, false
	}
	return t.consumer, true
}

// put parks consumer at key. It returns the consumer that can no longer be
// reached: the one previously parked at key, or consumer itself when the
// cache is full.
func (c *tailCache) put(key tailKey, consumer jetstream.Consumer) jetstream.Consumer {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, exists := c.tails[key]
	if !exists && len(c.tails) >= c.limit {
		return consumer
	}
	c.tails[key] = tail{consumer: consumer, lastUsed: c.now()}
	if exists {
		return old.consumer
	}
	return nil
}

// prune drops and returns consumers idle for longer than the cache allows.
func (c *tailCache) prune() []jetstream.Consumer {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var stale []jetstream.Consumer
	for key, t := range c.tails {
		if now.Sub(t.lastUsed) >= c.idle {
			stale = append(stale, t.consumer)
			delete(c.tails, key)
		}
	}
	return stale
}

func (c *tailCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tails)
}
