package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

type fakeConsumer struct {
	jetstream.Consumer
	name string
}

func (f *fakeConsumer) CachedInfo() *jetstream.ConsumerInfo {
	return &jetstream.ConsumerInfo{Name: f.name}
}

func newTestTails(limit int) (*tailCache, *time.Time) {
	now := time.Date(2025, 11, 24, 9, 0, 0, 0, time.UTC)
	c := newTailCache(tailIdle, limit)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestTailCacheResumesFromParkedPosition(t *testing.T) {
	c, _ := newTestTails(4)
	a := &fakeConsumer{name: "a"}

	if _, ok := c.take(tailKey{"s1", 0}); ok {
		t.Fatal("empty cache returned a consumer")
	}
	if displaced := c.put(tailKey{"s1", 12}, a); displaced != nil {
		t.Fatalf("displaced = %v", displaced)
	}

	if _, ok := c.take(tailKey{"s1", 11}); ok {
		t.Error("consumer parked at 12 must not serve a read after 11")
	}
	if _, ok := c.take(tailKey{"s2", 12}); ok {
		t.Error("consumer must not cross sessions")
	}

	got, ok := c.take(tailKey{"s1", 12})
	if !ok || got != a {
		t.Fatalf("take = %v, %v", got, ok)
	}
	if _, ok := c.take(tailKey{"s1", 12}); ok {
		t.Error("a taken consumer must not be handed out twice")
	}
	if c.len() != 0 {
		t.Errorf("len = %d", c.len())
	}
}

func TestTailCacheDisplacesAndBounds(t *testing.T) {
	c, _ := newTestTails(2)
	a, b, d := &fakeConsumer{name: "a"}, &fakeConsumer{name: "b"}, &fakeConsumer{name: "d"}

	c.put(tailKey{"s1", 5}, a)
	if displaced := c.put(tailKey{"s1", 5}, b); displaced != a {
		t.Errorf("displaced = %v, want a", displaced)
	}
	c.put(tailKey{"s2", 1}, a)
	if rejected := c.put(tailKey{"s3", 1}, d); rejected != d {
		t.Errorf("full cache should hand back the new consumer, got %v", rejected)
	}
	if c.len() != 2 {
		t.Errorf("len = %d", c.len())
	}
}

func TestTailCachePrunesIdleConsumers(t *testing.T) {
	c, now := newTestTails(4)
	old, fresh := &fakeConsumer{name: "old"}, &fakeConsumer{name: "fresh"}

	c.put(tailKey{"s1", 3}, old)
	*now = now.Add(tailIdle / 2)
	c.put(tailKey{"s2", 7}, fresh)
	*now = now.Add(tailIdle / 2)

	stale := c.prune()
	if len(stale) != 1 || stale[0] != old {
		t.Fatalf("prune = %v", stale)
	}
	if got, ok := c.take(tailKey{"s2", 7}); !ok || got != fresh {
		t.Errorf("fresh consumer lost: %v, %v", got, ok)
	}

	c.put(tailKey{"s1", 9}, old)
	*now = now.Add(tailIdle)
	if _, ok := c.take(tailKey{"s1", 9}); ok {
		t.Error("idle consumer must not be reused")
	}
}

func TestTailIdleBeatsServerThreshold(t *testing.T) {
	if tailIdle >= consumerInactiveThreshold {
		t.Errorf("tailIdle %s must be below the server threshold %s", tailIdle, consumerInactiveThreshold)
	}
}
