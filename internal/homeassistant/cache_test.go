package homeassistant

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCachePutGet(t *testing.T) {
	c := NewMemoryCache(30 * time.Second)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "light.den"); ok {
		t.Fatal("empty cache returned an entry")
	}

	now := time.Now()
	c.Put(ctx, State{EntityID: "light.den", State: "on"}, now)

	entry, ok := c.Get(ctx, "light.den")
	if !ok {
		t.Fatal("entry missing after Put")
	}
	if entry.State.State != "on" {
		t.Errorf("state = %s, want on", entry.State.State)
	}
	if !entry.FetchedAt.Equal(now) {
		t.Errorf("fetched_at = %v, want %v", entry.FetchedAt, now)
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache(30 * time.Second)
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Put(ctx, State{EntityID: "sensor.temp", State: "21.5"}, current)

	current = current.Add(29 * time.Second)
	if _, ok := c.Get(ctx, "sensor.temp"); !ok {
		t.Error("entry expired before TTL")
	}

	current = current.Add(2 * time.Second)
	if _, ok := c.Get(ctx, "sensor.temp"); ok {
		t.Error("entry survived past TTL")
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	c.Put(ctx, State{EntityID: "switch.kettle", State: "on"}, time.Now())
	if err := c.Invalidate(ctx, "switch.kettle"); err != nil {
		t.Fatalf("Invalidate() = %v", err)
	}
	if _, ok := c.Get(ctx, "switch.kettle"); ok {
		t.Error("entry present after Invalidate")
	}

	// Invalidating an absent key is not an error.
	if err := c.Invalidate(ctx, "switch.kettle"); err != nil {
		t.Errorf("Invalidate(absent) = %v", err)
	}
}
