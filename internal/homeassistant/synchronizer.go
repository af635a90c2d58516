package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Health states reported by the synchronizer.
const (
	HealthNotConfigured = "not_configured"
	HealthConfigured    = "configured"
	HealthConnected     = "connected"
	HealthDisconnected  = "disconnected"
)

// defaultSettleDelay is how long CallService waits after a successful
// service call for Home Assistant to publish the resulting state before
// refetching.
const defaultSettleDelay = 500 * time.Millisecond

// Synchronizer maintains a near-real-time read model of Home Assistant
// entities. It is the only writer to the state cache: the event path
// upserts entries as state_changed events arrive, the read path fills
// misses from REST, and the write path invalidates then refetches
// around every command.
type Synchronizer struct {
	client *Client
	ws     *WSClient
	cache  StateCache
	ttl    time.Duration
	settle time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithSettleDelay overrides the post-command settle delay.
func WithSettleDelay(d time.Duration) SyncOption {
	return func(s *Synchronizer) { s.settle = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SyncOption {
	return func(s *Synchronizer) { s.now = now }
}

// NewSynchronizer creates a synchronizer. client and ws may be nil when
// Home Assistant is not configured; every operation then returns
// [ErrNotConfigured].
func NewSynchronizer(client *Client, ws *WSClient, cache StateCache, ttl time.Duration, logger *slog.Logger, opts ...SyncOption) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synchronizer{
		client: client,
		ws:     ws,
		cache:  cache,
		ttl:    ttl,
		settle: defaultSettleDelay,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ErrNotConfigured is returned by every operation when no Home
// Assistant token was provided at startup.
var ErrNotConfigured = fmt.Errorf("home assistant not configured: set HA_URL and HA_TOKEN")

// Configured reports whether a Home Assistant client is available.
func (s *Synchronizer) Configured() bool {
	return s.client != nil
}

// Health returns the connection state for the health endpoint.
func (s *Synchronizer) Health() string {
	switch {
	case s.client == nil:
		return HealthNotConfigured
	case s.ws == nil:
		return HealthConfigured
	case s.ws.Connected():
		return HealthConnected
	case s.ws.everConnected.Load():
		return HealthDisconnected
	default:
		return HealthConfigured
	}
}

// CacheBackend identifies the cache implementation for /health.
func (s *Synchronizer) CacheBackend() string {
	if s.cache == nil {
		return "none"
	}
	return s.cache.Backend()
}

// Run starts the WebSocket supervisor and consumes its events, applying
// each state change to the cache. Blocks until ctx is cancelled. Safe
// to skip entirely when unconfigured.
func (s *Synchronizer) Run(ctx context.Context) {
	if s.ws == nil {
		return
	}

	go s.ws.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.ws.Events():
			if !ok {
				return
			}
			s.applyEvent(ctx, ev)
		}
	}
}

// applyEvent upserts a state_changed event into the cache. The event
// path is the only writer that bumps entries forward without a paired
// REST fetch.
func (s *Synchronizer) applyEvent(ctx context.Context, ev Event) {
	if ev.Type != "state_changed" || s.cache == nil {
		return
	}

	var data StateChangedData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		s.logger.Debug("failed to unmarshal state_changed data", "error", err)
		return
	}

	// NewState is nil when an entity is removed; evict rather than cache
	// a synthetic tombstone.
	if data.NewState == nil {
		if err := s.cache.Invalidate(ctx, data.EntityID); err != nil {
			s.logger.Warn("evict removed entity failed", "entity_id", data.EntityID, "error", err)
		}
		return
	}

	fetchedAt := ev.TimeFired
	if fetchedAt.IsZero() {
		fetchedAt = s.now()
	}
	s.cache.Put(ctx, *data.NewState, fetchedAt)
}

// GetState returns the state for an entity, serving from cache when the
// entry is younger than the TTL and falling back to a REST fetch
// otherwise. The returned CachedState records when the state was fetched.
func (s *Synchronizer) GetState(ctx context.Context, entityID string) (*CachedState, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	if s.cache != nil {
		if entry, ok := s.cache.Get(ctx, entityID); ok {
			return entry, nil
		}
	}

	state, err := s.client.GetState(ctx, entityID)
	if err != nil {
		return nil, err
	}

	fetchedAt := s.now()
	if s.cache != nil {
		s.cache.Put(ctx, *state, fetchedAt)
	}
	return &CachedState{State: *state, FetchedAt: fetchedAt}, nil
}

// ListStates fetches the bulk state endpoint, caches every result, and
// applies the domain and name filters in memory.
func (s *Synchronizer) ListStates(ctx context.Context, domain, nameFilter string) ([]State, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	states, err := s.client.GetStates(ctx, domain)
	if err != nil {
		return nil, err
	}

	fetchedAt := s.now()
	if s.cache != nil {
		for i := range states {
			s.cache.Put(ctx, states[i], fetchedAt)
		}
	}

	if nameFilter != "" {
		states = ResolveByName(nameFilter, states)
	}
	return states, nil
}

// CallService executes a command against an entity and keeps the cache
// coherent: the service call returns before the cache entry is
// invalidated, invalidation completes before the post-settle refetch,
// and the returned state reflects the refetch. If the refetch fails the
// entry stays invalidated, so the next read is guaranteed fresh.
func (s *Synchronizer) CallService(ctx context.Context, domain, service, entityID string, extra map[string]any) (*CachedState, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	data := map[string]any{"entity_id": entityID}
	for k, v := range extra {
		data[k] = v
	}

	if err := s.client.CallService(ctx, domain, service, data); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, entityID); err != nil {
			// Already logged and counted by the cache; the stale entry
			// will age out within one TTL.
			s.logger.Warn("post-command invalidation failed", "entity_id", entityID, "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.settle):
	}

	state, err := s.client.GetState(ctx, entityID)
	if err != nil {
		// Command succeeded; only the refresh failed. The cache stays
		// invalidated so the next read fetches fresh.
		s.logger.Warn("post-command refetch failed", "entity_id", entityID, "error", err)
		return nil, nil
	}

	fetchedAt := s.now()
	if s.cache != nil {
		s.cache.Put(ctx, *state, fetchedAt)
	}
	return &CachedState{State: *state, FetchedAt: fetchedAt}, nil
}

// ResolveTargets finds the entities a name filter refers to within a
// domain. For lights with no match it retries against switches (lamps
// are often plugged into smart switches); the returned domain is the
// one actually matched so callers can narrate truthfully.
func (s *Synchronizer) ResolveTargets(ctx context.Context, domain, nameFilter string) ([]State, string, error) {
	if s.client == nil {
		return nil, "", ErrNotConfigured
	}

	states, err := s.client.GetStates(ctx, domain)
	if err != nil {
		return nil, "", err
	}
	matches := ResolveByName(nameFilter, states)
	if len(matches) > 0 {
		return matches, domain, nil
	}

	if domain == "light" {
		switches, err := s.client.GetStates(ctx, "switch")
		if err != nil {
			return nil, "", err
		}
		matches = ResolveByName(nameFilter, switches)
		if len(matches) > 0 {
			return matches, "switch", nil
		}
	}

	return nil, domain, nil
}
