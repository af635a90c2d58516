package interaction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ephemeralTTL bounds how long an unrated interaction is kept.
const ephemeralTTL = 24 * time.Hour

// ErrNotFound is returned when an interaction is absent from the
// ephemeral store (expired, deleted, or never logged).
var ErrNotFound = fmt.Errorf("interaction not found")

// EphemeralStore keeps recent interactions in Redis under
// interaction:{session_id}:{interaction_id}, plus a per-session index
// list. Single-writer semantics per key come from the store itself.
type EphemeralStore struct {
	rdb    redis.Cmdable
	logger *slog.Logger
}

// NewEphemeralStore creates the store.
func NewEphemeralStore(rdb redis.Cmdable, logger *slog.Logger) *EphemeralStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &EphemeralStore{rdb: rdb, logger: logger}
}

func interactionKey(sessionID, interactionID string) string {
	return fmt.Sprintf("interaction:%s:%s", sessionID, interactionID)
}

func sessionIndexKey(sessionID string) string {
	return "interactions:" + sessionID
}

// Log writes an interaction with the 24h expiry and appends it to the
// session index.
func (s *EphemeralStore) Log(ctx context.Context, in *Interaction) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}

	key := interactionKey(in.SessionID, in.InteractionID)
	if err := s.rdb.Set(ctx, key, raw, ephemeralTTL).Err(); err != nil {
		return fmt.Errorf("store interaction: %w", err)
	}

	idx := sessionIndexKey(in.SessionID)
	if err := s.rdb.LPush(ctx, idx, in.InteractionID).Err(); err != nil {
		s.logger.Warn("session index push failed", "session_id", in.SessionID, "error", err)
	} else if err := s.rdb.Expire(ctx, idx, ephemeralTTL).Err(); err != nil {
		s.logger.Warn("session index expire failed", "session_id", in.SessionID, "error", err)
	}

	return nil
}

// Get loads an interaction, returning ErrNotFound when absent.
func (s *EphemeralStore) Get(ctx context.Context, sessionID, interactionID string) (*Interaction, error) {
	raw, err := s.rdb.Get(ctx, interactionKey(sessionID, interactionID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load interaction: %w", err)
	}

	var in Interaction
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("decode interaction: %w", err)
	}
	return &in, nil
}

// Persist rewrites an interaction with no expiry, so it outlives the
// 24h window after a thumbs-up.
func (s *EphemeralStore) Persist(ctx context.Context, in *Interaction) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}
	key := interactionKey(in.SessionID, in.InteractionID)
	if err := s.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("persist interaction: %w", err)
	}
	return nil
}

// Delete removes an interaction after a thumbs-down. Deleting an
// already-absent key is not an error.
func (s *EphemeralStore) Delete(ctx context.Context, sessionID, interactionID string) error {
	if err := s.rdb.Del(ctx, interactionKey(sessionID, interactionID)).Err(); err != nil {
		return fmt.Errorf("delete interaction: %w", err)
	}
	return nil
}
