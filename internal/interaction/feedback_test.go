package interaction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/sutro/homeward/internal/toolcall"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memEphemeral is an in-memory Ephemeral for tests. persisted records
// which keys had their expiry removed.
type memEphemeral struct {
	entries   map[string]*Interaction
	persisted map[string]bool
}

func newMemEphemeral() *memEphemeral {
	return &memEphemeral{
		entries:   make(map[string]*Interaction),
		persisted: make(map[string]bool),
	}
}

func key(sessionID, interactionID string) string { return sessionID + ":" + interactionID }

func (m *memEphemeral) Log(ctx context.Context, in *Interaction) error {
	copied := *in
	m.entries[key(in.SessionID, in.InteractionID)] = &copied
	return nil
}

func (m *memEphemeral) Get(ctx context.Context, sessionID, interactionID string) (*Interaction, error) {
	in, ok := m.entries[key(sessionID, interactionID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *in
	return &copied, nil
}

func (m *memEphemeral) Persist(ctx context.Context, in *Interaction) error {
	copied := *in
	m.entries[key(in.SessionID, in.InteractionID)] = &copied
	m.persisted[key(in.SessionID, in.InteractionID)] = true
	return nil
}

func (m *memEphemeral) Delete(ctx context.Context, sessionID, interactionID string) error {
	delete(m.entries, key(sessionID, interactionID))
	return nil
}

// memDurable mimics the MySQL store's unique-key semantics.
type memDurable struct {
	interactions map[string]*Interaction
	negatives    []*Interaction
	saveCalls    int
}

func newMemDurable() *memDurable {
	return &memDurable{interactions: make(map[string]*Interaction)}
}

func (m *memDurable) SaveInteraction(ctx context.Context, in *Interaction) error {
	m.saveCalls++
	copied := *in
	// Unique on interaction_id: a repeat insert only updates feedback.
	m.interactions[in.InteractionID] = &copied
	return nil
}

func (m *memDurable) SaveNegativeFeedback(ctx context.Context, in *Interaction, reason string) error {
	copied := *in
	m.negatives = append(m.negatives, &copied)
	return nil
}

func sample() *Interaction {
	return &Interaction{
		InteractionID: NewID(),
		SessionID:     "s1",
		UserMessage:   "what time is it?",
		FinalResponse: "It is noon.",
		RoutingType:   "direct_shortcut",
		ToolsUsed:     []string{"get_network_time"},
		ToolResults: map[string]toolcall.Result{
			"get_network_time": toolcall.Success(map[string]any{"source": "system"}),
		},
	}
}

func TestThumbsUpPromotes(t *testing.T) {
	ephemeral := newMemEphemeral()
	durable := newMemDurable()
	svc := NewService(ephemeral, durable, testLogger())
	ctx := context.Background()

	in := sample()
	if err := svc.Log(ctx, in); err != nil {
		t.Fatalf("Log() = %v", err)
	}

	if err := svc.Apply(ctx, in.SessionID, in.InteractionID, FeedbackThumbsUp); err != nil {
		t.Fatalf("Apply() = %v", err)
	}

	// Durable row exists.
	saved, ok := durable.interactions[in.InteractionID]
	if !ok {
		t.Fatal("no durable row after thumbs_up")
	}
	if saved.Feedback != FeedbackThumbsUp {
		t.Errorf("feedback = %q, want thumbs_up", saved.Feedback)
	}

	// Ephemeral entry kept, expiry removed.
	if _, err := svc.Get(ctx, in.SessionID, in.InteractionID); err != nil {
		t.Errorf("ephemeral entry gone after thumbs_up: %v", err)
	}
	if !ephemeral.persisted[key(in.SessionID, in.InteractionID)] {
		t.Error("expiry not removed after thumbs_up")
	}
}

// TestThumbsUpIdempotent: applying thumbs_up twice is equivalent to
// once — the durable store stays unique on interaction_id.
func TestThumbsUpIdempotent(t *testing.T) {
	ephemeral := newMemEphemeral()
	durable := newMemDurable()
	svc := NewService(ephemeral, durable, testLogger())
	ctx := context.Background()

	in := sample()
	svc.Log(ctx, in)

	if err := svc.Apply(ctx, in.SessionID, in.InteractionID, FeedbackThumbsUp); err != nil {
		t.Fatalf("first Apply() = %v", err)
	}
	if err := svc.Apply(ctx, in.SessionID, in.InteractionID, FeedbackThumbsUp); err != nil {
		t.Fatalf("second Apply() = %v", err)
	}

	if len(durable.interactions) != 1 {
		t.Errorf("durable rows = %d, want 1", len(durable.interactions))
	}
}

func TestThumbsDownRemoves(t *testing.T) {
	ephemeral := newMemEphemeral()
	durable := newMemDurable()
	svc := NewService(ephemeral, durable, testLogger())
	ctx := context.Background()

	in := sample()
	svc.Log(ctx, in)

	if err := svc.Apply(ctx, in.SessionID, in.InteractionID, FeedbackThumbsDown); err != nil {
		t.Fatalf("Apply() = %v", err)
	}

	// Interaction absent from the ephemeral store after the call.
	if _, err := svc.Get(ctx, in.SessionID, in.InteractionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() err = %v, want ErrNotFound", err)
	}

	// Negative-feedback row captured before deletion.
	if len(durable.negatives) != 1 {
		t.Fatalf("negative rows = %d, want 1", len(durable.negatives))
	}
	if durable.negatives[0].UserMessage != in.UserMessage {
		t.Error("negative row lost the user message")
	}
	if len(durable.interactions) != 0 {
		t.Error("thumbs_down should not create an interactions row")
	}
}

func TestInvalidFeedbackValue(t *testing.T) {
	svc := NewService(newMemEphemeral(), newMemDurable(), testLogger())

	for _, bad := range []string{"", "meh", "THUMBS_UP", "up"} {
		err := svc.Apply(context.Background(), "s1", "x", bad)
		if !errors.Is(err, ErrInvalidFeedback) {
			t.Errorf("Apply(%q) err = %v, want ErrInvalidFeedback", bad, err)
		}
	}
}

func TestFeedbackUnknownInteraction(t *testing.T) {
	svc := NewService(newMemEphemeral(), newMemDurable(), testLogger())

	err := svc.Apply(context.Background(), "s1", "missing", FeedbackThumbsUp)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Apply() err = %v, want ErrNotFound", err)
	}
}

func TestNewIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewID()
		if len(id) != 32 {
			t.Fatalf("id length = %d, want 32", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
