package interaction

import (
	"context"
	"fmt"
	"log/slog"
)

// Ephemeral is the ephemeral-store surface the feedback service needs.
// Satisfied by [EphemeralStore]; faked in tests.
type Ephemeral interface {
	Log(ctx context.Context, in *Interaction) error
	Get(ctx context.Context, sessionID, interactionID string) (*Interaction, error)
	Persist(ctx context.Context, in *Interaction) error
	Delete(ctx context.Context, sessionID, interactionID string) error
}

// Durable is the relational-store surface the feedback service needs.
type Durable interface {
	SaveInteraction(ctx context.Context, in *Interaction) error
	SaveNegativeFeedback(ctx context.Context, in *Interaction, reason string) error
}

// ErrInvalidFeedback is returned for feedback values outside the
// thumbs_up/thumbs_down set.
var ErrInvalidFeedback = fmt.Errorf("feedback must be %q or %q", FeedbackThumbsUp, FeedbackThumbsDown)

// Service applies user feedback to logged interactions. durable may be
// nil when MySQL is not configured; feedback then only affects the
// ephemeral store.
type Service struct {
	ephemeral Ephemeral
	durable   Durable
	logger    *slog.Logger
}

// NewService creates the feedback service.
func NewService(ephemeral Ephemeral, durable Durable, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ephemeral: ephemeral, durable: durable, logger: logger}
}

// Log records a freshly completed interaction in the ephemeral store.
func (s *Service) Log(ctx context.Context, in *Interaction) error {
	return s.ephemeral.Log(ctx, in)
}

// Get loads an interaction from the ephemeral store.
func (s *Service) Get(ctx context.Context, sessionID, interactionID string) (*Interaction, error) {
	return s.ephemeral.Get(ctx, sessionID, interactionID)
}

// Apply processes a feedback verdict:
//
//   - thumbs_up copies the interaction into the durable store (unique
//     on interaction_id, so repeats are no-ops) and removes the
//     ephemeral expiry;
//   - thumbs_down records a negative-feedback row, then deletes the
//     ephemeral entry;
//   - anything else is ErrInvalidFeedback.
func (s *Service) Apply(ctx context.Context, sessionID, interactionID, feedback string) error {
	if feedback != FeedbackThumbsUp && feedback != FeedbackThumbsDown {
		return ErrInvalidFeedback
	}

	in, err := s.ephemeral.Get(ctx, sessionID, interactionID)
	if err != nil {
		return err
	}
	in.Feedback = feedback

	switch feedback {
	case FeedbackThumbsUp:
		if s.durable != nil {
			if err := s.durable.SaveInteraction(ctx, in); err != nil {
				return fmt.Errorf("promote interaction: %w", err)
			}
		}
		if err := s.ephemeral.Persist(ctx, in); err != nil {
			return fmt.Errorf("persist interaction: %w", err)
		}
		s.logger.Info("interaction promoted", "interaction_id", interactionID)

	case FeedbackThumbsDown:
		if s.durable != nil {
			if err := s.durable.SaveNegativeFeedback(ctx, in, "user gave thumbs down"); err != nil {
				return fmt.Errorf("record negative feedback: %w", err)
			}
		}
		if err := s.ephemeral.Delete(ctx, sessionID, interactionID); err != nil {
			return fmt.Errorf("remove interaction: %w", err)
		}
		s.logger.Info("interaction removed after thumbs down", "interaction_id", interactionID)
	}

	return nil
}
