// Package interaction records every chat turn for user feedback. Each
// interaction lives in an ephemeral key/value store for 24 hours; a
// thumbs-up promotes it to the durable relational store, a thumbs-down
// removes it and records a negative-feedback row for analysis.
package interaction

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sutro/homeward/internal/toolcall"
)

// Feedback values.
const (
	FeedbackNone       = ""
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
)

// Interaction is one complete user turn: the message, how it was
// routed, which tools ran, and the final reply.
type Interaction struct {
	InteractionID string                     `json:"interaction_id"`
	SessionID     string                     `json:"session_id"`
	UserMessage   string                     `json:"user_message"`
	FinalResponse string                     `json:"final_response"`
	RoutingType   string                     `json:"routing_type"`
	ToolsUsed     []string                   `json:"tools_used"`
	ToolResults   map[string]toolcall.Result `json:"tool_results,omitempty"`
	LLMPayload    map[string]any             `json:"llm_payload,omitempty"`
	LLMResponse   string                     `json:"llm_response,omitempty"`
	DebugInfo     map[string]any             `json:"debug_info,omitempty"`
	Feedback      string                     `json:"feedback,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
}

// NewID returns a fresh interaction identifier: a random 128-bit UUID
// rendered as a compact hex string.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
