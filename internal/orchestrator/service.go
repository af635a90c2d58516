package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sutro/homeward/internal/interaction"
	"github.com/sutro/homeward/internal/llm"
	"github.com/sutro/homeward/internal/toolcall"
)

// ToolGateway is the tool server surface the chat service needs.
type ToolGateway interface {
	ListTools(ctx context.Context) ([]toolcall.Descriptor, error)
	CallTool(ctx context.Context, toolName string, arguments map[string]any, sessionID string) toolcall.Result
}

// Generator is the LLM surface the chat service needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*llm.GenerateResult, error)
	Model() string
}

// InteractionSink records completed turns for feedback.
type InteractionSink interface {
	Log(ctx context.Context, in *interaction.Interaction) error
}

// ChatResponse is the reply for one user turn.
type ChatResponse struct {
	Response      string         `json:"response"`
	ToolsUsed     []string       `json:"tools_used"`
	SessionID     string         `json:"session_id"`
	Timestamp     string         `json:"timestamp"`
	InteractionID string         `json:"interaction_id"`
	Debug         map[string]any `json:"debug,omitempty"`
}

// ChatService orchestrates routing, tool execution, LLM calls, and
// interaction logging for each user message.
type ChatService struct {
	gateway ToolGateway
	llm     Generator
	sink    InteractionSink
	logger  *slog.Logger

	// descriptors is the tool list fetched at startup; refreshed when
	// empty so a late-starting tool server still gets picked up.
	descriptors []toolcall.Descriptor
}

// NewChatService creates the orchestrating service.
func NewChatService(gateway ToolGateway, generator Generator, sink InteractionSink, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		gateway: gateway,
		llm:     generator,
		sink:    sink,
		logger:  logger,
	}
}

// Initialize fetches the tool list from the tool server. Failure is
// not fatal; the list is re-fetched lazily.
func (s *ChatService) Initialize(ctx context.Context) {
	descriptors, err := s.gateway.ListTools(ctx)
	if err != nil {
		s.logger.Warn("could not load tool list", "error", err)
		return
	}
	s.descriptors = descriptors
	s.logger.Info("tool list loaded", "count", len(descriptors))
}

func (s *ChatService) tools(ctx context.Context) []toolcall.Descriptor {
	if len(s.descriptors) == 0 {
		s.Initialize(ctx)
	}
	return s.descriptors
}

// Tools returns the currently known tool descriptors.
func (s *ChatService) Tools(ctx context.Context) []toolcall.Descriptor {
	return s.tools(ctx)
}

// ProcessMessage runs one user turn: shortcut or LLM routing, tool
// dispatch, reply synthesis, and interaction logging. Exactly one
// routing type is recorded per message.
func (s *ChatService) ProcessMessage(ctx context.Context, message, sessionID string) (*ChatResponse, error) {
	interactionID := interaction.NewID()
	createdAt := time.Now().UTC()

	var in *interaction.Interaction
	if shortcut := DecideRoute(message); shortcut != nil {
		in = s.processShortcut(ctx, message, sessionID, shortcut)
	} else {
		var err error
		in, err = s.processLLM(ctx, message, sessionID)
		if err != nil {
			return nil, err
		}
	}

	in.InteractionID = interactionID
	in.CreatedAt = createdAt

	if s.sink != nil {
		if err := s.sink.Log(ctx, in); err != nil {
			s.logger.Error("interaction log failed", "interaction_id", interactionID, "error", err)
		}
	}

	return &ChatResponse{
		Response:      in.FinalResponse,
		ToolsUsed:     in.ToolsUsed,
		SessionID:     sessionID,
		Timestamp:     createdAt.Format(time.RFC3339),
		InteractionID: interactionID,
		Debug:         in.DebugInfo,
	}, nil
}

// processShortcut executes a direct tool call, bypassing the LLM.
func (s *ChatService) processShortcut(ctx context.Context, message, sessionID string, shortcut *Shortcut) *interaction.Interaction {
	s.logger.Info("shortcut routing",
		"pattern", shortcut.Pattern,
		"tool", shortcut.ToolName,
		"session_id", sessionID,
	)

	result := s.gateway.CallTool(ctx, shortcut.ToolName, shortcut.Arguments, sessionID)
	response := renderShortcutReply(shortcut.ToolName, result)

	return &interaction.Interaction{
		SessionID:     sessionID,
		UserMessage:   message,
		FinalResponse: response,
		RoutingType:   RouteDirectShortcut,
		ToolsUsed:     []string{shortcut.ToolName},
		ToolResults:   map[string]toolcall.Result{shortcut.ToolName: result},
		DebugInfo: map[string]any{
			"routing":           RouteDirectShortcut,
			"explanation":       "direct routing bypassed the LLM entirely",
			"pattern_matched":   shortcut.Pattern,
			"keywords_detected": shortcut.Keywords,
			"extracted_params":  shortcut.Extracted,
			"tool_call": map[string]any{
				"tool_name": shortcut.ToolName,
				"arguments": shortcut.Arguments,
			},
		},
	}
}

// processLLM runs the USE_TOOL pipeline: first pass to decide on tools,
// dispatch in emitted order, then a synthesis pass over the results.
func (s *ChatService) processLLM(ctx context.Context, message, sessionID string) (*interaction.Interaction, error) {
	descriptors := s.tools(ctx)

	first, err := s.llm.Generate(ctx, llm.BuildToolPrompt(message, descriptors))
	if err != nil {
		return nil, fmt.Errorf("llm first pass: %w", err)
	}

	calls, parseFailures := llm.ParseUseToolLines(first.Response)
	calls, rejected := s.filterKnown(calls, descriptors)

	debug := map[string]any{
		"initial_prompt":       first.FullPrompt,
		"initial_llm_response": first.Response,
		"model":                s.llm.Model(),
	}
	if len(parseFailures) > 0 {
		debug["parse_failures"] = parseFailures
	}
	if len(rejected) > 0 {
		debug["unknown_tools"] = rejected
	}

	if len(calls) == 0 {
		// Conversational reply, returned verbatim.
		debug["routing"] = RouteLLMOnly
		return &interaction.Interaction{
			SessionID:     sessionID,
			UserMessage:   message,
			FinalResponse: first.Response,
			RoutingType:   RouteLLMOnly,
			ToolsUsed:     []string{},
			LLMPayload:    map[string]any{"prompt": first.FullPrompt},
			LLMResponse:   first.Response,
			DebugInfo:     debug,
		}, nil
	}

	// Dispatch in the order the calls appeared; the transcript keeps
	// the same order for the synthesis pass.
	var toolsUsed []string
	toolResults := make(map[string]toolcall.Result, len(calls))
	var transcript strings.Builder
	for _, call := range calls {
		s.logger.Info("llm tool call", "tool", call.ToolName, "session_id", sessionID)
		result := s.gateway.CallTool(ctx, call.ToolName, call.Arguments, sessionID)
		toolsUsed = append(toolsUsed, call.ToolName)
		toolResults[call.ToolName] = result
		fmt.Fprintf(&transcript, "%s: %s\n", call.ToolName, result.String())
	}

	synthesis, err := s.llm.Generate(ctx, llm.BuildSynthesisPrompt(message, transcript.String()))
	if err != nil {
		return nil, fmt.Errorf("llm synthesis pass: %w", err)
	}

	debug["routing"] = RouteLLMWithTools
	debug["tools_used"] = toolsUsed
	debug["final_prompt"] = synthesis.FullPrompt
	debug["final_llm_response"] = synthesis.Response

	return &interaction.Interaction{
		SessionID:     sessionID,
		UserMessage:   message,
		FinalResponse: synthesis.Response,
		RoutingType:   RouteLLMWithTools,
		ToolsUsed:     toolsUsed,
		ToolResults:   toolResults,
		LLMPayload: map[string]any{
			"initial_prompt": first.FullPrompt,
			"final_prompt":   synthesis.FullPrompt,
		},
		LLMResponse: fmt.Sprintf("Initial: %s\nFinal: %s", first.Response, synthesis.Response),
		DebugInfo:   debug,
	}, nil
}

// filterKnown drops calls naming tools the server does not publish.
func (s *ChatService) filterKnown(calls []llm.ParsedCall, descriptors []toolcall.Descriptor) ([]llm.ParsedCall, []string) {
	known := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		known[d.Name] = true
	}

	kept := calls[:0]
	var rejected []string
	for _, call := range calls {
		if known[call.ToolName] {
			kept = append(kept, call)
		} else {
			rejected = append(rejected, call.ToolName)
		}
	}
	return kept, rejected
}
