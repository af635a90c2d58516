package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sutro/homeward/internal/interaction"
	"github.com/sutro/homeward/internal/llm"
	"github.com/sutro/homeward/internal/toolcall"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway records calls and returns canned results per tool.
type fakeGateway struct {
	descriptors []toolcall.Descriptor
	results     map[string]toolcall.Result
	calls       []string
}

func (f *fakeGateway) ListTools(ctx context.Context) ([]toolcall.Descriptor, error) {
	return f.descriptors, nil
}

func (f *fakeGateway) CallTool(ctx context.Context, toolName string, arguments map[string]any, sessionID string) toolcall.Result {
	f.calls = append(f.calls, toolName)
	if result, ok := f.results[toolName]; ok {
		return result
	}
	return toolcall.Error(toolcall.ErrUnknownTool, "unknown tool: "+toolName)
}

// fakeGenerator returns scripted responses in sequence.
type fakeGenerator struct {
	responses []string
	prompts   []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (*llm.GenerateResult, error) {
	f.prompts = append(f.prompts, prompt)
	response := "(no script)"
	if len(f.responses) > 0 {
		response = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &llm.GenerateResult{FullPrompt: prompt, Response: response, Model: "test-model"}, nil
}

func (f *fakeGenerator) Model() string { return "test-model" }

// fakeSink captures logged interactions.
type fakeSink struct {
	logged []*interaction.Interaction
}

func (f *fakeSink) Log(ctx context.Context, in *interaction.Interaction) error {
	f.logged = append(f.logged, in)
	return nil
}

func standardDescriptors() []toolcall.Descriptor {
	return []toolcall.Descriptor{
		{Name: "get_network_time", Description: "network time", Parameters: map[string]any{}},
		{Name: "ping_host", Description: "ping", Parameters: map[string]any{}},
		{Name: "ha_control_light", Description: "lights", Parameters: map[string]any{}},
	}
}

func TestProcessMessageShortcut(t *testing.T) {
	gw := &fakeGateway{
		descriptors: standardDescriptors(),
		results: map[string]toolcall.Result{
			"get_network_time": toolcall.Success(map[string]any{
				"source":              "ntp:pool.ntp.org",
				"readable_time_local": "2025-06-01 05:00:00 AM PDT",
			}),
		},
	}
	gen := &fakeGenerator{}
	sink := &fakeSink{}
	svc := NewChatService(gw, gen, sink, testLogger())

	resp, err := svc.ProcessMessage(context.Background(), "what time is it?", "s1")
	if err != nil {
		t.Fatalf("ProcessMessage() = %v", err)
	}

	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != "get_network_time" {
		t.Errorf("tools_used = %v, want [get_network_time]", resp.ToolsUsed)
	}
	if !strings.Contains(resp.Response, "2025-06-01") {
		t.Errorf("response %q does not mention the timestamp", resp.Response)
	}
	if len(gen.prompts) != 0 {
		t.Error("LLM consulted on shortcut path")
	}
	if resp.InteractionID == "" {
		t.Error("interaction_id empty")
	}

	if len(sink.logged) != 1 {
		t.Fatalf("logged %d interactions, want 1", len(sink.logged))
	}
	in := sink.logged[0]
	if in.RoutingType != RouteDirectShortcut {
		t.Errorf("routing_type = %s, want %s", in.RoutingType, RouteDirectShortcut)
	}
	if in.DebugInfo["pattern_matched"] != "time_query" {
		t.Errorf("pattern_matched = %v", in.DebugInfo["pattern_matched"])
	}
}

func TestProcessMessageLLMWithTools(t *testing.T) {
	gw := &fakeGateway{
		descriptors: standardDescriptors(),
		results: map[string]toolcall.Result{
			"ping_host": toolcall.Success(map[string]any{
				"host": "example.com", "reachable": true, "avg_latency_ms": 11.1,
			}),
		},
	}
	gen := &fakeGenerator{responses: []string{
		`USE_TOOL:ping_host:{"hostname": "example.com"}`,
		"Good news: example.com is reachable with about 11ms latency.",
	}}
	sink := &fakeSink{}
	svc := NewChatService(gw, gen, sink, testLogger())

	resp, err := svc.ProcessMessage(context.Background(), "please check if example.com is reachable", "s2")
	if err != nil {
		t.Fatalf("ProcessMessage() = %v", err)
	}

	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != "ping_host" {
		t.Errorf("tools_used = %v, want [ping_host]", resp.ToolsUsed)
	}
	if !strings.Contains(resp.Response, "example.com") {
		t.Errorf("response %q does not mention the host", resp.Response)
	}
	if len(gen.prompts) != 2 {
		t.Fatalf("LLM passes = %d, want 2", len(gen.prompts))
	}
	// Synthesis pass sees the tool transcript.
	if !strings.Contains(gen.prompts[1], "ping_host") {
		t.Error("synthesis prompt missing tool transcript")
	}

	in := sink.logged[0]
	if in.RoutingType != RouteLLMWithTools {
		t.Errorf("routing_type = %s, want %s", in.RoutingType, RouteLLMWithTools)
	}
}

func TestProcessMessageLLMOnly(t *testing.T) {
	gw := &fakeGateway{descriptors: standardDescriptors()}
	gen := &fakeGenerator{responses: []string{"Sure - here's a joke: ..."}}
	sink := &fakeSink{}
	svc := NewChatService(gw, gen, sink, testLogger())

	resp, err := svc.ProcessMessage(context.Background(), "tell me a joke", "s3")
	if err != nil {
		t.Fatalf("ProcessMessage() = %v", err)
	}

	if resp.Response != "Sure - here's a joke: ..." {
		t.Errorf("response = %q, want the verbatim LLM reply", resp.Response)
	}
	if len(resp.ToolsUsed) != 0 {
		t.Errorf("tools_used = %v, want none", resp.ToolsUsed)
	}
	if len(gw.calls) != 0 {
		t.Errorf("tools dispatched = %v, want none", gw.calls)
	}
	if sink.logged[0].RoutingType != RouteLLMOnly {
		t.Errorf("routing_type = %s, want %s", sink.logged[0].RoutingType, RouteLLMOnly)
	}
}

func TestProcessMessageMalformedUseToolLine(t *testing.T) {
	gw := &fakeGateway{
		descriptors: standardDescriptors(),
		results: map[string]toolcall.Result{
			"get_network_time": toolcall.Success(map[string]any{"source": "system"}),
		},
	}
	gen := &fakeGenerator{responses: []string{
		"USE_TOOL:get_network_time:{}\nUSE_TOOL:ping_host:{broken json}",
		"It is noon.",
	}}
	sink := &fakeSink{}
	svc := NewChatService(gw, gen, sink, testLogger())

	resp, err := svc.ProcessMessage(context.Background(), "hmm, do two things", "s4")
	if err != nil {
		t.Fatalf("ProcessMessage() = %v", err)
	}

	// The malformed line produced no call; the pipeline continued with
	// the one that parsed.
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != "get_network_time" {
		t.Errorf("tools_used = %v, want [get_network_time]", resp.ToolsUsed)
	}

	in := sink.logged[0]
	failures, ok := in.DebugInfo["parse_failures"].([]llm.ParseFailure)
	if !ok || len(failures) != 1 {
		t.Errorf("parse_failures = %v, want one entry", in.DebugInfo["parse_failures"])
	}
}

func TestProcessMessageUnknownToolFiltered(t *testing.T) {
	gw := &fakeGateway{descriptors: standardDescriptors()}
	gen := &fakeGenerator{responses: []string{
		`USE_TOOL:delete_everything:{}`,
		"unused synthesis",
	}}
	sink := &fakeSink{}
	svc := NewChatService(gw, gen, sink, testLogger())

	resp, err := svc.ProcessMessage(context.Background(), "do something odd", "s5")
	if err != nil {
		t.Fatalf("ProcessMessage() = %v", err)
	}

	// All calls filtered: behaves as llm_only with the first response.
	if sink.logged[0].RoutingType != RouteLLMOnly {
		t.Errorf("routing_type = %s, want %s", sink.logged[0].RoutingType, RouteLLMOnly)
	}
	if len(gw.calls) != 0 {
		t.Errorf("dispatched %v, want none", gw.calls)
	}
	_ = resp
}

// TestRoutingExclusivity: every message records exactly one routing
// type from the closed set.
func TestRoutingExclusivity(t *testing.T) {
	valid := map[string]bool{
		RouteDirectShortcut: true,
		RouteLLMWithTools:   true,
		RouteLLMOnly:        true,
	}

	messages := []string{
		"what time is it?",
		"tell me a joke",
		"please check on things",
	}
	for _, msg := range messages {
		gw := &fakeGateway{
			descriptors: standardDescriptors(),
			results: map[string]toolcall.Result{
				"get_network_time": toolcall.Success(map[string]any{"source": "system"}),
			},
		}
		gen := &fakeGenerator{responses: []string{"plain reply", "synthesis"}}
		sink := &fakeSink{}
		svc := NewChatService(gw, gen, sink, testLogger())

		if _, err := svc.ProcessMessage(context.Background(), msg, "s6"); err != nil {
			t.Fatalf("%q: %v", msg, err)
		}
		if len(sink.logged) != 1 {
			t.Fatalf("%q: logged %d interactions, want 1", msg, len(sink.logged))
		}
		if !valid[sink.logged[0].RoutingType] {
			t.Errorf("%q: routing_type = %q not in closed set", msg, sink.logged[0].RoutingType)
		}
	}
}

func TestShortcutErrorRenderedDirectly(t *testing.T) {
	gw := &fakeGateway{
		descriptors: standardDescriptors(),
		results: map[string]toolcall.Result{
			"ha_control_light": toolcall.Error(toolcall.ErrEffectorUnavailable,
				"home assistant not configured: set HA_URL and HA_TOKEN"),
		},
	}
	gen := &fakeGenerator{}
	sink := &fakeSink{}
	svc := NewChatService(gw, gen, sink, testLogger())

	resp, err := svc.ProcessMessage(context.Background(), "turn on kitchen lights", "s7")
	if err != nil {
		t.Fatalf("ProcessMessage() = %v", err)
	}
	if !strings.Contains(resp.Response, "home assistant not configured") {
		t.Errorf("response %q does not render the failure message", resp.Response)
	}
}
