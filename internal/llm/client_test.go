package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sutro/homeward/internal/toolcall"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "test-model" {
			t.Errorf("model = %s", req.Model)
		}
		if req.Stream {
			t.Error("stream requested, want non-streaming")
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "It is noon.", Done: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-model", testLogger())
	result, err := c.Generate(context.Background(), "what time is it?")
	if err != nil {
		t.Fatalf("Generate() = %v", err)
	}
	if result.Response != "It is noon." {
		t.Errorf("response = %q", result.Response)
	}
	if result.FullPrompt != "what time is it?" {
		t.Errorf("full prompt = %q", result.FullPrompt)
	}
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-model", testLogger())
	if _, err := c.Generate(context.Background(), "hi"); err == nil {
		t.Fatal("Generate() = nil error, want failure")
	}
}

func TestBuildToolPromptListsEveryTool(t *testing.T) {
	descriptors := []toolcall.Descriptor{
		{Name: "get_network_time", Description: "time lookup", Parameters: map[string]any{"type": "object"}},
		{Name: "ping_host", Description: "reachability probe", Parameters: map[string]any{"type": "object"}},
	}

	prompt := BuildToolPrompt("hello", descriptors)
	for _, want := range []string{
		"get_network_time", "time lookup",
		"ping_host", "reachability probe",
		"USE_TOOL:<tool_name>:<json_arguments>",
		`"hello"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildSynthesisPromptCarriesTranscript(t *testing.T) {
	prompt := BuildSynthesisPrompt("is it up?", "ping_host: {\"status\":\"success\"}")
	if !strings.Contains(prompt, "ping_host") {
		t.Error("prompt missing transcript")
	}
	if !strings.Contains(prompt, "is it up?") {
		t.Error("prompt missing original question")
	}
	if !strings.Contains(prompt, "plain language") {
		t.Error("prompt missing failure-narration instruction")
	}
}
