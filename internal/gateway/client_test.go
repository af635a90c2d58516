package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sutro/homeward/internal/toolcall"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tools/list" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]toolcall.Descriptor{
			{Name: "ping_host", Description: "ping"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	descriptors, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools() = %v", err)
	}
	if len(descriptors) != 1 || descriptors[0].Name != "ping_host" {
		t.Errorf("descriptors = %v", descriptors)
	}
}

func TestCallToolForwardsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call toolcall.Call
		json.NewDecoder(r.Body).Decode(&call)
		if call.ToolName != "ping_host" || call.SessionID != "s1" {
			t.Errorf("call = %+v", call)
		}
		json.NewEncoder(w).Encode(toolcall.Success(map[string]any{"host": "example.com"}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	result := c.CallTool(context.Background(), "ping_host", map[string]any{"hostname": "example.com"}, "s1")
	if !result.IsSuccess() {
		t.Fatalf("result = %+v", result)
	}
	if result.Data["host"] != "example.com" {
		t.Errorf("data = %v", result.Data)
	}
}

// Error results pass through unchanged: the server's kind survives the
// HTTP hop.
func TestCallToolErrorPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(toolcall.Error(toolcall.ErrInvalidArguments, `missing required parameter "hostname"`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	result := c.CallTool(context.Background(), "ping_host", nil, "s1")
	if result.Kind != toolcall.ErrInvalidArguments {
		t.Errorf("kind = %s, want invalid_arguments", result.Kind)
	}
}

func TestCallToolServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	srv.Close()

	c := NewClient(srv.URL, testLogger())
	result := c.CallTool(context.Background(), "ping_host", nil, "s1")
	if result.IsSuccess() {
		t.Fatal("expected error result")
	}
	if result.Kind != toolcall.ErrEffectorUnavailable {
		t.Errorf("kind = %s, want effector_unavailable", result.Kind)
	}
}
