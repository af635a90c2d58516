package tools

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sutro/homeward/internal/toolcall"
)

func TestRegistryCallUnknownTool(t *testing.T) {
	r := NewRegistry(nil)

	result := r.Call(context.Background(), toolcall.Call{ToolName: "nonexistent"})
	if result.IsSuccess() {
		t.Fatal("expected error result")
	}
	if result.Kind != toolcall.ErrUnknownTool {
		t.Errorf("kind = %s, want unknown_tool", result.Kind)
	}
}

// TestRegistryValidationShieldsEffector verifies that an invalid call
// never reaches the handler.
func TestRegistryValidationShieldsEffector(t *testing.T) {
	var invocations atomic.Int64

	r := NewRegistry(nil)
	r.Register(&Tool{
		Name: "counted",
		Params: ParamSpec{
			{Name: "hostname", Type: TypeString, Required: true},
		},
		Timeout: time.Second,
		Handler: func(ctx context.Context, args map[string]any) toolcall.Result {
			invocations.Add(1)
			return toolcall.Success(nil)
		},
	})

	tests := []struct {
		name string
		args map[string]any
		kind toolcall.ErrorKind
	}{
		{"missing required", map[string]any{}, toolcall.ErrInvalidArguments},
		{"wrong type", map[string]any{"hostname": float64(3)}, toolcall.ErrInvalidArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Call(context.Background(), toolcall.Call{ToolName: "counted", Arguments: tt.args})
			if result.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", result.Kind, tt.kind)
			}
		})
	}

	if n := invocations.Load(); n != 0 {
		t.Errorf("effector invoked %d times despite invalid arguments", n)
	}

	result := r.Call(context.Background(), toolcall.Call{ToolName: "counted", Arguments: map[string]any{"hostname": "example.com"}})
	if !result.IsSuccess() {
		t.Fatalf("valid call failed: %s", result.Message)
	}
	if n := invocations.Load(); n != 1 {
		t.Errorf("effector invoked %d times, want 1", n)
	}
}

func TestRegistryPanicBecomesEffectorFailed(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name:    "panicky",
		Params:  ParamSpec{},
		Timeout: time.Second,
		Handler: func(ctx context.Context, args map[string]any) toolcall.Result {
			panic("boom")
		},
	})

	result := r.Call(context.Background(), toolcall.Call{ToolName: "panicky"})
	if result.Kind != toolcall.ErrEffectorFailed {
		t.Errorf("kind = %s, want effector_failed", result.Kind)
	}
}

func TestRegistryTimeoutBecomesEffectorTimeout(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name:    "slow",
		Params:  ParamSpec{},
		Timeout: 20 * time.Millisecond,
		Handler: func(ctx context.Context, args map[string]any) toolcall.Result {
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			return toolcall.Error(toolcall.ErrEffectorFailed, "interrupted")
		},
	})

	start := time.Now()
	result := r.Call(context.Background(), toolcall.Call{ToolName: "slow"})
	if result.Kind != toolcall.ErrEffectorTimeout {
		t.Errorf("kind = %s, want effector_timeout", result.Kind)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("call blocked %s, want prompt timeout", elapsed)
	}
}

// TestRegistryResultTotality checks that every outcome is a tagged
// success or error, never both and never neither.
func TestRegistryResultTotality(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name:    "ok",
		Params:  ParamSpec{},
		Timeout: time.Second,
		Handler: func(ctx context.Context, args map[string]any) toolcall.Result {
			return toolcall.Success(map[string]any{"value": 1})
		},
	})

	calls := []toolcall.Call{
		{ToolName: "ok"},
		{ToolName: "missing"},
		{ToolName: "ok", Arguments: map[string]any{"junk": true}},
	}
	for _, call := range calls {
		result := r.Call(context.Background(), call)
		switch result.Status {
		case "success":
			if result.Kind != "" || result.Message != "" {
				t.Errorf("%s: success result carries error fields", call.ToolName)
			}
		case "error":
			if result.Kind == "" {
				t.Errorf("%s: error result has no kind", call.ToolName)
			}
		default:
			t.Errorf("%s: status = %q, want success or error", call.ToolName, result.Status)
		}
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{Name: "zeta", Params: ParamSpec{}})
	r.Register(&Tool{Name: "alpha", Params: ParamSpec{}})

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("list order = %s, %s; want alpha, zeta", list[0].Name, list[1].Name)
	}
}
