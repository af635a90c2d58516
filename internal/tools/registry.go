// Package tools defines the tool registry and dispatcher: the typed,
// schema-driven surface the orchestrator calls against NTP, ping, and
// Home Assistant effectors.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sutro/homeward/internal/toolcall"
)

// Handler executes a tool with validated arguments and returns a result
// envelope. Handlers map their own domain errors onto result kinds; the
// dispatcher normalizes panics and deadline misses.
type Handler func(ctx context.Context, args map[string]any) toolcall.Result

// Tool pairs a published descriptor with its validator and handler.
type Tool struct {
	Name        string
	Description string
	Params      ParamSpec
	Timeout     time.Duration
	Handler     Handler
}

// Registry holds the available tools. It is populated at startup and
// immutable afterwards, so reads are lock-free.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool. Must only be called during startup, before the
// registry is shared.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// List returns descriptors for every registered tool, sorted by name
// for a stable wire order.
func (r *Registry) List() []toolcall.Descriptor {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]toolcall.Descriptor, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		descriptors = append(descriptors, toolcall.Descriptor{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Params.Schema(),
		})
	}
	return descriptors
}

// Call is the single dispatch entry point. It always returns a result
// whose status is success or error with a kind from the closed set:
// unknown tools, invalid arguments, handler panics, and deadline misses
// are all normalized here. The effector is never invoked when
// validation fails.
func (r *Registry) Call(ctx context.Context, call toolcall.Call) toolcall.Result {
	tool, ok := r.tools[call.ToolName]
	if !ok {
		return toolcall.Error(toolcall.ErrUnknownTool, fmt.Sprintf("unknown tool: %s", call.ToolName))
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	if err := tool.Params.Validate(args); err != nil {
		return toolcall.Error(toolcall.ErrInvalidArguments, err.Error())
	}

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := r.dispatch(ctx, tool, args)
	r.logger.Debug("tool dispatched",
		"tool", call.ToolName,
		"session_id", call.SessionID,
		"status", result.Status,
		"kind", result.Kind,
		"duration", time.Since(start),
	)
	return result
}

// dispatch runs the handler in its own goroutine so a deadline miss can
// be surfaced immediately; the handler's context is cancelled and the
// goroutine drains in the background.
func (r *Registry) dispatch(ctx context.Context, tool *Tool, args map[string]any) toolcall.Result {
	done := make(chan toolcall.Result, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("tool handler panicked", "tool", tool.Name, "panic", rec)
				done <- toolcall.Error(toolcall.ErrEffectorFailed,
					fmt.Sprintf("%s: internal effector failure", tool.Name))
			}
		}()
		done <- tool.Handler(ctx, args)
	}()

	select {
	case result := <-done:
		// Handlers that ran into the deadline themselves report it as a
		// plain failure; normalize to the timeout kind.
		if !result.IsSuccess() && ctx.Err() == context.DeadlineExceeded && result.Kind != toolcall.ErrEffectorTimeout {
			return toolcall.Error(toolcall.ErrEffectorTimeout,
				fmt.Sprintf("%s: timed out after %s", tool.Name, tool.Timeout))
		}
		return result
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return toolcall.Error(toolcall.ErrEffectorTimeout,
				fmt.Sprintf("%s: timed out after %s", tool.Name, tool.Timeout))
		}
		return toolcall.Error(toolcall.ErrEffectorFailed,
			fmt.Sprintf("%s: cancelled", tool.Name))
	}
}
