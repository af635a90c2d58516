// Package gateway provides the HTTP client the orchestrator uses to
// talk to the tool server.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sutro/homeward/internal/httpkit"
	"github.com/sutro/homeward/internal/toolcall"
)

// Client calls the tool server's list and call endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a tool server client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// ListTools fetches the available tool descriptors.
func (c *Client) ListTools(ctx context.Context) ([]toolcall.Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list tools: HTTP %d: %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var descriptors []toolcall.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return nil, fmt.Errorf("decode tools: %w", err)
	}
	return descriptors, nil
}

// CallTool executes a tool on the server. Transport failures come back
// as error results rather than Go errors so the routing pipeline has a
// single result shape to narrate.
func (c *Client) CallTool(ctx context.Context, toolName string, arguments map[string]any, sessionID string) toolcall.Result {
	call := toolcall.Call{
		ToolName:  toolName,
		Arguments: arguments,
		SessionID: sessionID,
	}
	body, err := json.Marshal(call)
	if err != nil {
		return toolcall.Error(toolcall.ErrEffectorFailed, fmt.Sprintf("encode call: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tools/call", bytes.NewReader(body))
	if err != nil {
		return toolcall.Error(toolcall.ErrEffectorFailed, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("tool server unreachable", "tool", toolName, "error", err)
		if ctx.Err() == context.DeadlineExceeded {
			return toolcall.Error(toolcall.ErrEffectorTimeout, "tool server request timed out")
		}
		return toolcall.Error(toolcall.ErrEffectorUnavailable, "tool server unreachable")
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	var result toolcall.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return toolcall.Error(toolcall.ErrEffectorFailed, fmt.Sprintf("decode result: %v", err))
	}
	return result
}

// Health probes the tool server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: HTTP %d", resp.StatusCode)
	}
	return nil
}
