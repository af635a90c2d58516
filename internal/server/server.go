// Package server implements the tool server HTTP surface: health,
// tool listing, and the dispatch endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sutro/homeward/internal/homeassistant"
	"github.com/sutro/homeward/internal/toolcall"
	"github.com/sutro/homeward/internal/tools"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the tool server HTTP API.
type Server struct {
	port     int
	registry *tools.Registry
	sync     *homeassistant.Synchronizer
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates the tool server.
func NewServer(port int, registry *tools.Registry, sync *homeassistant.Synchronizer, logger *slog.Logger) *Server {
	return &Server{
		port:     port,
		registry: registry,
		sync:     sync,
		logger:   logger,
	}
}

// Start begins serving HTTP requests. Blocks until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/tools/list", s.handleListTools)
	mux.HandleFunc("POST /v1/tools/call", s.handleCallTool)
	mux.HandleFunc("POST /v1/generate", s.handleGenerate)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("starting tool server", "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":         "ok",
		"service":        "homeward-server",
		"cache_backend":  s.sync.CacheBackend(),
		"home_assistant": s.sync.Health(),
	}, s.logger)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.registry.List(), s.logger)
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var call toolcall.Call
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, toolcall.Error(toolcall.ErrInvalidArguments, "invalid request body"), s.logger)
		return
	}

	s.logger.Info("tool call requested",
		"tool", call.ToolName,
		"session_id", call.SessionID,
	)

	result := s.registry.Call(r.Context(), call)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result, s.logger)
}

// handleGenerate is a reserved endpoint; generation lives in the
// orchestrator. It answers with a fixed mock so existing callers can
// probe the route.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Prompt    string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]string{"error": "invalid request body"}, s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"response_text": fmt.Sprintf("The tool server is running. I see you asked about: %q. %d tools are available.", req.Prompt, len(s.registry.List())),
		"is_cached":     false,
	}, s.logger)
}
