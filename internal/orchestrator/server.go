package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sutro/homeward/internal/interaction"
	"github.com/sutro/homeward/internal/transcribe"
)

// maxUploadBytes caps transcription uploads (10 minutes of
// 16 kHz / 16-bit / mono audio is ~19 MB).
const maxUploadBytes = 32 << 20

// HealthProber reports reachability of an upstream dependency.
type HealthProber interface {
	Health(ctx context.Context) error
}

// Transcriber is the voice bridge surface the server needs.
type Transcriber interface {
	Transcribe(ctx context.Context, info transcribe.PCMInfo, samples []byte, language string) (*transcribe.Result, error)
}

// Server is the orchestrator HTTP API.
type Server struct {
	port        int
	chat        *ChatService
	feedback    *interaction.Service
	transcriber Transcriber
	gateway     HealthProber
	llmProbe    func(ctx context.Context) error
	model       string
	logger      *slog.Logger
	server      *http.Server
}

// NewServer creates the orchestrator server. transcriber may be nil
// when no transcoder is configured.
func NewServer(port int, chat *ChatService, feedback *interaction.Service, transcriber Transcriber, gateway HealthProber, llmProbe func(ctx context.Context) error, model string, logger *slog.Logger) *Server {
	return &Server{
		port:        port,
		chat:        chat,
		feedback:    feedback,
		transcriber: transcriber,
		gateway:     gateway,
		llmProbe:    llmProbe,
		model:       model,
		logger:      logger,
	}
}

func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{"error": message}, s.logger)
}

// Start begins serving HTTP requests. Blocks until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /test-tool", s.handleTestTool)
	mux.HandleFunc("POST /feedback", s.handleFeedback)
	mux.HandleFunc("GET /interaction/{sessionID}/{interactionID}", s.handleGetInteraction)
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 180 * time.Second, // LLM passes can be slow
	}

	s.logger.Info("starting orchestrator server", "port", s.port)
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
	probe := func(f func(ctx context.Context) error) string {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := f(ctx); err != nil {
			return "disconnected"
		}
		return "connected"
	}

	llmStatus := "unknown"
	if s.llmProbe != nil {
		llmStatus = probe(s.llmProbe)
	}
	toolStatus := "unknown"
	if s.gateway != nil {
		toolStatus = probe(s.gateway.Health)
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":      "ok",
		"service":     "homeward-client",
		"llm":         llmStatus,
		"tool_server": toolStatus,
		"model":       s.model,
	}, s.logger)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.chat.Tools(r.Context()), s.logger)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	resp, err := s.chat.ProcessMessage(r.Context(), req.Message, req.SessionID)
	if err != nil {
		s.logger.Error("chat processing failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "chat processing failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

type testToolRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// handleTestTool is a direct passthrough to the tool server for
// debugging individual tools.
func (s *Server) handleTestTool(w http.ResponseWriter, r *http.Request) {
	var req testToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ToolName == "" {
		s.errorResponse(w, http.StatusBadRequest, "tool_name is required")
		return
	}

	result := s.chat.gateway.CallTool(r.Context(), req.ToolName, req.Arguments, "test-session")
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result, s.logger)
}

type feedbackRequest struct {
	InteractionID string `json:"interaction_id"`
	SessionID     string `json:"session_id"`
	Feedback      string `json:"feedback"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.feedback.Apply(r.Context(), req.SessionID, req.InteractionID, req.Feedback)
	switch {
	case errors.Is(err, interaction.ErrInvalidFeedback):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, interaction.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "interaction not found")
		return
	case err != nil:
		s.logger.Error("feedback failed", "interaction_id", req.InteractionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}

	message := "Feedback recorded. This interaction will be kept permanently."
	if req.Feedback == interaction.FeedbackThumbsDown {
		message = "Feedback recorded. This interaction has been removed."
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "success", "message": message}, s.logger)
}

func (s *Server) handleGetInteraction(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	interactionID := r.PathValue("interactionID")

	in, err := s.feedback.Get(r.Context(), sessionID, interactionID)
	switch {
	case errors.Is(err, interaction.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "interaction not found")
		return
	case err != nil:
		s.logger.Error("interaction lookup failed", "interaction_id", interactionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to retrieve interaction")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, in, s.logger)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "transcription not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	info, samples, err := transcribe.DecodeWAV(data)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := transcribe.ValidateUpload(info); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	result, err := s.transcriber.Transcribe(r.Context(), info, samples, language)
	switch {
	case errors.Is(err, transcribe.ErrTimeout):
		s.errorResponse(w, http.StatusGatewayTimeout, "transcoder timed out")
		return
	case errors.Is(err, transcribe.ErrUnavailable):
		s.errorResponse(w, http.StatusServiceUnavailable, "transcoder unavailable")
		return
	case err != nil:
		s.logger.Error("transcription failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "transcription failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result, s.logger)
}
