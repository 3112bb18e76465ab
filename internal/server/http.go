package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ParcMagScene/Exo/internal/arbiter"
	"github.com/ParcMagScene/Exo/internal/config"
	"github.com/ParcMagScene/Exo/internal/metrics"
	"github.com/ParcMagScene/Exo/internal/pipeline"
	"github.com/ParcMagScene/Exo/internal/session"
	"github.com/ParcMagScene/Exo/internal/transcription"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server       *http.Server
	logger       *slog.Logger
	config       *config.Config
	registry     *session.Registry
	arbiter      *arbiter.Arbiter
	orchestrator *pipeline.Orchestrator
	wsServer     *WSServer
	conns        *ConnTable
	transcriber  *transcription.Client
	metrics      *metrics.Metrics

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Address string
	Port    int
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	registry *session.Registry, arb *arbiter.Arbiter, orchestrator *pipeline.Orchestrator,
	wsServer *WSServer, conns *ConnTable, transcriber *transcription.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:       logger,
		config:       appConfig,
		registry:     registry,
		arbiter:      arb,
		orchestrator: orchestrator,
		wsServer:     wsServer,
		conns:        conns,
		transcriber:  transcriber,
		metrics:      m,
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/rooms", h.withMetrics("/rooms", h.handleRooms))
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/state", h.withMetrics("/state", h.handleState))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	wsStats := h.wsServer.GetStatistics()
	pipelineStats := h.orchestrator.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "exo-core",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"satellite_server": map[string]interface{}{
				"status":          "running",
				"connected_rooms": wsStats.ConnectedRooms,
				"frames_received": wsStats.FramesReceived,
				"frames_rejected": wsStats.FramesRejected,
			},
			"sessions": map[string]interface{}{
				"status":       "running",
				"active_count": h.registry.ActiveCount(),
			},
			"pipeline": map[string]interface{}{
				"status":      "running",
				"state":       pipelineStats.State,
				"queue_depth": h.arbiter.Depth(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleRooms implements the /rooms endpoint
func (h *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rooms := h.conns.Rooms()

	response := map[string]interface{}{
		"total_rooms": len(rooms),
		"timestamp":   time.Now().UTC(),
		"rooms":       rooms,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.registry.Sessions()

	response := map[string]interface{}{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleState implements the /state endpoint
func (h *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// An idle pipeline with open capture sessions is reported as listening.
	pipelineState := h.orchestrator.State()
	if pipelineState == pipeline.StateIdle && h.registry.ActiveCount() > 0 {
		pipelineState = pipeline.StateListening
	}

	state := map[string]interface{}{
		"pipeline":        pipelineState.String(),
		"queue_depth":     h.arbiter.Depth(),
		"active_sessions": h.registry.ActiveCount(),
		"connected_rooms": h.conns.Count(),
		"timestamp":       time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"bind_address":    h.config.Server.BindAddress,
			"port":            h.config.Server.Port,
			"monitoring_port": h.config.Server.MonitoringPort,
			"queue_capacity":  h.config.Server.QueueCapacity,
			"read_limit":      h.config.Server.ReadLimit,
		},
		"audio": map[string]interface{}{
			"sample_rate":            h.config.Audio.SampleRate,
			"channels":               h.config.Audio.Channels,
			"bit_depth":              h.config.Audio.BitDepth,
			"min_utterance_duration": h.config.Audio.MinUtteranceDuration,
			"session_idle_timeout":   h.config.Audio.SessionIdleTimeout,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"timeout":        h.config.Transcription.Timeout,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			"language":       h.config.Transcription.Language,
			"min_confidence": h.config.Transcription.MinConfidence,
			// Note: API key is intentionally omitted for security
		},
		"reasoning": map[string]interface{}{
			"endpoint": h.config.Reasoning.Endpoint,
			"timeout":  h.config.Reasoning.Timeout,
			"model":    h.config.Reasoning.Model,
		},
		"synthesis": map[string]interface{}{
			"endpoint":    h.config.Synthesis.Endpoint,
			"timeout":     h.config.Synthesis.Timeout,
			"voice":       h.config.Synthesis.Voice,
			"sample_rate": h.config.Synthesis.SampleRate,
		},
		"homeauto": map[string]interface{}{
			"endpoint": h.config.HomeAuto.Endpoint,
			"enabled":  h.config.HomeAuto.Enabled,
			"timeout":  h.config.HomeAuto.Timeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wsStats := h.wsServer.GetStatistics()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"satellite": wsStats,
		"pipeline":  h.orchestrator.GetStats(),
		"queue": map[string]interface{}{
			"depth":    h.arbiter.Depth(),
			"capacity": h.config.Server.QueueCapacity,
		},
		"sessions": map[string]interface{}{
			"active_count": h.registry.ActiveCount(),
		},
	}

	if h.transcriber != nil {
		stats["transcription"] = h.transcriber.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Exo Voice Assistant Core",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":         "API documentation",
			"GET /health":   "Service health check",
			"GET /rooms":    "List connected rooms",
			"GET /sessions": "List active capture sessions",
			"GET /state":    "Pipeline and queue state",
			"GET /config":   "Get service configuration",
			"GET /stats":    "Get service statistics",
			"GET /metrics":  "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
