// Package api provides the coordinator's external HTTP surface: task
// submission, polling, cancellation, streaming subscription, and a
// worker registry snapshot.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iris-network/coordinator/internal/orchestrator"
	"github.com/iris-network/coordinator/internal/protocol"
	"github.com/iris-network/coordinator/internal/registry"
	"github.com/iris-network/coordinator/internal/reputation"
	"github.com/iris-network/coordinator/internal/shared"
	"github.com/iris-network/coordinator/internal/stream"
)

// Server is the coordinator's HTTP API.
type Server struct {
	orch            *orchestrator.Orchestrator
	registry        *registry.Registry
	reputation      *reputation.Engine
	mux             *stream.Multiplexer
	workers         *protocol.Hub
	leaderboardSize int
	metrics         bool
}

// New creates a Server. leaderboardSize caps the /v1/stats leaderboard
// (0 means unbounded).
func New(orch *orchestrator.Orchestrator, reg *registry.Registry, repEngine *reputation.Engine, mux *stream.Multiplexer, workers *protocol.Hub, leaderboardSize int) *Server {
	return &Server{orch: orch, registry: reg, reputation: repEngine, mux: mux, workers: workers, leaderboardSize: leaderboardSize}
}

// EnableMetrics turns on the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metrics = true }

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/tasks", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/{taskID}", s.handlePoll)
		r.Delete("/{taskID}", s.handleCancel)
		r.Get("/{taskID}/stream", s.handleStream)
	})

	r.Get("/v1/nodes", s.handleSnapshot)
	r.Get("/v1/stats", s.handleNetworkStats)

	// Worker bidirectional channel.
	r.Handle("/v1/worker/connect", s.workers)

	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ────────────────────────────────────────────────────────────────

type submitRequest struct {
	Prompt    string                `json:"prompt"`
	Mode      shared.DivisionMode   `json:"mode"`
	Streaming bool                  `json:"streaming"`
	Files     []shared.AttachedFile `json:"files"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	accountRef := r.Header.Get("X-Iris-Account")

	taskID := s.orch.Submit(r.Context(), req.Prompt, req.Files, req.Mode, req.Streaming, accountRef)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	t, ok := s.orch.Task(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if !s.orch.Cancel(taskID) {
		writeError(w, http.StatusConflict, "task already terminal or unknown")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleStream serves a task's multiplexed output as Server-Sent
// Events, polling the Multiplexer for new frames until it closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	since := 0
	for {
		frames, lastSeq, closed := s.mux.Drain(taskID, since)
		for _, f := range frames {
			data, _ := json.Marshal(f)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		since = lastSeq
		if len(frames) > 0 {
			flusher.Flush()
		}
		if closed {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-s.mux.Wait(taskID):
		case <-time.After(20 * time.Second):
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

// handleNetworkStats serves the aggregate network-health egress: online
// node count, in-flight task count, task counts by terminal status, and
// the reputation leaderboard. This is a distinct view from /v1/nodes,
// which exposes per-node detail for worker selection.
func (s *Server) handleNetworkStats(w http.ResponseWriter, r *http.Request) {
	nodes := s.registry.Snapshot()
	online := 0
	for _, n := range nodes {
		if n.IsOnline {
			online++
		}
	}

	inFlight, byStatus := s.orch.Stats()

	writeJSON(w, http.StatusOK, shared.NetworkStats{
		OnlineNodes:   online,
		InFlightTasks: inFlight,
		TasksByStatus: byStatus,
		Leaderboard:   s.reputation.Leaderboard(s.leaderboardSize),
	})
}

// ─── JSON helpers ────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
