// Package api serves the city over HTTP and a WebSocket stream.
// GET endpoints are public and read-only. POST endpoints are player commands;
// reset and snapshot require the admin bearer token when one is configured.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/talgya/tilecity/internal/agents"
	"github.com/talgya/tilecity/internal/city"
	"github.com/talgya/tilecity/internal/engine"
	"github.com/talgya/tilecity/internal/persistence"
)

// Server serves the city state over HTTP.
type Server struct {
	Store       *engine.Store
	Field       *agents.Field // nil hides agents
	SnapshotDir string
	Port        int
	AdminKey    string        // Bearer token for reset and snapshot. Empty = open.
	FramePush   time.Duration // agent frame rate on the stream

	// Mutations allowed per client IP per minute.
	MutationsPerMin int

	streamConns atomic.Int32
	upgrader    websocket.Upgrader
	limiter     *RateLimiter
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	if s.FramePush <= 0 {
		s.FramePush = 100 * time.Millisecond
	}
	if s.MutationsPerMin <= 0 {
		s.MutationsPerMin = 600
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	s.limiter = NewRateLimiter(s.MutationsPerMin, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/grid", s.handleGrid)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/agents", s.handleAgents)
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/tool", s.handleTool)
			r.Post("/tiles/{x}/{y}", s.handleTileClick)
			r.Post("/claim", s.handleClaim)
			r.Post("/start", s.handleStart)
			r.Post("/pause", s.handlePause)
			r.Post("/settings", s.handleSettings)
			r.Post("/reset", s.adminOnly(s.handleReset))
			r.Post("/snapshot", s.adminOnly(s.handleSnapshot))
		})
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires the bearer token when an admin key is configured.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey != "" && !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type statusResponse struct {
	engine.Snapshot
	Running bool `json:"running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Store.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{Snapshot: snap, Running: snap.Running()})
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.Snapshot().Grid)
}

type catalogResponse struct {
	Buildings      map[string]city.BuildingConfig `json:"buildings"`
	DemolitionCost int                            `json:"demolitionCost"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.Store.Catalog()
	resp := catalogResponse{
		Buildings:      make(map[string]city.BuildingConfig, len(city.PlaceableTypes)),
		DemolitionCost: cat.DemolitionCost,
	}
	for _, b := range city.PlaceableTypes {
		resp.Buildings[b.String()] = cat.Config(b)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if s.Field == nil {
		writeJSON(w, http.StatusOK, agents.Frame{Agents: []agents.Position{}})
		return
	}
	writeJSON(w, http.StatusOK, s.Field.Latest())
}

type outcomeResponse struct {
	Outcome engine.Outcome    `json:"outcome"`
	Stats   city.CityStats    `json:"stats"`
	Goal    *city.Goal        `json:"currentGoal,omitempty"`
	Tool    city.BuildingType `json:"tool"`
}

func (s *Server) outcome(w http.ResponseWriter, o engine.Outcome) {
	snap := s.Store.Snapshot()
	status := http.StatusOK
	if o == engine.OutcomeOutOfBounds {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, outcomeResponse{Outcome: o, Stats: snap.Stats, Goal: snap.Goal, Tool: snap.Tool})
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tool string `json:"tool"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	b, err := city.ParseBuildingType(req.Tool)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.Store.SelectTool(b)
	s.outcome(w, engine.OutcomeNoop)
}

func (s *Server) handleTileClick(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errX != nil || errY != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}
	s.outcome(w, s.Store.PlaceBuilding(x, y))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.outcome(w, s.Store.ClaimReward())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.Store.Start()
	s.outcome(w, engine.OutcomeNoop)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paused == nil {
		http.Error(w, `expected {"paused": true|false}`, http.StatusBadRequest)
		return
	}
	s.Store.SetPaused(*req.Paused)
	s.outcome(w, engine.OutcomeNoop)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AIEnabled *bool    `json:"aiEnabled"`
		Volume    *float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.AIEnabled != nil {
		s.Store.SetAIEnabled(*req.AIEnabled)
	}
	if req.Volume != nil {
		s.Store.SetVolume(*req.Volume)
	}
	snap := s.Store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"aiEnabled": snap.AIEnabled,
		"volume":    snap.Volume,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.Store.Reset()
	s.outcome(w, engine.OutcomeNoop)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.SnapshotDir == "" {
		http.Error(w, "snapshots disabled", http.StatusServiceUnavailable)
		return
	}
	snap := s.Store.Snapshot()
	doc, err := snap.Document()
	if err != nil {
		slog.Error("snapshot encode failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	path := filepath.Join(s.SnapshotDir, persistence.SnapshotName(time.Now()))
	if err := persistence.WriteSnapshot(path, doc); err != nil {
		slog.Error("snapshot write failed", "path", path, "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	slog.Info("snapshot written", "path", path, "day", snap.Stats.Day)
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"day":     snap.Stats.Day,
		"message": "snapshot saved",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
