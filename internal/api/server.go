// Package api provides the HTTP API for observing a running climate grid.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/climate-world/internal/engine"
	"github.com/talgya/climate-world/internal/persistence"
	"github.com/talgya/climate-world/internal/render"
	"github.com/talgya/climate-world/internal/world"
)

// Server serves the grid state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Clock    *engine.Clock
	DB       *persistence.DB // Optional. Nil disables /runs and stored history.
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	RunID           string         `json:"run_id,omitempty"`
	Generation      int            `json:"generation"`
	Total           int            `json:"total"`
	Recorded        int            `json:"recorded"`
	Running         bool           `json:"running"`
	Finished        bool           `json:"finished"`
	IntervalMS      int64          `json:"interval_ms"`
	Cols            int            `json:"cols"`
	Rows            int            `json:"rows"`
	MeanTemperature float64        `json:"mean_temperature"`
	MeanPollution   float64        `json:"mean_pollution"`
	CityTemperature *float64       `json:"city_temperature"` // null without cities
	Terrain         map[string]int `json:"terrain"`
}

// CellView is one cell as served by /grid and /cell.
type CellView struct {
	X             int     `json:"x"`
	Y             int     `json:"y"`
	Kind          string  `json:"kind"`
	Code          string  `json:"code"`
	Temperature   float64 `json:"temperature"`
	Pollution     float64 `json:"pollution"`
	Cloud         float64 `json:"cloud"`
	Raining       bool    `json:"raining"`
	WindSpeed     int     `json:"wind_speed"`
	WindDirection string  `json:"wind_direction"`
	Color         string  `json:"color"`
	Label         string  `json:"label"`
}

// GridResponse is the body of GET /api/v1/grid. Cells are row-major.
type GridResponse struct {
	Generation int        `json:"generation"`
	Cols       int        `json:"cols"`
	Rows       int        `json:"rows"`
	Cells      []CellView `json:"cells"`
}

// SampleView is one entry of GET /api/v1/stats/history.
type SampleView struct {
	Generation      int      `json:"generation"`
	MeanTemperature float64  `json:"mean_temperature"`
	MeanPollution   float64  `json:"mean_pollution"`
	CityTemperature *float64 `json:"city_temperature"`
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	runsLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/grid", s.handleGrid)
	mux.HandleFunc("/api/v1/cell/", s.handleCell)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/runs", RateLimitMiddleware(runsLimiter, s.handleRuns))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux)
}

// Serve listens on Port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "", "db", s.DB != nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// defaultOrigins are the local dashboard dev servers, always allowed.
var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:4173",
	"http://localhost:3000",
}

// corsOrigins merges defaultOrigins with the comma-separated CORS_ORIGINS.
func corsOrigins() map[string]bool {
	allowed := make(map[string]bool, len(defaultOrigins))
	for _, origin := range defaultOrigins {
		allowed[origin] = true
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}
	return allowed
}

// corsMiddleware lets allowed dashboards poll the API. Retry-After is
// exposed so a rate-limited client can back off from /runs.
func corsMiddleware(next http.Handler) http.Handler {
	allowed := corsOrigins()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowed[origin] {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Expose-Headers", "Retry-After")
			h.Set("Access-Control-Max-Age", "600")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken reports whether the request carries the admin key.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no CLIMATESIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	recorded := s.Sim.Recorded()
	status := StatusResponse{
		RunID:      s.RunID,
		Total:      s.Clock.Total,
		Recorded:   recorded,
		Running:    s.Clock.Running(),
		Finished:   recorded >= s.Clock.Total,
		IntervalMS: s.Clock.Interval().Milliseconds(),
		Terrain:    make(map[string]int, len(world.TerrainKinds)),
	}

	s.Sim.View(func(g *world.Grid, generation int) {
		st := g.Stats()
		status.Generation = generation
		status.Cols, status.Rows = g.Cols(), g.Rows()
		status.MeanTemperature = st.MeanTemperature
		status.MeanPollution = st.MeanPollution
		status.CityTemperature = optional(st.CityTemperature)
		for kind, n := range g.TerrainCounts() {
			status.Terrain[kind.String()] = n
		}
	})
	for _, kind := range world.TerrainKinds {
		if _, ok := status.Terrain[kind.String()]; !ok {
			status.Terrain[kind.String()] = 0
		}
	}

	writeJSON(w, r, status)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	var resp GridResponse
	s.Sim.View(func(g *world.Grid, generation int) {
		resp.Generation = generation
		resp.Cols, resp.Rows = g.Cols(), g.Rows()
		resp.Cells = make([]CellView, 0, g.Cols()*g.Rows())
		g.Cells(func(c *world.Cell) {
			resp.Cells = append(resp.Cells, cellView(c))
		})
	})
	writeJSON(w, r, resp)
}

// handleCell serves GET /api/v1/cell/{x}/{y}. Coordinates must lie on the
// grid; they are not wrapped.
func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/cell/"), "/"), "/")
	if len(parts) != 2 {
		http.Error(w, "expected /api/v1/cell/{x}/{y}", http.StatusBadRequest)
		return
	}
	x, errX := strconv.Atoi(parts[0])
	y, errY := strconv.Atoi(parts[1])
	if errX != nil || errY != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}

	type neighbor struct {
		Direction string `json:"direction"`
		X         int    `json:"x"`
		Y         int    `json:"y"`
		Kind      string `json:"kind"`
	}

	var (
		found     bool
		view      CellView
		neighbors []neighbor
	)
	s.Sim.View(func(g *world.Grid, _ int) {
		if x < 0 || y < 0 || x >= g.Cols() || y >= g.Rows() {
			return
		}
		found = true
		view = cellView(g.Cell(x, y))
		for _, dir := range world.Directions {
			n := g.Neighbor(x, y, dir)
			nx, ny := n.Position()
			neighbors = append(neighbors, neighbor{
				Direction: dir.String(),
				X:         nx,
				Y:         ny,
				Kind:      n.Kind().String(),
			})
		}
	})
	if !found {
		http.Error(w, "cell not found", http.StatusNotFound)
		return
	}

	writeJSON(w, r, map[string]any{
		"cell":      view,
		"neighbors": neighbors,
	})
}

// handleStatsHistory serves recorded samples with generation in [from, to],
// capped at limit. With ?run=<id> the samples come from the database
// instead of the live simulation.
func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	from, to, limit := 1, math.MaxInt, 30
	q := r.URL.Query()
	if f := q.Get("from"); f != "" {
		if v, err := strconv.Atoi(f); err == nil {
			from = v
		}
	}
	if t := q.Get("to"); t != "" {
		if v, err := strconv.Atoi(t); err == nil {
			to = v
		}
	}
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	var samples []engine.Sample
	if runID := q.Get("run"); runID != "" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		stored, err := s.DB.LoadSamples(runID)
		if err != nil {
			slog.Error("stats history query failed", "run", runID, "error", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		samples = stored
	} else {
		series := s.Sim.Series()
		for i := 0; i < series.Len(); i++ {
			samples = append(samples, series.Sample(i))
		}
	}

	out := []SampleView{}
	for _, smp := range samples {
		if smp.Generation < from || smp.Generation > to {
			continue
		}
		out = append(out, SampleView{
			Generation:      smp.Generation,
			MeanTemperature: smp.MeanTemperature,
			MeanPollution:   smp.MeanPollution,
			CityTemperature: optional(smp.CityTemperature),
		})
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, r, out)
}

// handleEvents serves the most recent terrain events, oldest first. With
// ?run=<id> they come from the database instead of the live simulation.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	if runID := r.URL.Query().Get("run"); runID != "" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		stored, err := s.DB.RecentEvents(runID, limit)
		if err != nil {
			slog.Error("events query failed", "run", runID, "error", err)
			http.Error(w, "events unavailable", http.StatusInternalServerError)
			return
		}
		slices.Reverse(stored)
		if stored == nil {
			stored = []engine.Event{}
		}
		writeJSON(w, r, stored)
		return
	}

	events := s.Sim.Events()
	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	out := events[start:]
	if out == nil {
		out = []engine.Event{}
	}
	writeJSON(w, r, out)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		run, err := s.DB.GetRun(id)
		if errors.Is(err, persistence.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("run lookup failed", "run", id, "error", err)
			http.Error(w, "run lookup failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, r, run)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	runs, err := s.DB.ListRuns(limit)
	if err != nil {
		slog.Error("run listing failed", "error", err)
		http.Error(w, "run listing failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, r, runs)
}

// maxIntervalMS caps the clock pause at one minute per generation.
const maxIntervalMS = 60_000

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			IntervalMS *int64 `json:"interval_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntervalMS == nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if *req.IntervalMS < 0 || *req.IntervalMS > maxIntervalMS {
			http.Error(w, fmt.Sprintf("interval_ms must be 0-%d", maxIntervalMS), http.StatusBadRequest)
			return
		}
		s.Clock.SetInterval(time.Duration(*req.IntervalMS) * time.Millisecond)
		slog.Info("interval changed", "interval_ms", *req.IntervalMS)
	}

	writeJSON(w, r, map[string]int64{"interval_ms": s.Clock.Interval().Milliseconds()})
}

func cellView(c *world.Cell) CellView {
	x, y := c.Position()
	return CellView{
		X:             x,
		Y:             y,
		Kind:          c.Kind().String(),
		Code:          render.Glyph(c.Kind()),
		Temperature:   c.Temperature(),
		Pollution:     c.Pollution(),
		Cloud:         c.Cloud(),
		Raining:       c.Raining(),
		WindSpeed:     c.WindSpeed(),
		WindDirection: c.WindDirection().String(),
		Color:         render.Hex(c.Kind()),
		Label:         render.Label(c),
	}
}

// optional maps NaN to a JSON null.
func optional(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// writeJSON encodes data compactly. ?pretty=1 indents it for humans.
func writeJSON(w http.ResponseWriter, r *http.Request, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	if r.URL.Query().Get("pretty") == "1" {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(data); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}
