// Package observer reads a running climate simulation through its HTTP API.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Snapshot holds all data collected during one observation.
type Snapshot struct {
	Status  Status       `json:"status"`
	Grid    Grid         `json:"grid"`
	History []HistoryRow `json:"history"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	RunID           string         `json:"run_id"`
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
	CityTemperature *float64       `json:"city_temperature"`
	Terrain         map[string]int `json:"terrain"`
}

// Cell mirrors one entry of GET /api/v1/grid.
type Cell struct {
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Kind        string  `json:"kind"`
	Code        string  `json:"code"`
	Temperature float64 `json:"temperature"`
	Pollution   float64 `json:"pollution"`
	Raining     bool    `json:"raining"`
}

// Grid mirrors GET /api/v1/grid.
type Grid struct {
	Generation int    `json:"generation"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
	Cells      []Cell `json:"cells"`
}

// HistoryRow mirrors items from GET /api/v1/stats/history.
type HistoryRow struct {
	Generation      int      `json:"generation"`
	MeanTemperature float64  `json:"mean_temperature"`
	MeanPollution   float64  `json:"mean_pollution"`
	CityTemperature *float64 `json:"city_temperature"`
}

// Observer fetches simulation state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status, grid and the last few samples.
func (o *Observer) Observe(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/grid", &snap.Grid); err != nil {
		return nil, fmt.Errorf("fetch grid: %w", err)
	}
	from := snap.Status.Recorded - 9
	if from < 1 {
		from = 1
	}
	path := fmt.Sprintf("/api/v1/stats/history?from=%d&limit=10", from)
	if err := o.fetchJSON(ctx, path, &snap.History); err != nil {
		return nil, fmt.Errorf("fetch stats history: %w", err)
	}

	return snap, nil
}

// Ready reports whether the status endpoint answers 200.
func (o *Observer) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/v1/status", nil)
	if err != nil {
		return false
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// GlyphMap renders the grid as rows of terrain codes. Raining cells are
// shown in lower case.
func (g Grid) GlyphMap() string {
	if g.Cols <= 0 || len(g.Cells) != g.Cols*g.Rows {
		return ""
	}
	var b strings.Builder
	for i, c := range g.Cells {
		code := c.Code
		if c.Raining {
			code = strings.ToLower(code)
		}
		b.WriteString(code)
		if (i+1)%g.Cols == 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
