// Command watcher follows a running climatesim through its HTTP API,
// printing the terrain map and a short summary until the run finishes.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/climate-world/internal/observer"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("CLIMATESIM_API_URL", "http://localhost:8080")
	intervalSec := envIntOrDefault("WATCHER_INTERVAL", 5)
	interval := time.Duration(intervalSec) * time.Second

	slog.Info("watcher starting", "api_url", apiURL, "interval", interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs := observer.NewObserver(apiURL)

	slog.Info("waiting for climatesim API...")
	if err := waitForAPI(ctx, obs, 5*time.Minute); err != nil {
		slog.Error("climatesim API unavailable", "error", err)
		os.Exit(1)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if done := watchOnce(ctx, obs, os.Stdout); done {
			fmt.Println("Run finished.")
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Info("shutting down")
			return
		}
	}
}

// watchOnce prints one observation and reports whether the run is over.
func watchOnce(ctx context.Context, obs *observer.Observer, w io.Writer) bool {
	snap, err := obs.Observe(ctx)
	if err != nil {
		slog.Error("observation failed", "error", err)
		return false
	}
	fmt.Fprint(w, snap.Grid.GlyphMap())
	fmt.Fprintln(w, summary(snap))
	return snap.Status.Finished
}

// summary renders a snapshot as a few human-readable lines.
func summary(snap *observer.Snapshot) string {
	st := snap.Status
	var b strings.Builder

	pct := 0.0
	if st.Total > 0 {
		pct = 100 * float64(st.Recorded) / float64(st.Total)
	}
	fmt.Fprintf(&b, "%s generation of %s (%.0f%% recorded)\n",
		humanize.Ordinal(st.Generation), humanize.Comma(int64(st.Total)), pct)

	city := "no cities"
	if st.CityTemperature != nil {
		city = humanize.FormatFloat("#,###.##", *st.CityTemperature) + "℃ in cities"
	}
	fmt.Fprintf(&b, "avg %s℃, pollution %s%%, %s\n",
		humanize.FormatFloat("#,###.##", st.MeanTemperature),
		humanize.FormatFloat("#,###.#", st.MeanPollution*100),
		city,
	)

	kinds := make([]string, 0, len(st.Terrain))
	for kind := range st.Terrain {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s %s", kind, humanize.Comma(int64(st.Terrain[kind]))))
	}
	b.WriteString(strings.Join(parts, ", "))

	if n := len(snap.History); n >= 2 {
		delta := snap.History[n-1].MeanTemperature - snap.History[0].MeanTemperature
		fmt.Fprintf(&b, "\ntemperature %+.2f℃ over the last %d generations", delta, n-1)
	}
	return b.String()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds or maxWait elapses.
func waitForAPI(ctx context.Context, obs *observer.Observer, maxWait time.Duration) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(maxWait)

	for {
		if obs.Ready(ctx) {
			slog.Info("climatesim API is ready")
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("not ready within %s", maxWait)
		}
		slog.Info("climatesim not ready, retrying...", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
