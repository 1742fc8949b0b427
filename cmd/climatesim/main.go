// Command climatesim runs the toroidal climate automaton for a fixed number
// of daily generations, serving its state over HTTP while it runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/talgya/climate-world/internal/api"
	"github.com/talgya/climate-world/internal/engine"
	"github.com/talgya/climate-world/internal/entropy"
	"github.com/talgya/climate-world/internal/export"
	"github.com/talgya/climate-world/internal/persistence"
	"github.com/talgya/climate-world/internal/world"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	if cfg.ExportRun != "" {
		if err := exportRun(cfg); err != nil {
			slog.Error("re-export failed", "run", cfg.ExportRun, "error", err)
			os.Exit(1)
		}
		return
	}

	seed := entropy.PickSeed(cfg.Seed)
	slog.Info("climate automaton starting",
		"cols", cfg.Cols,
		"rows", cfg.Rows,
		"generations", cfg.Generations,
		"seed", seed,
		"crypto", cfg.Crypto,
	)

	// ── Layout ───────────────────────────────────────────────────────
	layout, source, err := loadLayout(cfg, seed)
	if err != nil {
		slog.Error("failed to build layout", "error", err)
		os.Exit(1)
	}
	for kind, n := range world.LayoutCounts(layout) {
		slog.Info("terrain", "type", kind.String(), "count", n)
	}
	if cfg.DumpLayout != "" {
		if err := dumpLayout(layout, cfg.DumpLayout); err != nil {
			slog.Error("failed to write layout", "error", err)
			os.Exit(1)
		}
		slog.Info("layout written", "path", cfg.DumpLayout)
	}

	// ── Grid + clock ─────────────────────────────────────────────────
	grid, err := world.NewGrid(layout, cellSource(cfg, seed), world.DefaultParams())
	if err != nil {
		slog.Error("failed to build grid", "error", err)
		os.Exit(1)
	}
	sim := engine.NewSimulation(grid)
	clock := engine.NewClock(sim, cfg.Generations)
	clock.SetInterval(cfg.Interval)

	// ── Database ─────────────────────────────────────────────────────
	var db *persistence.DB
	var run persistence.Run
	if cfg.DBPath != "" {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		db, err = persistence.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		run = persistence.NewRun(seed, cfg.Cols, cfg.Rows, cfg.Generations, source)
		if err := db.CreateRun(run); err != nil {
			slog.Error("failed to record run", "error", err)
			os.Exit(1)
		}
		slog.Info("database opened", "path", cfg.DBPath, "run", run.ID)
	}

	clock.OnGeneration = func(s engine.Sample) {
		if db != nil {
			if err := db.SaveSample(run.ID, s); err != nil {
				slog.Error("sample save failed", "generation", s.Generation, "error", err)
			}
			if err := db.SaveEvents(run.ID, sim.EventsAt(s.Generation)); err != nil {
				slog.Error("event save failed", "generation", s.Generation, "error", err)
			}
		}
		if cfg.ReportEvery > 0 && s.Generation%cfg.ReportEvery == 0 {
			sim.Report()
		}
	}

	// ── Run ──────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	go func() {
		<-gctx.Done()
		clock.Stop()
	}()

	if cfg.Port > 0 {
		adminKey := os.Getenv("CLIMATESIM_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("CLIMATESIM_ADMIN_KEY not set, admin POST endpoints disabled")
		}
		apiServer := &api.Server{
			Sim:      sim,
			Clock:    clock,
			DB:       db,
			RunID:    run.ID,
			Port:     cfg.Port,
			AdminKey: adminKey,
		}
		g.Go(func() error { return apiServer.Serve(gctx) })
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	}

	g.Go(func() error {
		fmt.Printf("Running %d generations on a %dx%d grid (Ctrl+C to stop)\n", cfg.Generations, cfg.Cols, cfg.Rows)
		clock.Run()
		sim.Report()
		if err := finish(cfg, clock, sim, db, run.ID); err != nil {
			return err
		}
		if cfg.Port > 0 && clock.Finished() {
			fmt.Println("Simulation finished. Serving final state (Ctrl+C to exit).")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Simulation stopped.")
}

// finish marks a completed run in the database and exports the series.
func finish(cfg Config, clock *engine.Clock, sim *engine.Simulation, db *persistence.DB, runID string) error {
	if !clock.Finished() {
		slog.Warn("run interrupted", "recorded", sim.Recorded(), "total", cfg.Generations)
	} else if db != nil {
		if err := db.FinishRun(runID, time.Now()); err != nil {
			slog.Error("failed to finish run", "error", err)
		}
	}

	if cfg.OutDir == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	exp := &export.Exporter{FS: osfs.New(cfg.OutDir)}
	if err := exp.Export(sim.Series()); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Printf("Series written to %s\n", cfg.OutDir)
	return nil
}

// exportRun rewrites the series files of a stored run without simulating.
func exportRun(cfg Config) error {
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(cfg.ExportRun)
	if err != nil {
		return err
	}
	series, err := db.LoadSeries(run.ID)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	if series.Len() == 0 {
		return fmt.Errorf("run %s has no samples", run.ID)
	}
	if !run.Finished() {
		slog.Warn("run was interrupted", "run", run.ID, "recorded", run.Recorded, "total", run.Generations)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	exp := &export.Exporter{FS: osfs.New(cfg.OutDir)}
	if err := exp.Export(series); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	slog.Info("run re-exported",
		"run", run.ID,
		"started", run.Started().Format(time.RFC3339),
		"generations", series.Len(),
		"out", cfg.OutDir,
	)
	return nil
}

// dumpLayout writes l to path so the run can be replayed with -map.
func dumpLayout(l *world.Layout, path string) error {
	fs := osfs.New(filepath.Dir(path))
	f, err := fs.Create(filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := l.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// cellSource picks the randomness behind cell initialization and cloud
// growth. Only the seeded source makes a run replayable.
func cellSource(cfg Config, seed int64) entropy.Source {
	if cfg.Crypto {
		return entropy.Crypto{}
	}
	return entropy.NewSeeded(seed)
}

// loadLayout reads the map file when one is given, otherwise generates a
// layout from seed. The second result names the layout's origin.
func loadLayout(cfg Config, seed int64) (*world.Layout, string, error) {
	if cfg.MapPath != "" {
		l, err := world.LoadLayout(cfg.MapPath, cfg.Cols, cfg.Rows)
		return l, cfg.MapPath, err
	}
	gen := world.DefaultGenConfig()
	gen.Cols, gen.Rows, gen.Seed = cfg.Cols, cfg.Rows, seed
	l, err := world.Generate(gen)
	return l, "generated", err
}
