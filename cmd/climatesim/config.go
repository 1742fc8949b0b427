package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/talgya/climate-world/internal/engine"
	"github.com/talgya/climate-world/internal/world"
)

// Config holds the command-line settings of a run.
type Config struct {
	MapPath     string        // Empty = generate from Seed
	Cols        int
	Rows        int
	Seed        int64         // 0 = pick one
	Generations int
	DBPath      string        // Empty = no persistence
	OutDir      string        // Empty = no export
	Port        int           // 0 = no HTTP API
	Interval    time.Duration // Pause between generations
	ReportEvery int           // 0 = no daily report
	Crypto      bool          // Draw cell randomness from crypto/rand; not replayable
	DumpLayout  string        // Write the layout here before running
	ExportRun   string        // Re-export this stored run and exit
}

// DefaultConfig returns the reference run: a 20x20 grid for one year.
func DefaultConfig() Config {
	gen := world.DefaultGenConfig()
	return Config{
		Cols:        gen.Cols,
		Rows:        gen.Rows,
		Generations: engine.DefaultGenerations,
		DBPath:      "data/climate.db",
		OutDir:      "out",
		Port:        8080,
		ReportEvery: 30,
	}
}

// parseConfig binds flags over DefaultConfig and validates the result.
func parseConfig(args []string, output io.Writer) (Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("climatesim", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.MapPath, "map", cfg.MapPath, "terrain layout file (empty = generated)")
	fs.IntVar(&cfg.Cols, "cols", cfg.Cols, "grid columns")
	fs.IntVar(&cfg.Rows, "rows", cfg.Rows, "grid rows")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed (0 = random)")
	fs.IntVar(&cfg.Generations, "generations", cfg.Generations, "generations to run")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (empty = disabled)")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "series export directory (empty = disabled)")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP API port (0 = disabled)")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "pause between generations")
	fs.IntVar(&cfg.ReportEvery, "report-every", cfg.ReportEvery, "log a report every N generations (0 = never)")
	fs.BoolVar(&cfg.Crypto, "crypto", cfg.Crypto, "draw cell randomness from crypto/rand (run cannot be replayed)")
	fs.StringVar(&cfg.DumpLayout, "dump-layout", cfg.DumpLayout, "write the terrain layout to this file (replay with -map)")
	fs.StringVar(&cfg.ExportRun, "export-run", cfg.ExportRun, "re-export the series of a stored run ID and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.Cols <= 0 || c.Rows <= 0:
		return fmt.Errorf("grid %dx%d: %w", c.Cols, c.Rows, world.ErrInvalidConfig)
	case c.Generations <= 0:
		return fmt.Errorf("generations %d: %w", c.Generations, world.ErrInvalidConfig)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.Interval < 0:
		return fmt.Errorf("negative interval %s", c.Interval)
	case c.ReportEvery < 0:
		return fmt.Errorf("negative report-every %d", c.ReportEvery)
	case c.ExportRun != "" && (c.DBPath == "" || c.OutDir == ""):
		return fmt.Errorf("export-run needs both -db and -out")
	}
	return nil
}
