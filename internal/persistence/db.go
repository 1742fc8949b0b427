// Package persistence provides SQLite-based storage of simulation runs,
// their per-generation samples and terrain events.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/climate-world/internal/engine"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Run describes one stored simulation run.
type Run struct {
	ID          string `db:"id" json:"id"`
	StartedAt   int64  `db:"started_at" json:"started_at"` // Unix seconds
	FinishedAt  int64  `db:"finished_at" json:"finished_at,omitempty"`
	Seed        int64  `db:"seed" json:"seed"`
	Cols        int    `db:"grid_cols" json:"cols"`
	Rows        int    `db:"grid_rows" json:"rows"`
	Generations int    `db:"generations" json:"generations"` // Planned length
	Recorded    int    `db:"recorded" json:"recorded"`       // Samples written so far
	Layout      string `db:"layout" json:"layout"`           // Map file path or "generated"
}

// Started returns StartedAt as a time.
func (r Run) Started() time.Time { return time.Unix(r.StartedAt, 0) }

// Finished reports whether the run recorded every planned generation.
func (r Run) Finished() bool { return r.FinishedAt != 0 }

// NewRun returns a run with a fresh ID, started now.
func NewRun(seed int64, cols, rows, generations int, layout string) Run {
	return Run{
		ID:          uuid.NewString(),
		StartedAt:   time.Now().Unix(),
		Seed:        seed,
		Cols:        cols,
		Rows:        rows,
		Generations: generations,
		Layout:      layout,
	}
}

type sampleRow struct {
	Generation      int             `db:"generation"`
	MeanTemperature float64         `db:"mean_temperature"`
	MeanPollution   float64         `db:"mean_pollution"`
	CityTemperature sql.NullFloat64 `db:"city_temperature"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		seed INTEGER NOT NULL,
		grid_cols INTEGER NOT NULL,
		grid_rows INTEGER NOT NULL,
		generations INTEGER NOT NULL,
		recorded INTEGER NOT NULL DEFAULT 0,
		layout TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS samples (
		run_id TEXT NOT NULL REFERENCES runs(id),
		generation INTEGER NOT NULL,
		mean_temperature REAL NOT NULL,
		mean_pollution REAL NOT NULL,
		city_temperature REAL,
		PRIMARY KEY (run_id, generation)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		generation INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, generation);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateRun inserts a new run row.
func (db *DB) CreateRun(r Run) error {
	_, err := db.conn.NamedExec(`INSERT INTO runs
		(id, started_at, finished_at, seed, grid_cols, grid_rows, generations, recorded, layout)
		VALUES (:id, :started_at, :finished_at, :seed, :grid_cols, :grid_rows, :generations, :recorded, :layout)`, r)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// SaveSample writes one generation's aggregates and bumps the run's
// recorded count. An undefined city temperature is stored as NULL.
func (db *DB) SaveSample(runID string, s engine.Sample) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	city := sql.NullFloat64{Float64: s.CityTemperature, Valid: s.HasCityTemperature()}
	_, err = tx.Exec(`INSERT OR REPLACE INTO samples
		(run_id, generation, mean_temperature, mean_pollution, city_temperature)
		VALUES (?, ?, ?, ?, ?)`,
		runID, s.Generation, s.MeanTemperature, s.MeanPollution, city,
	)
	if err != nil {
		return fmt.Errorf("insert sample %d: %w", s.Generation, err)
	}
	if _, err := tx.Exec(
		"UPDATE runs SET recorded = (SELECT COUNT(*) FROM samples WHERE run_id = ?) WHERE id = ?",
		runID, runID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveEvents appends events to the run.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO events (run_id, generation, description, category) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(runID, e.Generation, e.Description, e.Category); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// FinishRun marks the run complete.
func (db *DB) FinishRun(runID string, at time.Time) error {
	res, err := db.conn.Exec("UPDATE runs SET finished_at = ? WHERE id = ?", at.Unix(), runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish %s: %w", runID, ErrRunNotFound)
	}
	slog.Info("run finished", "run", runID)
	return nil
}

// GetRun loads one run by ID.
func (db *DB) GetRun(runID string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("get %s: %w", runID, ErrRunNotFound)
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	return runs, err
}

// LoadSamples returns every stored sample of a run in generation order.
// NULL city temperatures come back as NaN.
func (db *DB) LoadSamples(runID string) ([]engine.Sample, error) {
	var rows []sampleRow
	err := db.conn.Select(&rows,
		`SELECT generation, mean_temperature, mean_pollution, city_temperature
		 FROM samples WHERE run_id = ? ORDER BY generation`, runID)
	if err != nil {
		return nil, err
	}

	samples := make([]engine.Sample, len(rows))
	for i, r := range rows {
		samples[i] = engine.Sample{
			Generation:      r.Generation,
			MeanTemperature: r.MeanTemperature,
			MeanPollution:   r.MeanPollution,
			CityTemperature: math.NaN(),
		}
		if r.CityTemperature.Valid {
			samples[i].CityTemperature = r.CityTemperature.Float64
		}
	}
	return samples, nil
}

// LoadSeries rebuilds the three series of a run from its samples.
func (db *DB) LoadSeries(runID string) (engine.Series, error) {
	samples, err := db.LoadSamples(runID)
	if err != nil {
		return engine.Series{}, err
	}
	var s engine.Series
	for _, smp := range samples {
		s.Temperature = append(s.Temperature, smp.MeanTemperature)
		s.Pollution = append(s.Pollution, smp.MeanPollution)
		s.CityTemperature = append(s.CityTemperature, smp.CityTemperature)
	}
	return s, nil
}

// RecentEvents returns the most recent N events of a run, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT generation, description, category FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return events, err
}
