// Package engine provides the generation clock and the observer-safe
// simulation state that it drives.
package engine

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultGenerations is the reference run length: one simulated year.
const DefaultGenerations = 365

// Clock sequences a fixed number of generations. Each tick records the
// current aggregates and, unless the run is complete, steps the grid once.
type Clock struct {
	Sim *Simulation

	// Generation is the generation currently shown by the grid (starts at 1).
	Generation int
	// Total is the number of generations in the run, and the final length
	// of every recorded series.
	Total int

	// OnGeneration is called after every recorded sample.
	OnGeneration func(s Sample)

	interval atomic.Int64 // pause between ticks, in nanoseconds
	running  atomic.Bool
	stopped  atomic.Bool
}

// NewClock creates a clock for total generations with no pacing.
func NewClock(sim *Simulation, total int) *Clock {
	if total <= 0 {
		total = DefaultGenerations
	}
	return &Clock{
		Sim:        sim,
		Generation: 1,
		Total:      total,
	}
}

// Interval returns the pause between ticks.
func (c *Clock) Interval() time.Duration {
	return time.Duration(c.interval.Load())
}

// SetInterval changes the pause between ticks. Safe to call while running.
func (c *Clock) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.interval.Store(int64(d))
}

// Running reports whether Run is in progress.
func (c *Clock) Running() bool { return c.running.Load() }

// Finished reports whether the last generation has been recorded.
func (c *Clock) Finished() bool {
	return c.Generation >= c.Total && c.Sim.Recorded() >= c.Total
}

// Tick records the current generation and advances the grid if the run is
// not complete. Returns false once the final generation has been recorded.
func (c *Clock) Tick() bool {
	if c.Finished() {
		return false
	}
	sample := c.Sim.Record(c.Generation)
	if c.OnGeneration != nil {
		c.OnGeneration(sample)
	}
	if c.Generation >= c.Total {
		return false
	}
	c.Generation++
	c.Sim.Step(c.Generation)
	return true
}

// Run ticks until the run completes or Stop is called.
func (c *Clock) Run() {
	c.running.Store(true)
	defer c.running.Store(false)
	slog.Info("generation clock started", "generation", c.Generation, "total", c.Total, "interval", c.Interval())

	for !c.stopped.Load() {
		start := time.Now()
		if !c.Tick() {
			break
		}

		// Sleep for the remainder of the interval.
		if target := c.Interval(); target > 0 {
			if elapsed := time.Since(start); elapsed < target {
				time.Sleep(target - elapsed)
			}
		}
	}

	slog.Info("generation clock stopped", "generation", c.Generation, "finished", c.Finished())
}

// Stop halts Run after the current tick.
func (c *Clock) Stop() {
	c.stopped.Store(true)
}
