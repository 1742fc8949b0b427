// Simulation ties the grid to its recorded statistics and events.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/talgya/climate-world/internal/world"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Simulation owns the grid. Step holds the write lock for the whole
// generation, so readers going through View never see a grid where some
// cells are committed and others are not.
type Simulation struct {
	mu sync.RWMutex

	grid       *world.Grid
	generation int
	series     Series
	events     []Event
}

// Event is a notable occurrence in the world.
type Event struct {
	Generation  int    `json:"generation"`
	Description string `json:"description"`
	Category    string `json:"category"` // "terrain"
}

// Sample is the aggregate statistics of one generation. CityTemperature
// is NaN when no cell was a city.
type Sample struct {
	Generation      int
	MeanTemperature float64
	MeanPollution   float64
	CityTemperature float64
}

// HasCityTemperature reports whether the city sample is defined.
func (s Sample) HasCityTemperature() bool {
	return !math.IsNaN(s.CityTemperature)
}

// Series holds one value per recorded generation for each aggregate.
type Series struct {
	Temperature     []float64
	Pollution       []float64
	CityTemperature []float64
}

// Len returns the number of recorded generations.
func (s Series) Len() int { return len(s.Temperature) }

// Sample returns the i-th recorded sample (generation i+1).
func (s Series) Sample(i int) Sample {
	return Sample{
		Generation:      i + 1,
		MeanTemperature: s.Temperature[i],
		MeanPollution:   s.Pollution[i],
		CityTemperature: s.CityTemperature[i],
	}
}

// NewSimulation wraps a freshly built grid at generation 1.
func NewSimulation(g *world.Grid) *Simulation {
	return &Simulation{grid: g, generation: 1}
}

// Generation returns the generation the grid currently holds.
func (s *Simulation) Generation() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Step advances the grid one generation and logs terrain transitions as
// events tagged with generation.
func (s *Simulation) Step(generation int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transitions := s.grid.Step()
	s.generation = generation
	for _, t := range transitions {
		s.events = append(s.events, Event{
			Generation:  generation,
			Description: t.String(),
			Category:    "terrain",
		})
	}
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	if len(transitions) > 0 {
		slog.Debug("terrain transitions", "generation", generation, "count", len(transitions))
	}
}

// Record appends the grid's current aggregates to the series.
func (s *Simulation) Record(generation int) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.grid.Stats()
	sample := Sample{
		Generation:      generation,
		MeanTemperature: st.MeanTemperature,
		MeanPollution:   st.MeanPollution,
		CityTemperature: st.CityTemperature,
	}
	s.series.Temperature = append(s.series.Temperature, sample.MeanTemperature)
	s.series.Pollution = append(s.series.Pollution, sample.MeanPollution)
	s.series.CityTemperature = append(s.series.CityTemperature, sample.CityTemperature)
	return sample
}

// Recorded returns how many samples have been recorded.
func (s *Simulation) Recorded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series.Len()
}

// Series returns a copy of the recorded series.
func (s *Simulation) Series() Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Series{
		Temperature:     append([]float64(nil), s.series.Temperature...),
		Pollution:       append([]float64(nil), s.series.Pollution...),
		CityTemperature: append([]float64(nil), s.series.CityTemperature...),
	}
}

// Events returns a copy of the most recent events.
func (s *Simulation) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// View calls fn with the grid and the generation it holds while no
// generation is in progress. fn must not retain the grid or any cell.
func (s *Simulation) View(fn func(g *world.Grid, generation int)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.grid, s.generation)
}

// Report logs a daily summary of the current state.
func (s *Simulation) Report() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.grid.Stats()
	counts := s.grid.TerrainCounts()
	city := "n/a"
	if st.HasCityTemperature() {
		city = fmt.Sprintf("%.3f", st.CityTemperature)
	}
	slog.Info("daily report",
		"generation", s.generation,
		"avg_temperature", fmt.Sprintf("%.3f", st.MeanTemperature),
		"avg_pollution", fmt.Sprintf("%.3f", st.MeanPollution),
		"city_temperature", city,
		"sea", counts[world.Sea],
		"iceberg", counts[world.Iceberg],
		"land", counts[world.Land],
		"forest", counts[world.Forest],
		"city", counts[world.City],
		"events", len(s.events),
	)
}

// EventsAt returns the retained events of one generation.
func (s *Simulation) EventsAt(generation int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for i := len(s.events) - 1; i >= 0 && s.events[i].Generation >= generation; i-- {
		if s.events[i].Generation == generation {
			out = append(out, s.events[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
