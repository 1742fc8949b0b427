package world

import (
	"fmt"
	"math"

	"github.com/talgya/climate-world/internal/entropy"
)

// Grid is a toroidal rows×cols array of cells stored in row-major order.
// Both axes wrap, so every cell has exactly four neighbors.
type Grid struct {
	cols, rows int
	cells      []Cell
	params     Params
	src        entropy.Source

	stats Stats
}

// Stats holds the aggregate means of a committed generation.
type Stats struct {
	MeanTemperature float64
	MeanPollution   float64
	// CityTemperature is NaN when no cell is currently a city.
	CityTemperature float64
	CityCells       int
}

// HasCityTemperature reports whether the city mean is defined.
func (s Stats) HasCityTemperature() bool {
	return s.CityCells > 0
}

// Transition records a committed terrain change.
type Transition struct {
	X, Y int
	From TerrainKind
	To   TerrainKind
}

func (t Transition) String() string {
	return fmt.Sprintf("%s at (%d,%d) became %s", t.From, t.X, t.Y, t.To)
}

// NewGrid builds a grid from a validated layout. Cells draw their initial
// wind and cloud values from src in row-major order; src is kept for the
// per-generation cloud-growth chance.
func NewGrid(layout *Layout, src entropy.Source, params Params) (*Grid, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: no random source", ErrInvalidConfig)
	}

	g := &Grid{
		cols:   layout.Cols,
		rows:   layout.Rows,
		cells:  make([]Cell, 0, layout.Cols*layout.Rows),
		params: params,
		src:    src,
	}
	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.cols; x++ {
			kind, _ := layout.KindAt(x, y)
			g.cells = append(g.cells, NewCell(x, y, kind, layout.PollutionAt(x, y), src))
		}
	}
	g.stats = g.computeStats()
	return g, nil
}

// Cols returns the grid width.
func (g *Grid) Cols() int { return g.cols }

// Rows returns the grid height.
func (g *Grid) Rows() int { return g.rows }

// Stats returns the aggregates of the last committed generation.
func (g *Grid) Stats() Stats { return g.stats }

// wrap applies toroidal wrapping to the provided coordinates.
func (g *Grid) wrap(x, y int) (int, int) {
	x = (x%g.cols + g.cols) % g.cols
	y = (y%g.rows + g.rows) % g.rows
	return x, y
}

// Cell returns the cell at (x, y). Coordinates wrap.
func (g *Grid) Cell(x, y int) *Cell {
	x, y = g.wrap(x, y)
	return &g.cells[y*g.cols+x]
}

// Neighbor returns the cell one step from (x, y) in dir, wrapping on both axes.
func (g *Grid) Neighbor(x, y int, dir Direction) *Cell {
	dx, dy := dir.Offset()
	return g.Cell(x+dx, y+dy)
}

// Cells calls fn for every cell in row-major order.
func (g *Grid) Cells(fn func(c *Cell)) {
	for i := range g.cells {
		fn(&g.cells[i])
	}
}

// TerrainCounts returns how many cells currently hold each kind.
func (g *Grid) TerrainCounts() map[TerrainKind]int {
	counts := make(map[TerrainKind]int)
	for i := range g.cells {
		counts[g.cells[i].cur.kind]++
	}
	return counts
}

// Step advances the grid by one generation: every cell computes its next
// values from committed state, then every cell commits, then the aggregates
// are recomputed. It returns the terrain transitions that were committed.
func (g *Grid) Step() []Transition {
	for i := range g.cells {
		g.cells[i].begin()
	}

	var neighbors [4]*Cell
	for i := range g.cells {
		c := &g.cells[i]
		for d, dir := range Directions {
			neighbors[d] = g.Neighbor(c.x, c.y, dir)
		}
		g.params.advance(c, &neighbors, g.src)
	}

	var transitions []Transition
	for i := range g.cells {
		c := &g.cells[i]
		if from, changed := c.commit(); changed {
			transitions = append(transitions, Transition{X: c.x, Y: c.y, From: from, To: c.cur.kind})
		}
	}

	g.stats = g.computeStats()
	return transitions
}

func (g *Grid) computeStats() Stats {
	var s Stats
	var cityTotal float64
	for i := range g.cells {
		c := &g.cells[i].cur
		s.MeanTemperature += c.temperature
		s.MeanPollution += c.pollution
		if c.kind == City {
			cityTotal += c.temperature
			s.CityCells++
		}
	}
	n := float64(len(g.cells))
	s.MeanTemperature /= n
	s.MeanPollution /= n
	if s.CityCells > 0 {
		s.CityTemperature = cityTotal / float64(s.CityCells)
	} else {
		s.CityTemperature = math.NaN()
	}
	return s
}
