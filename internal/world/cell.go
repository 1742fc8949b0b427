package world

import (
	"math"

	"github.com/talgya/climate-world/internal/entropy"
)

// MaxWindSpeed is the upper bound (km/h, inclusive) of the initial wind draw.
const MaxWindSpeed = 30

// climate holds the mutable per-generation values of a cell.
type climate struct {
	kind        TerrainKind
	windSpeed   int       // km/h, 0–30
	windDir     Direction // direction the wind blows toward
	cloud       float64   // >= 1 means raining this generation
	pollution   float64   // 0–1 after every commit
	temperature float64   // Celsius
}

// Cell is a single grid position. The grid owns every cell; outside the
// world package cells are read-only.
//
// cur holds the committed generation; next is the shadow copy written by
// the transition rule and copied back on commit.
type Cell struct {
	x, y            int
	baseTemperature float64

	cur  climate
	next climate
}

// NewCell creates a cell for the given terrain kind, drawing its initial
// wind and cloud values from src.
func NewCell(x, y int, kind TerrainKind, pollution float64, src entropy.Source) Cell {
	nominal := kind.NominalTemperature()
	c := Cell{
		x:               x,
		y:               y,
		baseTemperature: nominal,
		cur: climate{
			kind:        kind,
			windSpeed:   src.IntN(MaxWindSpeed + 1),
			windDir:     Directions[src.IntN(len(Directions))],
			cloud:       roundTo(src.Float64(), 1),
			pollution:   pollution,
			temperature: nominal,
		},
	}
	c.next = c.cur
	return c
}

// Position returns the cell's grid coordinates.
func (c *Cell) Position() (x, y int) { return c.x, c.y }

// Kind returns the committed terrain kind.
func (c *Cell) Kind() TerrainKind { return c.cur.kind }

// BaseTemperature returns the nominal temperature of the cell's original kind.
func (c *Cell) BaseTemperature() float64 { return c.baseTemperature }

// Temperature returns the committed temperature in °C.
func (c *Cell) Temperature() float64 { return c.cur.temperature }

// Pollution returns the committed air pollution, always within [0, 1].
func (c *Cell) Pollution() float64 { return c.cur.pollution }

// Cloud returns the committed cloud/precipitation level.
func (c *Cell) Cloud() float64 { return c.cur.cloud }

// Raining reports whether the cell rains during the next generation.
func (c *Cell) Raining() bool { return c.cur.cloud >= 1 }

// WindSpeed returns the wind speed in km/h.
func (c *Cell) WindSpeed() int { return c.cur.windSpeed }

// WindDirection returns the direction the wind blows toward.
func (c *Cell) WindDirection() Direction { return c.cur.windDir }

// begin resets the shadow values to the committed ones.
func (c *Cell) begin() {
	c.next = c.cur
}

// commit copies the shadow values into the committed state and reports
// whether the terrain kind changed.
func (c *Cell) commit() (from TerrainKind, changed bool) {
	from = c.cur.kind
	c.cur = climate{
		kind:        c.next.kind,
		windSpeed:   c.next.windSpeed,
		windDir:     c.next.windDir,
		cloud:       c.next.cloud,
		pollution:   clamp(roundTo(c.next.pollution, 2), 0, 1),
		temperature: roundTo(c.next.temperature, 2),
	}
	return from, from != c.cur.kind
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
