// Package world provides the toroidal terrain grid, its cells and the
// per-generation climate rules that evolve them.
package world

import "fmt"

// TerrainKind is the closed category of a cell.
type TerrainKind uint8

const (
	Sea     TerrainKind = iota // Freezes into iceberg below 0°C
	Land                       // Sticky, no transition rule
	Iceberg                    // Melts into sea at or above 0°C
	Forest                     // Burns or dies into land
	City                       // Pollution source, sticky
)

// TerrainKinds lists every kind in declaration order.
var TerrainKinds = [...]TerrainKind{Sea, Land, Iceberg, Forest, City}

// Nominal starting temperatures in °C.
const (
	SeaStartTemperature     = 15.0
	LandStartTemperature    = 22.0
	IcebergStartTemperature = -10.0
	ForestStartTemperature  = 20.0
	CityStartTemperature    = 27.0
)

// NominalTemperature returns the starting (and base) temperature for a kind.
func (k TerrainKind) NominalTemperature() float64 {
	switch k {
	case Sea:
		return SeaStartTemperature
	case Land:
		return LandStartTemperature
	case Iceberg:
		return IcebergStartTemperature
	case Forest:
		return ForestStartTemperature
	case City:
		return CityStartTemperature
	default:
		return 0
	}
}

// Code returns the single-letter layout code for the kind.
func (k TerrainKind) Code() rune {
	switch k {
	case Sea:
		return 'S'
	case Land:
		return 'L'
	case Iceberg:
		return 'I'
	case Forest:
		return 'F'
	case City:
		return 'C'
	default:
		return '?'
	}
}

// String returns a human-readable name for the kind.
func (k TerrainKind) String() string {
	switch k {
	case Sea:
		return "sea"
	case Land:
		return "land"
	case Iceberg:
		return "iceberg"
	case Forest:
		return "forest"
	case City:
		return "city"
	default:
		return fmt.Sprintf("terrain(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the defined kinds.
func (k TerrainKind) Valid() bool {
	return k <= City
}

// ParseTerrainCode maps a layout code to a kind.
func ParseTerrainCode(r rune) (TerrainKind, bool) {
	switch r {
	case 'S':
		return Sea, true
	case 'L':
		return Land, true
	case 'I':
		return Iceberg, true
	case 'F':
		return Forest, true
	case 'C':
		return City, true
	}
	return 0, false
}

// Direction is one of the four cardinal directions.
type Direction uint8

const (
	North Direction = iota
	South
	East
	West
)

// Directions is the fixed iteration order used by the advection step.
var Directions = [4]Direction{North, South, East, West}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	default:
		return East
	}
}

// Offset returns the unit step for d. North decreases y.
func (d Direction) Offset() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case South:
		return 0, 1
	case East:
		return 1, 0
	default:
		return -1, 0
	}
}

func (d Direction) String() string {
	switch d {
	case North:
		return "N"
	case South:
		return "S"
	case East:
		return "E"
	case West:
		return "W"
	default:
		return "?"
	}
}
