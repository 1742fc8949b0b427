// Package render maps cell state to display colours, labels and glyphs.
// The world package never formats anything itself; the API and the watcher
// go through here.
package render

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/talgya/climate-world/internal/world"
)

var palette = map[world.TerrainKind]color.RGBA{
	world.Sea:     {R: 0x00, G: 0xA3, B: 0xFF, A: 0xFF},
	world.Iceberg: {R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
	world.Forest:  {R: 0x28, G: 0xAE, B: 0x89, A: 0xFF},
	world.City:    {R: 0xFF, G: 0xBF, B: 0x00, A: 0xFF},
	world.Land:    {R: 0xAB, G: 0x95, B: 0x84, A: 0xFF},
}

// Color returns the fill colour for a terrain kind. Unknown kinds are
// transparent black.
func Color(kind world.TerrainKind) color.RGBA {
	return palette[kind]
}

// Hex returns Color as "#RRGGBB".
func Hex(kind world.TerrainKind) string {
	c := Color(kind)
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Glyph returns the single-character map code of a kind.
func Glyph(kind world.TerrainKind) string {
	return string(kind.Code())
}

// Label is the two-line cell caption: temperature truncated to whole
// degrees, then pollution as a percentage with up to two decimals.
func Label(c *world.Cell) string {
	return FormatLabel(c.Temperature(), c.Pollution())
}

// FormatLabel builds a Label from raw values.
func FormatLabel(temperature, pollution float64) string {
	pct := math.Round(pollution*100*100) / 100
	p := strconv.FormatFloat(pct, 'f', -1, 64)
	if !strings.Contains(p, ".") {
		p += ".0"
	}
	return fmt.Sprintf("%d℃\n P:%s%%", int(temperature), p)
}
