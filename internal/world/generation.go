// Layout generation using layered simplex noise.
// Generates elevation, cold and moisture fields, then derives terrain.
// Noise is sampled on a 4-D torus so the generated layout wraps seamlessly.
package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds layout generation parameters.
type GenConfig struct {
	Cols int
	Rows int
	Seed int64 // Must be non-zero for reproducible layouts

	SeaLevel    float64 // Elevation below which a cell is sea (0.0–1.0)
	IceLevel    float64 // Cold above which sea freezes into iceberg (0.0–1.0)
	ForestLevel float64 // Moisture above which land is forest (0.0–1.0)
	CityLevel   float64 // Settlement potential above which land is city (0.0–1.0)

	Pollution float64 // Initial pollution of every city cell
}

// DefaultGenConfig returns the reference 20×20 configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Cols:        20,
		Rows:        20,
		Seed:        42,
		SeaLevel:    0.45,
		IceLevel:    0.68,
		ForestLevel: 0.55,
		CityLevel:   0.62,
	}
}

// Generate creates a complete layout.
func Generate(cfg GenConfig) (*Layout, error) {
	l, err := NewLayout(cfg.Cols, cfg.Rows)
	if err != nil {
		return nil, err
	}

	// Four noise generators for independent layers.
	elevNoise := opensimplex.NewNormalized(cfg.Seed)
	coldNoise := opensimplex.NewNormalized(cfg.Seed + 1)
	moistNoise := opensimplex.NewNormalized(cfg.Seed + 2)
	cityNoise := opensimplex.NewNormalized(cfg.Seed + 3)

	for y := 0; y < cfg.Rows; y++ {
		for x := 0; x < cfg.Cols; x++ {
			elev := torusNoise(elevNoise, x, y, cfg.Cols, cfg.Rows, 1.2)
			cold := torusNoise(coldNoise, x, y, cfg.Cols, cfg.Rows, 0.8)
			moist := torusNoise(moistNoise, x, y, cfg.Cols, cfg.Rows, 1.6)
			city := torusNoise(cityNoise, x, y, cfg.Cols, cfg.Rows, 2.4)

			kind := deriveTerrain(elev, cold, moist, city, cfg)
			l.Set(x, y, kind)
			if kind == City {
				l.SetPollution(x, y, cfg.Pollution)
			}
		}
	}
	return l, nil
}

// deriveTerrain determines the terrain kind from the noise layers.
func deriveTerrain(elev, cold, moist, city float64, cfg GenConfig) TerrainKind {
	if elev < cfg.SeaLevel {
		if cold > cfg.IceLevel {
			return Iceberg
		}
		return Sea
	}
	if city > cfg.CityLevel {
		return City
	}
	if moist > cfg.ForestLevel {
		return Forest
	}
	return Land
}

// torusNoise samples normalized 4-D noise on a torus so that column 0 and
// column cols-1 (and likewise rows) are neighbors in noise space.
func torusNoise(noise opensimplex.Noise, x, y, cols, rows int, scale float64) float64 {
	ax := 2 * math.Pi * float64(x) / float64(cols)
	ay := 2 * math.Pi * float64(y) / float64(rows)
	return noise.Eval4(
		scale*math.Cos(ax), scale*math.Sin(ax),
		scale*math.Cos(ay), scale*math.Sin(ay),
	)
}

// LayoutCounts returns a summary of terrain kind distribution.
func LayoutCounts(l *Layout) map[TerrainKind]int {
	counts := make(map[TerrainKind]int)
	for y := 0; y < l.Rows; y++ {
		for x := 0; x < l.Cols; x++ {
			if k, ok := l.KindAt(x, y); ok {
				counts[k]++
			}
		}
	}
	return counts
}
