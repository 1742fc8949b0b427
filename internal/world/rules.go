package world

import "github.com/talgya/climate-world/internal/entropy"

// Params holds the constants of the climate transition rule.
type Params struct {
	CityPollution    float64 // Pollution a city emits per generation
	ForestAbsorption float64 // Pollution a forest removes per generation

	GreenhouseThreshold float64 // Pollution above which warming replaces relaxation
	PollutionHeat       float64 // °C per generation at 100% pollution and 0°C
	HeatAsymptote       float64 // Warming vanishes as temperature approaches this
	Relaxation          float64 // °C step toward base temperature when air is clean

	RainThreshold     float64 // Cloud level at which it rains
	RainCold          float64 // Cooling factor while raining
	RainColdReference float64 // Temperature at which rain stops cooling
	RainScrub         float64 // Divisor applied to pollution while raining
	CloudGrowth       float64 // Cloud increment on a dry generation
	CloudGrowthChance float64 // Probability of the increment

	ForestBurnTemperature float64 // Forest turns to land above this
	ForestDeathPollution  float64 // Forest turns to land at or above this
}

// DefaultParams returns the reference rule constants.
func DefaultParams() Params {
	return Params{
		CityPollution:    0.14,
		ForestAbsorption: 0.4,

		GreenhouseThreshold: 0.2,
		PollutionHeat:       0.6,
		HeatAsymptote:       80,
		Relaxation:          0.5,

		RainThreshold:     1,
		RainCold:          0.4,
		RainColdReference: -10,
		RainScrub:         1.3,
		CloudGrowth:       0.1,
		CloudGrowthChance: 0.5,

		ForestBurnTemperature: 50,
		ForestDeathPollution:  1,
	}
}

// advance computes c.next from the committed values of c and its neighbors,
// given in Directions order. It must not read any neighbor's next values.
//
// The steps run in a fixed order: later steps read next values written by
// earlier ones.
func (p *Params) advance(c *Cell, neighbors *[4]*Cell, src entropy.Source) {
	cur := &c.cur
	next := &c.next

	// Sources and sinks.
	switch cur.kind {
	case City:
		next.pollution += p.CityPollution
	case Forest:
		next.pollution -= p.ForestAbsorption
		if next.pollution < 0 {
			next.pollution = 0
		}
	}

	// Advection from upwind neighbors. A stronger upwind neighbor turns our
	// wind. next.windSpeed is never written, so the comparison is against
	// our own speed.
	for i, dir := range Directions {
		n := &neighbors[i].cur
		if n.windDir != dir.Opposite() {
			continue
		}
		next.pollution += n.pollution * float64(n.windSpeed)
		if n.windSpeed > next.windSpeed {
			next.windDir = n.windDir
		}
	}

	// Our own pollution blows away.
	next.pollution -= cur.pollution * float64(cur.windSpeed)
	if next.pollution < 0 {
		next.pollution = 0
	}

	// Greenhouse warming, or relaxation toward the base temperature.
	if cur.pollution > p.GreenhouseThreshold {
		next.temperature += p.PollutionHeat * cur.pollution * (1 - cur.temperature/p.HeatAsymptote)
	} else if cur.temperature > c.baseTemperature {
		next.temperature -= p.Relaxation
	} else if cur.temperature < c.baseTemperature {
		next.temperature += p.Relaxation
	}

	// Precipitation.
	if cur.cloud >= p.RainThreshold {
		next.cloud = 0
		next.temperature -= p.RainCold * (1 - cur.temperature/p.RainColdReference)
		next.pollution /= p.RainScrub
	} else if src.Float64() > 1-p.CloudGrowthChance {
		next.cloud += p.CloudGrowth
	}

	// Terrain transitions against the pre-commit values.
	switch cur.kind {
	case Iceberg:
		if next.temperature >= 0 {
			next.kind = Sea
		}
	case Sea:
		if next.temperature < 0 {
			next.kind = Iceberg
		}
	case Forest:
		if next.temperature > p.ForestBurnTemperature || next.pollution >= p.ForestDeathPollution {
			next.kind = Land
		}
	}
}
