package world

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/climate-world/internal/entropy"
)

// fixedSource returns the same draws forever. With the zero value every
// cell starts calm (speed 0, wind N, cloud 0) and clouds never grow.
type fixedSource struct {
	n int
	f float64
}

func (s fixedSource) IntN(n int) int {
	if s.n >= n {
		return n - 1
	}
	return s.n
}

func (s fixedSource) Float64() float64 { return s.f }

func mustLayout(t *testing.T, rows []string) *Layout {
	t.Helper()
	l, err := NewLayout(len(rows[0]), len(rows))
	require.NoError(t, err)
	for y, row := range rows {
		for x, ch := range row {
			kind, ok := ParseTerrainCode(ch)
			require.True(t, ok, "bad code %q", ch)
			l.Set(x, y, kind)
		}
	}
	return l
}

func mustGrid(t *testing.T, l *Layout, src entropy.Source) *Grid {
	t.Helper()
	g, err := NewGrid(l, src, DefaultParams())
	require.NoError(t, err)
	return g
}

func TestNeighborToroidalSymmetry(t *testing.T) {
	l := mustLayout(t, []string{
		"SLIFC",
		"CFILS",
		"SSSSS",
	})
	g := mustGrid(t, l, entropy.NewSeeded(1))

	for y := 0; y < g.Rows(); y++ {
		for x := 0; x < g.Cols(); x++ {
			for _, dir := range Directions {
				n := g.Neighbor(x, y, dir)
				nx, ny := n.Position()
				back := g.Neighbor(nx, ny, dir.Opposite())
				bx, by := back.Position()
				assert.Equal(t, [2]int{x, y}, [2]int{bx, by}, "(%d,%d) %s", x, y, dir)
				assert.Same(t, g.Cell(x, y), back)
			}
		}
	}
}

func TestNeighborWrapsEdges(t *testing.T) {
	l, err := UniformLayout(4, 3, Land)
	require.NoError(t, err)
	g := mustGrid(t, l, entropy.NewSeeded(1))

	tests := []struct {
		x, y   int
		dir    Direction
		wx, wy int
	}{
		{0, 0, North, 0, 2},
		{0, 0, West, 3, 0},
		{3, 2, East, 0, 2},
		{3, 2, South, 3, 0},
		{1, 1, North, 1, 0},
		{1, 1, East, 2, 1},
	}
	for _, tt := range tests {
		x, y := g.Neighbor(tt.x, tt.y, tt.dir).Position()
		assert.Equal(t, tt.wx, x, "x of %s neighbor of (%d,%d)", tt.dir, tt.x, tt.y)
		assert.Equal(t, tt.wy, y, "y of %s neighbor of (%d,%d)", tt.dir, tt.x, tt.y)
	}
}

func TestNewGridRejectsBadConfig(t *testing.T) {
	_, err := NewLayout(0, 5)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewLayout(3, -1)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	l, err := NewLayout(2, 2)
	require.NoError(t, err)
	l.Set(0, 0, Sea)
	l.Set(1, 0, Sea)
	l.Set(0, 1, Sea)
	_, err = NewGrid(l, entropy.NewSeeded(1), DefaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "(1,1)")

	l.Set(1, 1, Land)
	_, err = NewGrid(l, nil, DefaultParams())
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewGrid(nil, entropy.NewSeeded(1), DefaultParams())
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestCellConstruction(t *testing.T) {
	l := mustLayout(t, []string{"SLIFC"})
	g := mustGrid(t, l, entropy.NewSeeded(3))

	want := map[TerrainKind]float64{Sea: 15, Land: 22, Iceberg: -10, Forest: 20, City: 27}
	g.Cells(func(c *Cell) {
		assert.Equal(t, want[c.Kind()], c.Temperature())
		assert.Equal(t, want[c.Kind()], c.BaseTemperature())
		assert.Zero(t, c.Pollution())
		assert.GreaterOrEqual(t, c.WindSpeed(), 0)
		assert.LessOrEqual(t, c.WindSpeed(), MaxWindSpeed)
		assert.GreaterOrEqual(t, c.Cloud(), 0.0)
		assert.LessOrEqual(t, c.Cloud(), 1.0)
		assert.InDelta(t, math.Round(c.Cloud()*10)/10, c.Cloud(), 1e-12, "cloud is quantized to one decimal")
	})
}

func TestStatsCityTemperatureUndefinedWithoutCities(t *testing.T) {
	l, err := UniformLayout(3, 3, Sea)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})

	s := g.Stats()
	assert.False(t, s.HasCityTemperature())
	assert.True(t, math.IsNaN(s.CityTemperature))
	assert.Equal(t, 15.0, s.MeanTemperature)
	assert.Zero(t, s.MeanPollution)

	g.Step()
	assert.True(t, math.IsNaN(g.Stats().CityTemperature))
}

func TestStatsMeans(t *testing.T) {
	l := mustLayout(t, []string{"LC"})
	l.SetPollution(1, 0, 0.5)
	g := mustGrid(t, l, fixedSource{})

	s := g.Stats()
	assert.Equal(t, 24.5, s.MeanTemperature)
	assert.Equal(t, 0.25, s.MeanPollution)
	assert.Equal(t, 27.0, s.CityTemperature)
	assert.Equal(t, 1, s.CityCells)
}

func TestCalmSeaStaysAtBaseTemperature(t *testing.T) {
	l, err := UniformLayout(3, 3, Sea)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})

	for gen := 0; gen < 12; gen++ {
		transitions := g.Step()
		assert.Empty(t, transitions)
		g.Cells(func(c *Cell) {
			assert.Equal(t, Sea, c.Kind())
			assert.Equal(t, 15.0, c.Temperature())
			assert.Zero(t, c.Pollution())
		})
	}
}

func TestCalmSeaRelaxesTowardBase(t *testing.T) {
	l, err := UniformLayout(3, 3, Sea)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})

	warm := g.Cell(0, 0)
	warm.cur.temperature = 17
	cool := g.Cell(2, 2)
	cool.cur.temperature = 13.5

	wantWarm := []float64{16.5, 16, 15.5, 15, 15, 15}
	wantCool := []float64{14, 14.5, 15, 15, 15, 15}
	for i := range wantWarm {
		g.Step()
		assert.Equal(t, wantWarm[i], warm.Temperature(), "generation %d", i+1)
		assert.Equal(t, wantCool[i], cool.Temperature(), "generation %d", i+1)
	}
}

func TestIsolatedCityAccumulatesPollution(t *testing.T) {
	l := mustLayout(t, []string{
		"SSS",
		"SCS",
		"SSS",
	})
	g := mustGrid(t, l, fixedSource{})
	city := g.Cell(1, 1)

	for gen := 1; gen <= 12; gen++ {
		g.Step()
		want := math.Min(math.Round(0.14*float64(gen)*100)/100, 1)
		assert.InDelta(t, want, city.Pollution(), 1e-9, "generation %d", gen)
		g.Cells(func(c *Cell) {
			if c != city {
				assert.Zero(t, c.Pollution(), "no diffusion without wind")
			}
		})
	}
	assert.Equal(t, 1.0, city.Pollution())
}

func TestIcebergMeltsIntoSea(t *testing.T) {
	l := mustLayout(t, []string{
		"SSS",
		"SIS",
		"SSS",
	})
	l.SetPollution(1, 1, 1)
	g := mustGrid(t, l, fixedSource{})
	ice := g.Cell(1, 1)

	melted := 0
	for gen := 1; gen <= 40 && melted == 0; gen++ {
		before := ice.Temperature()
		transitions := g.Step()
		if ice.Kind() == Sea {
			melted = gen
			assert.Less(t, before, 0.0)
			assert.GreaterOrEqual(t, ice.Temperature(), 0.0)
			require.Len(t, transitions, 1)
			assert.Equal(t, Transition{X: 1, Y: 1, From: Iceberg, To: Sea}, transitions[0])
		} else {
			assert.Empty(t, transitions)
		}
	}
	require.NotZero(t, melted, "iceberg never melted")

	for gen := 0; gen < 5; gen++ {
		g.Step()
		assert.Equal(t, Sea, ice.Kind())
		assert.Equal(t, IcebergStartTemperature, ice.BaseTemperature())
	}
}

func TestSeaFreezesAndThaws(t *testing.T) {
	l, err := UniformLayout(3, 3, Sea)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})
	c := g.Cell(1, 1)
	c.cur.temperature = -1

	transitions := g.Step()
	assert.Equal(t, Iceberg, c.Kind())
	assert.Equal(t, -0.5, c.Temperature())
	assert.Equal(t, []Transition{{X: 1, Y: 1, From: Sea, To: Iceberg}}, transitions)

	// Relaxation toward the original sea base brings it back to 0°C.
	transitions = g.Step()
	assert.Equal(t, Sea, c.Kind())
	assert.Equal(t, 0.0, c.Temperature())
	assert.Equal(t, []Transition{{X: 1, Y: 1, From: Iceberg, To: Sea}}, transitions)
	assert.Equal(t, SeaStartTemperature, c.BaseTemperature())
}

func TestForestBurnsAboveFifty(t *testing.T) {
	l := mustLayout(t, []string{"FFF"})
	g := mustGrid(t, l, fixedSource{})
	hot := g.Cell(0, 0)
	hot.cur.temperature = 51

	g.Step()
	assert.Equal(t, Land, hot.Kind())
	assert.Equal(t, 50.5, hot.Temperature())
	assert.Equal(t, Forest, g.Cell(1, 0).Kind())
}

func TestForestDiesFromPollution(t *testing.T) {
	l := mustLayout(t, []string{
		"LLL",
		"CFL",
		"LLL",
	})
	g := mustGrid(t, l, fixedSource{})
	city := g.Cell(0, 1)
	forest := g.Cell(1, 1)

	// The city blows east into the forest at speed 10.
	city.cur.windDir = East
	city.cur.windSpeed = 10
	city.cur.pollution = 0.2

	g.Step()
	// 0 - 0.4 floored at 0, plus 0.2*10 advected.
	assert.Equal(t, Land, forest.Kind())
	assert.Equal(t, 1.0, forest.Pollution(), "clamped at commit")
	assert.Equal(t, East, forest.WindDirection(), "adopts the stronger upwind direction")
	assert.Equal(t, 0, forest.WindSpeed(), "wind speed is never reassigned")
}

func TestAdvectionFromUpwindNeighbor(t *testing.T) {
	l, err := UniformLayout(3, 3, Land)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})

	upwind := g.Cell(1, 0)
	upwind.cur.windDir = South
	upwind.cur.windSpeed = 2
	upwind.cur.pollution = 0.3
	center := g.Cell(1, 1)

	g.Step()
	assert.InDelta(t, 0.6, center.Pollution(), 1e-9)
	assert.Equal(t, South, center.WindDirection())
	assert.Zero(t, upwind.Pollution(), "self-loss is floored at zero")
	assert.Equal(t, South, upwind.WindDirection())
	assert.Equal(t, 2, upwind.WindSpeed())
}

func TestAdvectionIgnoresCrosswind(t *testing.T) {
	l, err := UniformLayout(3, 3, Land)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})

	side := g.Cell(1, 0)
	side.cur.windDir = East
	side.cur.windSpeed = 5
	side.cur.pollution = 0.1

	g.Step()
	assert.Zero(t, g.Cell(1, 1).Pollution())
	assert.Equal(t, North, g.Cell(1, 1).WindDirection())
	assert.InDelta(t, 0.5, g.Cell(2, 0).Pollution(), 1e-9, "east neighbor receives it")
}

func TestWindAdoptionFollowsDirectionOrder(t *testing.T) {
	l, err := UniformLayout(3, 3, Land)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})

	center := g.Cell(1, 1)
	center.cur.windSpeed = 3

	north := g.Cell(1, 0)
	north.cur.windDir, north.cur.windSpeed, north.cur.pollution = South, 5, 0.01
	east := g.Cell(2, 1)
	east.cur.windDir, east.cur.windSpeed, east.cur.pollution = West, 3, 0.03
	west := g.Cell(0, 1)
	west.cur.windDir, west.cur.windSpeed, west.cur.pollution = East, 4, 0.02

	g.Step()
	// N turns the wind South, the E tie is ignored, W is checked last
	// against our unchanged speed of 3 and wins.
	assert.Equal(t, East, center.WindDirection())
	assert.Equal(t, 3, center.WindSpeed())
	assert.InDelta(t, 0.05+0.09+0.08, center.Pollution(), 1e-9)
}

func TestWindAdoptionIgnoresEqualSpeed(t *testing.T) {
	l, err := UniformLayout(3, 3, Land)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})

	center := g.Cell(1, 1)
	center.cur.windSpeed = 3
	east := g.Cell(2, 1)
	east.cur.windDir, east.cur.windSpeed = West, 3

	g.Step()
	assert.Equal(t, North, center.WindDirection())
	assert.Equal(t, 3, center.WindSpeed())
}

func TestRainCoolsScrubsAndResetsCloud(t *testing.T) {
	l, err := UniformLayout(3, 3, Sea)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})

	c := g.Cell(1, 1)
	c.cur.cloud = 1
	c.cur.pollution = 0.13
	require.True(t, c.Raining())

	g.Step()
	assert.Zero(t, c.Cloud())
	assert.False(t, c.Raining())
	// 15 - 0.4*(1 - 15/-10)
	assert.Equal(t, 14.0, c.Temperature())
	assert.Equal(t, 0.1, c.Pollution())
}

func TestCloudGrowsOnChance(t *testing.T) {
	l, err := UniformLayout(2, 2, Land)
	require.NoError(t, err)

	// A 0.5 draw seeds every cloud at 0.5 and never passes the chance.
	dry := mustGrid(t, l, fixedSource{f: 0.5})
	dry.Step()
	dry.Cells(func(c *Cell) { assert.Equal(t, 0.5, c.Cloud()) })

	wet := mustGrid(t, l, fixedSource{f: 0})
	wet.src = fixedSource{f: 0.9}
	wet.Step()
	wet.Step()
	wet.Cells(func(c *Cell) { assert.InDelta(t, 0.2, c.Cloud(), 1e-12) })
}

func TestGreenhouseWarming(t *testing.T) {
	l, err := UniformLayout(3, 3, Land)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})
	c := g.Cell(1, 1)
	c.cur.pollution = 0.5

	g.Step()
	// 22 + 0.6*0.5*(1 - 22/80) = 22.2175
	assert.Equal(t, 22.22, c.Temperature())
	assert.Equal(t, 0.5, c.Pollution())
}

func TestPhaseOneReadsOnlyCommittedState(t *testing.T) {
	// A row of cells all blowing east: each receives its west neighbor's
	// committed pollution and loses its own, so the plume shifts by exactly
	// one cell per generation regardless of iteration order.
	l, err := UniformLayout(4, 1, Land)
	require.NoError(t, err)
	g := mustGrid(t, l, fixedSource{})
	g.Cells(func(c *Cell) {
		c.cur.windDir = East
		c.cur.windSpeed = 1
	})
	g.Cell(0, 0).cur.pollution = 0.1

	g.Step()
	got := []float64{}
	g.Cells(func(c *Cell) { got = append(got, c.Pollution()) })
	assert.Equal(t, []float64{0, 0.1, 0, 0}, got)

	g.Step()
	got = got[:0]
	g.Cells(func(c *Cell) { got = append(got, c.Pollution()) })
	assert.Equal(t, []float64{0, 0, 0.1, 0}, got)
}

func TestInvariantsOverLongRun(t *testing.T) {
	l, err := Generate(DefaultGenConfig())
	require.NoError(t, err)
	g := mustGrid(t, l, entropy.NewSeeded(2024))

	base := make([]float64, 0, g.Cols()*g.Rows())
	g.Cells(func(c *Cell) { base = append(base, c.BaseTemperature()) })

	for gen := 0; gen < 120; gen++ {
		raining := make([]bool, 0, len(base))
		g.Cells(func(c *Cell) { raining = append(raining, c.Raining()) })

		for _, tr := range g.Step() {
			assert.NotEqual(t, tr.From, tr.To)
			switch tr.From {
			case Iceberg:
				assert.Equal(t, Sea, tr.To)
			case Sea:
				assert.Equal(t, Iceberg, tr.To)
			case Forest:
				assert.Equal(t, Land, tr.To)
			default:
				t.Fatalf("%s has no transition rule", tr.From)
			}
		}

		i := 0
		g.Cells(func(c *Cell) {
			require.GreaterOrEqual(t, c.Pollution(), 0.0)
			require.LessOrEqual(t, c.Pollution(), 1.0)
			require.Equal(t, base[i], c.BaseTemperature())
			if raining[i] {
				require.Zero(t, c.Cloud(), "rain resets the cloud level")
			}
			i++
		})
	}
}

func TestDeterministicGivenSeed(t *testing.T) {
	l, err := Generate(DefaultGenConfig())
	require.NoError(t, err)

	a := mustGrid(t, l, entropy.NewSeeded(11))
	b := mustGrid(t, l, entropy.NewSeeded(11))
	for gen := 0; gen < 60; gen++ {
		a.Step()
		b.Step()
		sa, sb := a.Stats(), b.Stats()
		require.Equal(t, sa.MeanTemperature, sb.MeanTemperature, "generation %d", gen)
		require.Equal(t, sa.MeanPollution, sb.MeanPollution, "generation %d", gen)
		require.Equal(t, sa.CityCells, sb.CityCells, "generation %d", gen)
		if sa.HasCityTemperature() {
			require.Equal(t, sa.CityTemperature, sb.CityTemperature, "generation %d", gen)
		}
	}
}
