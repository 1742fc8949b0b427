package export

import (
	"io/ioutil"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-billy.v4/memfs"

	"github.com/talgya/climate-world/internal/engine"
)

func readLines(t *testing.T, e *Exporter, name string) []string {
	t.Helper()
	f, err := e.FS.Open(name)
	require.NoError(t, err)
	defer f.Close()
	body, err := ioutil.ReadAll(f)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(body), "\n"), "\n")
}

func TestNormalize(t *testing.T) {
	// mean 5, population deviation 2
	got := Normalize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	want := []float64{-1.5, -0.5, -0.5, -0.5, 0, 0, 1, 2}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12)
	}
}

func TestNormalizeConstantSeries(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 0}, Normalize([]float64{3, 3, 3}))
}

func TestNormalizeSkipsNaN(t *testing.T) {
	got := Normalize([]float64{1, math.NaN(), 3})
	assert.InDelta(t, -1, got[0], 1e-12)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 1, got[2], 1e-12)

	all := Normalize([]float64{math.NaN(), math.NaN()})
	assert.True(t, math.IsNaN(all[0]))
	assert.True(t, math.IsNaN(all[1]))

	assert.Empty(t, Normalize(nil))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "15.0", FormatValue(15))
	assert.Equal(t, "18.25", FormatValue(18.25))
	assert.Equal(t, "-0.5", FormatValue(-0.5))
	assert.Equal(t, "NaN", FormatValue(math.NaN()))
	assert.Equal(t, "1e-07", FormatValue(1e-7))
}

func TestExportWritesAllFiles(t *testing.T) {
	e := &Exporter{FS: memfs.New()}
	s := engine.Series{
		Temperature:     []float64{18, 20, 22},
		Pollution:       []float64{0.1, 0.1, 0.1},
		CityTemperature: []float64{27, math.NaN(), 29},
	}
	require.NoError(t, e.Export(s))

	assert.Equal(t, []string{"18.0", "20.0", "22.0"}, readLines(t, e, TemperatureFile))
	norm := readLines(t, e, TemperatureNormalizedFile)
	require.Len(t, norm, 3)
	assert.Equal(t, "0.0", norm[1])

	assert.Equal(t, []string{"0.1", "0.1", "0.1"}, readLines(t, e, PollutionFile))
	assert.Equal(t, []string{"0.0", "0.0", "0.0"}, readLines(t, e, PollutionNormalizedFile))

	assert.Equal(t, []string{"27.0", "NaN", "29.0"}, readLines(t, e, CityTemperatureFile))
	assert.Equal(t, []string{"-1.0", "NaN", "1.0"}, readLines(t, e, CityNormalizedFile))
}

func TestExportOverwrites(t *testing.T) {
	e := &Exporter{FS: memfs.New()}
	long := engine.Series{
		Temperature:     []float64{1, 2, 3, 4},
		Pollution:       []float64{0, 0, 0, 0},
		CityTemperature: []float64{1, 1, 1, 1},
	}
	short := engine.Series{
		Temperature:     []float64{5},
		Pollution:       []float64{0},
		CityTemperature: []float64{1},
	}
	require.NoError(t, e.Export(long))
	require.NoError(t, e.Export(short))
	assert.Equal(t, []string{"5.0"}, readLines(t, e, TemperatureFile))
}
