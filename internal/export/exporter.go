// Package export writes a finished run's series to plain-text files, one
// value per line, alongside their z-score normalized forms.
package export

import (
	"bufio"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	billy "gopkg.in/src-d/go-billy.v4"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/climate-world/internal/engine"
)

// File names written by Export.
const (
	TemperatureFile           = "daily_temperature_avg.txt"
	TemperatureNormalizedFile = "daily_temperature_avg_normalized.txt"
	PollutionFile             = "daily_pollution_avg.txt"
	PollutionNormalizedFile   = "daily_pollution_normalized.txt"
	CityTemperatureFile       = "daily_city_temperature.txt"
	CityNormalizedFile        = "city_temp_normalized.txt"
)

// Exporter writes series into a directory.
type Exporter struct {
	// FS is the directory receiving the files.
	FS billy.Filesystem
}

// Export writes all six files. Every file is attempted even if an earlier
// one fails; the returned error combines all failures.
func (e *Exporter) Export(s engine.Series) error {
	pairs := []struct {
		raw, normalized string
		values          []float64
	}{
		{TemperatureFile, TemperatureNormalizedFile, s.Temperature},
		{PollutionFile, PollutionNormalizedFile, s.Pollution},
		{CityTemperatureFile, CityNormalizedFile, s.CityTemperature},
	}

	var err error
	for _, p := range pairs {
		err = multierr.Append(err, e.writeValues(p.raw, p.values))
		err = multierr.Append(err, e.writeValues(p.normalized, Normalize(p.values)))
	}
	if err == nil {
		slog.Info("series exported", "generations", s.Len(), "files", len(pairs)*2)
	}
	return err
}

func (e *Exporter) writeValues(name string, values []float64) (err error) {
	f, err := e.FS.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	for _, v := range values {
		if _, err := w.WriteString(FormatValue(v) + "\n"); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Normalize returns the z-scores of values using the population standard
// deviation. NaN entries are left out of the statistics and stay NaN. When
// the deviation is zero every defined value normalizes to 0.
func Normalize(values []float64) []float64 {
	defined := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}

	out := make([]float64, len(values))
	if len(defined) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	mean, std := stat.PopMeanStdDev(defined, nil)
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = math.NaN()
		case std == 0:
			out[i] = 0
		default:
			out[i] = (v - mean) / std
		}
	}
	return out
}

// FormatValue renders v in shortest round-trip form. Integral values keep
// a trailing ".0" so every line reads as a decimal.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	return s
}
