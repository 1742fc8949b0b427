package world

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInvalidConfig marks configuration failures detected before any
// generation runs: bad dimensions or a layout that does not cover the grid.
var ErrInvalidConfig = errors.New("invalid world configuration")

// Layout maps every grid coordinate to its initial terrain kind and,
// optionally, an initial pollution level.
type Layout struct {
	Cols int
	Rows int

	kinds     []TerrainKind
	defined   []bool
	pollution []float64
}

// NewLayout creates an empty layout. Every cell must be Set before the
// layout is usable.
func NewLayout(cols, rows int) (*Layout, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("%w: grid dimensions %dx%d", ErrInvalidConfig, cols, rows)
	}
	n := cols * rows
	return &Layout{
		Cols:      cols,
		Rows:      rows,
		kinds:     make([]TerrainKind, n),
		defined:   make([]bool, n),
		pollution: make([]float64, n),
	}, nil
}

// UniformLayout returns a layout with every cell set to kind.
func UniformLayout(cols, rows int, kind TerrainKind) (*Layout, error) {
	l, err := NewLayout(cols, rows)
	if err != nil {
		return nil, err
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			l.Set(x, y, kind)
		}
	}
	return l, nil
}

func (l *Layout) index(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= l.Cols || y >= l.Rows {
		return 0, false
	}
	return y*l.Cols + x, true
}

// Set assigns the terrain kind at (x, y). Out-of-bounds writes are ignored.
func (l *Layout) Set(x, y int, kind TerrainKind) {
	if i, ok := l.index(x, y); ok {
		l.kinds[i] = kind
		l.defined[i] = true
	}
}

// SetPollution assigns the initial pollution at (x, y), clamped to [0, 1].
func (l *Layout) SetPollution(x, y int, p float64) {
	if i, ok := l.index(x, y); ok {
		l.pollution[i] = clamp(p, 0, 1)
	}
}

// KindAt returns the kind at (x, y) and whether one was set.
func (l *Layout) KindAt(x, y int) (TerrainKind, bool) {
	i, ok := l.index(x, y)
	if !ok || !l.defined[i] {
		return 0, false
	}
	return l.kinds[i], true
}

// PollutionAt returns the initial pollution at (x, y).
func (l *Layout) PollutionAt(x, y int) float64 {
	if i, ok := l.index(x, y); ok {
		return l.pollution[i]
	}
	return 0
}

// Validate checks that every in-bounds coordinate has a valid kind.
func (l *Layout) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: no layout", ErrInvalidConfig)
	}
	if l.Cols <= 0 || l.Rows <= 0 {
		return fmt.Errorf("%w: grid dimensions %dx%d", ErrInvalidConfig, l.Cols, l.Rows)
	}
	for y := 0; y < l.Rows; y++ {
		for x := 0; x < l.Cols; x++ {
			k, ok := l.KindAt(x, y)
			if !ok {
				return fmt.Errorf("%w: layout has no terrain for (%d,%d)", ErrInvalidConfig, x, y)
			}
			if !k.Valid() {
				return fmt.Errorf("%w: invalid terrain %d at (%d,%d)", ErrInvalidConfig, k, x, y)
			}
		}
	}
	return nil
}

// ParseLayout reads a cols×rows layout of terrain codes (S, L, I, F, C),
// row by row. Any other character, including newlines and spaces, is
// skipped. Codes beyond the grid are ignored.
func ParseLayout(r io.Reader, cols, rows int) (*Layout, error) {
	l, err := NewLayout(cols, rows)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)
	for i := 0; i < cols*rows; {
		ch, _, err := br.ReadRune()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: layout ended after %d of %d cells", ErrInvalidConfig, i, cols*rows)
		}
		if err != nil {
			return nil, fmt.Errorf("read layout: %w", err)
		}
		kind, ok := ParseTerrainCode(ch)
		if !ok {
			continue
		}
		l.Set(i%cols, i/cols, kind)
		i++
	}
	return l, nil
}

// LoadLayout opens path and parses it with ParseLayout.
func LoadLayout(path string, cols, rows int) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open layout: %w", err)
	}
	defer f.Close()
	return ParseLayout(f, cols, rows)
}

// WriteTo writes the layout in the format ParseLayout reads, one row per line.
// A layout that fails Validate is not written.
func (l *Layout) WriteTo(w io.Writer) (int64, error) {
	if err := l.Validate(); err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(w)
	var n int64
	for y := 0; y < l.Rows; y++ {
		for x := 0; x < l.Cols; x++ {
			k, _ := l.KindAt(x, y)
			m, err := bw.WriteRune(k.Code())
			n += int64(m)
			if err != nil {
				return n, err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}
