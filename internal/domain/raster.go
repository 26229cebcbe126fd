package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// Grid is a north-up raster grid anchored at its top-left corner.
type Grid struct {
	OriginX   float64 `json:"origin_x"`
	OriginY   float64 `json:"origin_y"`
	PixelSize float64 `json:"pixel_size"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// Validate rejects grids with no pixels or a non-positive pixel size.
func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: grid is %dx%d", ErrGridMismatch, g.Width, g.Height)
	}
	if !(g.PixelSize > 0) || math.IsInf(g.PixelSize, 0) {
		return fmt.Errorf("%w: pixel size %v", ErrGridMismatch, g.PixelSize)
	}
	return nil
}

// Pixels returns the number of pixels in the grid.
func (g Grid) Pixels() int {
	return g.Width * g.Height
}

// Center returns the projected coordinate of the centre of pixel (col, row).
func (g Grid) Center(col, row int) orb.Point {
	return orb.Point{
		g.OriginX + (float64(col)+0.5)*g.PixelSize,
		g.OriginY - (float64(row)+0.5)*g.PixelSize,
	}
}

// PixelAt returns the pixel containing p and whether it lies inside the grid.
func (g Grid) PixelAt(p orb.Point) (col, row int, ok bool) {
	col = int(math.Floor((p[0] - g.OriginX) / g.PixelSize))
	row = int(math.Floor((g.OriginY - p[1]) / g.PixelSize))
	ok = col >= 0 && col < g.Width && row >= 0 && row < g.Height
	return col, row, ok
}

// Bound returns the extent covered by the grid.
func (g Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.OriginX, g.OriginY - float64(g.Height)*g.PixelSize},
		Max: orb.Point{g.OriginX + float64(g.Width)*g.PixelSize, g.OriginY},
	}
}

// Sub returns the w×h window of g whose top-left pixel is (col, row).
func (g Grid) Sub(col, row, w, h int) Grid {
	return Grid{
		OriginX:   g.OriginX + float64(col)*g.PixelSize,
		OriginY:   g.OriginY - float64(row)*g.PixelSize,
		PixelSize: g.PixelSize,
		Width:     w,
		Height:    h,
	}
}

// Offset returns the position of sub inside g. Both grids must share the
// pixel size and be aligned on pixel boundaries, and sub must fit inside g.
func (g Grid) Offset(sub Grid) (col, row int, err error) {
	if sub.PixelSize != g.PixelSize {
		return 0, 0, fmt.Errorf("%w: pixel size %v vs %v", ErrGridMismatch, sub.PixelSize, g.PixelSize)
	}
	fc := (sub.OriginX - g.OriginX) / g.PixelSize
	fr := (g.OriginY - sub.OriginY) / g.PixelSize
	col, row = int(math.Round(fc)), int(math.Round(fr))
	if math.Abs(fc-float64(col)) > 1e-6 || math.Abs(fr-float64(row)) > 1e-6 {
		return 0, 0, fmt.Errorf("%w: window not aligned to pixel boundaries", ErrGridMismatch)
	}
	if col < 0 || row < 0 || col+sub.Width > g.Width || row+sub.Height > g.Height {
		return 0, 0, fmt.Errorf("%w: window %dx%d at (%d,%d) outside %dx%d grid",
			ErrGridMismatch, sub.Width, sub.Height, col, row, g.Width, g.Height)
	}
	return col, row, nil
}

// Band is a named raster buffer with per-pixel validity.
type Band struct {
	Name   string
	Width  int
	Height int
	Values []float64
	Valid  []bool
}

// NewBand returns a w×h band with every pixel invalid.
func NewBand(name string, w, h int) *Band {
	return &Band{
		Name:   name,
		Width:  w,
		Height: h,
		Values: make([]float64, w*h),
		Valid:  make([]bool, w*h),
	}
}

// At returns the value at (col, row) and whether it is valid.
func (b *Band) At(col, row int) (float64, bool) {
	i := row*b.Width + col
	if !b.Valid[i] {
		return 0, false
	}
	return b.Values[i], true
}

// Set stores v at (col, row). Non-finite values mark the pixel invalid.
func (b *Band) Set(col, row int, v float64) {
	i := row*b.Width + col
	if math.IsNaN(v) || math.IsInf(v, 0) {
		b.Values[i], b.Valid[i] = 0, false
		return
	}
	b.Values[i], b.Valid[i] = v, true
}

// Invalidate marks (col, row) invalid.
func (b *Band) Invalidate(col, row int) {
	i := row*b.Width + col
	b.Values[i], b.Valid[i] = 0, false
}

// ValidCount returns the number of valid pixels.
func (b *Band) ValidCount() int {
	n := 0
	for _, ok := range b.Valid {
		if ok {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the band under a new name.
func (b *Band) Clone(name string) *Band {
	c := &Band{
		Name:   name,
		Width:  b.Width,
		Height: b.Height,
		Values: make([]float64, len(b.Values)),
		Valid:  make([]bool, len(b.Valid)),
	}
	copy(c.Values, b.Values)
	copy(c.Valid, b.Valid)
	return c
}

// paste copies src into b with its top-left pixel at (col, row).
func (b *Band) paste(src *Band, col, row int) {
	for r := 0; r < src.Height; r++ {
		dst := (row+r)*b.Width + col
		s := r * src.Width
		copy(b.Values[dst:dst+src.Width], src.Values[s:s+src.Width])
		copy(b.Valid[dst:dst+src.Width], src.Valid[s:s+src.Width])
	}
}

// Composite is a fixed set of named bands over an export grid.
type Composite struct {
	Name      string
	Grid      Grid
	Orbit     OrbitDirection
	Timestamp time.Time
	bands     []*Band
}

// NewComposite returns a composite whose bands are entirely invalid.
func NewComposite(name string, grid Grid, bands ...string) *Composite {
	c := &Composite{Name: name, Grid: grid}
	for _, b := range bands {
		c.bands = append(c.bands, NewBand(b, grid.Width, grid.Height))
	}
	return c
}

// Band returns the named band.
func (c *Composite) Band(name string) (*Band, error) {
	for _, b := range c.bands {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s not in composite %s", ErrMissingBand, name, c.Name)
}

// Bands returns the bands in composite order.
func (c *Composite) Bands() []*Band {
	out := make([]*Band, len(c.bands))
	copy(out, c.bands)
	return out
}

// BandNames returns the band names in composite order.
func (c *Composite) BandNames() []string {
	names := make([]string, len(c.bands))
	for i, b := range c.bands {
		names[i] = b.Name
	}
	return names
}

// ValidPixels returns the number of pixels valid in at least one band.
func (c *Composite) ValidPixels() int {
	n := 0
	for i := 0; i < c.Grid.Pixels(); i++ {
		for _, b := range c.bands {
			if b.Valid[i] {
				n++
				break
			}
		}
	}
	return n
}

// Select returns a composite restricted to the named bands, sharing buffers.
func (c *Composite) Select(names ...string) (*Composite, error) {
	out := &Composite{Name: c.Name, Grid: c.Grid, Orbit: c.Orbit, Timestamp: c.Timestamp}
	for _, n := range names {
		b, err := c.Band(n)
		if err != nil {
			return nil, err
		}
		out.bands = append(out.bands, b)
	}
	return out, nil
}

// Paste copies the bands of a tile composite into c. The tile grid must be
// an aligned window of c's grid and carry the same band names.
func (c *Composite) Paste(tile *Composite) error {
	col, row, err := c.Grid.Offset(tile.Grid)
	if err != nil {
		return err
	}
	for _, src := range tile.bands {
		dst, err := c.Band(src.Name)
		if err != nil {
			return err
		}
		dst.paste(src, col, row)
	}
	return nil
}
