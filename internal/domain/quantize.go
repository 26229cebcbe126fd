package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Scale is the linear map v / Divisor * Multiplier applied before 8-bit
// quantization.
type Scale struct {
	Divisor    float64
	Multiplier float64
}

var (
	// RadarScale maps radar composite values (roughly 0 to 21) onto 8 bits.
	RadarScale = Scale{Divisor: 1, Multiplier: 12}
	// OpticalScale maps reflectance 0 to 2000 onto 8 bits.
	OpticalScale = Scale{Divisor: 2000, Multiplier: 255}
)

// Apply returns v / Divisor * Multiplier.
func (s Scale) Apply(v float64) float64 {
	return v / s.Divisor * s.Multiplier
}

// QuantizedBand is an 8-bit band with per-pixel validity.
type QuantizedBand struct {
	Name   string
	Values []uint8
	Valid  []bool
}

// ValidCount returns the number of valid pixels.
func (b *QuantizedBand) ValidCount() int {
	n := 0
	for _, ok := range b.Valid {
		if ok {
			n++
		}
	}
	return n
}

// QuantizedComposite is the export form of a composite.
type QuantizedComposite struct {
	Name      string
	Grid      Grid
	Timestamp time.Time
	Bands     []*QuantizedBand
}

// ValidPixels returns the number of pixels valid in at least one band.
func (q *QuantizedComposite) ValidPixels() int {
	n := 0
	for i := 0; i < q.Grid.Pixels(); i++ {
		for _, b := range q.Bands {
			if b.Valid[i] {
				n++
				break
			}
		}
	}
	return n
}

// BandNames returns band names in export order.
func (q *QuantizedComposite) BandNames() []string {
	names := make([]string, len(q.Bands))
	for i, b := range q.Bands {
		names[i] = b.Name
	}
	return names
}

// QuantizeValue scales v, rounds half away from zero and clips to [0, 255].
func QuantizeValue(v float64, scale Scale) uint8 {
	s := math.Round(scale.Apply(v))
	switch {
	case s <= 0 || math.IsNaN(s):
		return 0
	case s >= 255:
		return 255
	default:
		return uint8(s)
	}
}

// Quantize converts the named bands of c to 8 bits. With no names every
// band is converted. Invalid pixels stay invalid.
func Quantize(c *Composite, scale Scale, bands ...string) (*QuantizedComposite, error) {
	if len(bands) == 0 {
		bands = c.BandNames()
	}
	out := &QuantizedComposite{Name: c.Name, Grid: c.Grid, Timestamp: c.Timestamp}
	for _, name := range bands {
		src, err := c.Band(name)
		if err != nil {
			return nil, err
		}
		q := &QuantizedBand{
			Name:   name,
			Values: make([]uint8, len(src.Values)),
			Valid:  make([]bool, len(src.Valid)),
		}
		for i, ok := range src.Valid {
			if ok {
				q.Values[i], q.Valid[i] = QuantizeValue(src.Values[i], scale), true
			}
		}
		out.Bands = append(out.Bands, q)
	}
	return out, nil
}

// OpticalExportBands resolves the optical bands to export from the bands
// available. With no request it returns every reflectance band (names
// starting with "B"); otherwise each requested band must be an available
// reflectance band.
func OpticalExportBands(available, requested []string) ([]string, error) {
	if len(requested) == 0 {
		var out []string
		for _, n := range available {
			if strings.HasPrefix(n, "B") {
				out = append(out, n)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: no reflectance bands available", ErrMissingBand)
		}
		return out, nil
	}
	for _, n := range requested {
		if !strings.HasPrefix(n, "B") {
			return nil, fmt.Errorf("%w: %s is not a reflectance band", ErrMissingBand, n)
		}
		if !slices.Contains(available, n) {
			return nil, fmt.Errorf("%w: %s not in optical scenes", ErrMissingBand, n)
		}
	}
	return requested, nil
}
