package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func radarComposite(g Grid, orbit OrbitDirection, vh, vv float64, valid bool) *Composite {
	c := NewComposite("s1_"+string(orbit), g, RadarBands...)
	c.Orbit = orbit
	if !valid {
		return c
	}
	b, _ := c.Band(BandT0VH)
	for i := range b.Values {
		b.Values[i], b.Valid[i] = vh, true
	}
	b, _ = c.Band(BandT0VV)
	for i := range b.Values {
		b.Values[i], b.Valid[i] = vv, true
	}
	return c
}

func TestFuseOrbits(t *testing.T) {
	g := testGrid

	tests := []struct {
		name      string
		asc, dsc  *Composite
		wantVH    float64
		wantVV    float64
		wantValid bool
	}{
		{
			name:      "both valid averages",
			asc:       radarComposite(g, Ascending, 4, 10, true),
			dsc:       radarComposite(g, Descending, 6, 20, true),
			wantVH:    5,
			wantVV:    15,
			wantValid: true,
		},
		{
			name:      "ascending only",
			asc:       radarComposite(g, Ascending, 4, 10, true),
			dsc:       radarComposite(g, Descending, 0, 0, false),
			wantVH:    4,
			wantVV:    10,
			wantValid: true,
		},
		{
			name:      "descending only",
			asc:       radarComposite(g, Ascending, 0, 0, false),
			dsc:       radarComposite(g, Descending, 4, 10, true),
			wantVH:    4,
			wantVV:    10,
			wantValid: true,
		},
		{
			name: "neither valid",
			asc:  radarComposite(g, Ascending, 0, 0, false),
			dsc:  radarComposite(g, Descending, 0, 0, false),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := FuseOrbits(tt.asc, tt.dsc)
			require.NoError(t, err)
			assert.Equal(t, RadarBands, out.BandNames())

			vh, _ := out.Band(BandT0VH)
			vv, _ := out.Band(BandT0VV)
			for row := 0; row < g.Height; row++ {
				for col := 0; col < g.Width; col++ {
					v, ok := vh.At(col, row)
					assert.Equal(t, tt.wantValid, ok)
					assert.Equal(t, tt.wantVH, v)
					v, ok = vv.At(col, row)
					assert.Equal(t, tt.wantValid, ok)
					assert.Equal(t, tt.wantVV, v)
				}
			}
		})
	}

	t.Run("a legitimate -999 is not a sentinel", func(t *testing.T) {
		out, err := FuseOrbits(radarComposite(g, Ascending, -999, -999, true), radarComposite(g, Descending, 1, 1, true))
		require.NoError(t, err)
		v, ok := compositeAt(out, BandT0VV, 0, 0)
		assert.True(t, ok)
		assert.Equal(t, -499.0, v)
	})

	t.Run("grid mismatch", func(t *testing.T) {
		_, err := FuseOrbits(radarComposite(g, Ascending, 1, 1, true), radarComposite(g.Sub(0, 0, 1, 1), Descending, 1, 1, true))
		assert.True(t, errors.Is(err, ErrGridMismatch))
	})
}
