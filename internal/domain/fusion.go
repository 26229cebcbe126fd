package domain

import "fmt"

// FuseOrbits merges the ascending and descending radar composites band by
// band. Where both are valid the output is their mean, where one is valid
// it is that value, and where neither is valid it is invalid.
func FuseOrbits(asc, dsc *Composite) (*Composite, error) {
	if asc.Grid != dsc.Grid {
		return nil, fmt.Errorf("%w: ascending and descending composites differ", ErrGridMismatch)
	}
	out := NewComposite("s1", asc.Grid, RadarBands...)
	out.Timestamp = asc.Timestamp
	for _, name := range RadarBands {
		a, err := asc.Band(name)
		if err != nil {
			return nil, err
		}
		d, err := dsc.Band(name)
		if err != nil {
			return nil, err
		}
		dst, _ := out.Band(name)
		for i := range dst.Values {
			if v, ok := fuse(a.Values[i], a.Valid[i], d.Values[i], d.Valid[i]); ok {
				dst.Values[i], dst.Valid[i] = v, true
			}
		}
	}
	return out, nil
}

func fuse(a float64, aok bool, d float64, dok bool) (float64, bool) {
	switch {
	case aok && dok:
		return (a + d) / 2, true
	case aok:
		return a, true
	case dok:
		return d, true
	default:
		return 0, false
	}
}
