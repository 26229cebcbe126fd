package domain

import "fmt"

// QualityMosaic builds a composite that takes, per pixel, every band from
// the image with the highest valid quality value. images must be in
// acquisition order; ties go to the earliest image. Pixels with no valid
// quality value are invalid in every band.
func QualityMosaic(name string, grid Grid, images Collection, quality string, bands []string) (*Composite, error) {
	out := NewComposite(name, grid, bands...)
	for _, img := range images {
		if img.Grid != grid {
			return nil, fmt.Errorf("%w: image %s not on mosaic grid", ErrGridMismatch, img.ID)
		}
	}
	dst := out.Bands()

	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			best := -1
			var bestQ float64
			for i, img := range images {
				q, ok := img.Sample(quality, col, row)
				if ok && (best < 0 || q > bestQ) {
					best, bestQ = i, q
				}
			}
			if best < 0 {
				continue
			}
			winner := images[best]
			for _, b := range dst {
				if v, ok := winner.Sample(b.Name, col, row); ok {
					b.Set(col, row, v)
				}
			}
		}
	}
	return out, nil
}
