package domain

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// Sensor identifies the source collection of a scene.
type Sensor string

const (
	SensorS1 Sensor = "COPERNICUS/S1_GRD"
	SensorS2 Sensor = "COPERNICUS/S2_SR"
)

// OrbitDirection is the Sentinel-1 orbit pass.
type OrbitDirection string

const (
	Ascending  OrbitDirection = "ASCENDING"
	Descending OrbitDirection = "DESCENDING"
)

// String returns the orbit pass as written in scene metadata.
func (o OrbitDirection) String() string { return string(o) }

// Valid reports whether o is a known orbit pass.
func (o OrbitDirection) Valid() bool {
	return o == Ascending || o == Descending
}

// Metadata describes a scene independently of its pixels.
type Metadata struct {
	ID             string         `json:"id"`
	Sensor         Sensor         `json:"sensor"`
	Acquired       time.Time      `json:"acquired"`
	Orbit          OrbitDirection `json:"orbit_pass,omitempty"`
	Polarisations  []string       `json:"polarisations,omitempty"`
	InstrumentMode string         `json:"instrument_mode,omitempty"`
	Resolution     string         `json:"resolution,omitempty"`
}

// HasPolarisation reports whether the scene was acquired in polarisation p.
func (m Metadata) HasPolarisation(p string) bool {
	return slices.Contains(m.Polarisations, p)
}

// SceneRef locates a scene in a collection before its pixels are read.
type SceneRef struct {
	Metadata
	Footprint orb.Polygon
	Bands     []string
	// Location is adapter specific (a file path for the netCDF archive).
	Location string
}

// Image is an immutable raster scene: ordered bands over one grid, a
// validity mask applied to every band, and the acquisition footprint.
// Operations return new images that share untouched buffers.
type Image struct {
	Metadata
	Grid      Grid
	Footprint orb.Polygon
	mask      []bool
	bands     []*Band
}

// NewImage assembles an image. Every band must match the grid shape and
// band names must be unique. The mask starts fully valid.
func NewImage(md Metadata, grid Grid, footprint orb.Polygon, bands ...*Band) (*Image, error) {
	img := &Image{Metadata: md, Grid: grid, Footprint: footprint}
	img.mask = make([]bool, grid.Pixels())
	for i := range img.mask {
		img.mask[i] = true
	}
	return img.withBands(bands)
}

func (im *Image) withBands(bands []*Band) (*Image, error) {
	out := *im
	out.bands = slices.Clone(im.bands)
	for _, b := range bands {
		if b.Width != im.Grid.Width || b.Height != im.Grid.Height {
			return nil, fmt.Errorf("%w: band %s is %dx%d, image %s is %dx%d",
				ErrGridMismatch, b.Name, b.Width, b.Height, im.ID, im.Grid.Width, im.Grid.Height)
		}
		if i := out.bandIndex(b.Name); i >= 0 {
			out.bands[i] = b
			continue
		}
		out.bands = append(out.bands, b)
	}
	return &out, nil
}

func (im *Image) bandIndex(name string) int {
	for i, b := range im.bands {
		if b.Name == name {
			return i
		}
	}
	return -1
}

// WithBands returns a copy of the image with bands added or replaced by name.
func (im *Image) WithBands(bands ...*Band) (*Image, error) {
	return im.withBands(bands)
}

// Band returns the named band.
func (im *Image) Band(name string) (*Band, error) {
	if i := im.bandIndex(name); i >= 0 {
		return im.bands[i], nil
	}
	return nil, fmt.Errorf("%w: %s not in image %s", ErrMissingBand, name, im.ID)
}

// HasBands reports whether the image carries every named band.
func (im *Image) HasBands(names ...string) bool {
	for _, n := range names {
		if im.bandIndex(n) < 0 {
			return false
		}
	}
	return true
}

// BandNames returns band names in image order.
func (im *Image) BandNames() []string {
	names := make([]string, len(im.bands))
	for i, b := range im.bands {
		names[i] = b.Name
	}
	return names
}

// Masked reports whether (col, row) is excluded by the image mask.
func (im *Image) Masked(col, row int) bool {
	return !im.mask[row*im.Grid.Width+col]
}

// Sample returns the value of a band at (col, row) when both the band pixel
// and the image mask are valid.
func (im *Image) Sample(band string, col, row int) (float64, bool) {
	i := im.bandIndex(band)
	if i < 0 || im.Masked(col, row) {
		return 0, false
	}
	return im.bands[i].At(col, row)
}

// UpdateMask returns a copy whose mask is narrowed to pixels where keep
// returns true. Pixels already masked stay masked.
func (im *Image) UpdateMask(keep func(col, row int) bool) *Image {
	out := *im
	out.mask = make([]bool, len(im.mask))
	for row := 0; row < im.Grid.Height; row++ {
		for col := 0; col < im.Grid.Width; col++ {
			i := row*im.Grid.Width + col
			out.mask[i] = im.mask[i] && keep(col, row)
		}
	}
	return &out
}

// Collection is an acquisition-ascending sequence of images.
type Collection []*Image

// NewCollection sorts images by acquisition time, keeping input order for ties.
func NewCollection(images ...*Image) Collection {
	c := slices.Clone(images)
	sort.SliceStable(c, func(i, j int) bool { return c[i].Acquired.Before(c[j].Acquired) })
	return c
}

// Filter returns the images for which keep returns true.
func (c Collection) Filter(keep func(*Image) bool) Collection {
	var out Collection
	for _, img := range c {
		if keep(img) {
			out = append(out, img)
		}
	}
	return out
}

// WithBands returns the images that carry every named band.
func (c Collection) WithBands(names ...string) Collection {
	return c.Filter(func(img *Image) bool { return img.HasBands(names...) })
}
