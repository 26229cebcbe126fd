// Command genscene writes a synthetic scene archive and DEM covering an
// export region, for local runs and smoke tests of cmd/composite. Scenes
// are netCDF files in the layout the archive reader expects; the DEM is a
// 16-bit TIFF with a world file.
//
// Usage:
//
//	go run ./cmd/genscene \
//	  -scene-dir data/scenes \
//	  -dem data/dem/srtm.tif \
//	  -end 2020-01-01
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/adapter/geotiff"
	"github.com/adriadescals/oil-palm-global/internal/adapter/netcdf"
	"github.com/adriadescals/oil-palm-global/internal/config"
	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/paulmach/orb"
)

// Scene footprints extend well past the region so the swath-edge mask
// keeps the region valid.
const footprintPad = 60000

const demPixelSize = 30

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	sceneDir := flag.String("scene-dir", "data/scenes", "output directory for netCDF scenes")
	demPath := flag.String("dem", "data/dem/srtm.tif", "output path for the DEM TIFF")
	region := flag.String("region", config.DefaultRegion, "export region as WKT or GeoJSON")
	end := flag.String("end", "2020-01-01", "end of the acquisition window (YYYY-MM-DD)")
	scale := flag.Float64("scale", 100, "scene pixel size in metres")
	radarScenes := flag.Int("s1", 6, "number of Sentinel-1 scenes per orbit pass")
	opticalScenes := flag.Int("s2", 5, "number of Sentinel-2 scenes")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	endDate, err := time.Parse(time.DateOnly, *end)
	if err != nil {
		return fmt.Errorf("invalid -end: %w", err)
	}
	poly, err := domain.ParseRegion(*region)
	if err != nil {
		return err
	}
	grid, err := domain.GridForRegion(poly, *scale)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*sceneDir, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	footprint := grid.Bound().Pad(footprintPad).ToPolygon()

	n := 0
	for _, orbit := range []domain.OrbitDirection{domain.Ascending, domain.Descending} {
		for i := 0; i < *radarScenes; i++ {
			acquired := endDate.AddDate(0, 0, -12*(i+1)).Add(orbitHour(orbit))
			img, err := radarScene(grid, footprint, orbit, acquired, rng)
			if err != nil {
				return err
			}
			if err := netcdf.WriteScene(filepath.Join(*sceneDir, img.ID+".nc"), img); err != nil {
				return fmt.Errorf("write %s: %w", img.ID, err)
			}
			n++
		}
	}
	log.Printf("sentinel-1: %d scenes", n)

	for i := 0; i < *opticalScenes; i++ {
		acquired := endDate.AddDate(0, 0, -10*(i+1)).Add(10 * time.Hour)
		img, err := opticalScene(grid, footprint, acquired, rng)
		if err != nil {
			return err
		}
		if err := netcdf.WriteScene(filepath.Join(*sceneDir, img.ID+".nc"), img); err != nil {
			return fmt.Errorf("write %s: %w", img.ID, err)
		}
	}
	log.Printf("sentinel-2: %d scenes", *opticalScenes)

	if err := writeDEM(*demPath, grid); err != nil {
		return err
	}
	log.Printf("dem: %s", *demPath)
	return nil
}

func orbitHour(orbit domain.OrbitDirection) time.Duration {
	if orbit == domain.Ascending {
		return 23 * time.Hour
	}
	return 11 * time.Hour
}

// radarScene has an incidence angle ramp across the swath and a darker
// plantation block in the middle of the region.
func radarScene(grid domain.Grid, footprint orb.Polygon, orbit domain.OrbitDirection, acquired time.Time, rng *rand.Rand) (*domain.Image, error) {
	angle := domain.NewBand(domain.BandAngle, grid.Width, grid.Height)
	vv := domain.NewBand(domain.BandVV, grid.Width, grid.Height)
	vh := domain.NewBand(domain.BandVH, grid.Width, grid.Height)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			angle.Set(col, row, 30+15*float64(col)/float64(grid.Width))
			base := -8.0
			if plantation(grid, col, row) {
				base = -6.5
			}
			vv.Set(col, row, base+rng.NormFloat64())
			vh.Set(col, row, base-6+rng.NormFloat64())
		}
	}
	md := domain.Metadata{
		ID:             fmt.Sprintf("S1_%s_%s", orbit, acquired.Format("20060102T150405")),
		Sensor:         domain.SensorS1,
		Acquired:       acquired,
		Orbit:          orbit,
		Polarisations:  []string{domain.BandVV, domain.BandVH},
		InstrumentMode: "IW",
		Resolution:     "H",
	}
	return domain.NewImage(md, grid, footprint, angle, vv, vh)
}

// opticalScene has vegetated plantation pixels and a random cloud patch.
func opticalScene(grid domain.Grid, footprint orb.Polygon, acquired time.Time, rng *rand.Rand) (*domain.Image, error) {
	names := []string{"B2", "B3", domain.BandRed, domain.BandNIR, domain.BandSWIR, domain.BandSCL, domain.BandCloudProb}
	bands := make([]*domain.Band, len(names))
	for i, name := range names {
		bands[i] = domain.NewBand(name, grid.Width, grid.Height)
	}
	cx, cy := rng.IntN(grid.Width), rng.IntN(grid.Height)
	radius := float64(max(grid.Width, grid.Height)) / 6

	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			red, nir := 700.0, 1800.0
			if plantation(grid, col, row) {
				red, nir = 350, 3200
			}
			noise := func() float64 { return 60 * rng.NormFloat64() }
			cloudy := math.Hypot(float64(col-cx), float64(row-cy)) < radius

			scl, prob := 4.0, 5.0
			if cloudy {
				scl, prob = domain.SCLCloudHigh, 90
				red, nir = 3000, 3200
			}
			bands[0].Set(col, row, 450+noise())
			bands[1].Set(col, row, 650+noise())
			bands[2].Set(col, row, red+noise())
			bands[3].Set(col, row, nir+noise())
			bands[4].Set(col, row, 1700+noise())
			bands[5].Set(col, row, scl)
			bands[6].Set(col, row, prob)
		}
	}
	md := domain.Metadata{
		ID:       "S2_" + acquired.Format("20060102T150405"),
		Sensor:   domain.SensorS2,
		Acquired: acquired,
	}
	return domain.NewImage(md, grid, footprint, bands...)
}

func plantation(grid domain.Grid, col, row int) bool {
	return col > grid.Width/3 && col < 2*grid.Width/3 && row > grid.Height/3 && row < 2*grid.Height/3
}

// writeDEM writes a gently sloping surface with one hill, padded past the
// region so every tile window is covered.
func writeDEM(path string, region domain.Grid) error {
	b := region.Bound().Pad(10 * demPixelSize)
	g := domain.Grid{
		OriginX:   b.Min[0],
		OriginY:   b.Max[1],
		PixelSize: demPixelSize,
		Width:     int(math.Ceil((b.Max[0] - b.Min[0]) / demPixelSize)),
		Height:    int(math.Ceil((b.Max[1] - b.Min[1]) / demPixelSize)),
	}
	z := domain.NewBand("elevation", g.Width, g.Height)
	hx, hy := float64(g.Width)/2, float64(g.Height)/2
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			d := math.Hypot(float64(col)-hx, float64(row)-hy) / float64(g.Width)
			z.Set(col, row, 40+0.02*float64(col*demPixelSize)+120*math.Exp(-d*d*20))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tf, err := os.Create(path)
	if err != nil {
		return err
	}
	defer tf.Close()
	wf, err := os.Create(geotiff.WorldFilePath(path))
	if err != nil {
		return err
	}
	defer wf.Close()

	if err := geotiff.EncodeDEM(tf, wf, &domain.ElevationModel{Grid: g, Elevation: z}); err != nil {
		return err
	}
	if err := tf.Close(); err != nil {
		return err
	}
	return wf.Close()
}
