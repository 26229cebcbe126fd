// Command validate re-reads GeoTIFF exports written by cmd/composite and
// checks band layout, dimensions, georeferencing, the nodata convention and
// mask consistency. Passing exports print per-band statistics over valid
// pixels. It exits non-zero when any check fails.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -dir out \
//	  -exports Sentinel-1_composite_VV_VH,Sentinel-2_composite
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/adriadescals/oil-palm-global/internal/adapter/geotiff"
	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/adriadescals/oil-palm-global/internal/pipeline"
	"gonum.org/v1/gonum/floats"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	stats  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "out", "export directory")
	exports := flag.String("exports", pipeline.RadarExportName+","+pipeline.OpticalExportName, "comma-separated export names")
	flag.Parse()

	names := strings.Split(*exports, ",")
	if *dir == "" || len(names) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*dir, names))
}

func run(dir string, names []string) int {
	var phases []*phase
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		phases = append(phases, validateExport(dir, name))
	}

	failed := 0
	for _, p := range phases {
		if p.passed() {
			fmt.Printf("PASS  %s\n", p.name)
			for _, line := range p.stats {
				fmt.Printf("      %s\n", line)
			}
			continue
		}
		failed++
		fmt.Printf("FAIL  %s\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("      - %s\n", e)
		}
	}
	fmt.Printf("\n%d/%d exports passed\n", len(phases)-failed, len(phases))
	if failed > 0 {
		return 1
	}
	return 0
}

func validateExport(dir, name string) *phase {
	p := &phase{name: name}

	exp, err := geotiff.ReadExport(dir, name)
	if err != nil {
		p.errorf("read: %v", err)
		return p
	}
	if err := exp.Check(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			p.errorf("%s", line)
		}
	}

	sc := exp.Sidecar
	switch name {
	case pipeline.RadarExportName:
		if !slices.Equal(sc.Bands, domain.RadarBands) {
			p.errorf("bands %v, want %v", sc.Bands, domain.RadarBands)
		}
	case pipeline.OpticalExportName:
		for _, b := range sc.Bands {
			if !strings.HasPrefix(b, "B") {
				p.errorf("optical export carries non-reflectance band %s", b)
			}
		}
	}
	if sc.ValidPixels == 0 {
		p.errorf("export has no valid pixels")
	}
	if sc.CRS == "" {
		p.errorf("export has no CRS label")
	}

	for _, band := range sc.Bands {
		img, ok := exp.Bands[band]
		if !ok {
			continue
		}
		values := validValues(img.Pix, exp.BandMasks[band].Pix)
		if len(values) == 0 {
			p.errorf("band %s has no valid pixels", band)
			continue
		}
		p.stats = append(p.stats, fmt.Sprintf("%-6s min=%3.0f max=%3.0f mean=%6.2f",
			band, floats.Min(values), floats.Max(values), floats.Sum(values)/float64(len(values))))
	}
	return p
}

// validValues returns the band values under a valid band mask pixel.
func validValues(pix, mask []uint8) []float64 {
	var out []float64
	for i, v := range pix {
		if i < len(mask) && mask[i] == geotiff.MaskValid {
			out = append(out, float64(v))
		}
	}
	return out
}
