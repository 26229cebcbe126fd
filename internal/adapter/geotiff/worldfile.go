package geotiff

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/adriadescals/oil-palm-global/internal/domain"
)

// WorldFileExt is the extension of the georeferencing file written next to a TIFF.
const WorldFileExt = ".tfw"

// EncodeWorldFile writes the six ESRI world file parameters for a north-up
// grid. C and F locate the centre of the top-left pixel.
func EncodeWorldFile(w io.Writer, g domain.Grid) error {
	params := []float64{
		g.PixelSize,
		0,
		0,
		-g.PixelSize,
		g.OriginX + g.PixelSize/2,
		g.OriginY - g.PixelSize/2,
	}
	for _, p := range params {
		if _, err := fmt.Fprintln(w, strconv.FormatFloat(p, 'f', -1, 64)); err != nil {
			return fmt.Errorf("write world file: %w", err)
		}
	}
	return nil
}

// DecodeWorldFile parses a world file into the origin and pixel size of a
// north-up grid with square pixels. Rotated grids are rejected.
func DecodeWorldFile(r io.Reader) (originX, originY, pixelSize float64, err error) {
	var params []float64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, perr := strconv.ParseFloat(line, 64)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("parse world file line %q: %w", line, perr)
		}
		params = append(params, v)
	}
	if err := sc.Err(); err != nil {
		return 0, 0, 0, fmt.Errorf("read world file: %w", err)
	}
	if len(params) != 6 {
		return 0, 0, 0, fmt.Errorf("world file has %d parameters, want 6", len(params))
	}

	a, d, b, e, c, f := params[0], params[1], params[2], params[3], params[4], params[5]
	if d != 0 || b != 0 {
		return 0, 0, 0, fmt.Errorf("%w: rotated world file", domain.ErrGridMismatch)
	}
	if !(a > 0) || math.Abs(a+e) > 1e-9*a {
		return 0, 0, 0, fmt.Errorf("%w: pixel size %v x %v is not square and north-up", domain.ErrGridMismatch, a, e)
	}
	return c - a/2, f + a/2, a, nil
}
