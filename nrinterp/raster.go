package nrinterp

import (
	"math"

	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrmissing"
)

// Raster is a dense row-major grid of float32 samples.
type Raster struct {
	Width   int
	Height  int
	Samples []float32
}

// NewRaster checks that samples holds exactly width×height values.
func NewRaster(width, height int, samples []float32) (Raster, error) {
	if width < 2 || height < 2 {
		return Raster{}, nrerr.Newf(nrerr.InvalidConfig, -1, "raster %dx%d is too small to interpolate", width, height)
	}
	if len(samples) != width*height {
		return Raster{}, nrerr.Newf(nrerr.InvalidLength, len(samples), "raster %dx%d needs %d samples", width, height, width*height)
	}
	return Raster{Width: width, Height: height, Samples: samples}, nil
}

// Neighbourhood returns the 2×2 block whose upper-left corner is
// (floor(x), floor(y)), together with the fractional offsets inside it.
// It fails with OutOfBounds when the block is not fully inside the raster.
func (r Raster) Neighbourhood(x, y float64) (q nrmissing.Quad, xf, yf float64, err error) {
	xb := math.Floor(x)
	yb := math.Floor(y)
	// The negated comparisons also reject NaN coordinates.
	if !(xb >= 0 && xb < float64(r.Width-1) && yb >= 0 && yb < float64(r.Height-1)) {
		return q, 0, 0, nrerr.Newf(nrerr.OutOfBounds, -1,
			"coordinates (%g, %g) outside %dx%d raster", x, y, r.Width, r.Height)
	}
	offset := r.Width*int(yb) + int(xb)
	q[0] = r.Samples[offset]
	q[1] = r.Samples[offset+1]
	offset += r.Width
	q[2] = r.Samples[offset]
	q[3] = r.Samples[offset+1]
	return q, x - xb, y - yb, nil
}
