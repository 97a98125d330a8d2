package nrgen

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/lattice-substrate/nanraster/nrinterp"
	"github.com/lattice-substrate/nanraster/nrmissing"
)

// Reference replays the trajectory of one point with exact decimal
// arithmetic. The only roundings are the ones the stored data imposes: each
// result and each new coordinate is rounded to the nearest double.
type Reference struct {
	raster  nrinterp.Raster
	samples []decimal.Decimal
	width   decimal.Decimal
	height  decimal.Decimal
}

// NewReference converts every raster sample to its exact decimal value.
func NewReference(r nrinterp.Raster) *Reference {
	samples := make([]decimal.Decimal, len(r.Samples))
	for i, v := range r.Samples {
		if !nrmissing.Sentinel.Classify(v).Missing() {
			samples[i] = exactDecimal(float64(v))
		}
	}
	return &Reference{
		raster:  r,
		samples: samples,
		width:   decimal.NewFromInt(int64(r.Width - 1)),
		height:  decimal.NewFromInt(int64(r.Height - 1)),
	}
}

// Step interpolates at (x, y) and returns the expected value followed by
// the next position. A missing neighbourhood yields the sentinel magnitude
// of its precedence maximum and moves the point by one.
func (r *Reference) Step(x, y float64) (expected, nx, ny float64, err error) {
	q, _, _, err := r.raster.Neighbourhood(x, y)
	if err != nil {
		return 0, 0, 0, err
	}
	xb, yb := math.Floor(x), math.Floor(y)
	dx := exactDecimal(x)
	dy := exactDecimal(y)

	var value decimal.Decimal
	if reason := nrmissing.Sentinel.PrecedenceMax(q); reason.Missing() {
		expected = float64(nrmissing.Magnitude(reason))
		value = decimal.NewFromInt(1)
	} else {
		offset := r.raster.Width*int(yb) + int(xb)
		v00, v01 := r.samples[offset], r.samples[offset+1]
		offset += r.raster.Width
		v10, v11 := r.samples[offset], r.samples[offset+1]

		xf := dx.Sub(decimal.NewFromInt(int64(xb)))
		yf := dy.Sub(decimal.NewFromInt(int64(yb)))
		v0 := v01.Sub(v00).Mul(xf).Add(v00)
		v1 := v11.Sub(v10).Mul(xf).Add(v10)
		value = v1.Sub(v0).Mul(yf).Add(v0)
		expected = nearestDouble(value)
	}
	nx = wrap(dx.Add(value).Abs(), r.width, r.raster.Width-1)
	ny = wrap(dy.Add(value).Abs(), r.height, r.raster.Height-1)
	return expected, nx, ny, nil
}

// wrap reduces a modulo m and rounds to a double strictly below m. Rounding
// can carry a remainder just under m up to m itself, which would put the
// next neighbourhood outside the raster.
func wrap(a, m decimal.Decimal, limit int) float64 {
	f := nearestDouble(floorMod(a, m))
	if f >= float64(limit) {
		f = math.Nextafter(float64(limit), 0)
	}
	return f
}
