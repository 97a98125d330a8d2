// Package nrtrace drives many points along chaotic trajectories over a
// raster. Every step moves a point by the value interpolated at its current
// position, so a single rounding difference relocates the point and the
// trajectories of two implementations diverge quickly. Comparing each step
// against exact expected results exposes the first such difference.
package nrtrace

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/lattice-substrate/nanraster/nrconfig"
	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrinterp"
	"github.com/lattice-substrate/nanraster/nrlog"
	"github.com/lattice-substrate/nanraster/nrmissing"
	"github.com/lattice-substrate/nanraster/nrstats"
)

// Expected supplies the expected values of one verified iteration per call.
// nrfixture.ExpectedReader implements it.
type Expected interface {
	Next(dst []float64) error
}

// Driver runs trajectories for one encoding and one kernel.
type Driver struct {
	Config   nrconfig.Config
	Encoding nrmissing.Encoding
	Kernel   nrinterp.Kernel
	Logger   *zap.Logger
}

// Run advances every point of coords TotalIterations times, updating coords
// in place, and compares the first VerifiedIterations steps with expected.
// Expected values are in the sentinel encoding whatever d.Encoding is.
//
// Missing-value disagreements are counted, not returned: the only errors
// are out-of-bounds positions and failures to read expected values.
func (d *Driver) Run(raster nrinterp.Raster, coords []float64, expected Expected) (*nrstats.Report, error) {
	cfg := d.Config
	log := nrlog.OrNop(d.Logger)
	if len(coords) != 2*cfg.Points {
		return nil, nrerr.Newf(nrerr.InvalidLength, len(coords), "want %d coordinates", 2*cfg.Points)
	}
	kernel := d.Kernel
	if kernel == nil {
		kernel = nrinterp.Widened
	}
	wrapX := float64(raster.Width - 1)
	wrapY := float64(raster.Height - 1)

	report := nrstats.NewReport(cfg.VerifiedIterations)
	want := make([]float64, cfg.Points)
	start := time.Now()
	for it := 0; it < cfg.TotalIterations; it++ {
		var stats *nrstats.Iteration
		if it < cfg.VerifiedIterations {
			if err := expected.Next(want); err != nil {
				return nil, err
			}
			stats = &report.Iterations[it]
		}
		for i := 0; i < cfg.Points; i++ {
			ix, iy := 2*i, 2*i+1
			x, y := coords[ix], coords[iy]
			q, xf, yf, err := raster.Neighbourhood(x, y)
			if err != nil {
				return nil, nrerr.Wrap(nrerr.OutOfBounds, i, fmt.Sprintf("iteration %d", it), err)
			}
			v, reason := nrinterp.Sample(d.Encoding, kernel, q, xf, yf)
			if stats != nil {
				compare(stats, v, reason, want[i])
			}
			coords[ix] = math.Mod(math.Abs(x+v), wrapX)
			coords[iy] = math.Mod(math.Abs(y+v), wrapY)
		}
		if stats != nil {
			log.Debug("iteration verified",
				zap.Int("iteration", it),
				zap.Int("mismatches", stats.Mismatches),
				zap.Float64("max_error", stats.Max))
		}
	}
	log.Info("run finished",
		zap.String("encoding", d.Encoding.Name()),
		zap.Int("mismatches", report.TotalMismatches(cfg.VerifiedIterations)),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

// compare checks one computed value against its expected value. The
// expected value is a sentinel magnitude when the reference found the
// neighbourhood missing.
func compare(stats *nrstats.Iteration, got float64, reason nrmissing.Reason, want float64) {
	wantReason := nrmissing.Sentinel.Classify(float32(want))
	switch {
	case reason.Missing() || wantReason.Missing():
		if reason != wantReason {
			stats.Mismatch()
		}
	default:
		stats.Accept(math.Abs(got - want))
	}
}
