// Package nrgen produces a complete fixture set from a seed: the sentinel
// raster, the starting coordinates, the expected results computed with exact
// decimal arithmetic, the three reformatted rasters and the manifest.
package nrgen

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/lattice-substrate/nanraster/nrconfig"
	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrfixture"
	"github.com/lattice-substrate/nanraster/nrinterp"
	"github.com/lattice-substrate/nanraster/nrlog"
	"github.com/lattice-substrate/nanraster/nrmissing"
	"github.com/lattice-substrate/nanraster/nrrand"
)

// Valid samples are drawn uniformly from [MinSample, MaxSample).
const (
	MinSample float32 = -100
	MaxSample float32 = 100
)

// Generator writes fixture sets. The output depends only on the
// generator-relevant fields of Config, summarized by Config.Fingerprint.
type Generator struct {
	Config nrconfig.Config
	Logger *zap.Logger
}

// Generate writes every fixture file below Config.DataDir and returns the
// manifest, which is written last.
func (g *Generator) Generate(ctx context.Context) (*nrfixture.Manifest, error) {
	cfg := g.Config
	log := nrlog.OrNop(g.Logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout := nrfixture.Layout{Dir: cfg.DataDir}
	if err := os.Remove(layout.Manifest()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nrerr.Wrap(nrerr.IOError, -1, "remove stale manifest", err)
	}
	start := time.Now()
	rnd := nrrand.New(cfg.Seed)

	raster, missing := Raster(rnd, cfg)
	ref := nrfixture.Lanes()[0]
	if err := nrfixture.WriteRaster(layout.Raster(ref), raster.Samples, ref.Order); err != nil {
		return nil, err
	}
	log.Debug("raster generated",
		zap.Int("width", raster.Width), zap.Int("height", raster.Height), zap.Int("missing", missing))

	coords := Coordinates(rnd, cfg)
	if err := nrfixture.WriteCoordinates(layout.Coordinates(ref.Encoding), coords); err != nil {
		return nil, err
	}
	if err := g.writeExpected(ctx, layout.Expected(ref.Encoding), raster, coords); err != nil {
		return nil, err
	}

	for _, lane := range nrfixture.Lanes()[1:] {
		if err := nrfixture.WriteRaster(layout.Raster(lane), Reformat(raster.Samples, lane.Encoding), lane.Order); err != nil {
			return nil, err
		}
	}
	for _, enc := range nrfixture.Encodings() {
		if enc == ref.Encoding {
			continue
		}
		if err := nrfixture.LinkOrCopy(layout.Coordinates(ref.Encoding), layout.Coordinates(enc)); err != nil {
			return nil, err
		}
		if err := nrfixture.LinkOrCopy(layout.Expected(ref.Encoding), layout.Expected(enc)); err != nil {
			return nil, err
		}
	}

	m, err := nrfixture.BuildManifest(layout, cfg.Fingerprint())
	if err != nil {
		return nil, err
	}
	if err := nrfixture.WriteManifest(layout, m); err != nil {
		return nil, err
	}
	log.Info("fixtures generated",
		zap.String("dir", cfg.DataDir),
		zap.String("fingerprint", m.Fingerprint),
		zap.String("size", units.HumanSize(float64(m.TotalSize()))),
		zap.Duration("elapsed", time.Since(start)))
	return m, nil
}

// Raster draws the sentinel raster. Each sample is missing with probability
// 1/MissingInverse, with a reason drawn uniformly from the four missing
// reasons; otherwise it is uniform in [MinSample, MaxSample). It returns the
// number of missing samples.
func Raster(rnd *nrrand.Random, cfg nrconfig.Config) (nrinterp.Raster, int) {
	samples := make([]float32, cfg.Width*cfg.Height)
	missing := 0
	for i := range samples {
		if rnd.NextInt(int32(cfg.MissingInverse)) == 0 {
			r := nrmissing.Reason(rnd.NextIntRange(int32(nrmissing.Cloud), int32(nrmissing.Unknown)+1))
			samples[i] = nrmissing.Magnitude(r)
			missing++
		} else {
			samples[i] = rnd.NextFloatRange(MinSample, MaxSample)
		}
	}
	return nrinterp.Raster{Width: cfg.Width, Height: cfg.Height, Samples: samples}, missing
}

// Coordinates draws Points interleaved (x, y) pairs in [0, W-1)×[0, H-1).
func Coordinates(rnd *nrrand.Random, cfg nrconfig.Config) []float64 {
	coords := make([]float64, 2*cfg.Points)
	for i := 0; i < len(coords); i += 2 {
		coords[i] = rnd.NextDoubleBound(float64(cfg.Width - 1))
		coords[i+1] = rnd.NextDoubleBound(float64(cfg.Height - 1))
	}
	return coords
}

// Reformat returns samples re-encoded for enc. Sentinel samples are
// returned unchanged.
func Reformat(samples []float32, enc nrmissing.Encoding) []float32 {
	if enc != nrmissing.NaNTag {
		return samples
	}
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = nrmissing.Reformat(v)
	}
	return out
}

func (g *Generator) writeExpected(ctx context.Context, path string, raster nrinterp.Raster, start []float64) error {
	cfg := g.Config
	log := nrlog.OrNop(g.Logger)
	w, err := nrfixture.CreateExpected(path)
	if err != nil {
		return err
	}
	ref := NewReference(raster)
	coords := append([]float64(nil), start...)
	for it := 0; it < cfg.VerifiedIterations; it++ {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return nrerr.Wrap(nrerr.InternalError, it, "generation cancelled", err)
		}
		for i := 0; i < cfg.Points; i++ {
			ix, iy := 2*i, 2*i+1
			v, nx, ny, err := ref.Step(coords[ix], coords[iy])
			if err != nil {
				_ = w.Close()
				return nrerr.Wrap(nrerr.ClassOf(err), i, "reference step", err)
			}
			if err := w.Write(v); err != nil {
				_ = w.Close()
				return err
			}
			coords[ix], coords[iy] = nx, ny
		}
		log.Debug("expected iteration written", zap.Int("iteration", it))
	}
	return w.Close()
}
