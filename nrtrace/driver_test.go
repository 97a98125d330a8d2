package nrtrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-substrate/nanraster/nrconfig"
	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrgen"
	"github.com/lattice-substrate/nanraster/nrinterp"
	"github.com/lattice-substrate/nanraster/nrmissing"
	"github.com/lattice-substrate/nanraster/nrrand"
)

type memExpected struct {
	values []float64
	pos    int
	calls  int
}

func (m *memExpected) Next(dst []float64) error {
	m.calls++
	if m.pos+len(dst) > len(m.values) {
		return nrerr.New(nrerr.IOError, m.calls-1, "short expected stream")
	}
	copy(dst, m.values[m.pos:])
	m.pos += len(dst)
	return nil
}

type fixture struct {
	cfg      nrconfig.Config
	raster   nrinterp.Raster
	coords   []float64
	expected []float64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := nrconfig.Default()
	cfg.Width, cfg.Height = 40, 30
	cfg.Points = 200
	cfg.VerifiedIterations, cfg.TotalIterations = 3, 5
	cfg.StrictIterations = 1
	rnd := nrrand.New(cfg.Seed)
	raster, _ := nrgen.Raster(rnd, cfg)
	coords := nrgen.Coordinates(rnd, cfg)

	ref := nrgen.NewReference(raster)
	walk := append([]float64(nil), coords...)
	var expected []float64
	for it := 0; it < cfg.VerifiedIterations; it++ {
		for i := 0; i < cfg.Points; i++ {
			v, nx, ny, err := ref.Step(walk[2*i], walk[2*i+1])
			require.NoError(t, err)
			expected = append(expected, v)
			walk[2*i], walk[2*i+1] = nx, ny
		}
	}
	return fixture{cfg: cfg, raster: raster, coords: coords, expected: expected}
}

func reformat(samples []float32) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = nrmissing.Reformat(v)
	}
	return out
}

func TestDriverMatchesReference(t *testing.T) {
	f := newFixture(t)
	exp := &memExpected{values: f.expected}
	d := &Driver{Config: f.cfg, Encoding: nrmissing.Sentinel, Kernel: nrinterp.Widened}
	report, err := d.Run(f.raster, append([]float64(nil), f.coords...), exp)
	require.NoError(t, err)
	assert.Equal(t, f.cfg.VerifiedIterations, exp.calls)
	require.Len(t, report.Iterations, f.cfg.VerifiedIterations)

	first := report.Iterations[0]
	assert.Zero(t, first.Mismatches)
	assert.Positive(t, first.Count)
	assert.Less(t, first.Max, 1e-12)
	assert.True(t, report.Success(f.cfg.StrictIterations))
}

func TestDriverEncodingsAgree(t *testing.T) {
	f := newFixture(t)
	sentinel := &Driver{Config: f.cfg, Encoding: nrmissing.Sentinel, Kernel: nrinterp.Widened}
	a, err := sentinel.Run(f.raster, append([]float64(nil), f.coords...), &memExpected{values: f.expected})
	require.NoError(t, err)

	tagged := nrinterp.Raster{Width: f.raster.Width, Height: f.raster.Height, Samples: reformat(f.raster.Samples)}
	nan := &Driver{Config: f.cfg, Encoding: nrmissing.NaNTag, Kernel: nrinterp.Widened}
	coords := append([]float64(nil), f.coords...)
	b, err := nan.Run(tagged, coords, &memExpected{values: f.expected})
	require.NoError(t, err)
	assert.Empty(t, a.Diff(b))
}

func TestDriverCountsMismatches(t *testing.T) {
	f := newFixture(t)
	exp := append([]float64(nil), f.expected...)
	flipped := 0
	for i := 0; i < f.cfg.Points; i++ {
		if nrmissing.Sentinel.Classify(float32(exp[i])).Missing() {
			exp[i] = 0.5
		} else {
			exp[i] = float64(nrmissing.UnknownMagnitude)
		}
		flipped++
		if flipped == 7 {
			break
		}
	}
	d := &Driver{Config: f.cfg, Encoding: nrmissing.NaNTag}
	tagged := nrinterp.Raster{Width: f.raster.Width, Height: f.raster.Height, Samples: reformat(f.raster.Samples)}
	report, err := d.Run(tagged, append([]float64(nil), f.coords...), &memExpected{values: exp})
	require.NoError(t, err)
	assert.Equal(t, 7, report.Iterations[0].Mismatches)
	assert.False(t, report.Success(1))
}

func TestDriverErrors(t *testing.T) {
	f := newFixture(t)
	d := &Driver{Config: f.cfg, Encoding: nrmissing.Sentinel, Kernel: nrinterp.Widened}

	_, err := d.Run(f.raster, f.coords[:10], &memExpected{values: f.expected})
	assert.Equal(t, nrerr.InvalidLength, nrerr.ClassOf(err))

	_, err = d.Run(f.raster, append([]float64(nil), f.coords...), &memExpected{values: f.expected[:f.cfg.Points]})
	assert.Equal(t, nrerr.IOError, nrerr.ClassOf(err))

	bad := append([]float64(nil), f.coords...)
	bad[6] = float64(f.cfg.Width)
	_, err = d.Run(f.raster, bad, &memExpected{values: f.expected})
	require.Error(t, err)
	assert.Equal(t, nrerr.OutOfBounds, nrerr.ClassOf(err))
	var e *nrerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 3, e.Index)
}

func TestDriverUpdatesCoordinatesInPlace(t *testing.T) {
	f := newFixture(t)
	coords := append([]float64(nil), f.coords...)
	d := &Driver{Config: f.cfg, Encoding: nrmissing.Sentinel, Kernel: nrinterp.Widened}
	_, err := d.Run(f.raster, coords, &memExpected{values: f.expected})
	require.NoError(t, err)
	assert.NotEqual(t, f.coords, coords)
	for i := 0; i < len(coords); i += 2 {
		require.True(t, coords[i] >= 0 && coords[i] < float64(f.cfg.Width-1))
		require.True(t, coords[i+1] >= 0 && coords[i+1] < float64(f.cfg.Height-1))
	}
}
