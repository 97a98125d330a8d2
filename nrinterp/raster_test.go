package nrinterp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrmissing"
)

func grid(t *testing.T, w, h int) Raster {
	t.Helper()
	s := make([]float32, w*h)
	for i := range s {
		s[i] = float32(i)
	}
	r, err := NewRaster(w, h, s)
	require.NoError(t, err)
	return r
}

func TestNeighbourhood(t *testing.T) {
	r := grid(t, 5, 4)
	q, xf, yf, err := r.Neighbourhood(2.25, 1.5)
	require.NoError(t, err)
	assert.Equal(t, nrmissing.Quad{7, 8, 12, 13}, q)
	assert.Equal(t, 0.25, xf)
	assert.Equal(t, 0.5, yf)

	q, _, _, err = r.Neighbourhood(3.999, 2.999)
	require.NoError(t, err)
	assert.Equal(t, nrmissing.Quad{13, 14, 18, 19}, q)
}

func TestNeighbourhoodOutOfBounds(t *testing.T) {
	r := grid(t, 5, 4)
	for _, c := range [][2]float64{
		{-0.5, 1}, {1, -0.001}, {4, 1}, {1, 3}, {math.NaN(), 1}, {1, math.Inf(1)},
	} {
		_, _, _, err := r.Neighbourhood(c[0], c[1])
		require.Error(t, err, "%v", c)
		assert.Equal(t, nrerr.OutOfBounds, nrerr.ClassOf(err))
	}
}

func TestNewRasterLength(t *testing.T) {
	_, err := NewRaster(3, 3, make([]float32, 8))
	assert.Equal(t, nrerr.InvalidLength, nrerr.ClassOf(err))
	_, err = NewRaster(1, 3, make([]float32, 3))
	assert.Equal(t, nrerr.InvalidConfig, nrerr.ClassOf(err))
}
