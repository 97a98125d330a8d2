package nrfixture

import (
	"archive/tar"
	"bytes"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrmissing"
	"github.com/lattice-substrate/nanraster/nrorder"
)

func TestRasterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tag, err := nrmissing.NaNTag.Encode(nrmissing.Land)
	require.NoError(t, err)
	samples := []float32{1.5, -99.25, nrmissing.CloudMagnitude, tag, float32(math.Inf(1))}

	for _, order := range []nrorder.Order{nrorder.BigEndian, nrorder.LittleEndian} {
		p := filepath.Join(dir, order.String()+".raw")
		require.NoError(t, WriteRaster(p, samples, order))
		got, err := LoadRaster(p, order, len(samples))
		require.NoError(t, err)
		for i := range samples {
			assert.Equal(t, math.Float32bits(samples[i]), math.Float32bits(got[i]), "%s[%d]", order, i)
		}
	}

	be, _ := os.ReadFile(filepath.Join(dir, "big-endian.raw"))
	assert.Equal(t, []byte{0x3f, 0xc0, 0x00, 0x00}, be[:4])
	le, _ := os.ReadFile(filepath.Join(dir, "little-endian.raw"))
	assert.Equal(t, []byte{0x00, 0x00, 0xc0, 0x3f}, le[:4])
}

func TestLoadRasterLength(t *testing.T) {
	p := filepath.Join(t.TempDir(), "r.raw")
	require.NoError(t, WriteRaster(p, make([]float32, 3), nrorder.BigEndian))
	_, err := LoadRaster(p, nrorder.BigEndian, 4)
	assert.Equal(t, nrerr.InvalidLength, nrerr.ClassOf(err))

	_, err = LoadRaster(filepath.Join(t.TempDir(), "none.raw"), nrorder.BigEndian, 4)
	assert.Equal(t, nrerr.IOError, nrerr.ClassOf(err))
}

func TestCoordinatesRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), CoordinatesFile)
	coords := []float64{0.5, 1.25, 798.999, 598.5}
	require.NoError(t, WriteCoordinates(p, coords))
	got, err := LoadCoordinates(p, 2)
	require.NoError(t, err)
	assert.Equal(t, coords, got)
}

func TestExpectedStream(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x", ExpectedFile)
	w, err := CreateExpected(p)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.NoError(t, w.Write(float64(i)+0.5))
	}
	require.NoError(t, w.Close())

	r, err := OpenExpected(p)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	dst := make([]float64, 3)
	require.NoError(t, r.Next(dst))
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, dst)
	require.NoError(t, r.Next(dst))
	assert.Equal(t, []float64{3.5, 4.5, 5.5}, dst)

	err = r.Next(dst)
	require.Error(t, err)
	assert.Equal(t, nrerr.IOError, nrerr.ClassOf(err))
}

func TestLinkOrCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a", "src.raw")
	require.NoError(t, writeFile(src, []byte("payload")))
	dst := filepath.Join(dir, "b", "dst.raw")
	require.NoError(t, LinkOrCopy(src, dst))
	require.NoError(t, LinkOrCopy(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

// populate writes small but well-formed data files for every path of layout.
func populate(t *testing.T, layout Layout) {
	t.Helper()
	for i, rel := range layout.Files() {
		require.NoError(t, writeFile(filepath.Join(layout.Dir, filepath.FromSlash(rel)), bytes.Repeat([]byte{byte(i)}, 16+i)))
	}
}

func TestLayoutFiles(t *testing.T) {
	l := Layout{Dir: "data"}
	assert.Equal(t, []string{
		"nan/big-endian.raw", "nan/coordinates.raw", "nan/expected-results.raw", "nan/little-endian.raw",
		"nodata/big-endian.raw", "nodata/coordinates.raw", "nodata/expected-results.raw", "nodata/little-endian.raw",
	}, l.Files())
	assert.Equal(t, filepath.Join("data", "nan", "little-endian.raw"), l.Raster(Lanes()[3]))
	assert.Equal(t, "nodata/big-endian", Lanes()[0].String())
}

func TestManifestVerify(t *testing.T) {
	layout := Layout{Dir: t.TempDir()}
	_, err := ReadManifest(layout)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	populate(t, layout)
	m, err := BuildManifest(layout, "abc")
	require.NoError(t, err)
	require.NoError(t, WriteManifest(layout, m))
	assert.True(t, m.Matches("abc"))
	assert.False(t, m.Matches("abd"))

	got, err := VerifyManifest(layout)
	require.NoError(t, err)
	assert.Equal(t, m.SetDigest, got.SetDigest)
	assert.Equal(t, int64(8*16+28), got.TotalSize())

	require.NoError(t, os.WriteFile(filepath.Join(layout.Dir, "nan", ExpectedFile), []byte("tampered"), 0o644))
	_, err = VerifyManifest(layout)
	require.Error(t, err)
	assert.Equal(t, nrerr.IOError, nrerr.ClassOf(err))
	assert.Contains(t, err.Error(), "nan/expected-results.raw")
}

func TestPackUnpack(t *testing.T) {
	src := Layout{Dir: t.TempDir()}
	populate(t, src)
	m, err := BuildManifest(src, "fp")
	require.NoError(t, err)
	require.NoError(t, WriteManifest(src, m))

	bundle := filepath.Join(t.TempDir(), "fixtures.tar.zst")
	_, err = Pack(src, bundle, nil)
	require.NoError(t, err)
	first, err := os.ReadFile(bundle)
	require.NoError(t, err)
	_, err = Pack(src, bundle, nil)
	require.NoError(t, err)
	second, err := os.ReadFile(bundle)
	require.NoError(t, err)
	assert.Equal(t, first, second, "packing is deterministic")

	dst := Layout{Dir: t.TempDir()}
	got, err := Unpack(bundle, dst, nil)
	require.NoError(t, err)
	assert.Equal(t, m.SetDigest, got.SetDigest)
	assert.Equal(t, "fp", got.Fingerprint)
}

func TestUnpackRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../evil.raw", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg}))
	_, err = tw.Write([]byte{1})
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	bundle := filepath.Join(t.TempDir(), "evil.tar.zst")
	require.NoError(t, os.WriteFile(bundle, buf.Bytes(), 0o644))
	root := t.TempDir()
	_, err = Unpack(bundle, Layout{Dir: filepath.Join(root, "data")}, nil)
	require.Error(t, err)
	assert.Equal(t, nrerr.IOError, nrerr.ClassOf(err))
	_, statErr := os.Stat(filepath.Join(root, "evil.raw"))
	assert.True(t, os.IsNotExist(statErr))
}
