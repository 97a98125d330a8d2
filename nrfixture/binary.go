package nrfixture

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrorder"
)

func ioErr(msg string, err error) error {
	return nrerr.Wrap(nrerr.IOError, -1, msg, err)
}

func readExact(path string, n, width int) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErr("read fixture", errors.Wrapf(err, "%s", path))
	}
	if len(b) != n*width {
		return nil, nrerr.Newf(nrerr.InvalidLength, len(b), "%s: want %d bytes", path, n*width)
	}
	return b, nil
}

// LoadRaster reads n float32 samples stored in the given byte order and
// returns them in host order. No sample is replaced or classified.
func LoadRaster(path string, order nrorder.Order, n int) ([]float32, error) {
	b, err := readExact(path, n, nrorder.Float32Width)
	if err != nil {
		return nil, err
	}
	if err := nrorder.ToNative(b, nrorder.Float32Width, order); err != nil {
		return nil, err
	}
	if n == 0 {
		return []float32{}, nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n), nil
}

// WriteRaster stores samples in the given byte order, bit for bit.
func WriteRaster(path string, samples []float32, order nrorder.Order) error {
	bo := order.Binary()
	b := make([]byte, len(samples)*nrorder.Float32Width)
	for i, v := range samples {
		bo.PutUint32(b[i*nrorder.Float32Width:], math.Float32bits(v))
	}
	return writeFile(path, b)
}

// LoadCoordinates reads n interleaved (x, y) pairs stored big-endian.
func LoadCoordinates(path string, n int) ([]float64, error) {
	b, err := readExact(path, 2*n, nrorder.Float64Width)
	if err != nil {
		return nil, err
	}
	if err := nrorder.ToNative(b, nrorder.Float64Width, nrorder.BigEndian); err != nil {
		return nil, err
	}
	if n == 0 {
		return []float64{}, nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), 2*n), nil
}

// WriteCoordinates stores interleaved pairs big-endian.
func WriteCoordinates(path string, coords []float64) error {
	b := make([]byte, len(coords)*nrorder.Float64Width)
	for i, v := range coords {
		binary.BigEndian.PutUint64(b[i*nrorder.Float64Width:], math.Float64bits(v))
	}
	return writeFile(path, b)
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ioErr("create fixture directory", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return ioErr("write fixture", errors.Wrapf(err, "%s", path))
	}
	return nil
}

// ExpectedReader streams the expected results one iteration at a time. It
// never rewinds; a new reader is needed for every run.
type ExpectedReader struct {
	f   *os.File
	r   *bufio.Reader
	buf []byte
	it  int
}

// OpenExpected opens the expected-result file at path.
func OpenExpected(path string) (*ExpectedReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open expected results", errors.Wrapf(err, "%s", path))
	}
	return &ExpectedReader{f: f, r: bufio.NewReaderSize(f, 1<<16)}, nil
}

// Next fills dst with the next len(dst) expected values. A short file is an
// IO_ERROR.
func (e *ExpectedReader) Next(dst []float64) error {
	need := len(dst) * nrorder.Float64Width
	if cap(e.buf) < need {
		e.buf = make([]byte, need)
	}
	buf := e.buf[:need]
	if _, err := io.ReadFull(e.r, buf); err != nil {
		return nrerr.Wrap(nrerr.IOError, e.it, "read expected results", errors.Wrapf(err, "iteration %d", e.it))
	}
	for i := range dst {
		dst[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[i*nrorder.Float64Width:]))
	}
	e.it++
	return nil
}

// Close releases the file.
func (e *ExpectedReader) Close() error { return e.f.Close() }

// ExpectedWriter appends big-endian doubles to an expected-result file.
type ExpectedWriter struct {
	f       *os.File
	w       *bufio.Writer
	scratch [nrorder.Float64Width]byte
}

// CreateExpected creates or truncates the expected-result file at path.
func CreateExpected(path string) (*ExpectedWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ioErr("create fixture directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, ioErr("create expected results", errors.Wrapf(err, "%s", path))
	}
	return &ExpectedWriter{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

// Write appends v.
func (e *ExpectedWriter) Write(v float64) error {
	binary.BigEndian.PutUint64(e.scratch[:], math.Float64bits(v))
	if _, err := e.w.Write(e.scratch[:]); err != nil {
		return ioErr("write expected results", err)
	}
	return nil
}

// Close flushes buffered values and closes the file.
func (e *ExpectedWriter) Close() error {
	ferr := e.w.Flush()
	cerr := e.f.Close()
	if err := errors.CombineErrors(ferr, cerr); err != nil {
		return ioErr("close expected results", err)
	}
	return nil
}

// LinkOrCopy makes dst a hard link to src, copying when linking is not
// possible (different file systems, or no hard link support).
func LinkOrCopy(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ioErr("create fixture directory", err)
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return ioErr("replace fixture", err)
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return ioErr("copy fixture", err)
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return ioErr("copy fixture", err)
	}
	_, cerr := io.Copy(out, in)
	if err := errors.CombineErrors(cerr, out.Close()); err != nil {
		return ioErr("copy fixture", errors.Wrapf(err, "%s -> %s", src, dst))
	}
	return nil
}
