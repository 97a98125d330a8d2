// Package nrfixture reads and writes the binary fixture set: one raster per
// lane, the shared coordinate and expected-result files, the manifest that
// pins their digests, and the compressed bundle used to move a fixture set
// between machines.
package nrfixture

import (
	"path/filepath"
	"sort"

	"github.com/lattice-substrate/nanraster/nrmissing"
	"github.com/lattice-substrate/nanraster/nrorder"
)

// File names inside an encoding directory.
const (
	CoordinatesFile = "coordinates.raw"
	ExpectedFile    = "expected-results.raw"
	ManifestFile    = "manifest.json"
)

// Lane is one (encoding, byte order) configuration of the raster.
type Lane struct {
	Encoding nrmissing.Encoding
	Order    nrorder.Order
}

func (l Lane) String() string { return l.Encoding.Name() + "/" + l.Order.String() }

// Lanes returns the four configurations. The first one, sentinel values in
// big-endian order, is the reference the others are compared against.
func Lanes() []Lane {
	return []Lane{
		{nrmissing.Sentinel, nrorder.BigEndian},
		{nrmissing.Sentinel, nrorder.LittleEndian},
		{nrmissing.NaNTag, nrorder.BigEndian},
		{nrmissing.NaNTag, nrorder.LittleEndian},
	}
}

// Encodings lists the encoding directories in lane order.
func Encodings() []nrmissing.Encoding {
	return []nrmissing.Encoding{nrmissing.Sentinel, nrmissing.NaNTag}
}

// Layout resolves fixture paths below a data directory.
type Layout struct {
	Dir string
}

// Raster is the raster file of lane.
func (l Layout) Raster(lane Lane) string {
	return filepath.Join(l.Dir, lane.Encoding.Name(), lane.Order.String()+".raw")
}

// Coordinates is the coordinate file of an encoding directory.
func (l Layout) Coordinates(enc nrmissing.Encoding) string {
	return filepath.Join(l.Dir, enc.Name(), CoordinatesFile)
}

// Expected is the expected-result file of an encoding directory.
func (l Layout) Expected(enc nrmissing.Encoding) string {
	return filepath.Join(l.Dir, enc.Name(), ExpectedFile)
}

// Manifest is the manifest path.
func (l Layout) Manifest() string {
	return filepath.Join(l.Dir, ManifestFile)
}

// Files lists every fixture data file relative to Dir, slash separated and
// sorted. The manifest itself is not included.
func (l Layout) Files() []string {
	var out []string
	for _, enc := range Encodings() {
		out = append(out,
			enc.Name()+"/"+nrorder.BigEndian.String()+".raw",
			enc.Name()+"/"+CoordinatesFile,
			enc.Name()+"/"+ExpectedFile,
			enc.Name()+"/"+nrorder.LittleEndian.String()+".raw",
		)
	}
	sort.Strings(out)
	return out
}
