// Package nrmissing implements the two interchangeable policies for marking
// missing raster samples: out-of-band sentinel magnitudes and quiet-NaN
// payload tags.
//
// Both policies share the same logical vocabulary, Reason, with a total
// precedence order. When one interpolation touches several missing samples the
// result is missing for the reason with the highest precedence.
package nrmissing

import (
	"strconv"

	"github.com/lattice-substrate/nanraster/nrerr"
)

// Reason tells why a sample is missing. Valid is the zero value and means the
// sample is not missing. The missing reasons are declared in ascending
// precedence order.
type Reason uint8

const (
	Valid Reason = iota
	Cloud
	Land
	NoPass
	Unknown
)

// Reasons lists the missing reasons in ascending precedence order.
var Reasons = [...]Reason{Cloud, Land, NoPass, Unknown}

// Missing reports whether r denotes a missing sample.
func (r Reason) Missing() bool {
	return r != Valid
}

// Known reports whether r is Valid or one of the four missing reasons.
func (r Reason) Known() bool {
	return r <= Unknown
}

func (r Reason) String() string {
	switch r {
	case Valid:
		return "VALID"
	case Cloud:
		return "CLOUD"
	case Land:
		return "LAND"
	case NoPass:
		return "NO_PASS"
	case Unknown:
		return "UNKNOWN"
	}
	return "REASON(" + strconv.Itoa(int(r)) + ")"
}

func checkEncodable(r Reason) error {
	if r == Valid || !r.Known() {
		return nrerr.Newf(nrerr.UnknownReason, -1, "cannot encode reason %s", r)
	}
	return nil
}
