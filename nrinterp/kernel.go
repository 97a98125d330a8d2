// Package nrinterp implements bilinear interpolation of single-precision
// rasters with double-precision accumulation, and the missing-value
// short-circuit driven by an nrmissing.Encoding.
//
// The production kernel is Widened. Narrow and Unfused reproduce two common
// mistakes (subtracting before promotion, and rounding the product before the
// addition) so that their drift can be measured against the reference.
package nrinterp

import (
	"math"
	"sort"
	"strings"

	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrmissing"
)

// Kernel interpolates the neighbourhood q at fractional offsets xf, yf in [0, 1).
type Kernel func(q nrmissing.Quad, xf, yf float64) float64

// Widened promotes every sample to float64 before any subtraction and uses a
// fused multiply-add for each of the three linear steps.
func Widened(q nrmissing.Quad, xf, yf float64) float64 {
	v00, v10 := float64(q[0]), float64(q[2])
	v0 := math.FMA(float64(q[1])-v00, xf, v00)
	v1 := math.FMA(float64(q[3])-v10, xf, v10)
	return math.FMA(v1-v0, yf, v0)
}

// Narrow subtracts the samples in float32 and promotes the rounded difference.
func Narrow(q nrmissing.Quad, xf, yf float64) float64 {
	d0 := float32(q[1] - q[0])
	d1 := float32(q[3] - q[2])
	v0 := math.FMA(float64(d0), xf, float64(q[0]))
	v1 := math.FMA(float64(d1), xf, float64(q[2]))
	return math.FMA(v1-v0, yf, v0)
}

// Unfused promotes before subtracting but rounds every product before the
// addition. The float64 conversions stop the compiler from fusing them.
func Unfused(q nrmissing.Quad, xf, yf float64) float64 {
	v00, v10 := float64(q[0]), float64(q[2])
	v0 := float64((float64(q[1])-v00)*xf) + v00
	v1 := float64((float64(q[3])-v10)*xf) + v10
	return float64((v1-v0)*yf) + v0
}

var kernels = map[string]Kernel{
	"widened": Widened,
	"narrow":  Narrow,
	"unfused": Unfused,
}

// KernelByName returns the kernel registered under name.
func KernelByName(name string) (Kernel, error) {
	k, ok := kernels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, nrerr.Newf(nrerr.InvalidConfig, -1, "unknown kernel %q (want one of %s)",
			name, strings.Join(KernelNames(), ", "))
	}
	return k, nil
}

// KernelNames lists the registered kernel names in sorted order.
func KernelNames() []string {
	names := make([]string, 0, len(kernels))
	for n := range kernels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Substitute is the value returned for a missing result. It moves the
// trajectory to a new position without leaking a sentinel or NaN into it.
const Substitute = 1.0

// Sample interpolates q with kernel k under the missing-value policy enc.
//
// Sentinel-like encodings (CheckBefore) are classified first and skip the
// arithmetic entirely. NaN-like encodings (CheckAfter) compute first and only
// inspect the four inputs when the result is NaN; a NaN result whose inputs
// are all valid resolves to UNKNOWN. Missing results are reported as
// (Substitute, reason).
func Sample(enc nrmissing.Encoding, k Kernel, q nrmissing.Quad, xf, yf float64) (float64, nrmissing.Reason) {
	switch enc.Check() {
	case nrmissing.CheckAfter:
		v := k(q, xf, yf)
		if !math.IsNaN(v) {
			return v, nrmissing.Valid
		}
		r := enc.PrecedenceMax(q)
		if !r.Missing() {
			r = nrmissing.Unknown
		}
		return Substitute, r
	default:
		if r := enc.PrecedenceMax(q); r.Missing() {
			return Substitute, r
		}
		return k(q, xf, yf), nrmissing.Valid
	}
}
