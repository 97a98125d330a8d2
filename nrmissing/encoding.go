package nrmissing

import (
	"math"
)

// Quad holds the 2×2 neighbourhood of an interpolation in the order
// v00, v01, v10, v11 (row-major: the second index moves along x).
type Quad [4]float32

// CheckOrder tells the interpolation kernel when the missing-value test of an
// encoding has to run.
type CheckOrder uint8

const (
	// CheckBefore means a missing sample cannot be told apart from a valid one
	// after arithmetic, so the test must precede the interpolation.
	CheckBefore CheckOrder = iota
	// CheckAfter means arithmetic on a missing sample always yields a missing
	// result, so the test may be deferred until the result is known.
	CheckAfter
)

// Encoding is a policy for representing missing samples in a float32 raster.
type Encoding interface {
	// Name is the fixture directory name of the encoding.
	Name() string
	// Check tells when the missing-value test must run.
	Check() CheckOrder
	// Classify returns the reason a sample is missing, or Valid.
	Classify(sample float32) Reason
	// Encode returns the sample value representing r.
	Encode(r Reason) (float32, error)
	// PrecedenceMax returns the highest-precedence reason among the four
	// samples, or Valid when none of them is missing.
	PrecedenceMax(q Quad) Reason
}

// ByName returns the encoding whose Name is name.
func ByName(name string) (Encoding, bool) {
	switch name {
	case Sentinel.Name():
		return Sentinel, true
	case NaNTag.Name():
		return NaNTag, true
	}
	return nil, false
}

// SentinelEncoding marks missing samples with magnitudes strictly greater than
// every valid sample. Magnitudes increase with precedence, which makes the
// arithmetic maximum of a neighbourhood also its precedence maximum.
type SentinelEncoding struct{}

// Sentinel is the sentinel-magnitude policy.
var Sentinel SentinelEncoding

// Sentinel magnitudes. Every valid sample must be below Threshold.
const (
	CloudMagnitude   float32 = 10001
	LandMagnitude    float32 = 10002
	NoPassMagnitude  float32 = 10003
	UnknownMagnitude float32 = 10004

	Threshold = CloudMagnitude
)

func (SentinelEncoding) Name() string      { return "nodata" }
func (SentinelEncoding) Check() CheckOrder { return CheckBefore }

// Classify maps sentinel ranges to reasons. A sample in [10002, 10003) is LAND
// and so on; anything from UnknownMagnitude up, and NaN, is UNKNOWN. Ranges
// rather than exact values keep the mapping monotone.
func (SentinelEncoding) Classify(v float32) Reason {
	switch {
	case v < CloudMagnitude:
		return Valid
	case v < LandMagnitude:
		return Cloud
	case v < NoPassMagnitude:
		return Land
	case v < UnknownMagnitude:
		return NoPass
	}
	// NaN fails every comparison above and lands here too.
	return Unknown
}

// Encode returns the sentinel magnitude of r.
func (SentinelEncoding) Encode(r Reason) (float32, error) {
	if err := checkEncodable(r); err != nil {
		return 0, err
	}
	return Magnitude(r), nil
}

// PrecedenceMax is the arithmetic maximum of the four samples, classified.
// This holds only because every sentinel is above every valid sample.
func (s SentinelEncoding) PrecedenceMax(q Quad) Reason {
	return s.Classify(max(q[0], q[1], q[2], q[3]))
}

// Magnitude returns the sentinel value for a missing reason and zero for Valid
// or an unknown reason.
func Magnitude(r Reason) float32 {
	switch r {
	case Cloud:
		return CloudMagnitude
	case Land:
		return LandMagnitude
	case NoPass:
		return NoPassMagnitude
	case Unknown:
		return UnknownMagnitude
	}
	return 0
}

// NaNTagEncoding marks missing samples with positive quiet NaNs whose payload
// grows with precedence, so that the signed 32-bit view of the tags orders them
// by precedence. Valid samples are finite; a positive finite float has a bit
// pattern below 0x7F800000 and a negative one is negative as int32, so valid
// samples never win the maximum against a tag.
type NaNTagEncoding struct{}

// NaNTag is the NaN-payload policy.
var NaNTag NaNTagEncoding

// QuietNaN is the bit pattern of the first positive quiet NaN. It is also the
// canonical NaN produced by arithmetic on most platforms.
const QuietNaN int32 = 0x7FC00000

// NaN tags, additive over QuietNaN.
const (
	CloudTag   = QuietNaN + int32(Cloud)
	LandTag    = QuietNaN + int32(Land)
	NoPassTag  = QuietNaN + int32(NoPass)
	UnknownTag = QuietNaN + int32(Unknown)
)

func (NaNTagEncoding) Name() string      { return "nan" }
func (NaNTagEncoding) Check() CheckOrder { return CheckAfter }

// Classify returns Valid for every non-NaN sample and the tagged reason for a
// recognized tag. Any other NaN degrades to UNKNOWN.
func (NaNTagEncoding) Classify(v float32) Reason {
	if !math.IsNaN(float64(v)) {
		return Valid
	}
	return tagReason(int32(math.Float32bits(v)))
}

// Encode returns the NaN carrying the tag of r.
func (NaNTagEncoding) Encode(r Reason) (float32, error) {
	if err := checkEncodable(r); err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(QuietNaN + int32(r))), nil
}

// PrecedenceMax takes the signed maximum of the four bit patterns after
// folding unrecognized NaNs onto UnknownTag.
func (NaNTagEncoding) PrecedenceMax(q Quad) Reason {
	m := max(normalizedBits(q[0]), normalizedBits(q[1]), normalizedBits(q[2]), normalizedBits(q[3]))
	if m < CloudTag {
		return Valid
	}
	return tagReason(m)
}

// Reformat converts a sentinel-encoded sample into the equivalent NaN-tagged
// sample. Valid samples are returned unchanged.
func Reformat(v float32) float32 {
	r := Sentinel.Classify(v)
	if !r.Missing() {
		return v
	}
	return math.Float32frombits(uint32(QuietNaN + int32(r)))
}

func normalizedBits(v float32) int32 {
	bits := int32(math.Float32bits(v))
	if math.IsNaN(float64(v)) && tagReason(bits) == Unknown {
		return UnknownTag
	}
	return bits
}

func tagReason(bits int32) Reason {
	if bits >= CloudTag && bits <= UnknownTag {
		return Reason(bits - QuietNaN)
	}
	return Unknown
}
