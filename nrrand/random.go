// Package nrrand is a 48-bit linear congruential generator whose output
// stream is bit-identical to java.util.Random, including the bounded
// integer, float and double algorithms of JDK 17. Reproducing an exact,
// documented stream lets fixture sets be regenerated anywhere from a seed.
package nrrand

import "math"

const (
	multiplier = 0x5DEECE66D
	addend     = 0xB
	mask       = 1<<48 - 1

	floatUnit  = 1.0 / (1 << 24)
	doubleUnit = 1.0 / (1 << 53)
)

// Random is not safe for concurrent use.
type Random struct {
	seed uint64
}

// New returns a generator initialized with seed.
func New(seed int64) *Random {
	return &Random{seed: (uint64(seed) ^ multiplier) & mask}
}

func (r *Random) next(bits uint) int32 {
	r.seed = (r.seed*multiplier + addend) & mask
	return int32(int64(r.seed) >> (48 - bits))
}

// Int returns a uniformly distributed int32.
func (r *Random) Int() int32 { return r.next(32) }

// NextInt returns a value in [0, bound). bound must be positive.
func (r *Random) NextInt(bound int32) int32 {
	if bound <= 0 {
		panic("nrrand: bound must be positive")
	}
	v := r.next(31)
	m := bound - 1
	if bound&m == 0 {
		return int32((int64(bound) * int64(v)) >> 31)
	}
	for u := v; ; u = r.next(31) {
		v = u % bound
		if u-v+m >= 0 {
			return v
		}
	}
}

// NextIntRange returns a value in [origin, bound). origin must be less than
// bound.
func (r *Random) NextIntRange(origin, bound int32) int32 {
	if origin >= bound {
		panic("nrrand: origin must be less than bound")
	}
	v := r.Int()
	n := bound - origin
	m := n - 1
	switch {
	case n&m == 0:
		return v&m + origin
	case n > 0:
		for u := int32(uint32(v) >> 1); ; u = int32(uint32(r.Int()) >> 1) {
			v = u % n
			if u+m-v >= 0 {
				return v + origin
			}
		}
	default:
		for v < origin || v >= bound {
			v = r.Int()
		}
		return v
	}
}

// Float returns a value in [0, 1) with 24 random bits.
func (r *Random) Float() float32 {
	return float32(r.next(24)) * floatUnit
}

// NextFloatRange returns a value in [origin, bound). Every intermediate
// result is rounded to float32.
func (r *Random) NextFloatRange(origin, bound float32) float32 {
	if !(origin < bound) {
		panic("nrrand: origin must be less than bound")
	}
	v := r.Float()
	if span := bound - origin; !math.IsInf(float64(span), 1) {
		v = float32(v*span) + origin
	} else {
		half := float32(0.5) * origin
		v = float32(float32(v*(float32(0.5)*bound-half))+half) * 2
	}
	if v >= bound {
		v = math.Nextafter32(bound, float32(math.Inf(-1)))
	}
	return v
}

// Double returns a value in [0, 1) with 53 random bits.
func (r *Random) Double() float64 {
	hi := int64(r.next(26))
	lo := int64(r.next(27))
	return float64(hi<<27+lo) * doubleUnit
}

// NextDoubleBound returns a value in [0, bound). bound must be positive and
// finite.
func (r *Random) NextDoubleBound(bound float64) float64 {
	if !(bound > 0 && !math.IsInf(bound, 1)) {
		panic("nrrand: bound must be positive and finite")
	}
	v := r.Double() * bound
	if v >= bound {
		v = math.Nextafter(bound, math.Inf(-1))
	}
	return v
}
