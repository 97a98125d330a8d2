package nrgen

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// pow5Cache holds 5^0 through 5^1074, enough to scale the smallest
// subnormal double. Entries are shared and must not be mutated.
var pow5Cache [1075]*big.Int

func init() {
	five := big.NewInt(5)
	pow5Cache[0] = big.NewInt(1)
	for i := 1; i < len(pow5Cache); i++ {
		pow5Cache[i] = new(big.Int).Mul(pow5Cache[i-1], five)
	}
}

// exactDecimal returns the exact decimal value of a finite double. Unlike
// decimal.NewFromFloat it does not pick the shortest representation that
// rounds back to f: every binary digit is kept.
//
// With f = m·2^e, a negative e is rewritten as m·5^-e·10^e.
func exactDecimal(f float64) decimal.Decimal {
	if f == 0 {
		return decimal.Zero
	}
	bits := math.Float64bits(f)
	mantissa := bits & (1<<52 - 1)
	biasedExp := int(bits >> 52 & 0x7FF)
	var m uint64
	var e int
	if biasedExp == 0 {
		m, e = mantissa, 1-1023-52
	} else {
		m, e = 1<<52|mantissa, biasedExp-1023-52
	}
	// Drop trailing binary zeros so that the decimal exponent stays small.
	for m&1 == 0 && e < 0 {
		m >>= 1
		e++
	}
	n := new(big.Int).SetUint64(m)
	if bits>>63 != 0 {
		n.Neg(n)
	}
	if e >= 0 {
		return decimal.NewFromBigInt(n.Lsh(n, uint(e)), 0)
	}
	return decimal.NewFromBigInt(n.Mul(n, pow5Cache[-e]), int32(e))
}

// nearestDouble rounds d to the nearest double, ties to even.
func nearestDouble(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// floorMod returns a - m·floor(a/m) for positive m, computed exactly.
func floorMod(a, m decimal.Decimal) decimal.Decimal {
	// Div rounds the quotient; the loops below undo an off-by-one floor.
	q := a.Div(m).Floor()
	r := a.Sub(m.Mul(q))
	for r.Sign() < 0 {
		r = r.Add(m)
	}
	for r.Cmp(m) >= 0 {
		r = r.Sub(m)
	}
	return r
}
