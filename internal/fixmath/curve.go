package fixmath

import (
	"math/big"
)

// Fraction bits extracted for the binary logarithm. 60 bits of log2 give
// better than 1e-18 of ln once scaled by LN2.
const lnFractionBits = 60

// Ln computes the natural logarithm of a D18 fixed-point value.
// The algorithm is a binary log: normalize x into [1, 2), pull the integer
// power of two out front, then extract fraction bits by repeated squaring.
// ln(x) = (n + f) * ln(2), with the precomputed LN2 constant.
// The result is signed D18; x must be strictly positive.
func Ln(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, ErrNonPositive
	}

	y := new(big.Int).Set(x)
	n := int64(0)

	twoD18 := getInt()
	twoD18.Mul(D18, two)

	for y.Cmp(twoD18) >= 0 {
		y.Quo(y, two)
		n++
	}
	for y.Cmp(D18) < 0 {
		y.Mul(y, two)
		n--
	}

	// y is in [1, 2). Squaring doubles its log2; every time the square
	// crosses 2 we record a fraction bit and renormalize.
	frac := new(big.Int)
	bit := new(big.Int).Lsh(big.NewInt(1), lnFractionBits)
	for i := 0; i < lnFractionBits; i++ {
		bit.Rsh(bit, 1)
		y.Mul(y, y)
		y.Quo(y, D18)
		if y.Cmp(twoD18) >= 0 {
			frac.Add(frac, bit)
			y.Quo(y, two)
		}
	}
	putInt(twoD18)

	// log2(x) = n + frac/2^bits, at D18.
	log2 := new(big.Int).Mul(frac, D18)
	log2.Rsh(log2, lnFractionBits)
	log2.Add(log2, new(big.Int).Mul(big.NewInt(n), D18))

	return MulD18(log2, LN2)
}

// expTaylorTerms bounds the Maclaurin series for the range-reduced
// remainder r in [0, ln2); 32 terms are far below D18 resolution.
const expTaylorTerms = 32

// Exp computes e^x for a non-negative D18 fixed-point x.
// Range reduction: x = n*ln2 + r, e^x = 2^n * e^r, with e^r evaluated by
// its Maclaurin series.
func Exp(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 {
		return nil, ErrNegative
	}

	n := new(big.Int).Quo(x, LN2)
	if !n.IsInt64() || n.Int64() > 4096 {
		// e^x at this magnitude has no meaningful fixed-point use here.
		return nil, ErrNegative
	}
	r := new(big.Int).Sub(x, new(big.Int).Mul(n, LN2))

	sum := new(big.Int).Set(D18)
	term := new(big.Int).Set(D18)
	for i := int64(1); i <= expTaylorTerms; i++ {
		term.Mul(term, r)
		term.Quo(term, D18)
		term.Quo(term, big.NewInt(i))
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}

	return sum.Lsh(sum, uint(n.Int64())), nil
}

// expNegFloor is the point past which e^(-x) is below D18 resolution
// (2^-61 < 1e-18): 61 * LN2.
var expNegFloor = new(big.Int).Mul(big.NewInt(61), LN2)

// ExpNeg computes e^(-x) for a non-negative D18 fixed-point x, as the
// D18 reciprocal of Exp(x). Decay factors always travel through here, so
// the result is guaranteed in [0, D18].
func ExpNeg(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 {
		return nil, ErrNegative
	}
	if x.Cmp(expNegFloor) >= 0 {
		return new(big.Int), nil
	}
	ex, err := Exp(x)
	if err != nil {
		return nil, err
	}
	return MulDiv(D18, D18, ex)
}
