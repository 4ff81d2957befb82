package fixmath

import (
	"errors"
	"math/big"
	"sync"
)

// Fixed-point scales used across the ledger.
// D18 scales prices, ratios, portions, and indices; D9 scales raw token
// amounts of 9-decimal assets.
var (
	D18 = big.NewInt(1_000_000_000_000_000_000)
	D9  = big.NewInt(1_000_000_000)

	// LN2 is ln(2) at D18 precision.
	LN2 = big.NewInt(693_147_180_559_945_309)

	two = big.NewInt(2)
)

// SecondsPerYear is the annualization constant for fee accrual.
const SecondsPerYear int64 = 31_536_000

var (
	ErrDivideByZero = errors.New("fixmath: divide by zero")
	ErrNegative     = errors.New("fixmath: negative input")
	ErrNonPositive  = errors.New("fixmath: non-positive input")
)

// big.Int pool for intermediate products, mirroring the scratch-value
// discipline of the funding math this package grew out of.
var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

// MulDiv computes a*b/denom with floor rounding. The full product is held
// in a big.Int so the multiplication can never overflow.
func MulDiv(a, b, denom *big.Int) (*big.Int, error) {
	if denom.Sign() == 0 {
		return nil, ErrDivideByZero
	}
	prod := getInt()
	prod.Mul(a, b)
	result := new(big.Int).Quo(prod, denom)
	putInt(prod)
	return result, nil
}

// MulD18 multiplies two D18 quantities, rescaling back to D18.
func MulD18(a, b *big.Int) (*big.Int, error) {
	return MulDiv(a, b, D18)
}

// DivD18 divides two quantities at matching scale, producing a D18 ratio.
func DivD18(a, b *big.Int) (*big.Int, error) {
	return MulDiv(a, D18, b)
}

// Min returns the smaller of a and b (shared, not a copy).
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b (shared, not a copy).
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Clone returns an owned copy of v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
