package fixmath_test

import (
	"FolioLedger/internal/fixmath"
	"math/big"
	"testing"
)

func d18(f int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(f), fixmath.D18)
}

// absDiff returns |a-b|.
func absDiff(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	return d.Abs(d)
}

func TestMulDiv_DivideByZero(t *testing.T) {
	_, err := fixmath.MulDiv(d18(1), d18(1), big.NewInt(0))
	if err != fixmath.ErrDivideByZero {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
}

func TestMulD18_Identity(t *testing.T) {
	got, err := fixmath.MulD18(d18(7), fixmath.D18)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cmp(d18(7)) != 0 {
		t.Errorf("7 * 1.0 = %s, want %s", got, d18(7))
	}
}

func TestDivD18_Ratio(t *testing.T) {
	got, err := fixmath.DivD18(d18(3), d18(4))
	if err != nil {
		t.Fatal(err)
	}
	want := big.NewInt(750_000_000_000_000_000)
	if got.Cmp(want) != 0 {
		t.Errorf("3/4 = %s, want %s", got, want)
	}
}

func TestLn_One_IsZero(t *testing.T) {
	got, err := fixmath.Ln(new(big.Int).Set(fixmath.D18))
	if err != nil {
		t.Fatal(err)
	}
	if got.Sign() != 0 {
		t.Errorf("ln(1) = %s, want 0", got)
	}
}

func TestLn_Two_IsLN2(t *testing.T) {
	got, err := fixmath.Ln(d18(2))
	if err != nil {
		t.Fatal(err)
	}
	// Tolerate the last few digits of the binary-log extraction.
	if absDiff(got, fixmath.LN2).Cmp(big.NewInt(1_000)) > 0 {
		t.Errorf("ln(2) = %s, want ~%s", got, fixmath.LN2)
	}
}

func TestLn_Reciprocal_IsNegative(t *testing.T) {
	half := new(big.Int).Quo(fixmath.D18, big.NewInt(2))
	got, err := fixmath.Ln(half)
	if err != nil {
		t.Fatal(err)
	}
	negLN2 := new(big.Int).Neg(fixmath.LN2)
	if absDiff(got, negLN2).Cmp(big.NewInt(1_000)) > 0 {
		t.Errorf("ln(0.5) = %s, want ~%s", got, negLN2)
	}
}

func TestLn_NonPositive_Fails(t *testing.T) {
	if _, err := fixmath.Ln(big.NewInt(0)); err == nil {
		t.Error("ln(0) should fail")
	}
	if _, err := fixmath.Ln(big.NewInt(-1)); err == nil {
		t.Error("ln(-1) should fail")
	}
}

func TestExp_Zero_IsOne(t *testing.T) {
	got, err := fixmath.Exp(big.NewInt(0))
	if err != nil {
		t.Fatal(err)
	}
	if got.Cmp(fixmath.D18) != 0 {
		t.Errorf("e^0 = %s, want %s", got, fixmath.D18)
	}
}

func TestExp_One(t *testing.T) {
	got, err := fixmath.Exp(new(big.Int).Set(fixmath.D18))
	if err != nil {
		t.Fatal(err)
	}
	// e = 2.718281828459045235...
	want := big.NewInt(2_718_281_828_459_045_235)
	if absDiff(got, want).Cmp(big.NewInt(100)) > 0 {
		t.Errorf("e^1 = %s, want ~%s", got, want)
	}
}

func TestExpNeg_LN2_IsHalf(t *testing.T) {
	got, err := fixmath.ExpNeg(new(big.Int).Set(fixmath.LN2))
	if err != nil {
		t.Fatal(err)
	}
	half := new(big.Int).Quo(fixmath.D18, big.NewInt(2))
	if absDiff(got, half).Cmp(big.NewInt(100)) > 0 {
		t.Errorf("e^-ln2 = %s, want ~%s", got, half)
	}
}

func TestExpNeg_Huge_IsZero(t *testing.T) {
	got, err := fixmath.ExpNeg(d18(100))
	if err != nil {
		t.Fatal(err)
	}
	if got.Sign() != 0 {
		t.Errorf("e^-100 = %s, want 0 at D18", got)
	}
}

func TestLnExp_RoundTrip(t *testing.T) {
	// exp(ln(x)) ~= x for a spread of magnitudes.
	for _, v := range []int64{1, 2, 10, 1000, 1_000_000} {
		x := d18(v)
		lnX, err := fixmath.Ln(x)
		if err != nil {
			t.Fatal(err)
		}
		back, err := fixmath.Exp(lnX)
		if err != nil {
			t.Fatal(err)
		}
		// Relative tolerance of 1e-12.
		tol := new(big.Int).Quo(x, big.NewInt(1_000_000_000_000))
		if tol.Sign() == 0 {
			tol = big.NewInt(1)
		}
		if absDiff(back, x).Cmp(tol) > 0 {
			t.Errorf("exp(ln(%d)) = %s, want ~%s", v, back, x)
		}
	}
}
