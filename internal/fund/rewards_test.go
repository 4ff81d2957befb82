package fund_test

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"FolioLedger/internal/fund"
)

const day = int64(86_400)

func newRewardBook(t *testing.T, halfLife int64) *fund.RewardBook {
	t.Helper()
	rb := fund.NewRewardBook()
	if err := rb.SetRatio(halfLife); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	return rb
}

func fundToken(t *testing.T, rb *fund.RewardBook, token string, balance *big.Int, now int64) {
	t.Helper()
	if err := rb.AddToken(token, now); err != nil {
		t.Fatalf("add token: %v", err)
	}
	if err := rb.ObserveBalance(token, balance); err != nil {
		t.Fatalf("observe balance: %v", err)
	}
}

func TestSetRatio_Bounds(t *testing.T) {
	rb := fund.NewRewardBook()
	if err := rb.SetRatio(fund.MinRewardHalfLife - 1); err != fund.ErrInvalidHalfLife {
		t.Errorf("below min: got %v", err)
	}
	if err := rb.SetRatio(fund.MaxRewardHalfLife + 1); err != fund.ErrInvalidHalfLife {
		t.Errorf("above max: got %v", err)
	}
	if err := rb.SetRatio(day); err != nil {
		t.Errorf("valid half-life: %v", err)
	}
}

func TestObserveBalances_AllOrNothing(t *testing.T) {
	rb := newRewardBook(t, day)
	fundToken(t, rb, "ARB", d18(10), 0)

	// One bad token rejects the whole batch; the good token's balance
	// must not move.
	err := rb.ObserveBalances(map[string]*big.Int{
		"ARB": d18(25),
		"OP":  d18(5),
	})
	if err != fund.ErrTokenNotFound {
		t.Fatalf("got %v, want ErrTokenNotFound", err)
	}
	rt, ok := rb.Token("ARB")
	if !ok {
		t.Fatal("ARB not tracked")
	}
	if rt.BalanceLastKnown.Cmp(d18(10)) != 0 {
		t.Errorf("rejected batch moved ARB balance: %s, want %s", rt.BalanceLastKnown, d18(10))
	}

	if err := rb.ObserveBalances(map[string]*big.Int{"ARB": d18(25)}); err != nil {
		t.Fatal(err)
	}
	rt, _ = rb.Token("ARB")
	if rt.BalanceLastKnown.Cmp(d18(25)) != 0 {
		t.Errorf("balance = %s, want %s", rt.BalanceLastKnown, d18(25))
	}
}

func TestAccrue_OneHalfLifeEmitsHalf(t *testing.T) {
	rb := newRewardBook(t, day)
	deposit := d18(1000)
	fundToken(t, rb, "RWD", deposit, 0)

	user := uuid.New()
	govTotal := d18(100)
	emissions, err := rb.Accrue(day, govTotal, map[uuid.UUID]*big.Int{user: govTotal})
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if len(emissions) != 1 {
		t.Fatalf("emissions = %d, want 1", len(emissions))
	}

	// One half-life: the undistributed balance halves.
	half := d18(500)
	diff := new(big.Int).Sub(emissions[0].Emitted, half)
	if diff.Abs(diff).Cmp(big.NewInt(1_000_000_000)) > 0 {
		t.Errorf("emitted = %s, want ~%s", emissions[0].Emitted, half)
	}

	// The sole governance holder earns the whole emission.
	pos, ok := rb.Position("RWD", user)
	if !ok {
		t.Fatal("no position after accrue")
	}
	diff = new(big.Int).Sub(pos.Accrued, emissions[0].Emitted)
	if diff.Abs(diff).Cmp(big.NewInt(1_000)) > 0 {
		t.Errorf("accrued = %s, want ~%s", pos.Accrued, emissions[0].Emitted)
	}
}

func TestAccrue_IndexMonotone(t *testing.T) {
	rb := newRewardBook(t, day)
	fundToken(t, rb, "RWD", d18(1000), 0)
	govTotal := d18(100)

	prev := new(big.Int)
	for _, now := range []int64{day / 2, day, 3 * day, 10 * day} {
		emissions, err := rb.Accrue(now, govTotal, nil)
		if err != nil {
			t.Fatalf("accrue at %d: %v", now, err)
		}
		if len(emissions) != 1 {
			t.Fatalf("emissions at %d = %d, want 1", now, len(emissions))
		}
		if emissions[0].Index.Cmp(prev) < 0 {
			t.Errorf("index decreased at %d: %s < %s", now, emissions[0].Index, prev)
		}
		prev = emissions[0].Index
	}
}

func TestAccrue_ReplayIsNoop(t *testing.T) {
	rb := newRewardBook(t, day)
	fundToken(t, rb, "RWD", d18(1000), 0)
	govTotal := d18(100)

	if _, err := rb.Accrue(day, govTotal, nil); err != nil {
		t.Fatal(err)
	}
	replay, err := rb.Accrue(day, govTotal, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(replay) != 0 {
		t.Errorf("replayed accrue emitted %s, want nothing", replay[0].Emitted)
	}
}

func TestAccrue_ZeroGovSupplyFails(t *testing.T) {
	rb := newRewardBook(t, day)
	fundToken(t, rb, "RWD", d18(1000), 0)
	if _, err := rb.Accrue(day, new(big.Int), nil); err != fund.ErrZeroSupply {
		t.Errorf("got %v, want ErrZeroSupply", err)
	}
}

func TestClaim_SecondClaimIsZero(t *testing.T) {
	rb := newRewardBook(t, day)
	fundToken(t, rb, "RWD", d18(1000), 0)

	user := uuid.New()
	gov := d18(100)
	if _, err := rb.Accrue(day, gov, map[uuid.UUID]*big.Int{user: gov}); err != nil {
		t.Fatal(err)
	}

	claims, err := rb.Claim(user, nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claims["RWD"] == nil || claims["RWD"].Sign() <= 0 {
		t.Fatalf("first claim = %v, want positive", claims["RWD"])
	}

	claims, err = rb.Claim(user, nil)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(claims) != 0 {
		t.Errorf("second claim paid %v, want nothing", claims)
	}
}

func TestClaim_BeforeAccrualFails(t *testing.T) {
	rb := newRewardBook(t, day)
	fundToken(t, rb, "RWD", d18(1000), 0)
	if _, err := rb.Claim(uuid.New(), nil); err != fund.ErrNothingAccrued {
		t.Errorf("got %v, want ErrNothingAccrued", err)
	}
}

func TestRemoveToken_PreservesClaims(t *testing.T) {
	rb := newRewardBook(t, day)
	fundToken(t, rb, "RWD", d18(1000), 0)

	user := uuid.New()
	gov := d18(100)
	if _, err := rb.Accrue(day, gov, map[uuid.UUID]*big.Int{user: gov}); err != nil {
		t.Fatal(err)
	}
	if err := rb.RemoveToken("RWD"); err != nil {
		t.Fatal(err)
	}

	// Disallowed tokens emit nothing further.
	emissions, err := rb.Accrue(2*day, gov, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(emissions) != 0 {
		t.Errorf("disallowed token emitted %v", emissions)
	}

	// But the claim earned before removal survives.
	claims, err := rb.Claim(user, []string{"RWD"})
	if err != nil {
		t.Fatalf("claim after removal: %v", err)
	}
	if claims["RWD"] == nil || claims["RWD"].Sign() <= 0 {
		t.Error("claim lost on removal")
	}
}

func TestDropToken_OnlyWhenSettled(t *testing.T) {
	rb := newRewardBook(t, day)
	fundToken(t, rb, "RWD", d18(1000), 0)
	if err := rb.RemoveToken("RWD"); err != nil {
		t.Fatal(err)
	}
	if err := rb.DropToken("RWD"); err != fund.ErrOutstandingRewards {
		t.Errorf("drop with outstanding balance: got %v, want ErrOutstandingRewards", err)
	}
}

func TestAddToken_CapacityBound(t *testing.T) {
	rb := newRewardBook(t, day)
	for _, tok := range []string{"A", "B", "C", "D", "E"} {
		if err := rb.AddToken(tok, 0); err != nil {
			t.Fatalf("add %s: %v", tok, err)
		}
	}
	if err := rb.AddToken("F", 0); err != fund.ErrCapacityExceeded {
		t.Errorf("sixth token: got %v, want ErrCapacityExceeded", err)
	}
}
