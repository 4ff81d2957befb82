package fund_test

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"FolioLedger/internal/fixmath"
	"FolioLedger/internal/fund"
)

var daoKey = uuid.MustParse("00000000-0000-0000-0000-00000000da0d")

func newFeeLedger(t *testing.T, numerator, floor, daoShare *big.Int) *fund.FeeLedger {
	t.Helper()
	return fund.NewFeeLedger(fund.Config{
		FeeNumerator: numerator,
		FeeFloor:     floor,
		DAOShare:     daoShare,
		MintFee:      new(big.Int),
		DAOReceiver:  daoKey,
	}, 0)
}

// portion returns p/q of 1.0 at D18.
func portion(p, q int64) *big.Int {
	v := new(big.Int).Mul(fixmath.D18, big.NewInt(p))
	return v.Quo(v, big.NewInt(q))
}

func TestPoke_FullYearAtFloor(t *testing.T) {
	// 2% floor above a 1% numerator: the floor wins.
	numerator := portion(1, 100)
	floor := portion(2, 100)
	fl := newFeeLedger(t, numerator, floor, new(big.Int))

	supply := new(big.Int).Mul(big.NewInt(1_000_000), fixmath.D9)
	accrued, daoCut, err := fl.Poke(supply, fixmath.SecondsPerYear)
	if err != nil {
		t.Fatalf("poke: %v", err)
	}

	// One full year at the floor: exactly 2% of supply.
	want := new(big.Int).Quo(new(big.Int).Mul(supply, big.NewInt(2)), big.NewInt(100))
	if accrued.Cmp(want) != 0 {
		t.Errorf("accrued = %s, want %s", accrued, want)
	}
	if daoCut.Sign() != 0 {
		t.Errorf("dao cut = %s, want 0", daoCut)
	}

	// Immediate second poke accrues nothing.
	again, _, err := fl.Poke(supply, fixmath.SecondsPerYear)
	if err != nil {
		t.Fatalf("second poke: %v", err)
	}
	if again.Sign() != 0 {
		t.Errorf("second poke accrued %s, want 0", again)
	}
}

func TestPoke_ReplayBeforeClockIsNoop(t *testing.T) {
	fl := newFeeLedger(t, portion(1, 100), new(big.Int), new(big.Int))
	supply := d18(1000)

	if _, _, err := fl.Poke(supply, 5000); err != nil {
		t.Fatal(err)
	}
	accrued, _, err := fl.Poke(supply, 4000)
	if err != nil {
		t.Fatalf("replayed poke: %v", err)
	}
	if accrued.Sign() != 0 {
		t.Errorf("poke behind clock accrued %s, want 0", accrued)
	}
	if fl.LastPoke() != 5000 {
		t.Errorf("clock moved backward to %d", fl.LastPoke())
	}
}

func TestPoke_ZeroSupplyFails(t *testing.T) {
	fl := newFeeLedger(t, portion(1, 100), new(big.Int), new(big.Int))
	if _, _, err := fl.Poke(new(big.Int), 100); err != fund.ErrZeroSupply {
		t.Errorf("got %v, want ErrZeroSupply", err)
	}
}

func TestUpdateRecipients_PortionSum(t *testing.T) {
	fl := newFeeLedger(t, portion(1, 100), new(big.Int), new(big.Int))
	a, b := uuid.New(), uuid.New()

	err := fl.UpdateRecipients([]fund.FeeRecipient{
		{Receiver: a, Portion: portion(1, 2)},
		{Receiver: b, Portion: portion(1, 2)},
	}, nil)
	if err != nil {
		t.Fatalf("valid split: %v", err)
	}

	err = fl.UpdateRecipients([]fund.FeeRecipient{
		{Receiver: uuid.New(), Portion: portion(1, 3)},
	}, []uuid.UUID{a, b})
	if err != fund.ErrPortionSum {
		t.Errorf("split summing to 1/3: got %v, want ErrPortionSum", err)
	}

	// Removing one side without rebalancing breaks the sum.
	if err := fl.UpdateRecipients(nil, []uuid.UUID{a}); err != fund.ErrPortionSum {
		t.Errorf("unbalanced removal: got %v, want ErrPortionSum", err)
	}
}

func TestUpdateRecipients_CapacityBound(t *testing.T) {
	fl := newFeeLedger(t, portion(1, 100), new(big.Int), new(big.Int))
	add := make([]fund.FeeRecipient, fund.MaxFeeRecipients+1)
	for i := range add {
		add[i] = fund.FeeRecipient{Receiver: uuid.New(), Portion: big.NewInt(1)}
	}
	if err := fl.UpdateRecipients(add, nil); err != fund.ErrCapacityExceeded {
		t.Errorf("got %v, want ErrCapacityExceeded", err)
	}
}

func TestPoke_SplitAndDistribute(t *testing.T) {
	daoShare := portion(1, 4) // 25% to the DAO
	fl := newFeeLedger(t, portion(10, 100), new(big.Int), daoShare)
	a, b := uuid.New(), uuid.New()
	if err := fl.UpdateRecipients([]fund.FeeRecipient{
		{Receiver: a, Portion: portion(3, 4)},
		{Receiver: b, Portion: portion(1, 4)},
	}, nil); err != nil {
		t.Fatal(err)
	}

	supply := d18(1_000_000)
	accrued, daoCut, err := fl.Poke(supply, fixmath.SecondsPerYear)
	if err != nil {
		t.Fatal(err)
	}

	wantDAO := new(big.Int).Quo(accrued, big.NewInt(4))
	if daoCut.Cmp(wantDAO) != 0 {
		t.Errorf("dao cut = %s, want %s", daoCut, wantDAO)
	}

	payouts, err := fl.Distribute(nil)
	if err != nil {
		t.Fatal(err)
	}
	total := new(big.Int)
	for _, p := range payouts {
		total.Add(total, p.Shares)
	}
	// Distribution conserves the accrued amount exactly.
	if total.Cmp(accrued) != 0 {
		t.Errorf("distributed %s, accrued %s", total, accrued)
	}
	if payouts[0].Receiver != daoKey {
		t.Errorf("first payout to %s, want DAO", payouts[0].Receiver)
	}

	// Ledger is drained.
	again, err := fl.Distribute(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Error("second distribute not empty")
	}
}

func TestDistribute_SelectedIndices(t *testing.T) {
	daoShare := portion(1, 4)
	fl := newFeeLedger(t, portion(10, 100), new(big.Int), daoShare)
	a, b := uuid.New(), uuid.New()
	if err := fl.UpdateRecipients([]fund.FeeRecipient{
		{Receiver: a, Portion: portion(1, 2)},
		{Receiver: b, Portion: portion(1, 2)},
	}, nil); err != nil {
		t.Fatal(err)
	}
	if _, _, err := fl.Poke(d18(1_000_000), fixmath.SecondsPerYear); err != nil {
		t.Fatal(err)
	}
	pendingA := fl.PendingFor(a)
	pendingDAO := fl.PendingFor(daoKey)

	// Crank only slot 1: slot 0 and the DAO entry keep their balances.
	payouts, err := fl.Distribute([]uint64{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(payouts) != 1 || payouts[0].Receiver != b {
		t.Fatalf("payouts = %+v, want one payout to b", payouts)
	}
	if fl.PendingFor(a).Cmp(pendingA) != 0 {
		t.Errorf("untouched entry moved: %s -> %s", pendingA, fl.PendingFor(a))
	}
	if fl.PendingFor(b).Sign() != 0 {
		t.Errorf("cranked entry not drained: %s", fl.PendingFor(b))
	}
	if fl.PendingFor(daoKey).Cmp(pendingDAO) != 0 {
		t.Errorf("dao entry moved on partial crank: %s -> %s", pendingDAO, fl.PendingFor(daoKey))
	}

	// Same index again pays nothing more.
	payouts, err = fl.Distribute([]uint64{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(payouts) != 0 {
		t.Errorf("re-crank paid %+v", payouts)
	}

	// An index past the vector rejects before draining anything.
	if _, err := fl.Distribute([]uint64{0, 7}); err != fund.ErrBadRecipientIndex {
		t.Fatalf("got %v, want ErrBadRecipientIndex", err)
	}
	if fl.PendingFor(a).Cmp(pendingA) != 0 {
		t.Errorf("rejected crank drained slot 0: %s -> %s", pendingA, fl.PendingFor(a))
	}

	// The full crank picks up the rest.
	payouts, err = fl.Distribute(nil)
	if err != nil {
		t.Fatal(err)
	}
	total := new(big.Int)
	for _, p := range payouts {
		total.Add(total, p.Shares)
	}
	want := new(big.Int).Add(pendingA, pendingDAO)
	if total.Cmp(want) != 0 {
		t.Errorf("final crank paid %s, want %s", total, want)
	}
}

func TestConfigValidate_FeeCaps(t *testing.T) {
	valid := fund.Config{
		FeeNumerator: fund.MaxTVLFee,
		FeeFloor:     new(big.Int),
		DAOShare:     fund.MaxDAOFeeShare,
		MintFee:      fund.MaxMintFee,
		DAOReceiver:  daoKey,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("at the caps: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*fund.Config)
	}{
		{"tvl fee over cap", func(c *fund.Config) {
			c.FeeNumerator = new(big.Int).Add(fund.MaxTVLFee, big.NewInt(1))
		}},
		{"floor over cap", func(c *fund.Config) {
			c.FeeFloor = new(big.Int).Add(fund.MaxTVLFee, big.NewInt(1))
		}},
		{"dao share over cap", func(c *fund.Config) {
			c.DAOShare = new(big.Int).Add(fund.MaxDAOFeeShare, big.NewInt(1))
		}},
		{"mint fee over cap", func(c *fund.Config) {
			c.MintFee = new(big.Int).Add(fund.MaxMintFee, big.NewInt(1))
		}},
		{"negative numerator", func(c *fund.Config) {
			c.FeeNumerator = big.NewInt(-1)
		}},
		{"nil dao share", func(c *fund.Config) {
			c.DAOShare = nil
		}},
	}
	for _, tc := range cases {
		cfg := valid
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestMintFee_CapAndCharge(t *testing.T) {
	fl := newFeeLedger(t, portion(1, 100), new(big.Int), new(big.Int))

	over := new(big.Int).Add(fund.MaxMintFee, big.NewInt(1))
	if err := fl.SetMintFee(over); err != fund.ErrFeeTooHigh {
		t.Errorf("over cap: got %v, want ErrFeeTooHigh", err)
	}
	if err := fl.SetMintFee(fund.MaxMintFee); err != nil {
		t.Fatalf("at cap: %v", err)
	}

	fee, err := fl.ApplyMintFee(d18(100))
	if err != nil {
		t.Fatal(err)
	}
	if fee.Cmp(d18(5)) != 0 { // 5% of 100
		t.Errorf("mint fee = %s, want %s", fee, d18(5))
	}
}
