package fund_test

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"FolioLedger/internal/fund"
)

func validRange() fund.WeightRange {
	return fund.WeightRange{Spot: d18(5), Low: d18(1), High: d18(10)}
}

func TestSetRange_Validation(t *testing.T) {
	b := fund.NewBasket()

	bad := []fund.WeightRange{
		{Spot: d18(5), Low: d18(6), High: d18(10)},         // low > spot
		{Spot: d18(11), Low: d18(1), High: d18(10)},        // spot > high
		{Spot: d18(5), Low: big.NewInt(-1), High: d18(10)}, // negative low
		{Spot: new(big.Int), Low: new(big.Int), High: new(big.Int)}, // high = 0
	}
	for i, r := range bad {
		if err := b.SetRange("SOL", r); err != fund.ErrInvalidRange {
			t.Errorf("case %d: got %v, want ErrInvalidRange", i, err)
		}
	}

	if err := b.SetRange("SOL", validRange()); err != nil {
		t.Fatalf("valid range: %v", err)
	}
	if _, ok := b.Token("SOL"); !ok {
		t.Error("token not tracked after SetRange")
	}
}

func TestSetRange_CapacityAndSlotReuse(t *testing.T) {
	b := fund.NewBasket()
	for i := 0; i < fund.MaxBasketTokens; i++ {
		if err := b.SetRange(fmt.Sprintf("T%02d", i), validRange()); err != nil {
			t.Fatalf("token %d: %v", i, err)
		}
	}
	if err := b.SetRange("OVER", validRange()); err != fund.ErrCapacityExceeded {
		t.Errorf("over capacity: got %v, want ErrCapacityExceeded", err)
	}

	// Removal tombstones the slot; the next add reuses it.
	if err := b.RemoveToken("T05"); err != nil {
		t.Fatal(err)
	}
	if err := b.SetRange("FRESH", validRange()); err != nil {
		t.Errorf("reuse tombstone: %v", err)
	}
	if len(b.Tokens()) != fund.MaxBasketTokens {
		t.Errorf("live tokens = %d, want %d", len(b.Tokens()), fund.MaxBasketTokens)
	}
}

func TestAddPending_DustIgnored(t *testing.T) {
	b := fund.NewBasket()
	if err := b.SetRange("SOL", validRange()); err != nil {
		t.Fatal(err)
	}
	if err := b.SetDust("SOL", big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}

	user := uuid.New()
	if err := b.AddPending(user, "SOL", big.NewInt(1000)); err != fund.ErrDustIgnored {
		t.Errorf("at dust threshold: got %v, want ErrDustIgnored", err)
	}
	if err := b.AddPending(user, "SOL", big.NewInt(1001)); err != nil {
		t.Errorf("above dust: %v", err)
	}
}

func TestClosePending_OnlyWhenZero(t *testing.T) {
	b := fund.NewBasket()
	if err := b.SetRange("SOL", validRange()); err != nil {
		t.Fatal(err)
	}

	user := uuid.New()
	if err := b.AddPending(user, "SOL", d18(3)); err != nil {
		t.Fatal(err)
	}
	if err := b.ClosePending(user); err != fund.ErrPendingNotEmpty {
		t.Errorf("close with pending: got %v, want ErrPendingNotEmpty", err)
	}

	consumed, err := b.ConsumePending(user)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(consumed) != 1 || consumed[0].ForMinting.Cmp(d18(3)) != 0 {
		t.Errorf("consumed %v, want 3.0 SOL", consumed)
	}

	if err := b.ClosePending(user); err != nil {
		t.Errorf("close zeroed record: %v", err)
	}
	if err := b.ClosePending(user); err != fund.ErrNothingPending {
		t.Errorf("double close: got %v, want ErrNothingPending", err)
	}
}

func TestConsumePending_NothingToMint(t *testing.T) {
	b := fund.NewBasket()
	if _, err := b.ConsumePending(uuid.New()); err != fund.ErrNothingPending {
		t.Errorf("got %v, want ErrNothingPending", err)
	}
}

func TestSettleTrade_TracksBothLegs(t *testing.T) {
	b := fund.NewBasket()
	if err := b.SettleTrade("SOL", "USDC", d18(10), d18(20)); err != nil {
		t.Fatal(err)
	}
	if err := b.SettleTrade("SOL", "USDC", d18(5), d18(10)); err != nil {
		t.Fatal(err)
	}

	pr, ok := b.Pending(fund.RebalanceRecord)
	if !ok {
		t.Fatal("no rebalance record")
	}
	var sol, usdc *fund.PendingEntry
	for i := range pr.Entries {
		switch pr.Entries[i].Token {
		case "SOL":
			sol = &pr.Entries[i]
		case "USDC":
			usdc = &pr.Entries[i]
		}
	}
	if sol == nil || sol.ForRedeeming.Cmp(d18(15)) != 0 {
		t.Errorf("sell leg not accumulated: %+v", sol)
	}
	if usdc == nil || usdc.ForMinting.Cmp(d18(30)) != 0 {
		t.Errorf("buy leg not accumulated: %+v", usdc)
	}
}

func TestSettleTrade_CapacityLeavesRecordIntact(t *testing.T) {
	b := fund.NewBasket()
	for i := 0; i < fund.MaxBasketTokens; i += 2 {
		sell := fmt.Sprintf("T%02d", i)
		buy := fmt.Sprintf("T%02d", i+1)
		if err := b.SettleTrade(sell, buy, d18(1), d18(1)); err != nil {
			t.Fatalf("settle %s/%s: %v", sell, buy, err)
		}
	}

	// A new buy token would exceed the record's capacity. The existing
	// sell leg must not move either.
	if err := b.SettleTrade("T00", "NEW", d18(5), d18(7)); err != fund.ErrCapacityExceeded {
		t.Fatalf("got %v, want ErrCapacityExceeded", err)
	}

	pr, ok := b.Pending(fund.RebalanceRecord)
	if !ok {
		t.Fatal("no rebalance record")
	}
	if len(pr.Entries) != fund.MaxBasketTokens {
		t.Errorf("entries = %d, want %d", len(pr.Entries), fund.MaxBasketTokens)
	}
	for i := range pr.Entries {
		e := &pr.Entries[i]
		if e.Token == "T00" && e.ForRedeeming.Cmp(d18(1)) != 0 {
			t.Errorf("failed settle moved T00: ForRedeeming = %s, want %s", e.ForRedeeming, d18(1))
		}
		if e.Token == "NEW" {
			t.Error("failed settle created the NEW entry")
		}
	}
}
