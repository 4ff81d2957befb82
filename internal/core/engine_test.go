package core_test

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"FolioLedger/internal/core"
	"FolioLedger/internal/event"
	"FolioLedger/internal/fixmath"
	"FolioLedger/internal/fund"
)

// --- Test helpers ---

const testFund = "folio-main"

var (
	owner      = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	approver   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	launcher   = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	rebalancer = uuid.MustParse("44444444-4444-4444-4444-444444444444")
	anyone     = uuid.MustParse("55555555-5555-5555-5555-555555555555")
)

func d18(f int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(f), fixmath.D18)
}

func testDefaults() fund.Config {
	return fund.Config{
		FeeNumerator:  big.NewInt(20_000_000_000_000_000), // 2%/yr
		FeeFloor:      new(big.Int),
		DAOShare:      new(big.Int),
		MintFee:       new(big.Int),
		DAOReceiver:   uuid.MustParse("99999999-9999-9999-9999-999999999999"),
		AuctionLength: 600,
	}
}

// newTestCore creates a FolioCore with buffered channels and no DB checker.
func newTestCore() (*core.FolioCore, chan core.CoreOutput, chan core.CoreOutput) {
	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)
	c := core.NewFolioCore(0, testDefaults(), "folio-engine", persistChan, projChan, nil, nil)
	return c, persistChan, projChan
}

type seqCounter struct{ next int64 }

func (s *seqCounter) take() int64 {
	v := s.next
	s.next++
	return v
}

func base(caller uuid.UUID, roles []string, seq, at int64) event.Base {
	return event.Base{
		CommandID: uuid.New(),
		Fund:      testFund,
		Caller:    caller,
		Roles:     roles,
		Seq:       seq,
		Timestamp: at,
	}
}

func wideLimit() event.Limit {
	return event.Limit{
		Spot: d18(1_000_000),
		Low:  big.NewInt(1),
		High: d18(10_000_000),
	}
}

func approveCmd(seq, at int64) *event.ApproveAuction {
	return &event.ApproveAuction{
		Base:       base(approver, []string{"auction_approver"}, seq, at),
		Sell:       "SOL",
		Buy:        "USDC",
		SellLimit:  wideLimit(),
		BuyLimit:   wideLimit(),
		StartPrice: d18(100),
		EndPrice:   d18(10),
		TTL:        3600,
	}
}

func process(t *testing.T, c *core.FolioCore, cmd event.Command) {
	t.Helper()
	if err := c.ProcessCommand(cmd, nil); err != nil {
		t.Fatalf("process %s: %v", cmd.CommandType(), err)
	}
}

func drain(ch chan core.CoreOutput) []core.CoreOutput {
	var out []core.CoreOutput
	for {
		select {
		case o := <-ch:
			out = append(out, o)
		default:
			return out
		}
	}
}

// --- Tests ---

func TestAuctionLifecycle(t *testing.T) {
	c, persist, _ := newTestCore()
	seqs := &seqCounter{}

	process(t, c, approveCmd(seqs.take(), 1000))
	process(t, c, &event.OpenAuction{
		Base:      base(launcher, []string{"auction_launcher"}, seqs.take(), 1100),
		AuctionID: 1,
	})
	process(t, c, &event.Bid{
		Base:       base(anyone, nil, seqs.take(), 1100),
		AuctionID:  1,
		SellAmount: d18(3),
	})
	process(t, c, &event.CloseAuction{
		Base:      base(launcher, []string{"auction_launcher"}, seqs.take(), 1200),
		AuctionID: 1,
	})

	outputs := drain(persist)
	if len(outputs) != 4 {
		t.Fatalf("outputs = %d, want 4", len(outputs))
	}

	opened, ok := outputs[1].Notices[0].(event.AuctionOpened)
	if !ok {
		t.Fatalf("second notice is %T", outputs[1].Notices[0])
	}
	if opened.Start != 1100 || opened.End != 1700 {
		t.Errorf("run window [%d, %d], want [1100, 1700]", opened.Start, opened.End)
	}

	bid, ok := outputs[2].Notices[0].(event.AuctionBidPlaced)
	if !ok {
		t.Fatalf("third notice is %T", outputs[2].Notices[0])
	}
	// Bid lands at the start instant, so at the full start price.
	if bid.BoughtAmount.Cmp(d18(300)) != 0 {
		t.Errorf("bought = %s, want %s", bid.BoughtAmount, d18(300))
	}

	// Settlement reached the basket's rebalance record.
	f, _ := c.Fund(testFund)
	pr, ok := f.Basket.Pending(fund.RebalanceRecord)
	if !ok {
		t.Fatal("no rebalance record after bid")
	}
	if len(pr.Entries) != 2 {
		t.Errorf("rebalance legs = %d, want 2", len(pr.Entries))
	}
}

func TestRoleChecks(t *testing.T) {
	c, _, _ := newTestCore()
	seqs := &seqCounter{}

	cmd := approveCmd(seqs.take(), 1000)
	cmd.Roles = []string{"rebalancer"} // wrong role
	if err := c.ProcessCommand(cmd, nil); err == nil {
		t.Error("approve without approver role succeeded")
	}

	upd := &event.UpdateFeeRecipients{
		Base: base(anyone, nil, seqs.take(), 1000),
		Add: []event.FeeRecipientSpec{
			{Receiver: uuid.New(), Portion: fixmath.Clone(fixmath.D18)},
		},
	}
	if err := c.ProcessCommand(upd, nil); err == nil {
		t.Error("fee recipient update without owner role succeeded")
	}
}

func TestRejectedCommandLeavesNoTrace(t *testing.T) {
	c, persist, _ := newTestCore()
	seqs := &seqCounter{}

	cmd := approveCmd(seqs.take(), 1000)
	cmd.TTL = fund.MaxTTL + 1
	if err := c.ProcessCommand(cmd, nil); err == nil {
		t.Fatal("invalid ttl accepted")
	}

	if c.Sequence() != 0 {
		t.Errorf("sequence advanced to %d on rejected command", c.Sequence())
	}
	if got := drain(persist); len(got) != 0 {
		t.Errorf("%d outputs emitted for rejected command", len(got))
	}

	// The partition consumed the source sequence, so the retry must
	// carry the next one.
	retry := approveCmd(seqs.take(), 1000)
	process(t, c, retry)
}

func TestDuplicateCommandSkipped(t *testing.T) {
	c, persist, _ := newTestCore()

	cmd := approveCmd(0, 1000)
	process(t, c, cmd)
	// Same idempotency key, stale sequence: silently skipped.
	if err := c.ProcessCommand(cmd, nil); err != nil {
		t.Fatalf("duplicate replay: %v", err)
	}

	if got := drain(persist); len(got) != 1 {
		t.Errorf("outputs = %d, want 1 (duplicate suppressed)", len(got))
	}
	if c.Sequence() != 1 {
		t.Errorf("sequence = %d, want 1", c.Sequence())
	}
}

func TestSequenceGapRejected(t *testing.T) {
	c, _, _ := newTestCore()

	process(t, c, approveCmd(0, 1000))
	cmd := approveCmd(5, 1100) // gap: expected 1
	if err := c.ProcessCommand(cmd, nil); err == nil {
		t.Error("sequence gap accepted")
	}
}

func TestCrankCommandsTolerateGaps(t *testing.T) {
	c, _, _ := newTestCore()

	// Pokes from independent cranks: sequences 3 then 10 both land.
	process(t, c, &event.PokeFolio{
		Base:        base(anyone, nil, 3, 2000),
		TotalSupply: d18(1000),
	})
	process(t, c, &event.PokeFolio{
		Base:        base(anyone, nil, 10, 3000),
		TotalSupply: d18(1000),
	})
}

func TestStateHashChains(t *testing.T) {
	c, persist, _ := newTestCore()
	seqs := &seqCounter{}

	process(t, c, approveCmd(seqs.take(), 1000))
	process(t, c, approveCmd(seqs.take(), 1100))

	outputs := drain(persist)
	if len(outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(outputs))
	}
	if outputs[1].Envelope.PrevHash != outputs[0].Envelope.StateHash {
		t.Error("hash chain broken between consecutive envelopes")
	}
	if outputs[0].Envelope.StateHash == outputs[1].Envelope.StateHash {
		t.Error("distinct transitions produced identical state hashes")
	}
}

func TestFeePokeThroughCore(t *testing.T) {
	c, persist, _ := newTestCore()

	supply := d18(1_000_000)
	process(t, c, &event.PokeFolio{
		Base:        base(anyone, nil, 3, fixmath.SecondsPerYear),
		TotalSupply: supply,
	})

	outputs := drain(persist)
	poked := outputs[0].Notices[0].(event.FolioFeePoked)

	// Fund created at the first command's timestamp: elapsed is zero.
	if poked.AccruedShares.Sign() != 0 {
		t.Errorf("first poke accrued %s, want 0", poked.AccruedShares)
	}

	process(t, c, &event.PokeFolio{
		Base:        base(anyone, nil, 4, 2*fixmath.SecondsPerYear),
		TotalSupply: supply,
	})
	outputs = drain(persist)
	poked = outputs[0].Notices[0].(event.FolioFeePoked)

	// One year at the 2% default numerator.
	want := new(big.Int).Quo(new(big.Int).Mul(supply, big.NewInt(2)), big.NewInt(100))
	if poked.AccruedShares.Cmp(want) != 0 {
		t.Errorf("accrued = %s, want %s", poked.AccruedShares, want)
	}
}

func TestRewardFlowThroughCore(t *testing.T) {
	c, persist, _ := newTestCore()
	seqs := &seqCounter{}
	holder := uuid.New()

	process(t, c, &event.SetRewardRatio{
		Base:     base(owner, []string{"owner"}, seqs.take(), 0),
		HalfLife: 86_400,
	})
	process(t, c, &event.AddRewardToken{
		Base:  base(owner, []string{"owner"}, seqs.take(), 0),
		Token: "RWD",
	})
	drain(persist)

	gov := d18(100)
	process(t, c, &event.AccrueRewards{
		Base:     base(anyone, nil, 0, 86_400),
		GovTotal: gov,
		Accounts: []event.RewardAccount{{User: holder, GovBalance: gov}},
		Balances: []event.TokenBalance{{Token: "RWD", Balance: d18(1000)}},
	})

	outputs := drain(persist)
	if len(outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(outputs))
	}
	accrued := outputs[0].Notices[0].(event.RewardsAccrued)
	half := d18(500)
	diff := new(big.Int).Sub(accrued.Emitted, half)
	if diff.Abs(diff).Cmp(big.NewInt(1_000_000_000)) > 0 {
		t.Errorf("one half-life emitted %s, want ~%s", accrued.Emitted, half)
	}

	process(t, c, &event.ClaimRewards{
		Base: base(holder, nil, seqs.take(), 90_000),
	})
	outputs = drain(persist)
	claimed := outputs[0].Notices[0].(event.RewardsClaimed)
	if claimed.Amount.Sign() <= 0 {
		t.Errorf("claimed %s, want positive", claimed.Amount)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	c, persist, _ := newTestCore()
	seqs := &seqCounter{}

	process(t, c, approveCmd(seqs.take(), 1000))
	process(t, c, &event.OpenAuction{
		Base:      base(launcher, []string{"auction_launcher"}, seqs.take(), 1100),
		AuctionID: 1,
	})
	drain(persist)

	snap := c.Snapshot()

	persist2 := make(chan core.CoreOutput, 1024)
	proj2 := make(chan core.CoreOutput, 1024)
	restored := core.NewFolioCore(0, testDefaults(), "folio-engine", persist2, proj2, nil, nil)
	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if restored.Sequence() != c.Sequence() {
		t.Errorf("sequence = %d, want %d", restored.Sequence(), c.Sequence())
	}

	// The running auction survives with its curve intact: a bid against
	// the restored core prices identically.
	if err := restored.ProcessCommand(&event.Bid{
		Base:       base(anyone, nil, seqs.take(), 1100),
		AuctionID:  1,
		SellAmount: d18(1),
	}, nil); err != nil {
		t.Fatalf("bid on restored core: %v", err)
	}
	out := drain(persist2)
	bid := out[0].Notices[0].(event.AuctionBidPlaced)
	if bid.Price.Cmp(d18(100)) != 0 {
		t.Errorf("restored price = %s, want %s", bid.Price, d18(100))
	}
}

func TestMintAndPendingBasketFlow(t *testing.T) {
	c, persist, _ := newTestCore()
	seqs := &seqCounter{}
	minter := uuid.New()

	process(t, c, &event.SetBasketRange{
		Base:  base(rebalancer, []string{"rebalancer"}, seqs.take(), 100),
		Token: "SOL",
		Range: event.Limit{Spot: d18(5), Low: d18(1), High: d18(10)},
	})
	process(t, c, &event.SetMintFee{
		Base:      base(owner, []string{"owner"}, seqs.take(), 100),
		Numerator: fund.MaxMintFee,
	})
	process(t, c, &event.AddToBasket{
		Base:   base(minter, nil, seqs.take(), 200),
		Token:  "SOL",
		Amount: d18(3),
	})

	// Closing with pending amounts is rejected.
	if err := c.ProcessCommand(&event.ClosePendingBasket{
		Base: base(minter, nil, seqs.take(), 250),
	}, nil); err == nil {
		t.Fatal("closed a non-empty pending record")
	}

	process(t, c, &event.MintShares{
		Base:   base(minter, nil, seqs.take(), 300),
		Shares: d18(100),
	})
	// After minting the record is zero and closable.
	process(t, c, &event.ClosePendingBasket{
		Base: base(minter, nil, seqs.take(), 400),
	})

	outputs := drain(persist)
	var minted *event.SharesMinted
	for _, o := range outputs {
		for _, n := range o.Notices {
			if m, ok := n.(event.SharesMinted); ok {
				minted = &m
			}
		}
	}
	if minted == nil {
		t.Fatal("no mint notice")
	}
	if minted.FeeShares.Cmp(d18(5)) != 0 { // 5% of 100
		t.Errorf("mint fee = %s, want %s", minted.FeeShares, d18(5))
	}
}

func TestRemoveBasketToken(t *testing.T) {
	c, persist, _ := newTestCore()
	seqs := &seqCounter{}

	process(t, c, &event.SetBasketRange{
		Base:  base(rebalancer, []string{"rebalancer"}, seqs.take(), 100),
		Token: "SOL",
		Range: event.Limit{Spot: d18(5), Low: d18(1), High: d18(10)},
	})

	// Only the rebalancer may remove a token.
	if err := c.ProcessCommand(&event.RemoveBasketToken{
		Base:  base(anyone, nil, seqs.take(), 150),
		Token: "SOL",
	}, nil); err == nil {
		t.Fatal("removed a token without the rebalancer role")
	}

	process(t, c, &event.RemoveBasketToken{
		Base:  base(rebalancer, []string{"rebalancer"}, seqs.take(), 200),
		Token: "SOL",
	})

	// The removed token is gone; removing it again is rejected.
	if err := c.ProcessCommand(&event.RemoveBasketToken{
		Base:  base(rebalancer, []string{"rebalancer"}, seqs.take(), 300),
		Token: "SOL",
	}, nil); err == nil {
		t.Fatal("removed a token twice")
	}

	outputs := drain(persist)
	removed := outputs[len(outputs)-1].Notices[0].(event.BasketTokenRemoved)
	if removed.Token != "SOL" {
		t.Errorf("removed token = %s, want SOL", removed.Token)
	}
}
