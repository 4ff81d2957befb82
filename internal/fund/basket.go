package fund

import (
	"math/big"

	"github.com/google/uuid"
)

// WeightRange is a basket token's target band at D18: spot must sit
// inside [low, high].
type WeightRange struct {
	Spot *big.Int
	Low  *big.Int
	High *big.Int
}

func (r WeightRange) validate() error {
	if r.Spot == nil || r.Low == nil || r.High == nil {
		return ErrInvalidRange
	}
	if r.Low.Sign() < 0 || r.Low.Cmp(r.Spot) > 0 || r.Spot.Cmp(r.High) > 0 {
		return ErrInvalidRange
	}
	if r.High.Sign() <= 0 {
		return ErrInvalidRange
	}
	return nil
}

// BasketToken is one tracked token: its weight range and the dust
// threshold below which balances are ignored. An empty Token is the
// tombstone sentinel for a reclaimed slot.
type BasketToken struct {
	Token string
	Range WeightRange
	Dust  *big.Int
}

// PendingEntry is one token's in-flight amounts for a user's mint or
// redeem workflow.
type PendingEntry struct {
	Token        string
	ForMinting   *big.Int
	ForRedeeming *big.Int
}

// PendingRecord holds a user's pending entries. It can only be closed
// once every entry is zero.
type PendingRecord struct {
	Entries []PendingEntry
}

func (pr *PendingRecord) empty() bool {
	for i := range pr.Entries {
		if pr.Entries[i].ForMinting.Sign() != 0 || pr.Entries[i].ForRedeeming.Sign() != 0 {
			return false
		}
	}
	return true
}

func (pr *PendingRecord) entry(token string) *PendingEntry {
	for i := range pr.Entries {
		if pr.Entries[i].Token == token {
			return &pr.Entries[i]
		}
	}
	return nil
}

// RebalanceRecord is the reserved fund-level pending record auction
// settlement writes into.
var RebalanceRecord = uuid.Nil

// Basket tracks the fund's token ranges, dust thresholds, and pending
// mint/redeem amounts. Token slots are a fixed-capacity vector with
// empty sentinels; removal compacts linearly.
type Basket struct {
	tokens  []BasketToken
	pending map[uuid.UUID]*PendingRecord
}

func NewBasket() *Basket {
	return &Basket{
		tokens:  make([]BasketToken, 0, MaxBasketTokens),
		pending: make(map[uuid.UUID]*PendingRecord),
	}
}

func (b *Basket) find(token string) *BasketToken {
	for i := range b.tokens {
		if b.tokens[i].Token == token {
			return &b.tokens[i]
		}
	}
	return nil
}

// Token returns the tracked entry for token, if any.
func (b *Basket) Token(token string) (BasketToken, bool) {
	if t := b.find(token); t != nil {
		return *t, true
	}
	return BasketToken{}, false
}

// Tokens returns the live entries in slot order.
func (b *Basket) Tokens() []BasketToken {
	out := make([]BasketToken, 0, len(b.tokens))
	for i := range b.tokens {
		if b.tokens[i].Token != "" {
			out = append(out, b.tokens[i])
		}
	}
	return out
}

// SetRange sets or replaces a token's weight range. New tokens claim a
// tombstone slot before growing the vector; the capacity bound is hard.
func (b *Basket) SetRange(token string, r WeightRange) error {
	if err := r.validate(); err != nil {
		return err
	}
	rc := WeightRange{Spot: cloneBig(r.Spot), Low: cloneBig(r.Low), High: cloneBig(r.High)}
	if t := b.find(token); t != nil {
		t.Range = rc
		return nil
	}
	for i := range b.tokens {
		if b.tokens[i].Token == "" {
			b.tokens[i] = BasketToken{Token: token, Range: rc, Dust: new(big.Int)}
			return nil
		}
	}
	if len(b.tokens) >= MaxBasketTokens {
		return ErrCapacityExceeded
	}
	b.tokens = append(b.tokens, BasketToken{Token: token, Range: rc, Dust: new(big.Int)})
	return nil
}

// SetDust sets a token's dust threshold.
func (b *Basket) SetDust(token string, amount *big.Int) error {
	t := b.find(token)
	if t == nil {
		return ErrTokenNotFound
	}
	if amount.Sign() < 0 {
		return ErrInvalidRange
	}
	t.Dust = cloneBig(amount)
	return nil
}

// RemoveToken tombstones a token's slot and compacts trailing empties.
func (b *Basket) RemoveToken(token string) error {
	t := b.find(token)
	if t == nil {
		return ErrTokenNotFound
	}
	*t = BasketToken{}
	for len(b.tokens) > 0 && b.tokens[len(b.tokens)-1].Token == "" {
		b.tokens = b.tokens[:len(b.tokens)-1]
	}
	return nil
}

// AddPending records a contribution toward user's next mint. Amounts at
// or below the token's dust threshold are rejected rather than ignored
// silently, so callers can tell the contribution did not land.
func (b *Basket) AddPending(user uuid.UUID, token string, amount *big.Int) error {
	t := b.find(token)
	if t == nil {
		return ErrTokenNotFound
	}
	if amount.Sign() <= 0 || amount.Cmp(t.Dust) <= 0 {
		return ErrDustIgnored
	}
	pr := b.pending[user]
	if pr == nil {
		pr = &PendingRecord{}
		b.pending[user] = pr
	}
	if e := pr.entry(token); e != nil {
		e.ForMinting.Add(e.ForMinting, amount)
		return nil
	}
	if len(pr.Entries) >= MaxBasketTokens {
		return ErrCapacityExceeded
	}
	pr.Entries = append(pr.Entries, PendingEntry{
		Token:        token,
		ForMinting:   cloneBig(amount),
		ForRedeeming: new(big.Int),
	})
	return nil
}

// SettleTrade moves auction fill amounts through the fund-level
// rebalance record: sold tokens are owed out (redeeming side), bought
// tokens are owed in (minting side). Capacity for both legs is checked
// before either leg lands, so a failed settle leaves the record as it
// was.
func (b *Basket) SettleTrade(sell, buy string, sellAmount, buyAmount *big.Int) error {
	pr := b.pending[RebalanceRecord]
	if pr == nil {
		pr = &PendingRecord{}
	}
	needed := 0
	if pr.entry(sell) == nil {
		needed++
	}
	if buy != sell && pr.entry(buy) == nil {
		needed++
	}
	if len(pr.Entries)+needed > MaxBasketTokens {
		return ErrCapacityExceeded
	}
	b.pending[RebalanceRecord] = pr

	for _, leg := range []struct {
		token  string
		amount *big.Int
		mint   bool
	}{
		{sell, sellAmount, false},
		{buy, buyAmount, true},
	} {
		e := pr.entry(leg.token)
		if e == nil {
			pr.Entries = append(pr.Entries, PendingEntry{
				Token:        leg.token,
				ForMinting:   new(big.Int),
				ForRedeeming: new(big.Int),
			})
			e = &pr.Entries[len(pr.Entries)-1]
		}
		if leg.mint {
			e.ForMinting.Add(e.ForMinting, leg.amount)
		} else {
			e.ForRedeeming.Add(e.ForRedeeming, leg.amount)
		}
	}
	return nil
}

// ConsumePending zeroes user's minting amounts and returns what was
// consumed. Fails when the user has nothing pending.
func (b *Basket) ConsumePending(user uuid.UUID) ([]PendingEntry, error) {
	pr := b.pending[user]
	if pr == nil {
		return nil, ErrNothingPending
	}
	var consumed []PendingEntry
	for i := range pr.Entries {
		e := &pr.Entries[i]
		if e.ForMinting.Sign() == 0 {
			continue
		}
		consumed = append(consumed, PendingEntry{
			Token:        e.Token,
			ForMinting:   cloneBig(e.ForMinting),
			ForRedeeming: new(big.Int),
		})
		e.ForMinting.SetInt64(0)
	}
	if len(consumed) == 0 {
		return nil, ErrNothingPending
	}
	return consumed, nil
}

// ClosePending reclaims user's record. Only a fully zero record may be
// closed.
func (b *Basket) ClosePending(user uuid.UUID) error {
	pr := b.pending[user]
	if pr == nil {
		return ErrNothingPending
	}
	if !pr.empty() {
		return ErrPendingNotEmpty
	}
	delete(b.pending, user)
	return nil
}

// Pending returns user's record, if any.
func (b *Basket) Pending(user uuid.UUID) (*PendingRecord, bool) {
	pr, ok := b.pending[user]
	return pr, ok
}
