package fund

import (
	"math/big"

	"github.com/google/uuid"

	"FolioLedger/internal/fixmath"
)

// RewardToken is one tracked emission source. An empty Token marks a
// reclaimed slot; Disallowed is a one-way latch that stops emission
// while preserving outstanding claims.
type RewardToken struct {
	Token string

	PayoutLastPaid   int64
	RewardIndex      *big.Int // D18 per governance unit, monotone
	BalanceAccounted *big.Int
	BalanceLastKnown *big.Int
	TotalClaimed     *big.Int

	Disallowed bool
}

func (rt *RewardToken) outstanding() *big.Int {
	return new(big.Int).Sub(rt.BalanceLastKnown, rt.TotalClaimed)
}

// RewardPosition is one user's claim state against one token.
type RewardPosition struct {
	LastIndex *big.Int // D18
	Accrued   *big.Int
}

// RewardBook drives the decaying-payout emission: the undistributed
// balance of every tracked token decays toward zero with the configured
// half-life, and emitted amounts accrue to governance holders through a
// global index.
type RewardBook struct {
	halfLife int64
	ratio    *big.Int // D18 per second, ln(2)/halfLife

	tokens    []*RewardToken
	positions map[string]map[uuid.UUID]*RewardPosition
}

func NewRewardBook() *RewardBook {
	return &RewardBook{
		halfLife:  MaxRewardHalfLife,
		ratio:     new(big.Int).Quo(fixmath.LN2, big.NewInt(MaxRewardHalfLife)),
		tokens:    make([]*RewardToken, 0, MaxRewardTokens),
		positions: make(map[string]map[uuid.UUID]*RewardPosition),
	}
}

// HalfLife returns the configured half-life in seconds.
func (rb *RewardBook) HalfLife() int64 { return rb.halfLife }

// Ratio returns the derived per-second decay ratio at D18.
func (rb *RewardBook) Ratio() *big.Int { return fixmath.Clone(rb.ratio) }

// SetRatio derives the emission ratio ln(2)/halfLife from a bounded
// half-life.
func (rb *RewardBook) SetRatio(halfLife int64) error {
	if halfLife < MinRewardHalfLife || halfLife > MaxRewardHalfLife {
		return ErrInvalidHalfLife
	}
	rb.halfLife = halfLife
	rb.ratio = new(big.Int).Quo(fixmath.LN2, big.NewInt(halfLife))
	return nil
}

func (rb *RewardBook) find(token string) *RewardToken {
	for _, rt := range rb.tokens {
		if rt != nil && rt.Token == token {
			return rt
		}
	}
	return nil
}

// Token returns the tracked entry for token.
func (rb *RewardBook) Token(token string) (*RewardToken, bool) {
	rt := rb.find(token)
	return rt, rt != nil
}

// Tokens returns the live entries in slot order.
func (rb *RewardBook) Tokens() []*RewardToken {
	out := make([]*RewardToken, 0, len(rb.tokens))
	for _, rt := range rb.tokens {
		if rt != nil && rt.Token != "" {
			out = append(out, rt)
		}
	}
	return out
}

// AddToken registers a token for emission, starting its clock at now.
// The cap exists so one accrual call can always touch every token.
func (rb *RewardBook) AddToken(token string, now int64) error {
	if existing := rb.find(token); existing != nil {
		if existing.Disallowed {
			return ErrTokenDisallowed
		}
		return nil
	}
	rt := &RewardToken{
		Token:            token,
		PayoutLastPaid:   now,
		RewardIndex:      new(big.Int),
		BalanceAccounted: new(big.Int),
		BalanceLastKnown: new(big.Int),
		TotalClaimed:     new(big.Int),
	}
	for i, slot := range rb.tokens {
		if slot == nil || slot.Token == "" {
			rb.tokens[i] = rt
			return nil
		}
	}
	if rb.liveCount() >= MaxRewardTokens {
		return ErrCapacityExceeded
	}
	rb.tokens = append(rb.tokens, rt)
	return nil
}

func (rb *RewardBook) liveCount() int {
	n := 0
	for _, rt := range rb.tokens {
		if rt != nil && rt.Token != "" {
			n++
		}
	}
	return n
}

// RemoveToken disallows a token. Emission stops but outstanding per-user
// claims survive; the slot itself is only reclaimed by DropToken once
// everything is paid out.
func (rb *RewardBook) RemoveToken(token string) error {
	rt := rb.find(token)
	if rt == nil {
		return ErrTokenNotFound
	}
	rt.Disallowed = true
	return nil
}

// DropToken reclaims a disallowed token's slot. Fails while any balance
// remains undistributed or unclaimed.
func (rb *RewardBook) DropToken(token string) error {
	for i, rt := range rb.tokens {
		if rt == nil || rt.Token != token {
			continue
		}
		if !rt.Disallowed {
			return ErrTokenDisallowed
		}
		if rt.outstanding().Sign() != 0 {
			return ErrOutstandingRewards
		}
		rb.tokens[i] = nil
		delete(rb.positions, token)
		return nil
	}
	return ErrTokenNotFound
}

// Emission is the per-token outcome of one accrual.
type Emission struct {
	Token   string
	Emitted *big.Int
	Index   *big.Int
}

// ObserveBalance records a versioned holding observation for a token.
// The known balance never moves backward past what is accounted.
func (rb *RewardBook) ObserveBalance(token string, balance *big.Int) error {
	rt := rb.find(token)
	if rt == nil {
		return ErrTokenNotFound
	}
	if balance == nil || balance.Cmp(rt.BalanceAccounted) < 0 {
		return ErrOutstandingRewards
	}
	rt.BalanceLastKnown = fixmath.Clone(balance)
	return nil
}

// ObserveBalances records a batch of versioned holding observations.
// The whole batch validates before any balance moves, so a rejected
// batch leaves every token as it was.
func (rb *RewardBook) ObserveBalances(balances map[string]*big.Int) error {
	for token, balance := range balances {
		rt := rb.find(token)
		if rt == nil {
			return ErrTokenNotFound
		}
		if balance == nil || balance.Cmp(rt.BalanceAccounted) < 0 {
			return ErrOutstandingRewards
		}
	}
	for token, balance := range balances {
		rb.find(token).BalanceLastKnown = fixmath.Clone(balance)
	}
	return nil
}

// Accrue advances every non-disallowed token's index up to now, then
// credits each observed account by its governance balance against the
// index delta. Emission follows the decaying-payout curve: the
// undistributed balance shrinks by the factor 2^(-elapsed/halfLife)
// rather than draining at a constant rate.
func (rb *RewardBook) Accrue(
	now int64,
	govTotal *big.Int,
	accounts map[uuid.UUID]*big.Int,
) ([]Emission, error) {
	if govTotal == nil || govTotal.Sign() <= 0 {
		return nil, ErrZeroSupply
	}

	var emissions []Emission
	for _, rt := range rb.tokens {
		if rt == nil || rt.Token == "" || rt.Disallowed {
			continue
		}
		elapsed := now - rt.PayoutLastPaid
		if elapsed <= 0 {
			continue
		}

		undistributed := new(big.Int).Sub(rt.BalanceLastKnown, rt.BalanceAccounted)
		if undistributed.Sign() <= 0 {
			rt.PayoutLastPaid = now
			continue
		}

		// decay = e^(-ratio*elapsed) = 2^(-elapsed/halfLife)
		x := new(big.Int).Mul(rb.ratio, big.NewInt(elapsed))
		decay, err := fixmath.ExpNeg(x)
		if err != nil {
			return nil, err
		}
		factor := new(big.Int).Sub(fixmath.D18, decay)
		emitted, err := fixmath.MulD18(undistributed, factor)
		if err != nil {
			return nil, err
		}

		delta, err := fixmath.MulDiv(emitted, fixmath.D18, govTotal)
		if err != nil {
			return nil, err
		}
		rt.RewardIndex.Add(rt.RewardIndex, delta)
		rt.BalanceAccounted.Add(rt.BalanceAccounted, emitted)
		rt.PayoutLastPaid = now

		emissions = append(emissions, Emission{
			Token:   rt.Token,
			Emitted: emitted,
			Index:   fixmath.Clone(rt.RewardIndex),
		})
	}

	for user, gov := range accounts {
		if err := rb.settle(user, gov); err != nil {
			return nil, err
		}
	}
	return emissions, nil
}

// settle rolls one user forward against every tracked token's index.
// Disallowed tokens still settle so claims already earned stay exact.
func (rb *RewardBook) settle(user uuid.UUID, gov *big.Int) error {
	for _, rt := range rb.tokens {
		if rt == nil || rt.Token == "" {
			continue
		}
		users := rb.positions[rt.Token]
		if users == nil {
			users = make(map[uuid.UUID]*RewardPosition)
			rb.positions[rt.Token] = users
		}
		pos := users[user]
		if pos == nil {
			pos = &RewardPosition{LastIndex: new(big.Int), Accrued: new(big.Int)}
			users[user] = pos
		}
		indexDelta := new(big.Int).Sub(rt.RewardIndex, pos.LastIndex)
		if indexDelta.Sign() > 0 && gov != nil && gov.Sign() > 0 {
			earned, err := fixmath.MulDiv(gov, indexDelta, fixmath.D18)
			if err != nil {
				return err
			}
			pos.Accrued.Add(pos.Accrued, earned)
		}
		pos.LastIndex = fixmath.Clone(rt.RewardIndex)
	}
	return nil
}

// Claim zeroes and returns the user's accrued amounts. An empty token
// list claims everything. Claiming with no position at all is a
// lifecycle error.
func (rb *RewardBook) Claim(user uuid.UUID, tokens []string) (map[string]*big.Int, error) {
	want := func(token string) bool {
		if len(tokens) == 0 {
			return true
		}
		for _, t := range tokens {
			if t == token {
				return true
			}
		}
		return false
	}

	found := false
	claims := make(map[string]*big.Int)
	for _, rt := range rb.tokens {
		if rt == nil || rt.Token == "" || !want(rt.Token) {
			continue
		}
		pos := rb.positions[rt.Token][user]
		if pos == nil {
			continue
		}
		found = true
		if pos.Accrued.Sign() == 0 {
			continue
		}
		claims[rt.Token] = pos.Accrued
		rt.TotalClaimed.Add(rt.TotalClaimed, pos.Accrued)
		pos.Accrued = new(big.Int)
	}
	if !found {
		return nil, ErrNothingAccrued
	}
	return claims, nil
}

// Position returns the user's claim state for a token.
func (rb *RewardBook) Position(token string, user uuid.UUID) (*RewardPosition, bool) {
	pos := rb.positions[token][user]
	return pos, pos != nil
}
