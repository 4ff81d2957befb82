package fund

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/google/uuid"

	"FolioLedger/internal/fixmath"
)

// FeeRecipient is one slot of the bounded split vector. uuid.Nil marks
// a tombstoned slot.
type FeeRecipient struct {
	Receiver uuid.UUID
	Portion  *big.Int // D18, live slots must sum to exactly 1.0
}

// Payout is one distribution ledger entry ready to leave the engine.
type Payout struct {
	Receiver uuid.UUID
	Shares   *big.Int
}

// FeeLedger accrues time-weighted management fees as share dilution and
// queues them in a crankable distribution ledger. Nothing here moves
// tokens; the ledger records claim entitlements only.
type FeeLedger struct {
	recipients []FeeRecipient

	feeNumerator *big.Int // D18 annual
	feeFloor     *big.Int
	daoShare     *big.Int // D18 cut of every accrual
	mintFee      *big.Int // D18 one-time
	daoReceiver  uuid.UUID

	lastPoke int64

	// Distribution ledger. Rounding residue from the pro-rata split
	// lands on the DAO entry so accrued totals stay exact.
	pending    map[uuid.UUID]*big.Int
	daoPending *big.Int
}

func NewFeeLedger(cfg Config, createdAt int64) *FeeLedger {
	return &FeeLedger{
		recipients:   make([]FeeRecipient, 0, MaxFeeRecipients),
		feeNumerator: fixmath.Clone(cfg.FeeNumerator),
		feeFloor:     fixmath.Clone(cfg.FeeFloor),
		daoShare:     fixmath.Clone(cfg.DAOShare),
		mintFee:      fixmath.Clone(cfg.MintFee),
		daoReceiver:  cfg.DAOReceiver,
		lastPoke:     createdAt,
		pending:      make(map[uuid.UUID]*big.Int),
		daoPending:   new(big.Int),
	}
}

// LastPoke returns the fee clock.
func (fl *FeeLedger) LastPoke() int64 { return fl.lastPoke }

// Recipients returns the live slots in order.
func (fl *FeeLedger) Recipients() []FeeRecipient {
	out := make([]FeeRecipient, 0, len(fl.recipients))
	for _, r := range fl.recipients {
		if r.Receiver != uuid.Nil {
			out = append(out, r)
		}
	}
	return out
}

// Poke accrues the management fee from the last poke up to now.
// The effective annual rate is max(numerator, floor); the accrued share
// amount is totalSupply * rate * elapsed / year, floored. A poke at or
// before the stored clock accrues nothing, which makes replays safe.
func (fl *FeeLedger) Poke(totalSupply *big.Int, now int64) (accrued, daoCut *big.Int, err error) {
	elapsed := now - fl.lastPoke
	if elapsed <= 0 {
		return new(big.Int), new(big.Int), nil
	}
	if totalSupply == nil || totalSupply.Sign() <= 0 {
		return nil, nil, ErrZeroSupply
	}

	rate := fixmath.Max(fl.feeNumerator, fl.feeFloor)
	scaled, err := fixmath.MulDiv(totalSupply, rate, fixmath.D18)
	if err != nil {
		return nil, nil, err
	}
	accrued, err = fixmath.MulDiv(scaled, big.NewInt(elapsed), big.NewInt(fixmath.SecondsPerYear))
	if err != nil {
		return nil, nil, err
	}

	daoCut, err = fl.book(accrued)
	if err != nil {
		return nil, nil, err
	}
	fl.lastPoke = now
	return accrued, daoCut, nil
}

// ApplyMintFee charges the one-time mint fee on a freshly minted share
// amount and books it through the same split as poked fees.
func (fl *FeeLedger) ApplyMintFee(shares *big.Int) (*big.Int, error) {
	if fl.mintFee.Sign() == 0 {
		return new(big.Int), nil
	}
	fee, err := fixmath.MulD18(shares, fl.mintFee)
	if err != nil {
		return nil, err
	}
	if _, err := fl.book(fee); err != nil {
		return nil, err
	}
	return fee, nil
}

// book splits an accrued amount into the DAO cut and the pro-rata
// recipient portions, appending everything to the distribution ledger.
func (fl *FeeLedger) book(accrued *big.Int) (*big.Int, error) {
	daoCut, err := fixmath.MulD18(accrued, fl.daoShare)
	if err != nil {
		return nil, err
	}
	remainder := new(big.Int).Sub(accrued, daoCut)

	distributed := new(big.Int)
	for _, r := range fl.recipients {
		if r.Receiver == uuid.Nil {
			continue
		}
		cut, err := fixmath.MulD18(remainder, r.Portion)
		if err != nil {
			return nil, err
		}
		fl.credit(r.Receiver, cut)
		distributed.Add(distributed, cut)
	}

	// Flooring leaves a residue; with no recipients the whole remainder
	// is residue. Either way it goes to the DAO.
	residue := new(big.Int).Sub(remainder, distributed)
	fl.daoPending.Add(fl.daoPending, daoCut)
	fl.daoPending.Add(fl.daoPending, residue)
	return daoCut, nil
}

func (fl *FeeLedger) credit(receiver uuid.UUID, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	if cur, ok := fl.pending[receiver]; ok {
		cur.Add(cur, amount)
		return
	}
	fl.pending[receiver] = fixmath.Clone(amount)
}

// UpdateRecipients rebuilds the split vector: removals and pre-existing
// tombstones are dropped first, then additions appended. The surviving
// portions must sum to exactly 1.0 at D18.
func (fl *FeeLedger) UpdateRecipients(add []FeeRecipient, remove []uuid.UUID) error {
	drop := make(map[uuid.UUID]bool, len(remove))
	for _, r := range remove {
		drop[r] = true
	}

	rebuilt := make([]FeeRecipient, 0, MaxFeeRecipients)
	for _, r := range fl.recipients {
		if r.Receiver == uuid.Nil || drop[r.Receiver] {
			continue
		}
		rebuilt = append(rebuilt, r)
	}
	for _, r := range add {
		if r.Receiver == uuid.Nil || r.Portion == nil || r.Portion.Sign() <= 0 {
			return ErrPortionSum
		}
		rebuilt = append(rebuilt, FeeRecipient{
			Receiver: r.Receiver,
			Portion:  fixmath.Clone(r.Portion),
		})
	}
	if len(rebuilt) > MaxFeeRecipients {
		return ErrCapacityExceeded
	}

	if len(rebuilt) > 0 {
		sum := new(big.Int)
		for _, r := range rebuilt {
			sum.Add(sum, r.Portion)
		}
		if sum.Cmp(fixmath.D18) != 0 {
			return ErrPortionSum
		}
	}

	fl.recipients = rebuilt
	return nil
}

// SetMintFee sets the one-time mint fee numerator, capped by MaxMintFee.
func (fl *FeeLedger) SetMintFee(numerator *big.Int) error {
	if numerator == nil || numerator.Sign() < 0 || numerator.Cmp(MaxMintFee) > 0 {
		return ErrFeeTooHigh
	}
	fl.mintFee = fixmath.Clone(numerator)
	return nil
}

// MintFee returns the current mint fee numerator.
func (fl *FeeLedger) MintFee() *big.Int {
	return fixmath.Clone(fl.mintFee)
}

// Distribute drains the distribution ledger. With no indices the whole
// ledger drains: the DAO entry first, then live recipients, then
// entries whose receiver has left the vector. With indices supplied,
// only the named recipient slots drain; everything else, the DAO entry
// included, keeps its balance for a later crank. Indices validate in
// full before anything pays out.
func (fl *FeeLedger) Distribute(indices []uint64) ([]Payout, error) {
	if len(indices) > 0 {
		if err := fl.CheckIndices(indices); err != nil {
			return nil, err
		}
		out := make([]Payout, 0, len(indices))
		for _, idx := range indices {
			recv := fl.recipients[idx].Receiver
			if amt, ok := fl.pending[recv]; ok && amt.Sign() > 0 {
				out = append(out, Payout{Receiver: recv, Shares: amt})
				delete(fl.pending, recv)
			}
		}
		return out, nil
	}

	out := make([]Payout, 0, len(fl.pending)+1)
	if fl.daoPending.Sign() > 0 {
		out = append(out, Payout{Receiver: fl.daoReceiver, Shares: fl.daoPending})
		fl.daoPending = new(big.Int)
	}
	for _, r := range fl.recipients {
		if r.Receiver == uuid.Nil {
			continue
		}
		if amt, ok := fl.pending[r.Receiver]; ok && amt.Sign() > 0 {
			out = append(out, Payout{Receiver: r.Receiver, Shares: amt})
			delete(fl.pending, r.Receiver)
		}
	}
	// Entries for receivers no longer in the vector still pay out, in
	// stable key order so replay produces an identical payout stream.
	if len(fl.pending) > 0 {
		stray := make([]uuid.UUID, 0, len(fl.pending))
		for recv := range fl.pending {
			stray = append(stray, recv)
		}
		sort.Slice(stray, func(i, j int) bool {
			return bytes.Compare(stray[i][:], stray[j][:]) < 0
		})
		for _, recv := range stray {
			if amt := fl.pending[recv]; amt.Sign() > 0 {
				out = append(out, Payout{Receiver: recv, Shares: amt})
			}
			delete(fl.pending, recv)
		}
	}
	return out, nil
}

// CheckIndices validates a partial-crank index list without draining
// anything. Every index must name a live recipient slot.
func (fl *FeeLedger) CheckIndices(indices []uint64) error {
	for _, idx := range indices {
		if idx >= uint64(len(fl.recipients)) || fl.recipients[idx].Receiver == uuid.Nil {
			return ErrBadRecipientIndex
		}
	}
	return nil
}

// PendingFor returns the undistributed balance for a receiver.
func (fl *FeeLedger) PendingFor(receiver uuid.UUID) *big.Int {
	if receiver == fl.daoReceiver {
		total := fixmath.Clone(fl.daoPending)
		if amt, ok := fl.pending[receiver]; ok {
			total.Add(total, amt)
		}
		return total
	}
	if amt, ok := fl.pending[receiver]; ok {
		return fixmath.Clone(amt)
	}
	return new(big.Int)
}
