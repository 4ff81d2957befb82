package fund

import (
	"math/big"

	"github.com/google/uuid"
)

// Serializable snapshot forms of the fund state. big.Int fields encode
// as decimal strings through encoding.TextMarshaler, so round-trips are
// exact at any magnitude.

type AuctionSnap struct {
	ID              uint64      `json:"id"`
	Sell            string      `json:"sell"`
	Buy             string      `json:"buy"`
	SellLimit       WeightRange `json:"sell_limit"`
	BuyLimit        WeightRange `json:"buy_limit"`
	ApprovedStart   *big.Int    `json:"approved_start"`
	ApprovedEnd     *big.Int    `json:"approved_end"`
	AvailableAt     int64       `json:"available_at"`
	StartPrice      *big.Int    `json:"start_price,omitempty"`
	EndPrice        *big.Int    `json:"end_price,omitempty"`
	Start           int64       `json:"start"`
	End             int64       `json:"end"`
	K               *big.Int    `json:"k,omitempty"`
	Sold            *big.Int    `json:"sold"`
	Bought          *big.Int    `json:"bought"`
	ClosedForReruns bool        `json:"closed_for_reruns"`
}

type AuctionBookSnap struct {
	Auctions []AuctionSnap    `json:"auctions"`
	NextID   uint64           `json:"next_id"`
	Ends     map[string]int64 `json:"ends"`
	Epoch    uint64           `json:"epoch"`
}

type PendingSnap struct {
	User    uuid.UUID      `json:"user"`
	Entries []PendingEntry `json:"entries"`
}

type BasketSnap struct {
	Tokens  []BasketToken `json:"tokens"`
	Pending []PendingSnap `json:"pending"`
}

type FeeLedgerSnap struct {
	Recipients   []FeeRecipient       `json:"recipients"`
	FeeNumerator *big.Int             `json:"fee_numerator"`
	FeeFloor     *big.Int             `json:"fee_floor"`
	DAOShare     *big.Int             `json:"dao_share"`
	MintFee      *big.Int             `json:"mint_fee"`
	DAOReceiver  uuid.UUID            `json:"dao_receiver"`
	LastPoke     int64                `json:"last_poke"`
	Pending      map[string]*big.Int  `json:"pending"` // receiver uuid string -> shares
	DAOPending   *big.Int             `json:"dao_pending"`
}

type RewardPositionSnap struct {
	User      uuid.UUID `json:"user"`
	LastIndex *big.Int  `json:"last_index"`
	Accrued   *big.Int  `json:"accrued"`
}

type RewardTokenSnap struct {
	RewardToken
	Positions []RewardPositionSnap `json:"positions"`
}

type RewardBookSnap struct {
	HalfLife int64             `json:"half_life"`
	Ratio    *big.Int          `json:"ratio"`
	Tokens   []RewardTokenSnap `json:"tokens"`
}

type Snapshot struct {
	ID            string          `json:"id"`
	AuctionLength int64           `json:"auction_length"`
	Basket        BasketSnap      `json:"basket"`
	Auctions      AuctionBookSnap `json:"auctions"`
	Fees          FeeLedgerSnap   `json:"fees"`
	Rewards       RewardBookSnap  `json:"rewards"`
}

// Snapshot captures the full fund state.
func (f *Fund) Snapshot() *Snapshot {
	snap := &Snapshot{
		ID:            f.ID,
		AuctionLength: f.AuctionLength,
	}

	snap.Basket.Tokens = append([]BasketToken(nil), f.Basket.tokens...)
	for user, pr := range f.Basket.pending {
		snap.Basket.Pending = append(snap.Basket.Pending, PendingSnap{
			User:    user,
			Entries: append([]PendingEntry(nil), pr.Entries...),
		})
	}

	snap.Auctions.NextID = f.Auctions.nextID
	snap.Auctions.Epoch = f.Auctions.epoch
	snap.Auctions.Ends = make(map[string]int64, len(f.Auctions.ends))
	for k, v := range f.Auctions.ends {
		snap.Auctions.Ends[k] = v
	}
	for _, a := range f.Auctions.auctions {
		snap.Auctions.Auctions = append(snap.Auctions.Auctions, AuctionSnap{
			ID:              a.ID,
			Sell:            a.Sell,
			Buy:             a.Buy,
			SellLimit:       a.SellLimit,
			BuyLimit:        a.BuyLimit,
			ApprovedStart:   a.ApprovedStart,
			ApprovedEnd:     a.ApprovedEnd,
			AvailableAt:     a.AvailableAt,
			StartPrice:      a.StartPrice,
			EndPrice:        a.EndPrice,
			Start:           a.Start,
			End:             a.End,
			K:               a.K,
			Sold:            a.Sold,
			Bought:          a.Bought,
			ClosedForReruns: a.ClosedForReruns,
		})
	}

	fl := f.Fees
	snap.Fees = FeeLedgerSnap{
		Recipients:   append([]FeeRecipient(nil), fl.recipients...),
		FeeNumerator: fl.feeNumerator,
		FeeFloor:     fl.feeFloor,
		DAOShare:     fl.daoShare,
		MintFee:      fl.mintFee,
		DAOReceiver:  fl.daoReceiver,
		LastPoke:     fl.lastPoke,
		Pending:      make(map[string]*big.Int, len(fl.pending)),
		DAOPending:   fl.daoPending,
	}
	for recv, amt := range fl.pending {
		snap.Fees.Pending[recv.String()] = amt
	}

	rb := f.Rewards
	snap.Rewards.HalfLife = rb.halfLife
	snap.Rewards.Ratio = rb.ratio
	for _, rt := range rb.tokens {
		if rt == nil {
			continue
		}
		ts := RewardTokenSnap{RewardToken: *rt}
		for user, pos := range rb.positions[rt.Token] {
			ts.Positions = append(ts.Positions, RewardPositionSnap{
				User:      user,
				LastIndex: pos.LastIndex,
				Accrued:   pos.Accrued,
			})
		}
		snap.Rewards.Tokens = append(snap.Rewards.Tokens, ts)
	}

	return snap
}

// Restore rebuilds a fund from a snapshot.
func Restore(snap *Snapshot) (*Fund, error) {
	f := &Fund{
		ID:            snap.ID,
		AuctionLength: snap.AuctionLength,
		Basket:        NewBasket(),
		Auctions:      NewAuctionBook(),
		Rewards:       NewRewardBook(),
	}

	f.Basket.tokens = append(f.Basket.tokens, snap.Basket.Tokens...)
	for _, ps := range snap.Basket.Pending {
		f.Basket.pending[ps.User] = &PendingRecord{
			Entries: append([]PendingEntry(nil), ps.Entries...),
		}
	}

	f.Auctions.nextID = snap.Auctions.NextID
	f.Auctions.epoch = snap.Auctions.Epoch
	for k, v := range snap.Auctions.Ends {
		f.Auctions.ends[k] = v
	}
	for _, as := range snap.Auctions.Auctions {
		f.Auctions.auctions[as.ID] = &Auction{
			ID:              as.ID,
			Sell:            as.Sell,
			Buy:             as.Buy,
			SellLimit:       as.SellLimit,
			BuyLimit:        as.BuyLimit,
			ApprovedStart:   as.ApprovedStart,
			ApprovedEnd:     as.ApprovedEnd,
			AvailableAt:     as.AvailableAt,
			StartPrice:      as.StartPrice,
			EndPrice:        as.EndPrice,
			Start:           as.Start,
			End:             as.End,
			K:               as.K,
			Sold:            as.Sold,
			Bought:          as.Bought,
			ClosedForReruns: as.ClosedForReruns,
		}
	}

	fs := snap.Fees
	f.Fees = &FeeLedger{
		recipients:   append(make([]FeeRecipient, 0, MaxFeeRecipients), fs.Recipients...),
		feeNumerator: fs.FeeNumerator,
		feeFloor:     fs.FeeFloor,
		daoShare:     fs.DAOShare,
		mintFee:      fs.MintFee,
		daoReceiver:  fs.DAOReceiver,
		lastPoke:     fs.LastPoke,
		pending:      make(map[uuid.UUID]*big.Int, len(fs.Pending)),
		daoPending:   fs.DAOPending,
	}
	if f.Fees.daoPending == nil {
		f.Fees.daoPending = new(big.Int)
	}
	for recv, amt := range fs.Pending {
		id, err := uuid.Parse(recv)
		if err != nil {
			return nil, err
		}
		f.Fees.pending[id] = amt
	}

	f.Rewards.halfLife = snap.Rewards.HalfLife
	f.Rewards.ratio = snap.Rewards.Ratio
	for _, ts := range snap.Rewards.Tokens {
		rt := ts.RewardToken
		f.Rewards.tokens = append(f.Rewards.tokens, &rt)
		if len(ts.Positions) > 0 {
			users := make(map[uuid.UUID]*RewardPosition, len(ts.Positions))
			for _, ps := range ts.Positions {
				users[ps.User] = &RewardPosition{LastIndex: ps.LastIndex, Accrued: ps.Accrued}
			}
			f.Rewards.positions[rt.Token] = users
		}
	}

	return f, nil
}
