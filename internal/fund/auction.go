package fund

import (
	"fmt"
	"math/big"

	"FolioLedger/internal/fixmath"
)

// Auction is one approved sell/buy run. Start and End are zero until
// launched; "running" and "timed out" are derived from (now, start, end),
// only ClosedForReruns is a persisted terminal latch.
type Auction struct {
	ID   uint64
	Sell string
	Buy  string

	SellLimit WeightRange
	BuyLimit  WeightRange

	// Approved bounds. Launch overrides never mutate these; the run
	// prices live below.
	ApprovedStart *big.Int // D18, buy per sell
	ApprovedEnd   *big.Int

	AvailableAt int64 // First instant of permissionless launch

	StartPrice *big.Int
	EndPrice   *big.Int
	Start      int64
	End        int64
	K          *big.Int // D18 decay per second

	// Cumulative fill across bids, checked against the spot limits.
	Sold   *big.Int
	Bought *big.Int

	ClosedForReruns bool
}

func (a *Auction) running(now int64) bool {
	return a.Start > 0 && now >= a.Start && now <= a.End
}

// AuctionBook holds a fund's auctions, the pair-exclusivity index, and
// the rebalance epoch the index is keyed by.
type AuctionBook struct {
	auctions map[uint64]*Auction
	nextID   uint64

	// ends maps "sell|buy@epoch" (canonical lexicographic pair) to the
	// latest end time, enforcing one open auction per pair per epoch.
	ends  map[string]int64
	epoch uint64
}

func NewAuctionBook() *AuctionBook {
	return &AuctionBook{
		auctions: make(map[uint64]*Auction),
		nextID:   1,
		ends:     make(map[string]int64),
	}
}

func pairKey(sell, buy string, epoch uint64) string {
	if buy < sell {
		sell, buy = buy, sell
	}
	return fmt.Sprintf("%s|%s@%d", sell, buy, epoch)
}

// Epoch returns the current rebalance epoch.
func (ab *AuctionBook) Epoch() uint64 { return ab.epoch }

// BumpEpoch starts a new rebalance epoch. Pair exclusivity resets:
// auctions from prior epochs no longer block new opens.
func (ab *AuctionBook) BumpEpoch() { ab.epoch++ }

// Get returns the auction with the given id.
func (ab *AuctionBook) Get(id uint64) (*Auction, error) {
	a, ok := ab.auctions[id]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return a, nil
}

// Approve registers a new auction in the Approved state. The restricted
// launch window lasts ttl seconds; after that anyone may open it
// permissionlessly.
func (ab *AuctionBook) Approve(
	sell, buy string,
	sellLimit, buyLimit WeightRange,
	startPrice, endPrice *big.Int,
	ttl, now int64,
) (*Auction, error) {
	if startPrice == nil || endPrice == nil ||
		endPrice.Sign() <= 0 || startPrice.Cmp(endPrice) < 0 {
		return nil, ErrInvalidPrices
	}
	if ttl <= 0 || ttl > MaxTTL {
		return nil, ErrInvalidTTL
	}
	if err := sellLimit.validate(); err != nil {
		return nil, err
	}
	if err := buyLimit.validate(); err != nil {
		return nil, err
	}

	a := &Auction{
		ID:            ab.nextID,
		Sell:          sell,
		Buy:           buy,
		SellLimit:     sellLimit,
		BuyLimit:      buyLimit,
		ApprovedStart: cloneBig(startPrice),
		ApprovedEnd:   cloneBig(endPrice),
		AvailableAt:   now + ttl,
		Sold:          new(big.Int),
		Bought:        new(big.Int),
	}
	ab.auctions[a.ID] = a
	ab.nextID++
	return a, nil
}

// withinWindow checks the launcher override bound
// approved/100 <= value <= approved*100.
func withinWindow(approved, value *big.Int) bool {
	lo := new(big.Int).Quo(approved, launchWindow)
	hi := new(big.Int).Mul(approved, launchWindow)
	return value.Cmp(lo) >= 0 && value.Cmp(hi) <= 0
}

// Open launches an approved auction. Overrides are optional; nil keeps
// the approved value, non-nil must sit inside the multiplicative window
// of the approved value. length of 0 takes defaultLength.
func (ab *AuctionBook) Open(
	id uint64,
	now int64,
	length, defaultLength int64,
	startPrice, endPrice *big.Int,
	sellSpot, buySpot *big.Int,
) (*Auction, error) {
	a, err := ab.Get(id)
	if err != nil {
		return nil, err
	}

	start := cloneBig(a.ApprovedStart)
	end := cloneBig(a.ApprovedEnd)
	if startPrice != nil {
		if !withinWindow(a.ApprovedStart, startPrice) {
			return nil, ErrBoundViolation
		}
		start = cloneBig(startPrice)
	}
	if endPrice != nil {
		if !withinWindow(a.ApprovedEnd, endPrice) {
			return nil, ErrBoundViolation
		}
		end = cloneBig(endPrice)
	}
	if sellSpot != nil {
		if sellSpot.Cmp(a.SellLimit.Low) < 0 || sellSpot.Cmp(a.SellLimit.High) > 0 {
			return nil, ErrBoundViolation
		}
	}
	if buySpot != nil {
		if buySpot.Cmp(a.BuyLimit.Low) < 0 || buySpot.Cmp(a.BuyLimit.High) > 0 {
			return nil, ErrBoundViolation
		}
	}
	if end.Sign() <= 0 || start.Cmp(end) < 0 {
		return nil, ErrInvalidPrices
	}

	if err := ab.launch(a, now, length, defaultLength, start, end); err != nil {
		return nil, err
	}
	if sellSpot != nil {
		a.SellLimit.Spot = cloneBig(sellSpot)
	}
	if buySpot != nil {
		a.BuyLimit.Spot = cloneBig(buySpot)
	}
	return a, nil
}

// OpenPermissionless launches with the approved bounds unchanged, once
// the restricted window has elapsed.
func (ab *AuctionBook) OpenPermissionless(id uint64, now, defaultLength int64) (*Auction, error) {
	a, err := ab.Get(id)
	if err != nil {
		return nil, err
	}
	if now < a.AvailableAt {
		return nil, ErrNotYetLaunchable
	}
	if err := ab.launch(a, now, 0, defaultLength,
		cloneBig(a.ApprovedStart), cloneBig(a.ApprovedEnd)); err != nil {
		return nil, err
	}
	return a, nil
}

func (ab *AuctionBook) launch(a *Auction, now, length, defaultLength int64, start, end *big.Int) error {
	if a.ClosedForReruns {
		return ErrAuctionClosed
	}
	if a.running(now) {
		return ErrAuctionRunning
	}
	if until, ok := ab.ends[pairKey(a.Sell, a.Buy, ab.epoch)]; ok && now <= until {
		return ErrPairBusy
	}

	if length == 0 {
		length = defaultLength
	}
	if length < MinAuctionLength || length > MaxAuctionLength {
		return ErrInvalidLength
	}

	k, err := decayConstant(start, end, length)
	if err != nil {
		return err
	}

	a.StartPrice = start
	a.EndPrice = end
	a.Start = now
	a.End = now + length
	a.K = k
	ab.ends[pairKey(a.Sell, a.Buy, ab.epoch)] = a.End
	return nil
}

// decayConstant derives k so the exponential curve hits start_price at
// t=0 and end_price at t=length: k = ln(start/end) / length, at D18 per
// second. Equal prices give a flat curve.
func decayConstant(start, end *big.Int, length int64) (*big.Int, error) {
	if start.Cmp(end) == 0 {
		return new(big.Int), nil
	}
	ratio, err := fixmath.DivD18(start, end)
	if err != nil {
		return nil, err
	}
	lnRatio, err := fixmath.Ln(ratio)
	if err != nil {
		return nil, err
	}
	return lnRatio.Quo(lnRatio, big.NewInt(length)), nil
}

// Price evaluates the decayed price at now, clamped to the end price
// once the window has elapsed. The auction must have been launched.
func (ab *AuctionBook) Price(id uint64, now int64) (*big.Int, error) {
	a, err := ab.Get(id)
	if err != nil {
		return nil, err
	}
	if a.Start == 0 || now < a.Start {
		return nil, ErrAuctionNotRunning
	}
	if now >= a.End {
		return cloneBig(a.EndPrice), nil
	}
	x := new(big.Int).Mul(a.K, big.NewInt(now-a.Start))
	decay, err := fixmath.ExpNeg(x)
	if err != nil {
		return nil, err
	}
	p, err := fixmath.MulD18(a.StartPrice, decay)
	if err != nil {
		return nil, err
	}
	return fixmath.Max(p, a.EndPrice), nil
}

// Fill is the outcome of one bid.
type Fill struct {
	SellAmount *big.Int
	BuyAmount  *big.Int
	Price      *big.Int
}

// Bid takes sellAmount out of a running auction at the current price.
// maxBuy, when non-nil, caps the cost. engineID is this engine's own
// identity; a callback naming it is rejected outright.
func (ab *AuctionBook) Bid(
	id uint64,
	now int64,
	sellAmount, maxBuy *big.Int,
	callback, engineID string,
) (*Fill, error) {
	a, err := ab.Get(id)
	if err != nil {
		return nil, err
	}
	if !a.running(now) {
		return nil, ErrAuctionNotRunning
	}
	if sellAmount == nil || sellAmount.Sign() <= 0 {
		return nil, ErrInvalidPrices
	}
	if callback != "" && callback == engineID {
		return nil, ErrSelfCallback
	}

	price, err := ab.Price(id, now)
	if err != nil {
		return nil, err
	}
	bought, err := fixmath.MulD18(sellAmount, price)
	if err != nil {
		return nil, err
	}
	if maxBuy != nil && bought.Cmp(maxBuy) > 0 {
		return nil, ErrBuyCapExceeded
	}

	sold := new(big.Int).Add(a.Sold, sellAmount)
	if sold.Cmp(a.SellLimit.Spot) > 0 {
		return nil, ErrBoundViolation
	}
	total := new(big.Int).Add(a.Bought, bought)
	if total.Cmp(a.BuyLimit.Spot) > 0 {
		return nil, ErrBoundViolation
	}

	a.Sold = sold
	a.Bought = total
	return &Fill{SellAmount: cloneBig(sellAmount), BuyAmount: bought, Price: price}, nil
}

// Close terminates an auction. A running auction ends at now-1; in every
// case the id is latched closed and can never be reopened.
func (ab *AuctionBook) Close(id uint64, now int64) (*Auction, error) {
	a, err := ab.Get(id)
	if err != nil {
		return nil, err
	}
	if a.ClosedForReruns {
		return nil, ErrAuctionClosed
	}
	if a.running(now) {
		a.End = now - 1
		ab.ends[pairKey(a.Sell, a.Buy, ab.epoch)] = a.End
	}
	a.ClosedForReruns = true
	return a, nil
}

// Auctions returns every auction keyed by id.
func (ab *AuctionBook) Auctions() map[uint64]*Auction {
	out := make(map[uint64]*Auction, len(ab.auctions))
	for k, v := range ab.auctions {
		out[k] = v
	}
	return out
}
