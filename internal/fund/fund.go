package fund

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"FolioLedger/internal/fixmath"
)

// Hard capacity bounds. These are invariants of the data model, not
// tuning knobs: a single accrual or distribution call must be able to
// touch every entry atomically.
const (
	MaxBasketTokens  = 16
	MaxFeeRecipients = 64
	MaxRewardTokens  = 5
)

// Time bounds in seconds.
const (
	MinAuctionLength int64 = 60
	MaxAuctionLength int64 = 604_800
	MaxTTL           int64 = 4 * 604_800

	MinRewardHalfLife int64 = 86_400
	MaxRewardHalfLife int64 = 1_209_600
)

// Fee bounds at D18.
var (
	// MaxTVLFee caps the annual management fee at 10%.
	MaxTVLFee = big.NewInt(100_000_000_000_000_000)

	// MaxDAOFeeShare caps the protocol cut of accrued fees at 50%.
	MaxDAOFeeShare = big.NewInt(500_000_000_000_000_000)

	// MaxMintFee caps the one-time mint fee at 5%.
	MaxMintFee = big.NewInt(50_000_000_000_000_000)
)

// launchWindow bounds launcher price/limit overrides to
// [approved/100, approved*100].
var launchWindow = big.NewInt(100)

// Config carries the fund-level defaults injected at initialization.
// DAOReceiver is a runtime value, never compiled in.
type Config struct {
	FeeNumerator  *big.Int // D18 annual rate
	FeeFloor      *big.Int // D18 annual floor
	DAOShare      *big.Int // D18 cut of accrued fees
	MintFee       *big.Int // D18 one-time mint fee
	DAOReceiver   uuid.UUID
	AuctionLength int64 // Default run length in seconds
}

// Validate enforces the fee caps on a configuration before it seeds a
// fund. The floor is an annual rate like the numerator and shares its
// cap.
func (c Config) Validate() error {
	check := func(name string, v, max *big.Int) error {
		if v == nil || v.Sign() < 0 || v.Cmp(max) > 0 {
			return fmt.Errorf("%s: %w", name, ErrFeeTooHigh)
		}
		return nil
	}
	if err := check("fee numerator", c.FeeNumerator, MaxTVLFee); err != nil {
		return err
	}
	if err := check("fee floor", c.FeeFloor, MaxTVLFee); err != nil {
		return err
	}
	if err := check("dao share", c.DAOShare, MaxDAOFeeShare); err != nil {
		return err
	}
	return check("mint fee", c.MintFee, MaxMintFee)
}

// Fund is the aggregate for one tokenized basket: its ledger of token
// ranges, the auction book, the fee ledger, and the reward book. All
// mutation goes through command handlers in core; the aggregate itself
// is single-threaded.
type Fund struct {
	ID            string
	AuctionLength int64

	Basket   *Basket
	Auctions *AuctionBook
	Fees     *FeeLedger
	Rewards  *RewardBook
}

// New builds a fund with the configured defaults. createdAt seeds the
// fee clock so the first poke accrues from fund creation, not from zero.
func New(id string, cfg Config, createdAt int64) *Fund {
	length := cfg.AuctionLength
	if length < MinAuctionLength {
		length = MinAuctionLength
	}
	if length > MaxAuctionLength {
		length = MaxAuctionLength
	}
	return &Fund{
		ID:            id,
		AuctionLength: length,
		Basket:        NewBasket(),
		Auctions:      NewAuctionBook(),
		Fees:          NewFeeLedger(cfg, createdAt),
		Rewards:       NewRewardBook(),
	}
}

func cloneBig(v *big.Int) *big.Int {
	return fixmath.Clone(v)
}
