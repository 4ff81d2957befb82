package event

import (
	"math/big"

	"github.com/google/uuid"
)

// Limit is a weight range at D18: spot must sit inside [low, high].
type Limit struct {
	Spot *big.Int
	Low  *big.Int
	High *big.Int
}

// FeeRecipientSpec pairs a receiver with its D18 portion of the fee split.
type FeeRecipientSpec struct {
	Receiver uuid.UUID
	Portion  *big.Int
}

// RewardAccount is a versioned governance-balance observation for one user.
type RewardAccount struct {
	User       uuid.UUID
	GovBalance *big.Int
}

// TokenBalance is a versioned holding observation for one reward token.
type TokenBalance struct {
	Token   string
	Balance *big.Int
}

// Base carries the routing fields shared by every inbound command.
// Timestamp is the versioned input time in unix seconds; the core never
// reads the wall clock.
type Base struct {
	CommandID uuid.UUID // Idempotency key
	Fund      string
	Caller    uuid.UUID
	Roles     []string // Roles granted to the caller by upstream auth
	Seq       int64    // Source sequence from the command gateway
	Timestamp int64
}

func (b *Base) IdempotencyKey() string {
	return b.CommandID.String()
}

func (b *Base) FundID() *string {
	f := b.Fund
	return &f
}

func (b *Base) SourceSequence() int64 {
	return b.Seq
}

func (b *Base) At() int64 {
	return b.Timestamp
}

// ApproveAuction registers an auction pair with its price band and limits.
// Requires the approver role.
type ApproveAuction struct {
	Base
	Sell       string
	Buy        string
	SellLimit  Limit
	BuyLimit   Limit
	StartPrice *big.Int // D18, buy per sell
	EndPrice   *big.Int // D18
	TTL        int64    // Seconds the approval stays launchable
}

func (c *ApproveAuction) CommandType() CommandType { return CommandTypeApproveAuction }

// OpenAuction launches an approved auction. The launcher may override the
// approved prices and tighten limits within the allowed bounds; nil fields
// keep the approved values. Requires the launcher role.
type OpenAuction struct {
	Base
	AuctionID  uint64
	StartPrice *big.Int
	EndPrice   *big.Int
	SellLimit  *big.Int // Spot override inside the approved range
	BuyLimit   *big.Int
	Length     int64 // Run length in seconds, 0 for the fund default
}

func (c *OpenAuction) CommandType() CommandType { return CommandTypeOpenAuction }

// OpenAuctionPermissionless launches an approved auction with no overrides,
// available to anyone once the restricted window has passed.
type OpenAuctionPermissionless struct {
	Base
	AuctionID uint64
}

func (c *OpenAuctionPermissionless) CommandType() CommandType {
	return CommandTypeOpenAuctionPermissionless
}

// Bid takes sell tokens out of a running auction at the current decayed
// price. Callback, when set, names a registered settlement program that
// sources the buy tokens.
type Bid struct {
	Base
	AuctionID    uint64
	SellAmount   *big.Int
	MaxBuyAmount *big.Int // Bid reverts if the cost exceeds this
	Callback     string
}

func (c *Bid) CommandType() CommandType { return CommandTypeBid }

// CloseAuction ends an auction early and blocks any rerun of its ID.
type CloseAuction struct {
	Base
	AuctionID uint64
}

func (c *CloseAuction) CommandType() CommandType { return CommandTypeCloseAuction }

// PokeFolio accrues the management fee up to the command timestamp.
// TotalSupply is the versioned share supply observation the accrual
// is computed against.
type PokeFolio struct {
	Base
	TotalSupply *big.Int
}

func (c *PokeFolio) CommandType() CommandType { return CommandTypePokeFolio }

// UpdateFeeRecipients edits the fee split. Removals apply before
// additions; the surviving portions must sum to exactly 1.0 at D18.
// Requires the owner role.
type UpdateFeeRecipients struct {
	Base
	Add    []FeeRecipientSpec
	Remove []uuid.UUID
}

func (c *UpdateFeeRecipients) CommandType() CommandType { return CommandTypeUpdateFeeRecipients }

// DistributeFees cranks pending fee shares out of the distribution
// ledger. Indices select recipient slots for a bounded partial crank;
// an empty list drains everything, the DAO entry included.
type DistributeFees struct {
	Base
	TotalSupply *big.Int
	Indices     []uint64
}

func (c *DistributeFees) CommandType() CommandType { return CommandTypeDistributeFees }

// SetMintFee sets the one-time minting fee numerator (D18).
// Requires the owner role.
type SetMintFee struct {
	Base
	Numerator *big.Int
}

func (c *SetMintFee) CommandType() CommandType { return CommandTypeSetMintFee }

// SetBasketRange sets or replaces a basket token's weight range.
// Requires the rebalancer role.
type SetBasketRange struct {
	Base
	Token string
	Range Limit
}

func (c *SetBasketRange) CommandType() CommandType { return CommandTypeSetBasketRange }

// SetDustAmount sets the threshold below which a basket token's balance
// is ignored. Requires the rebalancer role.
type SetDustAmount struct {
	Base
	Token  string
	Amount *big.Int
}

func (c *SetDustAmount) CommandType() CommandType { return CommandTypeSetDustAmount }

// RemoveBasketToken tombstones a token's slot. Requires the rebalancer
// role.
type RemoveBasketToken struct {
	Base
	Token string
}

func (c *RemoveBasketToken) CommandType() CommandType { return CommandTypeRemoveBasketToken }

// AddToBasket records a pending contribution toward the next mint.
type AddToBasket struct {
	Base
	Token  string
	Amount *big.Int
}

func (c *AddToBasket) CommandType() CommandType { return CommandTypeAddToBasket }

// MintShares converts the caller's pending contributions into shares,
// charging the one-time mint fee.
type MintShares struct {
	Base
	Shares *big.Int
}

func (c *MintShares) CommandType() CommandType { return CommandTypeMintShares }

// ClosePendingBasket retires the pending basket record; it must be empty.
type ClosePendingBasket struct {
	Base
}

func (c *ClosePendingBasket) CommandType() CommandType { return CommandTypeClosePendingBasket }

// SetRewardRatio sets the reward emission half-life. Requires the owner
// role.
type SetRewardRatio struct {
	Base
	HalfLife int64 // Seconds
}

func (c *SetRewardRatio) CommandType() CommandType { return CommandTypeSetRewardRatio }

// AddRewardToken registers a token for reward emission. Requires the
// owner role.
type AddRewardToken struct {
	Base
	Token string
}

func (c *AddRewardToken) CommandType() CommandType { return CommandTypeAddRewardToken }

// RemoveRewardToken disallows a reward token permanently. Requires the
// owner role.
type RemoveRewardToken struct {
	Base
	Token string
}

func (c *RemoveRewardToken) CommandType() CommandType { return CommandTypeRemoveRewardToken }

// AccrueRewards advances the global reward indices and credits the named
// accounts. GovTotal, Accounts, and Balances are versioned observations
// taken at the command timestamp.
type AccrueRewards struct {
	Base
	GovTotal *big.Int
	Accounts []RewardAccount
	Balances []TokenBalance
}

func (c *AccrueRewards) CommandType() CommandType { return CommandTypeAccrueRewards }

// ClaimRewards pays out the caller's accrued rewards. An empty token list
// claims every registered token.
type ClaimRewards struct {
	Base
	Tokens []string
}

func (c *ClaimRewards) CommandType() CommandType { return CommandTypeClaimRewards }
