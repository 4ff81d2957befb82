package event

import (
	"math/big"

	"github.com/google/uuid"
)

// Notice is an outbound fact emitted by an applied command. Notices ride
// the same envelope as the command that produced them and are published
// after persistence is confirmed.
type Notice interface {
	NoticeType() string
}

type AuctionApproved struct {
	AuctionID  uint64   `json:"auction_id"`
	Sell       string   `json:"sell"`
	Buy        string   `json:"buy"`
	StartPrice *big.Int `json:"start_price"`
	EndPrice   *big.Int `json:"end_price"`
	LaunchBy   int64    `json:"launch_by"`
}

func (AuctionApproved) NoticeType() string { return "auction_approved" }

type AuctionOpened struct {
	AuctionID  uint64   `json:"auction_id"`
	Sell       string   `json:"sell"`
	Buy        string   `json:"buy"`
	StartPrice *big.Int `json:"start_price"`
	EndPrice   *big.Int `json:"end_price"`
	Start      int64    `json:"start"`
	End        int64    `json:"end"`
}

func (AuctionOpened) NoticeType() string { return "auction_opened" }

type AuctionBidPlaced struct {
	AuctionID    uint64    `json:"auction_id"`
	Bidder       uuid.UUID `json:"bidder"`
	SellAmount   *big.Int  `json:"sell_amount"`
	BoughtAmount *big.Int  `json:"bought_amount"`
	Price        *big.Int  `json:"price"`
}

func (AuctionBidPlaced) NoticeType() string { return "auction_bid" }

type AuctionClosed struct {
	AuctionID uint64 `json:"auction_id"`
}

func (AuctionClosed) NoticeType() string { return "auction_closed" }

type FolioFeePoked struct {
	AccruedShares *big.Int `json:"accrued_shares"`
	DAOShares     *big.Int `json:"dao_shares"`
	LastPoke      int64    `json:"last_poke"`
}

func (FolioFeePoked) NoticeType() string { return "folio_fee_poked" }

type FeeRecipientSet struct {
	Receiver uuid.UUID `json:"receiver"`
	Portion  *big.Int  `json:"portion"`
}

func (FeeRecipientSet) NoticeType() string { return "fee_recipient_set" }

type FeeRecipientRemoved struct {
	Receiver uuid.UUID `json:"receiver"`
}

func (FeeRecipientRemoved) NoticeType() string { return "fee_recipient_removed" }

type FeesDistributed struct {
	Receiver uuid.UUID `json:"receiver"`
	Shares   *big.Int  `json:"shares"`
}

func (FeesDistributed) NoticeType() string { return "fees_distributed" }

type MintFeeSet struct {
	Numerator *big.Int `json:"numerator"`
}

func (MintFeeSet) NoticeType() string { return "mint_fee_set" }

type BasketRangeSet struct {
	Token string   `json:"token"`
	Spot  *big.Int `json:"spot"`
	Low   *big.Int `json:"low"`
	High  *big.Int `json:"high"`
}

func (BasketRangeSet) NoticeType() string { return "basket_range_set" }

type DustAmountSet struct {
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

func (DustAmountSet) NoticeType() string { return "dust_amount_set" }

type BasketTokenRemoved struct {
	Token string `json:"token"`
}

func (BasketTokenRemoved) NoticeType() string { return "basket_token_removed" }

type BasketContributionAdded struct {
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

func (BasketContributionAdded) NoticeType() string { return "basket_contribution_added" }

type SharesMinted struct {
	Receiver  uuid.UUID `json:"receiver"`
	Shares    *big.Int  `json:"shares"`
	FeeShares *big.Int  `json:"fee_shares"`
}

func (SharesMinted) NoticeType() string { return "shares_minted" }

type PendingBasketClosed struct{}

func (PendingBasketClosed) NoticeType() string { return "pending_basket_closed" }

type RewardRatioSet struct {
	HalfLife int64    `json:"half_life"`
	Ratio    *big.Int `json:"ratio"` // D18 per second
}

func (RewardRatioSet) NoticeType() string { return "reward_ratio_set" }

type RewardTokenAdded struct {
	Token string `json:"token"`
}

func (RewardTokenAdded) NoticeType() string { return "reward_token_added" }

type RewardTokenRemoved struct {
	Token string `json:"token"`
}

func (RewardTokenRemoved) NoticeType() string { return "reward_token_removed" }

type RewardsAccrued struct {
	Token   string   `json:"token"`
	Emitted *big.Int `json:"emitted"`
	Index   *big.Int `json:"index"`
}

func (RewardsAccrued) NoticeType() string { return "rewards_accrued" }

type RewardsClaimed struct {
	User   uuid.UUID `json:"user"`
	Token  string    `json:"token"`
	Amount *big.Int  `json:"amount"`
}

func (RewardsClaimed) NoticeType() string { return "rewards_claimed" }
