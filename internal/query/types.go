package query

// Raw amounts are D18 fixed-point decimal strings straight from the
// projection tables; the *Display fields are the same values scaled to
// human-readable units.

// AuctionResponse represents an auction for API queries.
type AuctionResponse struct {
	FundID            string `json:"fund_id"`
	AuctionID         int64  `json:"auction_id"`
	Sell              string `json:"sell"`
	Buy               string `json:"buy"`
	StartPrice        string `json:"start_price"`
	StartPriceDisplay string `json:"start_price_display"`
	EndPrice          string `json:"end_price"`
	EndPriceDisplay   string `json:"end_price_display"`
	Status            string `json:"status"`
	LaunchBy          int64  `json:"launch_by"`
	StartAt           *int64 `json:"start_at,omitempty"`
	EndAt             *int64 `json:"end_at,omitempty"`
	Sold              string `json:"sold"`
	Bought            string `json:"bought"`
	AsOfSequence      int64  `json:"as_of_sequence"`
}

// FillResponse represents an auction fill for API queries.
type FillResponse struct {
	FundID       string `json:"fund_id"`
	AuctionID    int64  `json:"auction_id"`
	Bidder       string `json:"bidder"`
	SellAmount   string `json:"sell_amount"`
	BoughtAmount string `json:"bought_amount"`
	Price        string `json:"price"`
	PriceDisplay string `json:"price_display"`
	Sequence     int64  `json:"sequence"`
	At           int64  `json:"at"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// FeeStateResponse represents cumulative fee accrual for a fund.
type FeeStateResponse struct {
	FundID              string `json:"fund_id"`
	AccruedTotal        string `json:"accrued_total"`
	AccruedTotalDisplay string `json:"accrued_total_display"`
	DAOTotal            string `json:"dao_total"`
	DAOTotalDisplay     string `json:"dao_total_display"`
	LastPoke            int64  `json:"last_poke"`
	AsOfSequence        int64  `json:"as_of_sequence"`
}

// FeeFlowResponse represents one fee payout for API queries.
type FeeFlowResponse struct {
	FundID        string `json:"fund_id"`
	Receiver      string `json:"receiver"`
	Shares        string `json:"shares"`
	SharesDisplay string `json:"shares_display"`
	Sequence      int64  `json:"sequence"`
	At            int64  `json:"at"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// BasketTokenResponse represents one basket token's configuration.
type BasketTokenResponse struct {
	FundID       string  `json:"fund_id"`
	Token        string  `json:"token"`
	Spot         string  `json:"spot"`
	Low          string  `json:"low"`
	High         string  `json:"high"`
	Dust         *string `json:"dust,omitempty"`
	AsOfSequence int64   `json:"as_of_sequence"`
}

// RewardIndexResponse represents a reward token's accrual state.
type RewardIndexResponse struct {
	FundID              string `json:"fund_id"`
	Token               string `json:"token"`
	RewardIndex         string `json:"reward_index"`
	EmittedTotal        string `json:"emitted_total"`
	EmittedTotalDisplay string `json:"emitted_total_display"`
	AsOfSequence        int64  `json:"as_of_sequence"`
}

// RewardClaimResponse represents one reward claim for API queries.
type RewardClaimResponse struct {
	FundID        string `json:"fund_id"`
	User          string `json:"user"`
	Token         string `json:"token"`
	Amount        string `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Sequence      int64  `json:"sequence"`
	At            int64  `json:"at"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	LatestSequence  int64   `json:"latest_sequence"`
}
