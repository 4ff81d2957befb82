package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"FolioLedger/internal/event"
)

// ParseRawCommand converts a RawCommand into a typed event.Command. The
// command kind is carried by the subject: folio.commands.<family>.<action>[.<fund>].
// The ingestion shell validates and parses; the core never sees raw bytes.
func ParseRawCommand(raw RawCommand) (event.Command, error) {
	kind := commandKind(raw.Subject)
	switch kind {
	case "auction.approve":
		return parseApproveAuction(raw.Data)
	case "auction.open":
		return parseOpenAuction(raw.Data)
	case "auction.open_permissionless":
		return parseOpenAuctionPermissionless(raw.Data)
	case "auction.bid":
		return parseBid(raw.Data)
	case "auction.close":
		return parseCloseAuction(raw.Data)
	case "fees.poke":
		return parsePokeFolio(raw.Data)
	case "fees.update_recipients":
		return parseUpdateFeeRecipients(raw.Data)
	case "fees.distribute":
		return parseDistributeFees(raw.Data)
	case "fees.set_mint_fee":
		return parseSetMintFee(raw.Data)
	case "basket.set_range":
		return parseSetBasketRange(raw.Data)
	case "basket.set_dust":
		return parseSetDustAmount(raw.Data)
	case "basket.remove":
		return parseRemoveBasketToken(raw.Data)
	case "basket.add":
		return parseAddToBasket(raw.Data)
	case "basket.mint":
		return parseMintShares(raw.Data)
	case "basket.close_pending":
		return parseClosePendingBasket(raw.Data)
	case "rewards.set_ratio":
		return parseSetRewardRatio(raw.Data)
	case "rewards.add_token":
		return parseAddRewardToken(raw.Data)
	case "rewards.remove_token":
		return parseRemoveRewardToken(raw.Data)
	case "rewards.accrue":
		return parseAccrueRewards(raw.Data)
	case "rewards.claim":
		return parseClaimRewards(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command subject: %s", raw.Subject)
	}
}

// SubjectForCommandType maps a stored command type name back to its
// canonical subject. Replay reparses logged payloads through the same
// wire path as live traffic.
func SubjectForCommandType(commandType string) string {
	kinds := map[string]string{
		"ApproveAuction":            "auction.approve",
		"OpenAuction":               "auction.open",
		"OpenAuctionPermissionless": "auction.open_permissionless",
		"Bid":                       "auction.bid",
		"CloseAuction":              "auction.close",
		"PokeFolio":                 "fees.poke",
		"UpdateFeeRecipients":       "fees.update_recipients",
		"DistributeFees":            "fees.distribute",
		"SetMintFee":                "fees.set_mint_fee",
		"SetBasketRange":            "basket.set_range",
		"SetDustAmount":             "basket.set_dust",
		"RemoveBasketToken":         "basket.remove",
		"AddToBasket":               "basket.add",
		"MintShares":                "basket.mint",
		"ClosePendingBasket":        "basket.close_pending",
		"SetRewardRatio":            "rewards.set_ratio",
		"AddRewardToken":            "rewards.add_token",
		"RemoveRewardToken":         "rewards.remove_token",
		"AccrueRewards":             "rewards.accrue",
		"ClaimRewards":              "rewards.claim",
	}
	kind, ok := kinds[commandType]
	if !ok {
		return ""
	}
	return "folio.commands." + kind
}

// commandKind extracts "<family>.<action>" from the subject.
func commandKind(subject string) string {
	rest, ok := strings.CutPrefix(subject, "folio.commands.")
	if !ok {
		return ""
	}
	parts := strings.SplitN(rest, ".", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Fixed-point
// amounts travel as decimal strings so no precision is lost in transit.

type baseJSON struct {
	CommandID string   `json:"command_id"`
	Fund      string   `json:"fund"`
	Caller    string   `json:"caller"`
	Roles     []string `json:"roles"`
	Sequence  int64    `json:"sequence"`
	Timestamp int64    `json:"timestamp"` // unix seconds
}

func (j *baseJSON) toBase() (event.Base, error) {
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return event.Base{}, fmt.Errorf("parse command_id: %w", err)
	}
	caller := uuid.Nil
	if j.Caller != "" {
		caller, err = uuid.Parse(j.Caller)
		if err != nil {
			return event.Base{}, fmt.Errorf("parse caller: %w", err)
		}
	}
	if j.Fund == "" {
		return event.Base{}, fmt.Errorf("missing fund")
	}
	return event.Base{
		CommandID: commandID,
		Fund:      j.Fund,
		Caller:    caller,
		Roles:     j.Roles,
		Seq:       j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

func parseBig(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s: not a decimal integer: %q", field, s)
	}
	return v, nil
}

// parseBigOpt treats an absent value as nil (keep-the-default semantics).
func parseBigOpt(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseBig(s, field)
}

type limitJSON struct {
	Spot string `json:"spot"`
	Low  string `json:"low"`
	High string `json:"high"`
}

func (j *limitJSON) toLimit(field string) (event.Limit, error) {
	spot, err := parseBig(j.Spot, field+".spot")
	if err != nil {
		return event.Limit{}, err
	}
	low, err := parseBig(j.Low, field+".low")
	if err != nil {
		return event.Limit{}, err
	}
	high, err := parseBig(j.High, field+".high")
	if err != nil {
		return event.Limit{}, err
	}
	return event.Limit{Spot: spot, Low: low, High: high}, nil
}

type approveAuctionJSON struct {
	baseJSON
	Sell       string    `json:"sell"`
	Buy        string    `json:"buy"`
	SellLimit  limitJSON `json:"sell_limit"`
	BuyLimit   limitJSON `json:"buy_limit"`
	StartPrice string    `json:"start_price"`
	EndPrice   string    `json:"end_price"`
	TTL        int64     `json:"ttl"`
}

func parseApproveAuction(data []byte) (*event.ApproveAuction, error) {
	var j approveAuctionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ApproveAuction: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	sellLimit, err := j.SellLimit.toLimit("sell_limit")
	if err != nil {
		return nil, err
	}
	buyLimit, err := j.BuyLimit.toLimit("buy_limit")
	if err != nil {
		return nil, err
	}
	startPrice, err := parseBig(j.StartPrice, "start_price")
	if err != nil {
		return nil, err
	}
	endPrice, err := parseBig(j.EndPrice, "end_price")
	if err != nil {
		return nil, err
	}
	return &event.ApproveAuction{
		Base:       base,
		Sell:       j.Sell,
		Buy:        j.Buy,
		SellLimit:  sellLimit,
		BuyLimit:   buyLimit,
		StartPrice: startPrice,
		EndPrice:   endPrice,
		TTL:        j.TTL,
	}, nil
}

type openAuctionJSON struct {
	baseJSON
	AuctionID  uint64 `json:"auction_id"`
	StartPrice string `json:"start_price,omitempty"`
	EndPrice   string `json:"end_price,omitempty"`
	SellLimit  string `json:"sell_limit,omitempty"`
	BuyLimit   string `json:"buy_limit,omitempty"`
	Length     int64  `json:"length,omitempty"`
}

func parseOpenAuction(data []byte) (*event.OpenAuction, error) {
	var j openAuctionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OpenAuction: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	startPrice, err := parseBigOpt(j.StartPrice, "start_price")
	if err != nil {
		return nil, err
	}
	endPrice, err := parseBigOpt(j.EndPrice, "end_price")
	if err != nil {
		return nil, err
	}
	sellLimit, err := parseBigOpt(j.SellLimit, "sell_limit")
	if err != nil {
		return nil, err
	}
	buyLimit, err := parseBigOpt(j.BuyLimit, "buy_limit")
	if err != nil {
		return nil, err
	}
	return &event.OpenAuction{
		Base:       base,
		AuctionID:  j.AuctionID,
		StartPrice: startPrice,
		EndPrice:   endPrice,
		SellLimit:  sellLimit,
		BuyLimit:   buyLimit,
		Length:     j.Length,
	}, nil
}

type auctionIDJSON struct {
	baseJSON
	AuctionID uint64 `json:"auction_id"`
}

func parseOpenAuctionPermissionless(data []byte) (*event.OpenAuctionPermissionless, error) {
	var j auctionIDJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OpenAuctionPermissionless: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &event.OpenAuctionPermissionless{Base: base, AuctionID: j.AuctionID}, nil
}

type bidJSON struct {
	baseJSON
	AuctionID    uint64 `json:"auction_id"`
	SellAmount   string `json:"sell_amount"`
	MaxBuyAmount string `json:"max_buy_amount,omitempty"`
	Callback     string `json:"callback,omitempty"`
}

func parseBid(data []byte) (*event.Bid, error) {
	var j bidJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Bid: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	sellAmount, err := parseBig(j.SellAmount, "sell_amount")
	if err != nil {
		return nil, err
	}
	maxBuy, err := parseBigOpt(j.MaxBuyAmount, "max_buy_amount")
	if err != nil {
		return nil, err
	}
	return &event.Bid{
		Base:         base,
		AuctionID:    j.AuctionID,
		SellAmount:   sellAmount,
		MaxBuyAmount: maxBuy,
		Callback:     j.Callback,
	}, nil
}

func parseCloseAuction(data []byte) (*event.CloseAuction, error) {
	var j auctionIDJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CloseAuction: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &event.CloseAuction{Base: base, AuctionID: j.AuctionID}, nil
}

type pokeJSON struct {
	baseJSON
	TotalSupply string `json:"total_supply"`
}

func parsePokeFolio(data []byte) (*event.PokeFolio, error) {
	var j pokeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PokeFolio: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	supply, err := parseBig(j.TotalSupply, "total_supply")
	if err != nil {
		return nil, err
	}
	return &event.PokeFolio{Base: base, TotalSupply: supply}, nil
}

type feeRecipientJSON struct {
	Receiver string `json:"receiver"`
	Portion  string `json:"portion"`
}

type updateFeeRecipientsJSON struct {
	baseJSON
	Add    []feeRecipientJSON `json:"add,omitempty"`
	Remove []string           `json:"remove,omitempty"`
}

func parseUpdateFeeRecipients(data []byte) (*event.UpdateFeeRecipients, error) {
	var j updateFeeRecipientsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpdateFeeRecipients: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	add := make([]event.FeeRecipientSpec, 0, len(j.Add))
	for _, r := range j.Add {
		receiver, err := uuid.Parse(r.Receiver)
		if err != nil {
			return nil, fmt.Errorf("parse receiver: %w", err)
		}
		portion, err := parseBig(r.Portion, "portion")
		if err != nil {
			return nil, err
		}
		add = append(add, event.FeeRecipientSpec{Receiver: receiver, Portion: portion})
	}
	remove := make([]uuid.UUID, 0, len(j.Remove))
	for _, r := range j.Remove {
		receiver, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("parse remove receiver: %w", err)
		}
		remove = append(remove, receiver)
	}
	return &event.UpdateFeeRecipients{Base: base, Add: add, Remove: remove}, nil
}

type distributeFeesJSON struct {
	baseJSON
	TotalSupply string   `json:"total_supply"`
	Indices     []uint64 `json:"indices"`
}

func parseDistributeFees(data []byte) (*event.DistributeFees, error) {
	var j distributeFeesJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DistributeFees: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	supply, err := parseBigOpt(j.TotalSupply, "total_supply")
	if err != nil {
		return nil, err
	}
	return &event.DistributeFees{Base: base, TotalSupply: supply, Indices: j.Indices}, nil
}

type setMintFeeJSON struct {
	baseJSON
	Numerator string `json:"numerator"`
}

func parseSetMintFee(data []byte) (*event.SetMintFee, error) {
	var j setMintFeeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetMintFee: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	numerator, err := parseBig(j.Numerator, "numerator")
	if err != nil {
		return nil, err
	}
	return &event.SetMintFee{Base: base, Numerator: numerator}, nil
}

type setBasketRangeJSON struct {
	baseJSON
	Token string    `json:"token"`
	Range limitJSON `json:"range"`
}

func parseSetBasketRange(data []byte) (*event.SetBasketRange, error) {
	var j setBasketRangeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetBasketRange: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	r, err := j.Range.toLimit("range")
	if err != nil {
		return nil, err
	}
	return &event.SetBasketRange{Base: base, Token: j.Token, Range: r}, nil
}

type tokenAmountJSON struct {
	baseJSON
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func parseSetDustAmount(data []byte) (*event.SetDustAmount, error) {
	var j tokenAmountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetDustAmount: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	amount, err := parseBig(j.Amount, "amount")
	if err != nil {
		return nil, err
	}
	return &event.SetDustAmount{Base: base, Token: j.Token, Amount: amount}, nil
}

func parseRemoveBasketToken(data []byte) (*event.RemoveBasketToken, error) {
	var j tokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RemoveBasketToken: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &event.RemoveBasketToken{Base: base, Token: j.Token}, nil
}

func parseAddToBasket(data []byte) (*event.AddToBasket, error) {
	var j tokenAmountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AddToBasket: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	amount, err := parseBig(j.Amount, "amount")
	if err != nil {
		return nil, err
	}
	return &event.AddToBasket{Base: base, Token: j.Token, Amount: amount}, nil
}

type mintSharesJSON struct {
	baseJSON
	Shares string `json:"shares"`
}

func parseMintShares(data []byte) (*event.MintShares, error) {
	var j mintSharesJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MintShares: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	shares, err := parseBig(j.Shares, "shares")
	if err != nil {
		return nil, err
	}
	return &event.MintShares{Base: base, Shares: shares}, nil
}

func parseClosePendingBasket(data []byte) (*event.ClosePendingBasket, error) {
	var j baseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClosePendingBasket: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &event.ClosePendingBasket{Base: base}, nil
}

type setRewardRatioJSON struct {
	baseJSON
	HalfLife int64 `json:"half_life"`
}

func parseSetRewardRatio(data []byte) (*event.SetRewardRatio, error) {
	var j setRewardRatioJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetRewardRatio: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &event.SetRewardRatio{Base: base, HalfLife: j.HalfLife}, nil
}

type tokenJSON struct {
	baseJSON
	Token string `json:"token"`
}

func parseAddRewardToken(data []byte) (*event.AddRewardToken, error) {
	var j tokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AddRewardToken: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &event.AddRewardToken{Base: base, Token: j.Token}, nil
}

func parseRemoveRewardToken(data []byte) (*event.RemoveRewardToken, error) {
	var j tokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RemoveRewardToken: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &event.RemoveRewardToken{Base: base, Token: j.Token}, nil
}

type rewardAccountJSON struct {
	User       string `json:"user"`
	GovBalance string `json:"gov_balance"`
}

type tokenBalanceJSON struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type accrueRewardsJSON struct {
	baseJSON
	GovTotal string              `json:"gov_total"`
	Accounts []rewardAccountJSON `json:"accounts,omitempty"`
	Balances []tokenBalanceJSON  `json:"balances,omitempty"`
}

func parseAccrueRewards(data []byte) (*event.AccrueRewards, error) {
	var j accrueRewardsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AccrueRewards: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	govTotal, err := parseBig(j.GovTotal, "gov_total")
	if err != nil {
		return nil, err
	}
	accounts := make([]event.RewardAccount, 0, len(j.Accounts))
	for _, a := range j.Accounts {
		user, err := uuid.Parse(a.User)
		if err != nil {
			return nil, fmt.Errorf("parse account user: %w", err)
		}
		gov, err := parseBig(a.GovBalance, "gov_balance")
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, event.RewardAccount{User: user, GovBalance: gov})
	}
	balances := make([]event.TokenBalance, 0, len(j.Balances))
	for _, b := range j.Balances {
		balance, err := parseBig(b.Balance, "balance")
		if err != nil {
			return nil, err
		}
		balances = append(balances, event.TokenBalance{Token: b.Token, Balance: balance})
	}
	return &event.AccrueRewards{
		Base:     base,
		GovTotal: govTotal,
		Accounts: accounts,
		Balances: balances,
	}, nil
}

type claimRewardsJSON struct {
	baseJSON
	Tokens []string `json:"tokens,omitempty"`
}

func parseClaimRewards(data []byte) (*event.ClaimRewards, error) {
	var j claimRewardsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimRewards: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &event.ClaimRewards{Base: base, Tokens: j.Tokens}, nil
}
