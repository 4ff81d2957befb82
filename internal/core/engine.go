package core

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"FolioLedger/internal/event"
	"FolioLedger/internal/fund"
	"FolioLedger/internal/observability"

	"github.com/google/uuid"
)

// FolioCore is the single-threaded command processor. Every state
// transition runs here: validate, apply, hash, emit. The core never
// reads the wall clock for domain logic; command timestamps are
// versioned inputs.
type FolioCore struct {
	sequence int64
	hasher   *StateHasher

	funds    map[string]*fund.Fund
	defaults fund.Config
	engineID string

	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is one applied command ready for persistence, projection,
// and outbound publishing.
type CoreOutput struct {
	Envelope   *event.Envelope
	Notices    []event.Notice
	StateDelta []byte
}

func NewFolioCore(
	startSequence int64,
	defaults fund.Config,
	engineID string,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *FolioCore {
	return &FolioCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		funds:             make(map[string]*fund.Fund),
		defaults:          defaults,
		engineID:          engineID,
		idempotency:       NewIdempotencyChecker(1_000_000, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// Sequence returns the next global sequence to be assigned.
func (c *FolioCore) Sequence() int64 {
	return c.sequence
}

// Fund returns the aggregate for a fund id, if it exists.
func (c *FolioCore) Fund(id string) (*fund.Fund, bool) {
	f, ok := c.funds[id]
	return f, ok
}

// getFund lazily creates the aggregate on first reference. Fund
// provisioning is upstream's concern; the first command for an id
// instantiates it with the configured defaults.
func (c *FolioCore) getFund(id string, at int64) *fund.Fund {
	if f, ok := c.funds[id]; ok {
		return f
	}
	f := fund.New(id, c.defaults, at)
	c.funds[id] = f
	return f
}

// ProcessCommand is the main processing pipeline.
func (c *FolioCore) ProcessCommand(cmd event.Command, payload []byte) error {
	start := time.Now()
	commandType := cmd.CommandType().String()
	idempotencyKey := cmd.IdempotencyKey()

	// Two-tier idempotency check.
	isDuplicate := c.idempotency.IsDuplicate(commandType, idempotencyKey)

	// Sequence validation. Permissionless cranks arrive from many
	// uncoordinated callers, so their partitions tolerate gaps.
	partition := c.getPartition(cmd)
	sourceSequence := cmd.SourceSequence()

	if isCrank(cmd.CommandType()) {
		if err := c.sequenceValidator.ValidateCrankSequence(partition, sourceSequence); err != nil {
			return err
		}
	} else {
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreCommandsRejected.WithLabelValues(commandType, "duplicate").Inc()
		}
		return nil
	}

	// Dispatch. Handlers validate every precondition before mutating,
	// so a returned error means no state changed.
	notices, err := c.dispatch(cmd)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreCommandsRejected.WithLabelValues(commandType, "validation").Inc()
		}
		return fmt.Errorf("dispatch %s: %w", commandType, err)
	}

	stateDigest := c.computeStateDigest(cmd, notices)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	envelope := &event.Envelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		CommandType:    cmd.CommandType(),
		FundID:         cmd.FundID(),
		At:             cmd.At(),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Notices:    notices,
		StateDelta: stateDigest,
	}
	c.sequence++

	// Persistence gets a blocking send: the core stalls until the
	// persistence worker drains, so nothing is lost. Projections get a
	// non-blocking send and rebuild from the event log if they lag.
	c.persistChan <- output
	select {
	case c.projectionChan <- output:
	default:
		if c.metrics != nil {
			c.metrics.ProjectionDrops.WithLabelValues("core").Inc()
		}
	}

	c.idempotency.MarkProcessed(commandType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreCommandsApplied.WithLabelValues(commandType).Inc()
		c.metrics.CoreCommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

func (c *FolioCore) getPartition(cmd event.Command) string {
	if fundID := cmd.FundID(); fundID != nil {
		return fmt.Sprintf("fund:%s", *fundID)
	}
	return "global"
}

// isCrank reports whether a command type is a permissionless crank.
func isCrank(ct event.CommandType) bool {
	switch ct {
	case event.CommandTypePokeFolio, event.CommandTypeAccrueRewards, event.CommandTypeDistributeFees:
		return true
	}
	return false
}

// digestNotice is the deterministic serialized form hashed per notice.
type digestNotice struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

type digestFrame struct {
	CommandType string         `json:"command_type"`
	FundID      *string        `json:"fund_id"`
	At          int64          `json:"at"`
	Notices     []digestNotice `json:"notices"`
}

// computeStateDigest serializes the transition outcome. Notices encode
// via fixed-order struct fields, so the bytes are deterministic for a
// given command stream.
func (c *FolioCore) computeStateDigest(cmd event.Command, notices []event.Notice) []byte {
	frame := digestFrame{
		CommandType: cmd.CommandType().String(),
		FundID:      cmd.FundID(),
		At:          cmd.At(),
		Notices:     make([]digestNotice, 0, len(notices)),
	}
	for _, n := range notices {
		body, err := json.Marshal(n)
		if err != nil {
			panic(fmt.Sprintf("FATAL: notice not serializable: %v", err))
		}
		frame.Notices = append(frame.Notices, digestNotice{Type: n.NoticeType(), Body: body})
	}
	out, err := json.Marshal(frame)
	if err != nil {
		panic(fmt.Sprintf("FATAL: digest frame not serializable: %v", err))
	}
	return out
}

func (c *FolioCore) dispatch(cmd event.Command) ([]event.Notice, error) {
	switch e := cmd.(type) {
	case *event.ApproveAuction:
		return c.handleApproveAuction(e)
	case *event.OpenAuction:
		return c.handleOpenAuction(e)
	case *event.OpenAuctionPermissionless:
		return c.handleOpenAuctionPermissionless(e)
	case *event.Bid:
		return c.handleBid(e)
	case *event.CloseAuction:
		return c.handleCloseAuction(e)
	case *event.PokeFolio:
		return c.handlePokeFolio(e)
	case *event.UpdateFeeRecipients:
		return c.handleUpdateFeeRecipients(e)
	case *event.DistributeFees:
		return c.handleDistributeFees(e)
	case *event.SetMintFee:
		return c.handleSetMintFee(e)
	case *event.SetBasketRange:
		return c.handleSetBasketRange(e)
	case *event.SetDustAmount:
		return c.handleSetDustAmount(e)
	case *event.RemoveBasketToken:
		return c.handleRemoveBasketToken(e)
	case *event.AddToBasket:
		return c.handleAddToBasket(e)
	case *event.MintShares:
		return c.handleMintShares(e)
	case *event.ClosePendingBasket:
		return c.handleClosePendingBasket(e)
	case *event.SetRewardRatio:
		return c.handleSetRewardRatio(e)
	case *event.AddRewardToken:
		return c.handleAddRewardToken(e)
	case *event.RemoveRewardToken:
		return c.handleRemoveRewardToken(e)
	case *event.AccrueRewards:
		return c.handleAccrueRewards(e)
	case *event.ClaimRewards:
		return c.handleClaimRewards(e)
	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

func requireRole(roles []string, want ...fund.Role) error {
	if !fund.ParseRoles(roles).HasAny(want...) {
		return fund.ErrUnauthorized
	}
	return nil
}

func (c *FolioCore) handleApproveAuction(e *event.ApproveAuction) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleApprover); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	a, err := f.Auctions.Approve(
		e.Sell, e.Buy,
		fund.WeightRange(e.SellLimit), fund.WeightRange(e.BuyLimit),
		e.StartPrice, e.EndPrice,
		e.TTL, e.At(),
	)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.AuctionsApproved.Inc()
	}
	return []event.Notice{event.AuctionApproved{
		AuctionID:  a.ID,
		Sell:       a.Sell,
		Buy:        a.Buy,
		StartPrice: a.ApprovedStart,
		EndPrice:   a.ApprovedEnd,
		LaunchBy:   a.AvailableAt,
	}}, nil
}

func (c *FolioCore) handleOpenAuction(e *event.OpenAuction) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleLauncher); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	a, err := f.Auctions.Open(
		e.AuctionID, e.At(),
		e.Length, f.AuctionLength,
		e.StartPrice, e.EndPrice,
		e.SellLimit, e.BuyLimit,
	)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.AuctionsOpened.WithLabelValues("launcher").Inc()
	}
	return []event.Notice{openedNotice(a)}, nil
}

func (c *FolioCore) handleOpenAuctionPermissionless(e *event.OpenAuctionPermissionless) ([]event.Notice, error) {
	f := c.getFund(e.Fund, e.At())

	a, err := f.Auctions.OpenPermissionless(e.AuctionID, e.At(), f.AuctionLength)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.AuctionsOpened.WithLabelValues("permissionless").Inc()
	}
	return []event.Notice{openedNotice(a)}, nil
}

func openedNotice(a *fund.Auction) event.Notice {
	return event.AuctionOpened{
		AuctionID:  a.ID,
		Sell:       a.Sell,
		Buy:        a.Buy,
		StartPrice: a.StartPrice,
		EndPrice:   a.EndPrice,
		Start:      a.Start,
		End:        a.End,
	}
}

func (c *FolioCore) handleBid(e *event.Bid) ([]event.Notice, error) {
	f := c.getFund(e.Fund, e.At())

	fill, err := f.Auctions.Bid(e.AuctionID, e.At(), e.SellAmount, e.MaxBuyAmount, e.Callback, c.engineID)
	if err != nil {
		return nil, err
	}

	a, err := f.Auctions.Get(e.AuctionID)
	if err != nil {
		return nil, err
	}
	if err := f.Basket.SettleTrade(a.Sell, a.Buy, fill.SellAmount, fill.BuyAmount); err != nil {
		// The fill already advanced the auction's cumulative totals.
		// Settlement is part of the same atomic transition, so unwind
		// the fill before reporting failure.
		a.Sold.Sub(a.Sold, fill.SellAmount)
		a.Bought.Sub(a.Bought, fill.BuyAmount)
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.AuctionBids.Inc()
	}
	return []event.Notice{event.AuctionBidPlaced{
		AuctionID:    e.AuctionID,
		Bidder:       e.Caller,
		SellAmount:   fill.SellAmount,
		BoughtAmount: fill.BuyAmount,
		Price:        fill.Price,
	}}, nil
}

func (c *FolioCore) handleCloseAuction(e *event.CloseAuction) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleApprover, fund.RoleLauncher, fund.RoleOwner); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	a, err := f.Auctions.Close(e.AuctionID, e.At())
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.AuctionsClosed.Inc()
	}
	return []event.Notice{event.AuctionClosed{AuctionID: a.ID}}, nil
}

func (c *FolioCore) handlePokeFolio(e *event.PokeFolio) ([]event.Notice, error) {
	f := c.getFund(e.Fund, e.At())

	accrued, daoCut, err := f.Fees.Poke(e.TotalSupply, e.At())
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.FeePokes.Inc()
	}
	return []event.Notice{event.FolioFeePoked{
		AccruedShares: accrued,
		DAOShares:     daoCut,
		LastPoke:      f.Fees.LastPoke(),
	}}, nil
}

func (c *FolioCore) handleUpdateFeeRecipients(e *event.UpdateFeeRecipients) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleOwner); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	add := make([]fund.FeeRecipient, 0, len(e.Add))
	for _, r := range e.Add {
		add = append(add, fund.FeeRecipient{Receiver: r.Receiver, Portion: r.Portion})
	}
	if err := f.Fees.UpdateRecipients(add, e.Remove); err != nil {
		return nil, err
	}

	notices := make([]event.Notice, 0, len(e.Remove)+len(add))
	for _, r := range e.Remove {
		notices = append(notices, event.FeeRecipientRemoved{Receiver: r})
	}
	for _, r := range add {
		notices = append(notices, event.FeeRecipientSet{Receiver: r.Receiver, Portion: r.Portion})
	}
	if c.metrics != nil {
		c.metrics.FeeRecipientsCount.Set(float64(len(f.Fees.Recipients())))
	}
	return notices, nil
}

func (c *FolioCore) handleDistributeFees(e *event.DistributeFees) ([]event.Notice, error) {
	f := c.getFund(e.Fund, e.At())

	// Indices validate before the accrual so a rejected crank mutates
	// nothing.
	if err := f.Fees.CheckIndices(e.Indices); err != nil {
		return nil, err
	}

	// Accrue up to the crank's timestamp first so the distribution
	// includes everything owed through now.
	if e.TotalSupply != nil && e.TotalSupply.Sign() > 0 {
		if _, _, err := f.Fees.Poke(e.TotalSupply, e.At()); err != nil {
			return nil, err
		}
	}

	payouts, err := f.Fees.Distribute(e.Indices)
	if err != nil {
		return nil, err
	}
	notices := make([]event.Notice, 0, len(payouts))
	for _, p := range payouts {
		notices = append(notices, event.FeesDistributed{Receiver: p.Receiver, Shares: p.Shares})
	}
	if c.metrics != nil {
		c.metrics.FeeDistributions.Inc()
	}
	return notices, nil
}

func (c *FolioCore) handleSetMintFee(e *event.SetMintFee) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleOwner); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	if err := f.Fees.SetMintFee(e.Numerator); err != nil {
		return nil, err
	}
	return []event.Notice{event.MintFeeSet{Numerator: e.Numerator}}, nil
}

func (c *FolioCore) handleSetBasketRange(e *event.SetBasketRange) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleRebalancer); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	if err := f.Basket.SetRange(e.Token, fund.WeightRange(e.Range)); err != nil {
		return nil, err
	}
	// A new target range starts a new rebalance epoch: pair exclusivity
	// from the previous configuration no longer applies.
	f.Auctions.BumpEpoch()

	return []event.Notice{event.BasketRangeSet{
		Token: e.Token,
		Spot:  e.Range.Spot,
		Low:   e.Range.Low,
		High:  e.Range.High,
	}}, nil
}

func (c *FolioCore) handleSetDustAmount(e *event.SetDustAmount) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleRebalancer); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	if err := f.Basket.SetDust(e.Token, e.Amount); err != nil {
		return nil, err
	}
	return []event.Notice{event.DustAmountSet{Token: e.Token, Amount: e.Amount}}, nil
}

func (c *FolioCore) handleRemoveBasketToken(e *event.RemoveBasketToken) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleRebalancer); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	if err := f.Basket.RemoveToken(e.Token); err != nil {
		return nil, err
	}
	return []event.Notice{event.BasketTokenRemoved{Token: e.Token}}, nil
}

func (c *FolioCore) handleAddToBasket(e *event.AddToBasket) ([]event.Notice, error) {
	f := c.getFund(e.Fund, e.At())

	if err := f.Basket.AddPending(e.Caller, e.Token, e.Amount); err != nil {
		return nil, err
	}
	return []event.Notice{event.BasketContributionAdded{Token: e.Token, Amount: e.Amount}}, nil
}

func (c *FolioCore) handleMintShares(e *event.MintShares) ([]event.Notice, error) {
	f := c.getFund(e.Fund, e.At())

	if e.Shares == nil || e.Shares.Sign() <= 0 {
		return nil, fund.ErrZeroSupply
	}
	if _, err := f.Basket.ConsumePending(e.Caller); err != nil {
		return nil, err
	}
	feeShares, err := f.Fees.ApplyMintFee(e.Shares)
	if err != nil {
		return nil, err
	}
	return []event.Notice{event.SharesMinted{
		Receiver:  e.Caller,
		Shares:    e.Shares,
		FeeShares: feeShares,
	}}, nil
}

func (c *FolioCore) handleClosePendingBasket(e *event.ClosePendingBasket) ([]event.Notice, error) {
	f := c.getFund(e.Fund, e.At())

	if err := f.Basket.ClosePending(e.Caller); err != nil {
		return nil, err
	}
	return []event.Notice{event.PendingBasketClosed{}}, nil
}

func (c *FolioCore) handleSetRewardRatio(e *event.SetRewardRatio) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleOwner); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	if err := f.Rewards.SetRatio(e.HalfLife); err != nil {
		return nil, err
	}
	return []event.Notice{event.RewardRatioSet{
		HalfLife: e.HalfLife,
		Ratio:    f.Rewards.Ratio(),
	}}, nil
}

func (c *FolioCore) handleAddRewardToken(e *event.AddRewardToken) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleOwner); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	if err := f.Rewards.AddToken(e.Token, e.At()); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RewardTokensTracked.Set(float64(len(f.Rewards.Tokens())))
	}
	return []event.Notice{event.RewardTokenAdded{Token: e.Token}}, nil
}

func (c *FolioCore) handleRemoveRewardToken(e *event.RemoveRewardToken) ([]event.Notice, error) {
	if err := requireRole(e.Roles, fund.RoleOwner); err != nil {
		return nil, err
	}
	f := c.getFund(e.Fund, e.At())

	if err := f.Rewards.RemoveToken(e.Token); err != nil {
		return nil, err
	}
	// A disallowed token that is already fully settled frees its slot
	// at once; otherwise the slot stays until claims drain.
	_ = f.Rewards.DropToken(e.Token)
	if c.metrics != nil {
		c.metrics.RewardTokensTracked.Set(float64(len(f.Rewards.Tokens())))
	}
	return []event.Notice{event.RewardTokenRemoved{Token: e.Token}}, nil
}

func (c *FolioCore) handleAccrueRewards(e *event.AccrueRewards) ([]event.Notice, error) {
	f := c.getFund(e.Fund, e.At())

	// Versioned balance observations land before the accrual so the
	// emission sees the deposits made since the last crank. The batch
	// applies all-or-nothing.
	balances := make(map[string]*big.Int, len(e.Balances))
	for _, tb := range e.Balances {
		balances[tb.Token] = tb.Balance
	}
	if err := f.Rewards.ObserveBalances(balances); err != nil {
		return nil, err
	}

	accounts := make(map[uuid.UUID]*big.Int, len(e.Accounts))
	for _, acc := range e.Accounts {
		accounts[acc.User] = acc.GovBalance
	}

	emissions, err := f.Rewards.Accrue(e.At(), e.GovTotal, accounts)
	if err != nil {
		return nil, err
	}

	notices := make([]event.Notice, 0, len(emissions))
	for _, em := range emissions {
		notices = append(notices, event.RewardsAccrued{
			Token:   em.Token,
			Emitted: em.Emitted,
			Index:   em.Index,
		})
	}
	if c.metrics != nil {
		c.metrics.RewardAccruals.Inc()
	}
	return notices, nil
}

func (c *FolioCore) handleClaimRewards(e *event.ClaimRewards) ([]event.Notice, error) {
	f := c.getFund(e.Fund, e.At())

	claims, err := f.Rewards.Claim(e.Caller, e.Tokens)
	if err != nil {
		return nil, err
	}

	// Stable notice order: registered token order, not map order.
	notices := make([]event.Notice, 0, len(claims))
	for _, rt := range f.Rewards.Tokens() {
		if amount, ok := claims[rt.Token]; ok {
			notices = append(notices, event.RewardsClaimed{
				User:   e.Caller,
				Token:  rt.Token,
				Amount: amount,
			})
		}
	}
	if c.metrics != nil {
		c.metrics.RewardClaims.Inc()
	}
	return notices, nil
}
