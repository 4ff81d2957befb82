package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// QueryService provides read-only access to projection tables. All
// responses carry as_of_sequence so callers can reason about freshness
// relative to the event log.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// displayD18 renders a raw D18 fixed-point decimal string in whole
// units. A malformed value renders as-is rather than failing the query.
func displayD18(raw string) string {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return d.Shift(-18).String()
}

// GetAuctions returns all auctions for a fund, newest first.
func (qs *QueryService) GetAuctions(ctx context.Context, fundID string, limit int) ([]AuctionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT auction_id, sell, buy, start_price::TEXT, end_price::TEXT,
		       status, launch_by, start_at, end_at, sold::TEXT, bought::TEXT
		FROM projections.auctions
		WHERE fund_id = $1
		ORDER BY auction_id DESC
		LIMIT $2
	`, fundID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []AuctionResponse
	for rows.Next() {
		var a AuctionResponse
		a.FundID = fundID
		a.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&a.AuctionID, &a.Sell, &a.Buy, &a.StartPrice, &a.EndPrice,
			&a.Status, &a.LaunchBy, &a.StartAt, &a.EndAt, &a.Sold, &a.Bought,
		); err != nil {
			return nil, err
		}
		a.StartPriceDisplay = displayD18(a.StartPrice)
		a.EndPriceDisplay = displayD18(a.EndPrice)
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// GetAuctionFills returns fills for one auction with cursor pagination.
func (qs *QueryService) GetAuctionFills(
	ctx context.Context,
	fundID string,
	auctionID int64,
	limit int,
	afterSequence *int64,
) ([]FillResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT bidder, sell_amount::TEXT, bought_amount::TEXT, price::TEXT, sequence, at
		FROM projections.auction_fills
		WHERE fund_id = $1 AND auction_id = $2
	`
	args := []interface{}{fundID, auctionID}
	argIdx := 3

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillResponse
	for rows.Next() {
		var f FillResponse
		f.FundID = fundID
		f.AuctionID = auctionID
		f.AsOfSequence = asOfSeq
		if err := rows.Scan(&f.Bidder, &f.SellAmount, &f.BoughtAmount, &f.Price, &f.Sequence, &f.At); err != nil {
			return nil, err
		}
		f.PriceDisplay = displayD18(f.Price)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// GetFeeState returns cumulative fee accrual for a fund, or nil when
// the fund has never been poked.
func (qs *QueryService) GetFeeState(ctx context.Context, fundID string) (*FeeStateResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var fs FeeStateResponse
	fs.FundID = fundID
	fs.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT accrued_total::TEXT, dao_total::TEXT, last_poke
		FROM projections.fee_state
		WHERE fund_id = $1
	`, fundID).Scan(&fs.AccruedTotal, &fs.DAOTotal, &fs.LastPoke)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fs.AccruedTotalDisplay = displayD18(fs.AccruedTotal)
	fs.DAOTotalDisplay = displayD18(fs.DAOTotal)
	return &fs, nil
}

// GetFeeFlows returns fee payouts for a fund, optionally filtered by
// receiver, newest first.
func (qs *QueryService) GetFeeFlows(
	ctx context.Context,
	fundID string,
	receiver *string,
	limit int,
) ([]FeeFlowResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT receiver, shares::TEXT, sequence, at
		FROM projections.fee_flows
		WHERE fund_id = $1
	`
	args := []interface{}{fundID}
	argIdx := 2

	if receiver != nil {
		query += fmt.Sprintf(" AND receiver = $%d", argIdx)
		args = append(args, *receiver)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []FeeFlowResponse
	for rows.Next() {
		var f FeeFlowResponse
		f.FundID = fundID
		f.AsOfSequence = asOfSeq
		if err := rows.Scan(&f.Receiver, &f.Shares, &f.Sequence, &f.At); err != nil {
			return nil, err
		}
		f.SharesDisplay = displayD18(f.Shares)
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// GetBasket returns the basket configuration for a fund.
func (qs *QueryService) GetBasket(ctx context.Context, fundID string) ([]BasketTokenResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT token, spot::TEXT, low::TEXT, high::TEXT, dust::TEXT
		FROM projections.basket
		WHERE fund_id = $1
		ORDER BY token
	`, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var basket []BasketTokenResponse
	for rows.Next() {
		var b BasketTokenResponse
		b.FundID = fundID
		b.AsOfSequence = asOfSeq
		if err := rows.Scan(&b.Token, &b.Spot, &b.Low, &b.High, &b.Dust); err != nil {
			return nil, err
		}
		basket = append(basket, b)
	}
	return basket, rows.Err()
}

// GetRewardIndexes returns reward accrual state per token for a fund.
func (qs *QueryService) GetRewardIndexes(ctx context.Context, fundID string) ([]RewardIndexResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT token, reward_index::TEXT, emitted_total::TEXT
		FROM projections.reward_indexes
		WHERE fund_id = $1
		ORDER BY token
	`, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []RewardIndexResponse
	for rows.Next() {
		var r RewardIndexResponse
		r.FundID = fundID
		r.AsOfSequence = asOfSeq
		if err := rows.Scan(&r.Token, &r.RewardIndex, &r.EmittedTotal); err != nil {
			return nil, err
		}
		r.EmittedTotalDisplay = displayD18(r.EmittedTotal)
		indexes = append(indexes, r)
	}
	return indexes, rows.Err()
}

// GetRewardClaims returns a user's reward claims, newest first.
func (qs *QueryService) GetRewardClaims(
	ctx context.Context,
	fundID string,
	user string,
	limit int,
) ([]RewardClaimResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT token, amount::TEXT, sequence, at
		FROM projections.reward_claims
		WHERE fund_id = $1 AND user_id = $2
		ORDER BY sequence DESC
		LIMIT $3
	`, fundID, user, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []RewardClaimResponse
	for rows.Next() {
		var c RewardClaimResponse
		c.FundID = fundID
		c.User = user
		c.AsOfSequence = asOfSeq
		if err := rows.Scan(&c.Token, &c.Amount, &c.Sequence, &c.At); err != nil {
			return nil, err
		}
		c.AmountDisplay = displayD18(c.Amount)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// VerifyIntegrity checks hash chain continuity across the event log.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var latest sql.NullInt64
	if err := qs.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&latest); err != nil {
		return nil, err
	}
	if latest.Valid {
		report.LatestSequence = latest.Int64
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
