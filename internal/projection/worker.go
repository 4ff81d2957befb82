package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"FolioLedger/internal/event"
	"FolioLedger/internal/observability"
)

// ProjectionOutput is one notice ready for projection. The orchestrator
// bridges core.CoreOutput into one ProjectionOutput per notice.
type ProjectionOutput struct {
	Sequence   int64
	NoticeType string
	FundID     *string
	Payload    []byte // JSON-encoded notice
	At         int64
}

// ProjectionWorker updates read-model tables from applied notices.
// The projection channel is non-blocking with drop; falling behind is
// tolerated because projections rebuild from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics, log zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       log,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				pw.log.Warn().Int64("sequence", output.Sequence).
					Str("notice", output.NoticeType).Err(err).
					Msg("projection update failed")
				// Projections are eventually consistent; skip and move on.
			}
			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := pw.applyNotice(ctx, tx, output); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) applyNotice(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	fundID := ""
	if output.FundID != nil {
		fundID = *output.FundID
	}

	switch output.NoticeType {
	case "auction_approved":
		var n event.AuctionApproved
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.auctions
				(fund_id, auction_id, sell, buy, start_price, end_price, status, launch_by, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, 'approved', $7, $8)
			ON CONFLICT (fund_id, auction_id) DO NOTHING
		`, fundID, int64(n.AuctionID), n.Sell, n.Buy, n.StartPrice.String(), n.EndPrice.String(), n.LaunchBy, output.Sequence)
		return err

	case "auction_opened":
		var n event.AuctionOpened
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.auctions
			SET status = 'open', start_price = $3, end_price = $4,
			    start_at = $5, end_at = $6, last_sequence = $7
			WHERE fund_id = $1 AND auction_id = $2
		`, fundID, int64(n.AuctionID), n.StartPrice.String(), n.EndPrice.String(), n.Start, n.End, output.Sequence)
		return err

	case "auction_bid":
		var n event.AuctionBidPlaced
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.auction_fills
				(fund_id, auction_id, bidder, sell_amount, bought_amount, price, sequence, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (sequence) DO NOTHING
		`, fundID, int64(n.AuctionID), n.Bidder.String(), n.SellAmount.String(),
			n.BoughtAmount.String(), n.Price.String(), output.Sequence, output.At); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.auctions
			SET sold = sold + $3::NUMERIC, bought = bought + $4::NUMERIC, last_sequence = $5
			WHERE fund_id = $1 AND auction_id = $2
		`, fundID, int64(n.AuctionID), n.SellAmount.String(), n.BoughtAmount.String(), output.Sequence)
		return err

	case "auction_closed":
		var n event.AuctionClosed
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.auctions
			SET status = 'closed', last_sequence = $3
			WHERE fund_id = $1 AND auction_id = $2
		`, fundID, int64(n.AuctionID), output.Sequence)
		return err

	case "folio_fee_poked":
		var n event.FolioFeePoked
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.fee_state (fund_id, accrued_total, dao_total, last_poke, last_sequence)
			VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, $5)
			ON CONFLICT (fund_id) DO UPDATE SET
				accrued_total = projections.fee_state.accrued_total + $2::NUMERIC,
				dao_total = projections.fee_state.dao_total + $3::NUMERIC,
				last_poke = $4, last_sequence = $5
		`, fundID, n.AccruedShares.String(), n.DAOShares.String(), n.LastPoke, output.Sequence)
		return err

	case "fees_distributed":
		var n event.FeesDistributed
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.fee_flows (fund_id, receiver, shares, sequence, at)
			VALUES ($1, $2, $3::NUMERIC, $4, $5)
			ON CONFLICT (sequence, receiver) DO NOTHING
		`, fundID, n.Receiver.String(), n.Shares.String(), output.Sequence, output.At)
		return err

	case "basket_range_set":
		var n event.BasketRangeSet
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.basket (fund_id, token, spot, low, high, last_sequence)
			VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)
			ON CONFLICT (fund_id, token) DO UPDATE SET
				spot = $3::NUMERIC, low = $4::NUMERIC, high = $5::NUMERIC, last_sequence = $6
		`, fundID, n.Token, n.Spot.String(), n.Low.String(), n.High.String(), output.Sequence)
		return err

	case "dust_amount_set":
		var n event.DustAmountSet
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.basket SET dust = $3::NUMERIC, last_sequence = $4
			WHERE fund_id = $1 AND token = $2
		`, fundID, n.Token, n.Amount.String(), output.Sequence)
		return err

	case "basket_token_removed":
		var n event.BasketTokenRemoved
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM projections.basket WHERE fund_id = $1 AND token = $2
		`, fundID, n.Token)
		return err

	case "rewards_accrued":
		var n event.RewardsAccrued
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.reward_indexes (fund_id, token, reward_index, emitted_total, last_sequence)
			VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)
			ON CONFLICT (fund_id, token) DO UPDATE SET
				reward_index = $3::NUMERIC,
				emitted_total = projections.reward_indexes.emitted_total + $4::NUMERIC,
				last_sequence = $5
		`, fundID, n.Token, n.Index.String(), n.Emitted.String(), output.Sequence)
		return err

	case "rewards_claimed":
		var n event.RewardsClaimed
		if err := json.Unmarshal(output.Payload, &n); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.reward_claims (fund_id, user_id, token, amount, sequence, at)
			VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)
			ON CONFLICT (sequence, user_id, token) DO NOTHING
		`, fundID, n.User.String(), n.Token, n.Amount.String(), output.Sequence, output.At)
		return err

	default:
		// Governance notices (recipient sets, ratio changes, mints) live
		// in the event log only; no read-model table tracks them yet.
		return nil
	}
}

// RebuildProjections truncates read-model tables and replays the notice
// log into the worker's apply path.
func RebuildProjections(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	truncateStatements := []string{
		`TRUNCATE projections.auctions`,
		`TRUNCATE projections.auction_fills`,
		`TRUNCATE projections.fee_state`,
		`TRUNCATE projections.fee_flows`,
		`TRUNCATE projections.basket`,
		`TRUNCATE projections.reward_indexes`,
		`TRUNCATE projections.reward_claims`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	worker := &ProjectionWorker{db: db, log: log}

	const batchSize = 1000
	fromSequence := int64(0)
	for {
		rows, err := db.QueryContext(ctx, `
			SELECT sequence, notice_type, fund_id, payload, at
			FROM event_log.notices
			WHERE sequence >= $1
			ORDER BY sequence ASC, notice_idx ASC
			LIMIT $2
		`, fromSequence, batchSize)
		if err != nil {
			return fmt.Errorf("load notices: %w", err)
		}

		var batch []ProjectionOutput
		for rows.Next() {
			var out ProjectionOutput
			if err := rows.Scan(&out.Sequence, &out.NoticeType, &out.FundID, &out.Payload, &out.At); err != nil {
				rows.Close()
				return err
			}
			batch = append(batch, out)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, out := range batch {
			if err := worker.processOutput(ctx, out); err != nil {
				return fmt.Errorf("rebuild at seq %d: %w", out.Sequence, err)
			}
		}
		fromSequence = batch[len(batch)-1].Sequence + 1
	}

	log.Info().Msg("projection rebuild complete")
	return nil
}
