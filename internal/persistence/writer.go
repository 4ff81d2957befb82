package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// EventLogWriter batch-inserts applied commands and their notices into
// Postgres. Multi-row INSERT keeps the writer portable; switch to pgx
// CopyFrom if throughput ever demands it.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events.
type EventRow struct {
	Sequence       int64
	CommandType    string
	IdempotencyKey string
	FundID         *string
	Payload        []byte // JSON-encoded command payload
	StateHash      []byte
	PrevHash       []byte
	At             int64 // command timestamp, unix seconds
	SourceSequence int64
}

// NoticeRow represents a row in event_log.notices. One applied command
// can emit several notices (a distribution pays many receivers).
type NoticeRow struct {
	Sequence   int64
	NoticeIdx  int
	NoticeType string
	FundID     *string
	Payload    []byte
	At         int64
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events within tx. ON CONFLICT DO
// NOTHING makes replays after a crash idempotent.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, command_type, idempotency_key, fund_id, payload, state_hash, prev_hash, at, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.Sequence, e.CommandType, e.IdempotencyKey, e.FundID,
			e.Payload, e.StateHash, e.PrevHash, e.At, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteNoticeBatch writes a batch of notices within tx.
func (w *EventLogWriter) WriteNoticeBatch(ctx context.Context, tx *sql.Tx, notices []NoticeRow) error {
	if len(notices) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.notices
		(sequence, notice_idx, notice_type, fund_id, payload, at)
		VALUES `

	values := make([]string, 0, len(notices))
	args := make([]interface{}, 0, len(notices)*6)

	for i, n := range notices {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			n.Sequence, n.NoticeIdx, n.NoticeType, n.FundID, n.Payload, n.At,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence, notice_idx) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
