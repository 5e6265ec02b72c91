package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"paper-exchange/src/engine"
)

// SQLite journals into a sqlite database. Every row carries the run id the
// journal was opened with, so several runs can share one file.
type SQLite struct {
	db    *sql.DB
	runID string
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLite{db: db, runID: ulid.Make().String()}, nil
}

func (j *SQLite) RunID() string {
	return j.runID
}

func (j *SQLite) RecordOrder(ctx context.Context, o engine.Order) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO orders
		(run_id, order_id, account_id, code, side, type, price, qty, cum_qty, cum_amt, cum_fee, canceled, status, reason, submit_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, order_id) DO UPDATE SET
			cum_qty = excluded.cum_qty,
			cum_amt = excluded.cum_amt,
			cum_fee = excluded.cum_fee,
			canceled = excluded.canceled,
			status = excluded.status,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		j.runID, o.OrderID, o.AccountID, o.Code, o.Side.String(), o.Type.String(),
		o.Price, o.Qty, o.CumQty, o.CumAmt, o.CumFee, o.Canceled,
		o.Status.String(), o.Reason.String(), o.SubmitTime, time.Now().UTC(),
	)
	return err
}

func (j *SQLite) RecordTrade(ctx context.Context, t engine.Trade) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades
		(run_id, trade_id, order_id, account_id, code, side, qty, price, fee, status, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, t.TradeID, t.OrderID, t.AccountID, t.Code, t.Side.String(),
		t.Qty, t.Price, t.Fee, t.Status.String(), t.Time,
	)
	return err
}

// ListTrades returns the trades journaled by this run in insertion order.
func (j *SQLite) ListTrades(ctx context.Context) ([]engine.Trade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, order_id, account_id, code, side, qty, price, fee, time
		FROM trades WHERE run_id = ? ORDER BY rowid`, j.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []engine.Trade
	for rows.Next() {
		var (
			t    engine.Trade
			side string
		)
		if err := rows.Scan(&t.TradeID, &t.OrderID, &t.AccountID, &t.Code, &side, &t.Qty, &t.Price, &t.Fee, &t.Time); err != nil {
			return nil, err
		}
		if t.Side, err = engine.ParseSide(side); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
