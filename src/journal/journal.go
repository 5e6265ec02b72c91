package journal

import (
	"context"

	"paper-exchange/src/engine"
)

// Journal is an append-only audit trail of order changes and settled trades.
type Journal interface {
	RecordOrder(ctx context.Context, order engine.Order) error
	RecordTrade(ctx context.Context, trade engine.Trade) error
	Close() error
}

const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	run_id TEXT NOT NULL,
	order_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	code TEXT NOT NULL,
	side TEXT NOT NULL,
	type TEXT NOT NULL,
	price INTEGER NOT NULL,
	qty INTEGER NOT NULL,
	cum_qty INTEGER NOT NULL,
	cum_amt INTEGER NOT NULL,
	cum_fee INTEGER NOT NULL,
	canceled INTEGER NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL,
	submit_time DATETIME,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, order_id)
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	trade_id INTEGER NOT NULL,
	order_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	code TEXT NOT NULL,
	side TEXT NOT NULL,
	qty INTEGER NOT NULL,
	price INTEGER NOT NULL,
	fee INTEGER NOT NULL,
	status TEXT NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_order ON trades(run_id, order_id);
`
