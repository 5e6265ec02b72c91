package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-exchange/src/engine"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('orders','trades')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["orders"])
	assert.True(t, found["trades"])
}

func TestSQLiteOrderUpsert(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	ctx := context.Background()

	order := engine.Order{AccountID: 1, OrderID: 10, Code: "000001", Qty: 100, Price: 105_000, Side: engine.SideBuy}
	require.NoError(t, j.RecordOrder(ctx, order))

	order.CumQty = 100
	order.Status = engine.StatusFilled
	require.NoError(t, j.RecordOrder(ctx, order))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		count  int
		cumQty int64
		status string
	)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), MAX(cum_qty), MAX(status) FROM orders`).Scan(&count, &cumQty, &status))
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(100), cumQty)
	assert.Equal(t, "FILLED", status)
}

func TestSQLiteTradesPerRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	first, err := NewSQLite(path)
	require.NoError(t, err)
	at := time.Date(2017, 10, 18, 9, 41, 9, 0, time.UTC)
	require.NoError(t, first.RecordTrade(ctx, engine.Trade{TradeID: 1, OrderID: 10, Code: "X", Qty: 5, Price: 7, Fee: 1, Side: engine.SideSell, Time: at}))
	require.NoError(t, first.RecordTrade(ctx, engine.Trade{TradeID: 2, OrderID: 10, Code: "X", Qty: 3, Price: 7, Side: engine.SideSell, Time: at}))

	second, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	assert.NotEqual(t, first.RunID(), second.RunID())
	require.NoError(t, second.RecordTrade(ctx, engine.Trade{TradeID: 3, OrderID: 11, Code: "Y", Qty: 1, Price: 1, Time: at}))

	trades, err := first.ListTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(1), trades[0].TradeID)
	assert.Equal(t, engine.SideSell, trades[0].Side)
	assert.True(t, at.Equal(trades[0].Time))
	require.NoError(t, first.Close())

	trades, err = second.ListTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
}
