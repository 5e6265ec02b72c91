package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-exchange/src/engine"
)

const account = int64(1367)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	rate := decimal.RequireFromString("0.0005")
	return New(Config{
		AccountID:   account,
		Cash:        1_000_000_000,
		BuyFeeRate:  rate,
		SellFeeRate: rate,
		Positions:   []Position{{Code: "000001", Origin: 1000, Available: 1000}},
	})
}

func buy(t *testing.T, l *Ledger, code string, qty, price int64) engine.Order {
	t.Helper()
	order, err := l.SubmitOrder(engine.SubmitOrderRequest{
		AccountID: account, Code: code, Qty: qty, Price: price,
		Type: engine.TypeLimit, Side: engine.SideBuy, Time: time.Now(),
	})
	require.NoError(t, err)
	return order
}

func sell(t *testing.T, l *Ledger, code string, qty, price int64) engine.Order {
	t.Helper()
	order, err := l.SubmitOrder(engine.SubmitOrderRequest{
		AccountID: account, Code: code, Qty: qty, Price: price,
		Type: engine.TypeLimit, Side: engine.SideSell, Time: time.Now(),
	})
	require.NoError(t, err)
	return order
}

func fill(order engine.Order, tradeID, qty, price int64) engine.Trade {
	return engine.Trade{
		AccountID: order.AccountID,
		OrderID:   order.OrderID,
		TradeID:   tradeID,
		Code:      order.Code,
		Qty:       qty,
		Price:     price,
		Type:      order.Type,
		Side:      order.Side,
	}
}

func cash(t *testing.T, l *Ledger) Cash {
	t.Helper()
	c, err := l.GetCash(engine.QueryCash{AccountID: account})
	require.NoError(t, err)
	return c
}

func position(t *testing.T, l *Ledger, code string) Position {
	t.Helper()
	p, err := l.GetPosition(engine.QueryPosition{AccountID: account, Code: code})
	require.NoError(t, err)
	return p
}

func TestBuyScenario(t *testing.T) {
	l := newTestLedger(t)
	before := cash(t, l).Available

	order := buy(t, l, "000002", 1000, 105_000)
	assert.Equal(t, int64(105_000_000), order.FrzAmt)
	assert.Equal(t, int64(52_500), order.FrzFee)
	assert.Equal(t, before-order.FrzAmt-order.FrzFee, cash(t, l).Available)

	t1, err := l.ApplyTrade(fill(order, 1, 500, 104_000))
	require.NoError(t, err)
	assert.Equal(t, int64(26_000), t1.Fee)
	assert.Equal(t, int64(500), position(t, l, "000002").Today)

	t2, err := l.ApplyTrade(fill(order, 2, 500, 105_000))
	require.NoError(t, err)
	assert.Equal(t, int64(26_250), t2.Fee)
	assert.Equal(t, engine.StatusFilled, t2.Status)

	got, err := l.GetOrder(engine.QueryOrder{AccountID: account, OrderID: order.OrderID})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFilled, got.Status)
	assert.Equal(t, int64(0), got.Unfilled())

	c := cash(t, l)
	assert.Equal(t, before-t1.Fee-t1.Amount()-t2.Fee-t2.Amount(), c.Available)
	assert.Equal(t, int64(895_447_750), c.Available)
	assert.Zero(t, c.Frozen)
	assert.Empty(t, l.Resting())
}

func TestBuyOverpricedTradeRejectedAtomically(t *testing.T) {
	l := newTestLedger(t)
	order := buy(t, l, "000002", 1000, 105_000)

	_, err := l.ApplyTrade(fill(order, 1, 500, 105_000))
	require.NoError(t, err)

	before := l.Snapshot()
	_, err = l.ApplyTrade(fill(order, 2, 500, 106_000))
	assert.ErrorIs(t, err, ErrOverLimit)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "cum_fee", limitErr.Field)

	assert.Equal(t, before, l.Snapshot())
}

func TestOverfillRejected(t *testing.T) {
	l := newTestLedger(t)
	order := buy(t, l, "000002", 100, 105_000)

	before := l.Snapshot()
	_, err := l.ApplyTrade(fill(order, 1, 101, 100_000))
	assert.ErrorIs(t, err, ErrOverLimit)
	assert.Equal(t, before, l.Snapshot())
}

func TestInsufficientCashRejectsInPlace(t *testing.T) {
	l := newTestLedger(t)
	before := cash(t, l)

	order := buy(t, l, "000002", 1_000_000, 105_000)
	assert.Equal(t, engine.ReasonInsufficientCash, order.Reason)
	assert.Equal(t, engine.StatusCanceled, order.Status)
	assert.Equal(t, int64(1_000_000), order.Canceled)
	assert.Zero(t, order.FrzAmt)
	assert.Zero(t, order.FrzFee)
	assert.Zero(t, order.Unfilled())
	assert.Equal(t, before, cash(t, l))
	assert.Empty(t, l.Resting())
}

func TestSellScenario(t *testing.T) {
	l := newTestLedger(t)
	price := int64(203_400)

	order := sell(t, l, "000001", 700, price)
	p := position(t, l, "000001")
	assert.Equal(t, int64(700), p.Frozen)
	assert.Equal(t, int64(300), p.Available)
	assert.Equal(t, int64(1000), p.Available+p.Frozen)

	second := sell(t, l, "000001", 700, price)
	assert.Equal(t, engine.ReasonInsufficientPosition, second.Reason)
	assert.Equal(t, int64(700), second.Canceled)
	p = position(t, l, "000001")
	assert.Equal(t, int64(300), p.Available)
	assert.Zero(t, p.TodaySell)

	before := cash(t, l).Available
	trade, err := l.ApplyTrade(fill(order, 1, 700, price))
	require.NoError(t, err)
	assert.Equal(t, before+700*price-trade.Fee, cash(t, l).Available)

	p = position(t, l, "000001")
	assert.Equal(t, int64(700), p.TodaySell)
	assert.Zero(t, p.Frozen)
}

func TestSellWithoutPositionRejected(t *testing.T) {
	l := newTestLedger(t)
	order := sell(t, l, "600000", 100, 100_000)
	assert.Equal(t, engine.ReasonInsufficientPosition, order.Reason)
	assert.Equal(t, engine.StatusCanceled, order.Status)
}

func TestSellFillAboveLimitRejectedAtomically(t *testing.T) {
	l := newTestLedger(t)
	order := sell(t, l, "000001", 500, 200_000)

	before := l.Snapshot()
	_, err := l.ApplyTrade(fill(order, 1, 500, 210_000))
	assert.ErrorIs(t, err, ErrOverLimit)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "cum_fee", limitErr.Field)
	assert.Equal(t, before, l.Snapshot())

	// a partial fill above the limit still fits the reservation
	trade, err := l.ApplyTrade(fill(order, 2, 400, 210_000))
	require.NoError(t, err)
	got, err := l.GetOrder(engine.QueryOrder{AccountID: account, OrderID: order.OrderID})
	require.NoError(t, err)
	assert.Equal(t, int64(84_000_000), got.CumAmt)
	assert.Equal(t, trade.Fee, got.CumFee)
	assert.LessOrEqual(t, got.CumAmt, got.FrzAmt)
	assert.LessOrEqual(t, got.CumFee, got.FrzFee)
}

func TestCancel(t *testing.T) {
	l := newTestLedger(t)
	available := cash(t, l).Available

	order := buy(t, l, "000002", 1000, 105_000)
	canceled, err := l.CancelOrder(engine.CancelRequest{AccountID: account, OrderID: order.OrderID})
	require.NoError(t, err)
	assert.Equal(t, available, cash(t, l).Available)
	assert.Zero(t, canceled.Unfilled())
	assert.Equal(t, engine.ReasonClientRequested, canceled.Reason)

	posAvailable := position(t, l, "000001").Available
	s := sell(t, l, "000001", 700, 203_400)
	canceled, err = l.CancelOrder(engine.CancelRequest{AccountID: account, OrderID: s.OrderID})
	require.NoError(t, err)
	assert.Equal(t, posAvailable, position(t, l, "000001").Available)
	assert.Zero(t, canceled.Unfilled())

	missing, err := l.CancelOrder(engine.CancelRequest{AccountID: account, OrderID: 30})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, engine.ReasonOrderNotFound, missing.Reason)
}

func TestCancelTwiceIsSafe(t *testing.T) {
	l := newTestLedger(t)
	order := buy(t, l, "000002", 1000, 105_000)

	_, err := l.CancelOrder(engine.CancelRequest{AccountID: account, OrderID: order.OrderID})
	require.NoError(t, err)
	before := l.Snapshot()

	again, err := l.CancelOrder(engine.CancelRequest{AccountID: account, OrderID: order.OrderID})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, engine.ReasonOrderNotFound, again.Reason)
	assert.Equal(t, before, l.Snapshot())
}

func TestCancelAfterPartialFillReleasesResidual(t *testing.T) {
	l := newTestLedger(t)
	start := cash(t, l).Available
	order := buy(t, l, "000002", 1000, 105_000)

	trade, err := l.ApplyTrade(fill(order, 1, 400, 104_000))
	require.NoError(t, err)

	canceled, err := l.CancelOrder(engine.CancelRequest{AccountID: account, OrderID: order.OrderID})
	require.NoError(t, err)
	assert.Equal(t, int64(600), canceled.Canceled)
	assert.Equal(t, int64(400), canceled.CumQty)

	c := cash(t, l)
	assert.Zero(t, c.Frozen)
	assert.Equal(t, start-trade.Amount()-trade.Fee, c.Available)

	_, err = l.ApplyTrade(fill(order, 2, 100, 104_000))
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestApplyTradeUnknownOrder(t *testing.T) {
	l := newTestLedger(t)
	before := l.Snapshot()
	_, err := l.ApplyTrade(engine.Trade{OrderID: 42, Qty: 1, Price: 1})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, before, l.Snapshot())
}

func TestDayRollMaturesToday(t *testing.T) {
	l := newTestLedger(t)
	order := buy(t, l, "000002", 1000, 105_000)
	_, err := l.ApplyTrade(fill(order, 1, 1000, 105_000))
	require.NoError(t, err)

	rejected := sell(t, l, "000002", 100, 105_000)
	assert.Equal(t, engine.ReasonInsufficientPosition, rejected.Reason)

	l.DayRoll()
	p := position(t, l, "000002")
	assert.Equal(t, int64(1000), p.Available)
	assert.Equal(t, int64(1000), p.Origin)
	assert.Zero(t, p.Today)

	accepted := sell(t, l, "000002", 100, 105_000)
	assert.Equal(t, engine.ReasonNone, accepted.Reason)
}

func TestQueriesNotFound(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.GetOrder(engine.QueryOrder{AccountID: account, OrderID: 1})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.GetTrade(engine.QueryTrade{AccountID: account, OrderID: 1})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.GetPosition(engine.QueryPosition{AccountID: account, Code: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.GetCash(engine.QueryCash{AccountID: account + 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTradeReturnsLatest(t *testing.T) {
	l := newTestLedger(t)
	order := buy(t, l, "000002", 1000, 105_000)
	_, err := l.ApplyTrade(fill(order, 11, 300, 105_000))
	require.NoError(t, err)
	_, err = l.ApplyTrade(fill(order, 12, 300, 104_000))
	require.NoError(t, err)

	trade, err := l.GetTrade(engine.QueryTrade{AccountID: account, OrderID: order.OrderID})
	require.NoError(t, err)
	assert.Equal(t, int64(12), trade.TradeID)
	assert.Len(t, l.Trades(order.OrderID), 2)
}

func TestExpireAll(t *testing.T) {
	l := newTestLedger(t)
	start := cash(t, l)
	buy(t, l, "000002", 1000, 105_000)
	sell(t, l, "000001", 500, 203_400)

	expired := l.ExpireAll()
	require.Len(t, expired, 2)
	for _, o := range expired {
		assert.Equal(t, engine.ReasonExpired, o.Reason)
	}
	assert.Equal(t, start, cash(t, l))
	assert.Equal(t, int64(1000), position(t, l, "000001").Available)
}

func TestSnapshotRestore(t *testing.T) {
	l := newTestLedger(t)
	order := buy(t, l, "000002", 1000, 105_000)
	_, err := l.ApplyTrade(fill(order, 1, 400, 105_000))
	require.NoError(t, err)
	snap := l.Snapshot()

	restored := newTestLedger(t)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, snap, restored.Snapshot())
	require.Len(t, restored.Resting(), 1)

	_, err = restored.ApplyTrade(fill(order, 2, 600, 105_000))
	require.NoError(t, err)

	next := buy(t, restored, "000002", 1, 1)
	assert.Greater(t, next.OrderID, order.OrderID)

	assert.ErrorIs(t, New(Config{AccountID: 9}).Restore(snap), ErrNotFound)
}

func TestInvalidSubmit(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.SubmitOrder(engine.SubmitOrderRequest{AccountID: account, Code: "X", Qty: 0, Price: 1})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = l.SubmitOrder(engine.SubmitOrderRequest{AccountID: account + 1, Code: "X", Qty: 1, Price: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitNotionalOverflowRejected(t *testing.T) {
	l := newTestLedger(t)
	before := l.Snapshot()

	_, err := l.SubmitOrder(engine.SubmitOrderRequest{
		AccountID: account, Code: "000002", Qty: 1 << 32, Price: 1 << 32, Side: engine.SideBuy,
	})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = l.SubmitOrder(engine.SubmitOrderRequest{
		AccountID: account, Code: "000001", Qty: math.MaxInt64 / 2, Price: 3, Side: engine.SideSell,
	})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	assert.Equal(t, before, l.Snapshot())
	assert.Empty(t, l.Resting())
}
