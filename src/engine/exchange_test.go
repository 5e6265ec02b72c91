package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeBuyScenario(t *testing.T) {
	ex := NewExchange(nil)
	ex.SubmitOrder(Order{OrderID: 0, Code: "300667.XSHE", Qty: 4000, Price: px(46, 42), Side: SideBuy})

	var amount int64
	for trade := range ex.ProcessQuote(tick()) {
		amount += trade.Amount()
	}

	assert.Equal(t, px(46, 40)*2600+px(46, 41)*600+px(46, 42)*800, amount)
	assert.Equal(t, 0, ex.PackDepth("300667.XSHE"))
}

func TestExchangeSellScenario(t *testing.T) {
	ex := NewExchange(nil)
	ex.SubmitOrder(Order{OrderID: 1, Code: "300667.XSHE", Qty: 2000, Price: px(46, 27), Side: SideSell})

	var amount int64
	for trade := range ex.ProcessQuote(tick()) {
		amount += trade.Amount()
	}

	assert.Equal(t, int64(74080)*PriceScale, amount)
	resting := ex.Resting("300667.XSHE")
	require.Len(t, resting, 1)
	assert.Equal(t, int64(400), resting[0].Unfilled())
}

func TestExchangeKeepsItsOwnCopy(t *testing.T) {
	ex := NewExchange(nil)
	order := Order{OrderID: 7, Code: "300667.XSHE", Qty: 100, Price: px(46, 50), Side: SideBuy}
	ex.SubmitOrder(order)

	for range ex.ProcessQuote(tick()) {
	}
	assert.Equal(t, int64(0), order.CumQty)
}

func TestExchangeRecyclePreservesOrder(t *testing.T) {
	ex := NewExchange(nil)
	for id := int64(1); id <= 3; id++ {
		ex.SubmitOrder(Order{OrderID: id, Code: "X", Qty: 1000, Price: 100, Side: SideBuy})
	}

	quote := &Quote{Code: "X", Asks: []Level{{Price: 100, Volume: 10}}}
	count := 0
	for range ex.ProcessQuote(quote) {
		count++
	}
	// volume is not consumed across orders within one pass
	assert.Equal(t, 3, count)

	resting := ex.Resting("X")
	require.Len(t, resting, 3)
	for i, o := range resting {
		assert.Equal(t, int64(i+1), o.OrderID)
		assert.Equal(t, int64(990), o.Unfilled())
	}
}

func TestExchangeEachOrderMatchedOncePerQuote(t *testing.T) {
	ex := NewExchange(nil)
	ex.SubmitOrder(Order{OrderID: 1, Code: "X", Qty: 1000, Price: 100, Side: SideBuy})

	quote := &Quote{Code: "X", Asks: []Level{{Price: 100, Volume: 10}}}
	var trades []*Trade
	for trade := range ex.ProcessQuote(quote) {
		trades = append(trades, trade)
	}
	require.Len(t, trades, 1)

	for trade := range ex.ProcessQuote(quote) {
		trades = append(trades, trade)
	}
	assert.Len(t, trades, 2)
}

func TestExchangeCancel(t *testing.T) {
	ex := NewExchange(nil)
	ex.SubmitOrder(Order{OrderID: 1, Code: "X", Qty: 10, Price: 100, Side: SideBuy})
	ex.SubmitOrder(Order{OrderID: 2, Code: "X", Qty: 10, Price: 100, Side: SideBuy})

	require.NoError(t, ex.SubmitCancel(CancelRequest{OrderID: 1, Code: "X"}))
	assert.ErrorIs(t, ex.SubmitCancel(CancelRequest{OrderID: 1, Code: "X"}), ErrCancelMiss)
	assert.ErrorIs(t, ex.SubmitCancel(CancelRequest{OrderID: 9, Code: "Y"}), ErrCancelMiss)

	assert.Equal(t, 1, ex.PackDepth("X"))
	assert.Equal(t, []string{"X", "Y"}, ex.Codes())
}

func TestExchangeStopEarlyKeepsOrdersResting(t *testing.T) {
	ex := NewExchange(nil)
	ex.SubmitOrder(Order{OrderID: 1, Code: "X", Qty: 50, Price: 100, Side: SideBuy})
	ex.SubmitOrder(Order{OrderID: 2, Code: "X", Qty: 50, Price: 100, Side: SideBuy})

	quote := &Quote{Code: "X", Asks: []Level{{Price: 100, Volume: 10}}}
	for range ex.ProcessQuote(quote) {
		break
	}

	resting := ex.Resting("X")
	require.Len(t, resting, 2)
	assert.Equal(t, int64(1), resting[0].OrderID)
	assert.Equal(t, int64(2), resting[1].OrderID)
}

func TestExchangeRevertRestoresCopy(t *testing.T) {
	ex := NewExchange(nil)
	ex.SubmitOrder(Order{OrderID: 1, Code: "300667.XSHE", Qty: 2000, Price: px(46, 27), Side: SideSell})

	var kept []*Trade
	for trade, fill := range ex.ProcessQuote(tick()) {
		// refuse the first level; the order moves on to the next one
		if trade.Price == px(46, 39) {
			fill.Revert()
			continue
		}
		kept = append(kept, trade)
	}

	require.Len(t, kept, 2)
	assert.Equal(t, int64(1000), kept[0].Qty)
	assert.Equal(t, int64(400), kept[1].Qty)
	resting := ex.Resting("300667.XSHE")
	require.Len(t, resting, 1)
	assert.Equal(t, int64(1400), resting[0].CumQty)
	assert.Equal(t, int64(600), resting[0].Unfilled())
}

func TestExchangeDropRemovesOrder(t *testing.T) {
	ex := NewExchange(nil)
	ex.SubmitOrder(Order{OrderID: 1, Code: "300667.XSHE", Qty: 2000, Price: px(46, 27), Side: SideSell})
	ex.SubmitOrder(Order{OrderID: 2, Code: "300667.XSHE", Qty: 100, Price: px(46, 0), Side: SideBuy})

	var orders []int64
	for trade, fill := range ex.ProcessQuote(tick()) {
		orders = append(orders, trade.OrderID)
		if trade.OrderID == 1 {
			fill.Drop()
		}
	}

	assert.Equal(t, []int64{1}, orders)
	resting := ex.Resting("300667.XSHE")
	require.Len(t, resting, 1)
	assert.Equal(t, int64(2), resting[0].OrderID)
}

func TestPackRequeueAndRecycle(t *testing.T) {
	p := NewPack("X")
	a := &Order{OrderID: 1, Qty: 10}
	b := &Order{OrderID: 2, Qty: 10}
	c := &Order{OrderID: 3, Qty: 10, CumQty: 10}
	p.Put(a)
	p.Put(b)
	p.Put(c)

	for o := range p.Drain() {
		p.Wait(o)
	}
	assert.Equal(t, 2, p.Len())

	assert.True(t, p.Cancel(2))
	assert.False(t, p.Cancel(3))

	p.Recycle()
	orders := p.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, int64(1), orders[0].OrderID)
}

func TestSequenceStrictlyIncreasing(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewTradeIDs()
	s.now = func() time.Time { return frozen }

	first := s.Next()
	second := s.Next()
	assert.Equal(t, first+1, second)

	s.now = func() time.Time { return frozen.Add(time.Second) }
	assert.Greater(t, s.Next(), second)

	s.Observe(second + 1_000_000)
	assert.Equal(t, second+1_000_001, s.Next())
}

func TestOrderIDsCarryAccount(t *testing.T) {
	a := NewOrderIDs(1).Next()
	b := NewOrderIDs(2).Next()
	assert.Greater(t, b, a)
	assert.Equal(t, int64(1), a>>40)
}
