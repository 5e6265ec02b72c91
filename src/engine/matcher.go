package engine

import (
	"iter"
)

// Transactor matches one resting order against one quote snapshot. It holds
// no state besides the trade id sequence.
type Transactor struct {
	ids *Sequence
}

func NewTransactor(ids *Sequence) *Transactor {
	if ids == nil {
		ids = NewTradeIDs()
	}
	return &Transactor{ids: ids}
}

// Match yields the trades produced by walking the quote's levels on the
// opposite side, most favourable price first. Each yielded fill is already
// added to order.CumQty, so the caller sees the reduced open quantity before
// the next level is visited. The sequence is lazy and cannot be restarted.
func (t *Transactor) Match(order *Order, quote *Quote) iter.Seq[*Trade] {
	switch order.Side {
	case SideBuy:
		return t.walk(order, quote, quote.Asks, buyCrosses)
	case SideSell:
		return t.walk(order, quote, quote.Bids, sellCrosses)
	default:
		return func(func(*Trade) bool) {}
	}
}

func buyCrosses(limit, level int64) bool  { return limit >= level }
func sellCrosses(limit, level int64) bool { return limit <= level }

func (t *Transactor) walk(order *Order, quote *Quote, levels []Level, crosses func(limit, level int64) bool) iter.Seq[*Trade] {
	return func(yield func(*Trade) bool) {
		for _, level := range levels {
			if order.Unfilled() <= 0 {
				return
			}
			// levels past an incompatible one are strictly worse
			if !crosses(order.Price, level.Price) {
				return
			}
			if level.Volume <= 0 {
				continue
			}

			qty := min(order.Unfilled(), level.Volume)
			order.CumQty += qty

			status := StatusUnfilled
			if order.Unfilled() == 0 {
				status = StatusFilled
			}

			trade := &Trade{
				AccountID: order.AccountID,
				OrderID:   order.OrderID,
				TradeID:   t.ids.Next(),
				Code:      order.Code,
				Qty:       qty,
				Price:     level.Price,
				Type:      order.Type,
				Side:      order.Side,
				Status:    status,
				Time:      quote.Time,
			}
			if !yield(trade) {
				return
			}
		}
	}
}
