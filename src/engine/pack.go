package engine

import (
	"iter"
	"sync"
)

// Pack holds the resting orders of one instrument. Orders are matched in
// submission order; orders still open after a pass wait in a requeue buffer
// so a single quote never matches the same order twice.
//
// Pack is not safe for concurrent use on its own; Exchange holds mu for the
// whole of each operation and each matching pass.
type Pack struct {
	Code   string
	orders []*Order
	wait   []*Order
	mu     sync.Mutex
}

func NewPack(code string) *Pack {
	return &Pack{
		Code:   code,
		orders: make([]*Order, 0),
		wait:   make([]*Order, 0),
	}
}

// Put appends an order to the back of the primary queue.
func (p *Pack) Put(order *Order) {
	p.orders = append(p.orders, order)
}

// Drain consumes the primary queue front to back.
func (p *Pack) Drain() iter.Seq[*Order] {
	return func(yield func(*Order) bool) {
		for len(p.orders) > 0 {
			order := p.orders[0]
			p.orders[0] = nil
			p.orders = p.orders[1:]
			if !yield(order) {
				return
			}
		}
	}
}

// Wait parks an order that is still open until the pass ends.
func (p *Pack) Wait(order *Order) {
	if order.Unfilled() > 0 {
		p.wait = append(p.wait, order)
	}
}

// Recycle moves the requeue buffer back to the front of the primary queue,
// keeping the relative order the orders had before the pass.
func (p *Pack) Recycle() {
	if len(p.wait) == 0 {
		return
	}
	merged := make([]*Order, 0, len(p.wait)+len(p.orders))
	merged = append(merged, p.wait...)
	merged = append(merged, p.orders...)
	p.orders = merged
	clear(p.wait)
	p.wait = p.wait[:0]
}

// Cancel removes the order from whichever queue holds it. It reports false
// when neither queue does.
func (p *Pack) Cancel(orderID int64) bool {
	if removeOrder(&p.orders, orderID) {
		return true
	}
	return removeOrder(&p.wait, orderID)
}

// Len counts the orders in both queues.
func (p *Pack) Len() int {
	return len(p.orders) + len(p.wait)
}

// Orders returns a copy of the resting orders in queue order.
func (p *Pack) Orders() []Order {
	out := make([]Order, 0, p.Len())
	for _, o := range p.wait {
		out = append(out, *o)
	}
	for _, o := range p.orders {
		out = append(out, *o)
	}
	return out
}

func removeOrder(queue *[]*Order, orderID int64) bool {
	q := *queue
	for i, o := range q {
		if o.OrderID == orderID {
			copy(q[i:], q[i+1:])
			q[len(q)-1] = nil
			*queue = q[:len(q)-1]
			return true
		}
	}
	return false
}
