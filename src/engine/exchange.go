package engine

import (
	"errors"
	"iter"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrCancelMiss is returned when a cancel targets an order that no pack holds.
var ErrCancelMiss = errors.New("cancel target not resting")

// Exchange keeps one Pack per instrument and runs quotes through them.
type Exchange struct {
	Packs      map[string]*Pack
	transactor *Transactor
	mu         sync.RWMutex
}

func NewExchange(transactor *Transactor) *Exchange {
	if transactor == nil {
		transactor = NewTransactor(nil)
	}
	return &Exchange{
		Packs:      make(map[string]*Pack),
		transactor: transactor,
	}
}

func (e *Exchange) GetOrCreatePack(code string) *Pack {
	e.mu.RLock()
	if p, exists := e.Packs[code]; exists {
		e.mu.RUnlock()
		return p
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// edge case: double-check after acquiring write lock
	if p, exists := e.Packs[code]; exists {
		return p
	}

	p := NewPack(code)
	e.Packs[code] = p
	return p
}

// SubmitOrder rests a copy of order in its instrument's pack. The exchange
// never shares Order values with the ledger.
func (e *Exchange) SubmitOrder(order Order) {
	p := e.GetOrCreatePack(order.Code)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Put(&order)
}

// SubmitCancel withdraws a resting order. A miss is logged and reported as
// ErrCancelMiss; it never alters any pack.
func (e *Exchange) SubmitCancel(cancel CancelRequest) error {
	p := e.GetOrCreatePack(cancel.Code)
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Cancel(cancel.OrderID) {
		log.Error().
			Int64("order_id", cancel.OrderID).
			Str("code", cancel.Code).
			Msg("Cancel order: not found in pack")
		return ErrCancelMiss
	}
	return nil
}

// Fill is the exchange side of one yielded trade. A consumer that refuses
// the trade calls Revert or Drop before pulling the next one, while the pack
// lock is still held.
type Fill struct {
	order *Order
	trade *Trade
}

// Revert takes the trade's quantity back off the resting copy, so the order
// keeps walking the remaining levels as if the fill never happened.
func (f Fill) Revert() {
	f.order.CumQty -= f.trade.Qty
}

// Drop closes the resting copy; it leaves the pack when the pass ends.
func (f Fill) Drop() {
	f.order.Canceled = f.order.Qty - f.order.CumQty
}

// ProcessQuote matches every resting order of the quote's instrument against
// it, in submission order, yielding trades as they are produced. The pack
// lock is held until the sequence finishes, so settling each trade inside the
// range loop completes before the next order is matched.
//
// Level volumes are not reduced across orders within one pass.
func (e *Exchange) ProcessQuote(quote *Quote) iter.Seq2[*Trade, Fill] {
	return func(yield func(*Trade, Fill) bool) {
		p := e.GetOrCreatePack(quote.Code)
		p.mu.Lock()
		defer p.mu.Unlock()
		defer p.Recycle()

		for order := range p.Drain() {
			for trade := range e.transactor.Match(order, quote) {
				if !yield(trade, Fill{order: order, trade: trade}) {
					p.Wait(order)
					return
				}
			}
			p.Wait(order)
		}
	}
}

// Codes lists the instruments that have a pack, sorted.
func (e *Exchange) Codes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	codes := make([]string, 0, len(e.Packs))
	for code := range e.Packs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// PackDepth returns how many orders rest for code.
func (e *Exchange) PackDepth(code string) int {
	e.mu.RLock()
	p, ok := e.Packs[code]
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Len()
}

// Resting returns a copy of the orders resting for code.
func (e *Exchange) Resting(code string) []Order {
	e.mu.RLock()
	p, ok := e.Packs[code]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Orders()
}

// Book aggregates the orders resting for code into price levels.
func (e *Exchange) Book(code string) *Book {
	return NewBook(code, e.Resting(code))
}
