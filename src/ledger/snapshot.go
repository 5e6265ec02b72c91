package ledger

import (
	"sort"

	"github.com/google/btree"

	"paper-exchange/src/engine"
)

// Snapshot is the persistable state of a ledger.
type Snapshot struct {
	AccountID int64          `json:"account_id"`
	Cash      Cash           `json:"cash"`
	Positions []Position     `json:"positions"`
	Orders    []engine.Order `json:"orders"`
	Trades    []engine.Trade `json:"trades"`
}

// Snapshot copies the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		AccountID: l.accountID,
		Cash:      l.cash,
		Positions: make([]Position, 0, len(l.positions)),
		Orders:    make([]engine.Order, 0, l.orders.Len()),
		Trades:    make([]engine.Trade, 0, l.trades.Len()),
	}
	for _, p := range l.positions {
		s.Positions = append(s.Positions, *p)
	}
	sort.Slice(s.Positions, func(i, j int) bool { return s.Positions[i].Code < s.Positions[j].Code })

	l.orders.Ascend(func(item btree.Item) bool {
		s.Orders = append(s.Orders, *item.(orderItem).order)
		return true
	})
	l.trades.Ascend(func(item btree.Item) bool {
		s.Trades = append(s.Trades, *item.(tradeItem).trade)
		return true
	})
	return s
}

// Restore replaces the ledger state with s. Orders that are not terminal
// become resting again, and the order id sequence moves past every restored
// id.
func (l *Ledger) Restore(s Snapshot) error {
	if s.AccountID != l.accountID {
		return ErrNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = s.Cash
	l.cash.AccountID = l.accountID

	l.positions = make(map[string]*Position, len(s.Positions))
	for _, p := range s.Positions {
		l.positions[p.Code] = &p
	}

	l.orders = btree.New(32)
	l.resting = make(map[int64]*engine.Order)
	for _, o := range s.Orders {
		l.orders.ReplaceOrInsert(orderItem{&o})
		if !o.Terminal() {
			l.resting[o.OrderID] = &o
		}
		l.ids.Observe(o.OrderID)
	}

	l.trades = btree.New(32)
	l.tradeSeq = 0
	for _, t := range s.Trades {
		l.tradeSeq++
		l.trades.ReplaceOrInsert(tradeItem{trade: &t, seq: l.tradeSeq})
	}
	return nil
}
