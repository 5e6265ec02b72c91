package engine

import "github.com/google/btree"

type bidLevel struct{ *Level }

// bids sort highest first
func (b bidLevel) Less(than btree.Item) bool {
	return b.Price > than.(bidLevel).Price
}

type askLevel struct{ *Level }

func (a askLevel) Less(than btree.Item) bool {
	return a.Price < than.(askLevel).Price
}

// Book aggregates resting orders into price levels: buy orders on the bid
// side, sell orders on the ask side, by unfilled quantity.
type Book struct {
	Code string
	Bids *btree.BTree
	Asks *btree.BTree
}

func NewBook(code string, orders []Order) *Book {
	b := &Book{Code: code, Bids: btree.New(32), Asks: btree.New(32)}
	for i := range orders {
		b.add(&orders[i])
	}
	return b
}

func (b *Book) add(o *Order) {
	qty := o.Unfilled()
	if qty <= 0 {
		return
	}

	var item btree.Item
	if o.Side == SideBuy {
		item = bidLevel{&Level{Price: o.Price}}
		if existing := b.Bids.Get(item); existing != nil {
			existing.(bidLevel).Volume += qty
			return
		}
		b.Bids.ReplaceOrInsert(bidLevel{&Level{Price: o.Price, Volume: qty}})
		return
	}

	item = askLevel{&Level{Price: o.Price}}
	if existing := b.Asks.Get(item); existing != nil {
		existing.(askLevel).Volume += qty
		return
	}
	b.Asks.ReplaceOrInsert(askLevel{&Level{Price: o.Price, Volume: qty}})
}

// Snapshot returns up to depth levels per side, best first.
func (b *Book) Snapshot(depth int) (bids, asks []Level) {
	bids = make([]Level, 0, min(depth, b.Bids.Len()))
	b.Bids.Ascend(func(item btree.Item) bool {
		if len(bids) >= depth {
			return false
		}
		bids = append(bids, *item.(bidLevel).Level)
		return true
	})

	asks = make([]Level, 0, min(depth, b.Asks.Len()))
	b.Asks.Ascend(func(item btree.Item) bool {
		if len(asks) >= depth {
			return false
		}
		asks = append(asks, *item.(askLevel).Level)
		return true
	})
	return bids, asks
}

func (b *Book) BestBid() (Level, bool) {
	item := b.Bids.Min()
	if item == nil {
		return Level{}, false
	}
	return *item.(bidLevel).Level, true
}

func (b *Book) BestAsk() (Level, bool) {
	item := b.Asks.Min()
	if item == nil {
		return Level{}, false
	}
	return *item.(askLevel).Level, true
}
