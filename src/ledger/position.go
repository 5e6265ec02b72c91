package ledger

import "fmt"

// Position holds the shares of one instrument. Shares bought today sit in
// Today and only become sellable after DayRoll.
type Position struct {
	AccountID int64  `json:"account_id"`
	Code      string `json:"code"`
	Origin    int64  `json:"origin"`
	Available int64  `json:"available"`
	Frozen    int64  `json:"frozen"`
	Today     int64  `json:"today"`
	TodaySell int64  `json:"today_sell"`
}

func (p *Position) Freeze(qty int64) error {
	if qty < 0 || p.Available < qty {
		return fmt.Errorf("%w: code=%s available=%d freeze=%d", ErrPositionFreezeExceeded, p.Code, p.Available, qty)
	}
	p.Available -= qty
	p.Frozen += qty
	return nil
}

func (p *Position) Unfreeze(qty int64) error {
	if qty < 0 || p.Frozen < qty {
		return fmt.Errorf("%w: code=%s frozen=%d unfreeze=%d", ErrPositionUnfreezeExceeded, p.Code, p.Frozen, qty)
	}
	p.Available += qty
	p.Frozen -= qty
	return nil
}

// Add books shares bought today.
func (p *Position) Add(qty int64) {
	p.Today += qty
}

// Sub removes sold shares from the frozen reservation.
func (p *Position) Sub(qty int64) error {
	if qty < 0 || p.Frozen < qty {
		return fmt.Errorf("%w: code=%s frozen=%d sub=%d", ErrPositionSubExceeded, p.Code, p.Frozen, qty)
	}
	p.Frozen -= qty
	p.TodaySell += qty
	return nil
}

// DayRoll matures today's shares and releases every reservation.
func (p *Position) DayRoll() {
	p.Available += p.Frozen + p.Today
	p.Frozen = 0
	p.Today = 0
	p.Origin = p.Available
}
