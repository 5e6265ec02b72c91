package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrCashFreezeExceeded       = errors.New("cash freeze exceeds available")
	ErrCashUnfreezeExceeded     = errors.New("cash unfreeze exceeds frozen")
	ErrCashSubExceeded          = errors.New("cash debit exceeds frozen")
	ErrPositionFreezeExceeded   = errors.New("position freeze exceeds available")
	ErrPositionUnfreezeExceeded = errors.New("position unfreeze exceeds frozen")
	ErrPositionSubExceeded      = errors.New("position debit exceeds frozen")
)

// Cash is the account's money in minor units. Freeze and Unfreeze move value
// between available and frozen; Add and Sub change the total.
type Cash struct {
	AccountID int64 `json:"account_id"`
	Available int64 `json:"available"`
	Frozen    int64 `json:"frozen"`
}

func (c *Cash) Freeze(amount int64) error {
	if amount < 0 || c.Available < amount {
		return fmt.Errorf("%w: available=%d freeze=%d", ErrCashFreezeExceeded, c.Available, amount)
	}
	c.Available -= amount
	c.Frozen += amount
	return nil
}

func (c *Cash) Unfreeze(amount int64) error {
	if amount < 0 || c.Frozen < amount {
		return fmt.Errorf("%w: frozen=%d unfreeze=%d", ErrCashUnfreezeExceeded, c.Frozen, amount)
	}
	c.Available += amount
	c.Frozen -= amount
	return nil
}

// Add credits available cash.
func (c *Cash) Add(amount int64) {
	c.Available += amount
}

// Sub debits frozen cash, which a pending order reserved earlier.
func (c *Cash) Sub(amount int64) error {
	if amount < 0 || c.Frozen < amount {
		return fmt.Errorf("%w: frozen=%d sub=%d", ErrCashSubExceeded, c.Frozen, amount)
	}
	c.Frozen -= amount
	return nil
}

func (c *Cash) Total() int64 {
	return c.Available + c.Frozen
}
