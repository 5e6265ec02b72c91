package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOverLimit            = errors.New("trade exceeds order reservation")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrInvalidOrder         = errors.New("invalid order")
)

// LimitError names the reservation a trade would have exceeded.
type LimitError struct {
	Field string
	Value int64
	Limit int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s %d exceeds limit %d", e.Field, e.Value, e.Limit)
}

func (e *LimitError) Unwrap() error {
	return ErrOverLimit
}
