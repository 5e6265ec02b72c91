package engine

import (
	"fmt"
	"strings"
	"time"
)

// PriceScale is the fixed-point scale of every price and cash amount.
// A price of 46.42 is carried as 464200.
const PriceScale int64 = 10_000

type Side int8

const (
	SideSell Side = iota
	SideBuy
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B":
		return SideBuy, nil
	case "SELL", "S":
		return SideSell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

type OrderType int8

const (
	TypeLimit OrderType = iota
	TypeMarket
)

func (t OrderType) String() string {
	if t == TypeMarket {
		return "MARKET"
	}
	return "LIMIT"
}

func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "LIMIT":
		return TypeLimit, nil
	case "MARKET":
		return TypeMarket, nil
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

type OrderStatus int8

const (
	StatusUnfilled OrderStatus = iota
	StatusFilled
	StatusCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	default:
		return "UNFILLED"
	}
}

type CancelReason int8

const (
	ReasonNone CancelReason = iota
	ReasonClientRequested
	ReasonInsufficientCash
	ReasonInsufficientPosition
	ReasonOrderNotFound
	ReasonExpired
)

func (r CancelReason) String() string {
	switch r {
	case ReasonClientRequested:
		return "CLIENT_REQUESTED"
	case ReasonInsufficientCash:
		return "INSUFFICIENT_CASH"
	case ReasonInsufficientPosition:
		return "INSUFFICIENT_POSITION"
	case ReasonOrderNotFound:
		return "ORDER_NOT_FOUND"
	case ReasonExpired:
		return "EXPIRED"
	default:
		return "NONE"
	}
}

// Order is one account order. Quantities are shares, amounts are minor
// currency units at PriceScale.
type Order struct {
	AccountID   int64        `json:"account_id"`
	OrderID     int64        `json:"order_id"`
	Code        string       `json:"code"`
	Qty         int64        `json:"qty"`
	CumQty      int64        `json:"cum_qty"`
	Price       int64        `json:"price"`
	Type        OrderType    `json:"type"`
	Side        Side         `json:"side"`
	Status      OrderStatus  `json:"status"`
	FrzAmt      int64        `json:"frz_amt"`
	FrzFee      int64        `json:"frz_fee"`
	CumAmt      int64        `json:"cum_amt"`
	CumFee      int64        `json:"cum_fee"`
	Canceled    int64        `json:"canceled"`
	Reason      CancelReason `json:"reason"`
	SubmitTime  time.Time    `json:"submit_time"`
	ConfirmTime time.Time    `json:"confirm_time"`
}

// Unfilled is the open quantity: qty - cumQty - canceled.
func (o *Order) Unfilled() int64 {
	return o.Qty - o.CumQty - o.Canceled
}

// Terminal reports whether no further fills or cancels can apply.
func (o *Order) Terminal() bool {
	return o.Status == StatusFilled || o.Canceled > 0
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(id=%d code=%s side=%s qty=%d cum=%d price=%d status=%s reason=%s)",
		o.OrderID, o.Code, o.Side, o.Qty, o.CumQty, o.Price, o.Status, o.Reason)
}

// Trade is an immutable execution record.
type Trade struct {
	AccountID int64       `json:"account_id"`
	OrderID   int64       `json:"order_id"`
	TradeID   int64       `json:"trade_id"`
	Code      string      `json:"code"`
	Qty       int64       `json:"qty"`
	Price     int64       `json:"price"`
	Type      OrderType   `json:"type"`
	Side      Side        `json:"side"`
	Fee       int64       `json:"fee"`
	Status    OrderStatus `json:"status"`
	Time      time.Time   `json:"time"`
}

// Amount is qty * price in minor units.
func (t *Trade) Amount() int64 {
	return t.Qty * t.Price
}

func (t *Trade) String() string {
	return fmt.Sprintf("Trade(id=%d order=%d code=%s side=%s qty=%d price=%d fee=%d)",
		t.TradeID, t.OrderID, t.Code, t.Side, t.Qty, t.Price, t.Fee)
}

// Level is the liquidity available at one price.
type Level struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
}

// Quote is one price-level snapshot of an instrument. Asks are ordered
// ascending by price, bids descending.
type Quote struct {
	Code string    `json:"code"`
	Time time.Time `json:"time"`
	Asks []Level   `json:"asks"`
	Bids []Level   `json:"bids"`
}

type SubmitOrderRequest struct {
	AccountID int64
	Code      string
	Qty       int64
	Price     int64
	Type      OrderType
	Side      Side
	Time      time.Time
}

// CancelRequest identifies an order to withdraw. Code is only needed by the
// exchange, which keeps one pack per instrument.
type CancelRequest struct {
	AccountID int64
	OrderID   int64
	Code      string
}

type QueryOrder struct {
	AccountID int64
	OrderID   int64
}

type QueryTrade struct {
	AccountID int64
	OrderID   int64
}

type QueryCash struct {
	AccountID int64
}

type QueryPosition struct {
	AccountID int64
	Code      string
}
