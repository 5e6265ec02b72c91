package models

import (
	"time"

	"paper-exchange/src/engine"
	"paper-exchange/src/feed"
	"paper-exchange/src/ledger"
)

// Prices and amounts cross the API as decimal strings ("46.42") and are
// carried internally in engine.PriceScale minor units.

type SubmitOrderRequest struct {
	Code  string `json:"code"`
	Side  string `json:"side"`
	Type  string `json:"type"`
	Price string `json:"price"`
	Qty   int64  `json:"qty"`
}

type LevelInfo struct {
	Price  string `json:"price"`
	Volume int64  `json:"volume"`
}

func NewLevelInfos(levels []engine.Level) []LevelInfo {
	out := make([]LevelInfo, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelInfo{Price: feed.FormatPrice(l.Price), Volume: l.Volume})
	}
	return out
}

// BookResponse shows resting orders by price: bids highest first, asks
// lowest first.
type BookResponse struct {
	Code      string      `json:"code"`
	Timestamp int64       `json:"timestamp"`
	Bids      []LevelInfo `json:"bids"`
	Asks      []LevelInfo `json:"asks"`
}

type QuoteRequest struct {
	Code string      `json:"code"`
	Time time.Time   `json:"time"`
	Asks []LevelInfo `json:"asks"`
	Bids []LevelInfo `json:"bids"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderResponse struct {
	OrderID     int64     `json:"order_id"`
	AccountID   int64     `json:"account_id"`
	Code        string    `json:"code"`
	Side        string    `json:"side"`
	Type        string    `json:"type"`
	Price       string    `json:"price"`
	Qty         int64     `json:"qty"`
	CumQty      int64     `json:"cum_qty"`
	Canceled    int64     `json:"canceled"`
	Unfilled    int64     `json:"unfilled"`
	FrzAmt      string    `json:"frz_amt"`
	FrzFee      string    `json:"frz_fee"`
	CumAmt      string    `json:"cum_amt"`
	CumFee      string    `json:"cum_fee"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason"`
	SubmitTime  time.Time `json:"submit_time"`
	ConfirmTime time.Time `json:"confirm_time"`
}

func NewOrderResponse(o engine.Order) OrderResponse {
	return OrderResponse{
		OrderID:     o.OrderID,
		AccountID:   o.AccountID,
		Code:        o.Code,
		Side:        o.Side.String(),
		Type:        o.Type.String(),
		Price:       feed.FormatPrice(o.Price),
		Qty:         o.Qty,
		CumQty:      o.CumQty,
		Canceled:    o.Canceled,
		Unfilled:    o.Unfilled(),
		FrzAmt:      feed.FormatPrice(o.FrzAmt),
		FrzFee:      feed.FormatPrice(o.FrzFee),
		CumAmt:      feed.FormatPrice(o.CumAmt),
		CumFee:      feed.FormatPrice(o.CumFee),
		Status:      o.Status.String(),
		Reason:      o.Reason.String(),
		SubmitTime:  o.SubmitTime,
		ConfirmTime: o.ConfirmTime,
	}
}

type TradeResponse struct {
	TradeID int64     `json:"trade_id"`
	OrderID int64     `json:"order_id"`
	Code    string    `json:"code"`
	Side    string    `json:"side"`
	Qty     int64     `json:"qty"`
	Price   string    `json:"price"`
	Fee     string    `json:"fee"`
	Status  string    `json:"status"`
	Time    time.Time `json:"time"`
}

func NewTradeResponse(t engine.Trade) TradeResponse {
	return TradeResponse{
		TradeID: t.TradeID,
		OrderID: t.OrderID,
		Code:    t.Code,
		Side:    t.Side.String(),
		Qty:     t.Qty,
		Price:   feed.FormatPrice(t.Price),
		Fee:     feed.FormatPrice(t.Fee),
		Status:  t.Status.String(),
		Time:    t.Time,
	}
}

func NewTradeResponses(trades []engine.Trade) []TradeResponse {
	out := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, NewTradeResponse(t))
	}
	return out
}

type CashResponse struct {
	AccountID int64  `json:"account_id"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
	Total     string `json:"total"`
}

func NewCashResponse(c ledger.Cash) CashResponse {
	return CashResponse{
		AccountID: c.AccountID,
		Available: feed.FormatPrice(c.Available),
		Frozen:    feed.FormatPrice(c.Frozen),
		Total:     feed.FormatPrice(c.Total()),
	}
}

type PositionResponse struct {
	AccountID int64  `json:"account_id"`
	Code      string `json:"code"`
	Origin    int64  `json:"origin"`
	Available int64  `json:"available"`
	Frozen    int64  `json:"frozen"`
	Today     int64  `json:"today"`
	TodaySell int64  `json:"today_sell"`
}

func NewPositionResponse(p ledger.Position) PositionResponse {
	return PositionResponse(p)
}

type QuoteResponse struct {
	Code     string          `json:"code"`
	Settled  []TradeResponse `json:"settled"`
	Rejected []TradeResponse `json:"rejected"`
}

type DayRollResponse struct {
	Expired []OrderResponse `json:"expired"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	OrdersProcessed int64  `json:"orders_processed"`
}

type MetricsResponse struct {
	OrdersReceived   int64   `json:"orders_received"`
	OrdersRejected   int64   `json:"orders_rejected"`
	OrdersCancelled  int64   `json:"orders_cancelled"`
	OrdersResting    int64   `json:"orders_resting"`
	QuotesProcessed  int64   `json:"quotes_processed"`
	TradesSettled    int64   `json:"trades_settled"`
	TradesRejected   int64   `json:"trades_rejected"`
	LatencyP50Ms     float64 `json:"latency_p50_ms"`
	LatencyP99Ms     float64 `json:"latency_p99_ms"`
	LatencyP999Ms    float64 `json:"latency_p999_ms"`
	ThroughputPerSec float64 `json:"throughput_orders_per_sec"`
}
