package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"paper-exchange/src/engine"
)

type orderItem struct {
	order *engine.Order
}

func (i orderItem) Less(than btree.Item) bool {
	return i.order.OrderID < than.(orderItem).order.OrderID
}

// tradeItem orders settlement records by order, then by arrival.
type tradeItem struct {
	trade *engine.Trade
	seq   int64
}

func (i tradeItem) Less(than btree.Item) bool {
	other := than.(tradeItem)
	if i.trade.OrderID != other.trade.OrderID {
		return i.trade.OrderID < other.trade.OrderID
	}
	return i.seq < other.seq
}

// Config seeds a ledger.
type Config struct {
	AccountID   int64
	Cash        int64
	BuyFeeRate  decimal.Decimal
	SellFeeRate decimal.Decimal
	Positions   []Position
}

// Ledger owns one account's cash, positions, orders and settled trades.
// All methods are safe for concurrent use.
type Ledger struct {
	accountID int64
	cash      Cash
	positions map[string]*Position
	orders    *btree.BTree
	resting   map[int64]*engine.Order
	trades    *btree.BTree
	tradeSeq  int64
	buyRate   decimal.Decimal
	sellRate  decimal.Decimal
	ids       *engine.Sequence
	now       func() time.Time
	mu        sync.Mutex
}

func New(cfg Config) *Ledger {
	l := &Ledger{
		accountID: cfg.AccountID,
		cash:      Cash{AccountID: cfg.AccountID, Available: cfg.Cash},
		positions: make(map[string]*Position),
		orders:    btree.New(32),
		resting:   make(map[int64]*engine.Order),
		trades:    btree.New(32),
		buyRate:   cfg.BuyFeeRate,
		sellRate:  cfg.SellFeeRate,
		ids:       engine.NewOrderIDs(cfg.AccountID),
		now:       time.Now,
	}
	for _, p := range cfg.Positions {
		p.AccountID = cfg.AccountID
		l.positions[p.Code] = &p
	}
	return l
}

func (l *Ledger) AccountID() int64 {
	return l.accountID
}

// Fee is floor(amount * rate).
func Fee(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
}

func (l *Ledger) rate(side engine.Side) decimal.Decimal {
	if side == engine.SideBuy {
		return l.buyRate
	}
	return l.sellRate
}

// SubmitOrder reserves what the order could consume and stores it as
// resting. An order the account cannot cover comes back already canceled
// with the reason set; that is not an error.
func (l *Ledger) SubmitOrder(req engine.SubmitOrderRequest) (engine.Order, error) {
	if req.Qty <= 0 || req.Price < 0 || req.Code == "" {
		return engine.Order{}, fmt.Errorf("%w: code=%q qty=%d price=%d", ErrInvalidOrder, req.Code, req.Qty, req.Price)
	}
	if req.AccountID != l.accountID {
		return engine.Order{}, fmt.Errorf("%w: account %d", ErrNotFound, req.AccountID)
	}
	amount, fee, err := l.reservation(req)
	if err != nil {
		return engine.Order{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	order := &engine.Order{
		AccountID:   l.accountID,
		OrderID:     l.ids.Next(),
		Code:        req.Code,
		Qty:         req.Qty,
		Price:       req.Price,
		Type:        req.Type,
		Side:        req.Side,
		Status:      engine.StatusUnfilled,
		FrzAmt:      amount,
		FrzFee:      fee,
		SubmitTime:  req.Time,
		ConfirmTime: l.now(),
	}

	if order.Side == engine.SideBuy {
		err = l.reserveBuy(order)
	} else {
		err = l.reserveSell(order)
	}
	if err != nil {
		return engine.Order{}, err
	}

	l.orders.ReplaceOrInsert(orderItem{order})
	return *order, nil
}

// reservation computes frzAmt and frzFee, refusing orders whose notional does
// not fit in int64.
func (l *Ledger) reservation(req engine.SubmitOrderRequest) (amount, fee int64, err error) {
	if req.Price > 0 && req.Qty > math.MaxInt64/req.Price {
		return 0, 0, fmt.Errorf("%w: notional overflows: qty=%d price=%d", ErrInvalidOrder, req.Qty, req.Price)
	}
	amount = req.Price * req.Qty
	fee = Fee(amount, l.rate(req.Side))
	if fee < 0 || amount > math.MaxInt64-fee {
		return 0, 0, fmt.Errorf("%w: reservation overflows: amount=%d fee=%d", ErrInvalidOrder, amount, fee)
	}
	return amount, fee, nil
}

func (l *Ledger) reserveBuy(order *engine.Order) error {
	total := order.FrzAmt + order.FrzFee
	if total > l.cash.Available {
		order.FrzAmt = 0
		order.FrzFee = 0
		reject(order, engine.ReasonInsufficientCash)
		return nil
	}
	if err := l.cash.Freeze(total); err != nil {
		return err
	}
	l.resting[order.OrderID] = order
	return nil
}

func (l *Ledger) reserveSell(order *engine.Order) error {
	position, ok := l.positions[order.Code]
	if !ok || order.Qty > position.Available {
		reject(order, engine.ReasonInsufficientPosition)
		return nil
	}
	if err := position.Freeze(order.Qty); err != nil {
		return err
	}
	l.resting[order.OrderID] = order
	return nil
}

func reject(order *engine.Order, reason engine.CancelReason) {
	order.Canceled = order.Unfilled()
	order.Reason = reason
	order.Status = engine.StatusCanceled
}

// CancelOrder releases whatever the order still reserves. An order that is
// not resting yields a placeholder with ReasonOrderNotFound and
// ErrOrderNotFound, and nothing changes.
func (l *Ledger) CancelOrder(req engine.CancelRequest) (engine.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.resting[req.OrderID]
	if !ok || req.AccountID != l.accountID {
		log.Error().
			Int64("account_id", req.AccountID).
			Int64("order_id", req.OrderID).
			Msg("Cancel order: order not found")
		return engine.Order{
			AccountID: req.AccountID,
			OrderID:   req.OrderID,
			Status:    engine.StatusCanceled,
			Reason:    engine.ReasonOrderNotFound,
		}, ErrOrderNotFound
	}

	if err := l.release(order, engine.ReasonClientRequested); err != nil {
		return *order, err
	}
	return *order, nil
}

// ExpireAll cancels every resting order with ReasonExpired and returns them
// in order id sequence.
func (l *Ledger) ExpireAll() []engine.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]int64, 0, len(l.resting))
	for id := range l.resting {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	expired := make([]engine.Order, 0, len(ids))
	for _, id := range ids {
		order := l.resting[id]
		if err := l.release(order, engine.ReasonExpired); err != nil {
			log.Error().Err(err).Int64("order_id", id).Msg("Expire order failed")
			continue
		}
		expired = append(expired, *order)
	}
	return expired
}

func (l *Ledger) release(order *engine.Order, reason engine.CancelReason) error {
	if order.Side == engine.SideBuy {
		residual := (order.FrzAmt - order.CumAmt) + (order.FrzFee - order.CumFee)
		if err := l.cash.Unfreeze(residual); err != nil {
			return err
		}
	} else {
		position, ok := l.positions[order.Code]
		if !ok {
			return fmt.Errorf("%w: position %s", ErrNotFound, order.Code)
		}
		if err := position.Unfreeze(order.Unfilled()); err != nil {
			return err
		}
	}

	reject(order, reason)
	delete(l.resting, order.OrderID)
	return nil
}

// ApplyTrade settles one execution against its order. The fee is computed
// here from the side's rate. When the fill would push the order past what it
// reserved, nothing is changed and the returned error wraps ErrOverLimit.
func (l *Ledger) ApplyTrade(trade engine.Trade) (engine.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.resting[trade.OrderID]
	if !ok {
		log.Error().
			Int64("order_id", trade.OrderID).
			Int64("trade_id", trade.TradeID).
			Msg("Apply trade: order not found")
		return trade, ErrOrderNotFound
	}
	if trade.Qty <= 0 || trade.Price < 0 || trade.Price > math.MaxInt64/trade.Qty {
		return trade, fmt.Errorf("%w: trade qty=%d price=%d", ErrInvalidOrder, trade.Qty, trade.Price)
	}

	trade.Fee = Fee(trade.Amount(), l.rate(order.Side))

	var err error
	if order.Side == engine.SideBuy {
		err = l.settleBuy(order, &trade)
	} else {
		err = l.settleSell(order, &trade)
	}
	if err != nil {
		log.Error().
			Err(err).
			Int64("order_id", order.OrderID).
			Int64("trade_id", trade.TradeID).
			Str("side", order.Side.String()).
			Int64("qty", trade.Qty).
			Int64("price", trade.Price).
			Msg("Apply trade rejected")
		return trade, err
	}

	trade.Status = order.Status
	l.tradeSeq++
	stored := trade
	l.trades.ReplaceOrInsert(tradeItem{trade: &stored, seq: l.tradeSeq})
	return trade, nil
}

type cumulative struct {
	qty, fee, amt int64
}

func checkBounds(order *engine.Order, trade *engine.Trade) (cumulative, error) {
	next := cumulative{
		qty: order.CumQty + trade.Qty,
		fee: order.CumFee + trade.Fee,
		amt: order.CumAmt + trade.Amount(),
	}
	if next.qty > order.Qty {
		return next, &LimitError{Field: "cum_qty", Value: next.qty, Limit: order.Qty}
	}
	if next.fee > order.FrzFee {
		return next, &LimitError{Field: "cum_fee", Value: next.fee, Limit: order.FrzFee}
	}
	if next.amt > order.FrzAmt {
		return next, &LimitError{Field: "cum_amt", Value: next.amt, Limit: order.FrzAmt}
	}
	return next, nil
}

func (l *Ledger) settleBuy(order *engine.Order, trade *engine.Trade) error {
	next, err := checkBounds(order, trade)
	if err != nil {
		return err
	}
	if err := l.cash.Sub(trade.Fee + trade.Amount()); err != nil {
		return err
	}

	position, ok := l.positions[trade.Code]
	if !ok {
		position = &Position{AccountID: l.accountID, Code: trade.Code}
		l.positions[trade.Code] = position
	}
	position.Add(trade.Qty)

	order.CumQty, order.CumFee, order.CumAmt = next.qty, next.fee, next.amt

	if order.Unfilled() == 0 {
		order.Status = engine.StatusFilled
		delete(l.resting, order.OrderID)
		residual := (order.FrzAmt - order.CumAmt) + (order.FrzFee - order.CumFee)
		if err := l.cash.Unfreeze(residual); err != nil {
			log.Error().Err(err).Int64("order_id", order.OrderID).Msg("Release residual freeze failed")
		}
	}
	return nil
}

func (l *Ledger) settleSell(order *engine.Order, trade *engine.Trade) error {
	next, err := checkBounds(order, trade)
	if err != nil {
		return err
	}
	position, ok := l.positions[trade.Code]
	if !ok {
		return fmt.Errorf("%w: position %s", ErrNotFound, trade.Code)
	}
	if err := position.Sub(trade.Qty); err != nil {
		return err
	}

	l.cash.Add(trade.Amount() - trade.Fee)
	order.CumQty, order.CumFee, order.CumAmt = next.qty, next.fee, next.amt

	if order.Unfilled() == 0 {
		order.Status = engine.StatusFilled
		delete(l.resting, order.OrderID)
	}
	return nil
}

// DayRoll matures every position for the next trading day.
func (l *Ledger) DayRoll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.positions {
		p.DayRoll()
	}
}

func (l *Ledger) lookupOrder(orderID int64) (*engine.Order, bool) {
	item := l.orders.Get(orderItem{&engine.Order{OrderID: orderID}})
	if item == nil {
		return nil, false
	}
	return item.(orderItem).order, true
}

func (l *Ledger) GetOrder(q engine.QueryOrder) (engine.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if q.AccountID != l.accountID {
		return engine.Order{}, ErrNotFound
	}
	order, ok := l.lookupOrder(q.OrderID)
	if !ok {
		return engine.Order{}, ErrNotFound
	}
	return *order, nil
}

// GetTrade returns the most recent settlement of the order.
func (l *Ledger) GetTrade(q engine.QueryTrade) (engine.Trade, error) {
	if q.AccountID != l.accountID {
		return engine.Trade{}, ErrNotFound
	}
	trades := l.Trades(q.OrderID)
	if len(trades) == 0 {
		return engine.Trade{}, ErrNotFound
	}
	return trades[len(trades)-1], nil
}

// Trades lists the settlements of one order in arrival order.
func (l *Ledger) Trades(orderID int64) []engine.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	lo := tradeItem{trade: &engine.Trade{OrderID: orderID}, seq: math.MinInt64}
	var out []engine.Trade
	l.trades.AscendGreaterOrEqual(lo, func(item btree.Item) bool {
		t := item.(tradeItem).trade
		if t.OrderID != orderID {
			return false
		}
		out = append(out, *t)
		return true
	})
	return out
}

func (l *Ledger) GetCash(q engine.QueryCash) (Cash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if q.AccountID != l.accountID {
		return Cash{}, ErrNotFound
	}
	return l.cash, nil
}

func (l *Ledger) GetPosition(q engine.QueryPosition) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if q.AccountID != l.accountID {
		return Position{}, ErrNotFound
	}
	p, ok := l.positions[q.Code]
	if !ok {
		return Position{}, ErrNotFound
	}
	return *p, nil
}

// Orders returns every order ever accepted or rejected, by order id.
func (l *Ledger) Orders() []engine.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]engine.Order, 0, l.orders.Len())
	l.orders.Ascend(func(item btree.Item) bool {
		out = append(out, *item.(orderItem).order)
		return true
	})
	return out
}

// Resting returns the open orders, by order id.
func (l *Ledger) Resting() []engine.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]engine.Order, 0, len(l.resting))
	for _, o := range l.resting {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// Positions returns every position sorted by code.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
