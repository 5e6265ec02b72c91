package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"paper-exchange/src/engine"
	"paper-exchange/src/journal"
	"paper-exchange/src/ledger"
	"paper-exchange/src/store"
)

// Session drives one account through the exchange: it reserves on the
// ledger, rests on the exchange, and settles every trade the exchange
// produces back on the ledger before the next order is matched.
type Session struct {
	Ledger   *ledger.Ledger
	Exchange *engine.Exchange
	journal  journal.Journal
	store    *store.Store

	// orderMu keeps each ledger change and its exchange counterpart together.
	orderMu sync.Mutex

	OrdersReceived  atomic.Int64
	OrdersRejected  atomic.Int64
	OrdersCancelled atomic.Int64
	QuotesProcessed atomic.Int64
	TradesSettled   atomic.Int64
	TradesRejected  atomic.Int64
}

type Option func(*Session)

// WithJournal records every order change and settled trade.
func WithJournal(j journal.Journal) Option {
	return func(s *Session) { s.journal = j }
}

// WithStore enables Save and Restore.
func WithStore(st *store.Store) Option {
	return func(s *Session) { s.store = st }
}

func New(l *ledger.Ledger, ex *engine.Exchange, opts ...Option) *Session {
	if ex == nil {
		ex = engine.NewExchange(nil)
	}
	s := &Session{Ledger: l, Exchange: ex}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) AccountID() int64 {
	return s.Ledger.AccountID()
}

// QuoteResult lists what one quote produced.
type QuoteResult struct {
	Code     string         `json:"code"`
	Settled  []engine.Trade `json:"settled"`
	Rejected []engine.Trade `json:"rejected"`
}

// SubmitOrder reserves resources and, when the order is accepted, rests it
// on the exchange. A rejected order is returned canceled with its reason.
func (s *Session) SubmitOrder(ctx context.Context, req engine.SubmitOrderRequest) (engine.Order, error) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	order, err := s.Ledger.SubmitOrder(req)
	if err != nil {
		return order, err
	}
	s.OrdersReceived.Add(1)

	if order.Status == engine.StatusCanceled {
		s.OrdersRejected.Add(1)
		log.Warn().
			Int64("order_id", order.OrderID).
			Str("code", order.Code).
			Str("side", order.Side.String()).
			Str("reason", order.Reason.String()).
			Msg("Order rejected")
	} else {
		s.Exchange.SubmitOrder(order)
		log.Info().
			Int64("order_id", order.OrderID).
			Str("code", order.Code).
			Str("side", order.Side.String()).
			Int64("price", order.Price).
			Int64("qty", order.Qty).
			Msg("Order accepted")
	}

	s.recordOrder(ctx, order)
	return order, nil
}

// CancelOrder withdraws an order from the ledger first, which is the source
// of truth, then from the exchange. An exchange miss is only logged.
func (s *Session) CancelOrder(ctx context.Context, req engine.CancelRequest) (engine.Order, error) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	order, err := s.Ledger.CancelOrder(req)
	if err != nil {
		return order, err
	}
	s.OrdersCancelled.Add(1)

	req.Code = order.Code
	if err := s.Exchange.SubmitCancel(req); err != nil && !errors.Is(err, engine.ErrCancelMiss) {
		return order, err
	}

	log.Info().
		Int64("order_id", order.OrderID).
		Str("code", order.Code).
		Int64("canceled", order.Canceled).
		Msg("Order cancelled")

	s.recordOrder(ctx, order)
	return order, nil
}

// ProcessQuote matches the quote against the resting orders of its
// instrument and settles each trade as soon as it is produced. A trade the
// ledger refuses is taken back off the exchange's copy of the order; an order
// the ledger no longer holds is dropped from the exchange.
func (s *Session) ProcessQuote(ctx context.Context, quote *engine.Quote) (QuoteResult, error) {
	result := QuoteResult{Code: quote.Code}
	s.QuotesProcessed.Add(1)

	for trade, fill := range s.Exchange.ProcessQuote(quote) {
		settled, err := s.Ledger.ApplyTrade(*trade)
		if err != nil {
			if errors.Is(err, ledger.ErrOrderNotFound) {
				fill.Drop()
			} else {
				fill.Revert()
			}
			s.TradesRejected.Add(1)
			result.Rejected = append(result.Rejected, settled)
			continue
		}
		s.TradesSettled.Add(1)
		result.Settled = append(result.Settled, settled)

		if s.journal != nil {
			if err := s.journal.RecordTrade(ctx, settled); err != nil {
				return result, fmt.Errorf("journal trade %d: %w", settled.TradeID, err)
			}
		}
		if order, err := s.Ledger.GetOrder(engine.QueryOrder{AccountID: settled.AccountID, OrderID: settled.OrderID}); err == nil {
			s.recordOrder(ctx, order)
		}
	}

	if len(result.Settled) > 0 || len(result.Rejected) > 0 {
		log.Info().
			Str("code", quote.Code).
			Int("settled", len(result.Settled)).
			Int("rejected", len(result.Rejected)).
			Msg("Quote processed")
	}
	return result, nil
}

// DayRoll expires every resting order, matures today's positions and, when
// a store is configured, persists the ledger.
func (s *Session) DayRoll(ctx context.Context) ([]engine.Order, error) {
	s.orderMu.Lock()
	expired := s.Ledger.ExpireAll()
	for _, order := range expired {
		_ = s.Exchange.SubmitCancel(engine.CancelRequest{
			AccountID: order.AccountID,
			OrderID:   order.OrderID,
			Code:      order.Code,
		})
		s.recordOrder(ctx, order)
	}
	s.Ledger.DayRoll()
	s.orderMu.Unlock()

	log.Info().
		Int("expired", len(expired)).
		Msg("Day roll complete")

	if s.store != nil {
		if err := s.Save(ctx); err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// Save persists the ledger state.
func (s *Session) Save(ctx context.Context) error {
	if s.store == nil {
		return errors.New("session has no store")
	}
	return s.store.SaveLedger(ctx, s.Ledger.Snapshot())
}

// Restore reloads the ledger from the store and rests its open orders on the
// exchange again. It reports false when nothing was stored.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, errors.New("session has no store")
	}
	snap, err := s.store.LoadLedger(ctx, s.AccountID())
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	if err := s.Ledger.Restore(*snap); err != nil {
		return false, err
	}
	for _, order := range s.Ledger.Resting() {
		s.Exchange.SubmitOrder(order)
	}
	log.Info().
		Int64("account_id", s.AccountID()).
		Int("resting", len(s.Ledger.Resting())).
		Msg("Ledger restored")
	return true, nil
}

func (s *Session) recordOrder(ctx context.Context, order engine.Order) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordOrder(ctx, order); err != nil {
		log.Error().Err(err).Int64("order_id", order.OrderID).Msg("Journal order failed")
	}
}
