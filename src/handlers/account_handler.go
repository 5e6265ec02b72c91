package handlers

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"paper-exchange/src/engine"
	"paper-exchange/src/feed"
	"paper-exchange/src/ledger"
	"paper-exchange/src/models"
	"paper-exchange/src/session"
)

const (
	defaultMaxLatencies = 10000
	defaultBookDepth    = 10
	maxBookDepth        = 1000
)

type AccountHandler struct {
	Session   *session.Session
	StartTime time.Time

	latencies    []time.Duration
	latenciesMu  sync.RWMutex
	maxLatencies int
}

func NewAccountHandler(s *session.Session) *AccountHandler {
	return &AccountHandler{
		Session:      s,
		StartTime:    time.Now(),
		latencies:    make([]time.Duration, 0, defaultMaxLatencies),
		maxLatencies: defaultMaxLatencies,
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: msg})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{Error: msg})
}

func internalError(c *fiber.Ctx, err error) error {
	log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{Error: "Internal server error"})
}

func isNotFound(err error) bool {
	return errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrOrderNotFound)
}

func orderIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Message: "Invalid order id"}
	}
	return id, nil
}

// SubmitOrder answers 200 for both accepted and rejected orders; a rejected
// order comes back canceled with its reason.
func (h *AccountHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return badRequest(c, "Invalid request: malformed JSON")
	}

	submit, err := h.toSubmitRequest(&req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("code", req.Code).
			Str("side", req.Side).
			Str("type", req.Type).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return badRequest(c, err.Error())
	}

	start := time.Now()
	order, err := h.Session.SubmitOrder(c.UserContext(), submit)
	h.recordLatency(time.Since(start))
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidOrder) {
			return badRequest(c, err.Error())
		}
		return internalError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(models.NewOrderResponse(order))
}

func (h *AccountHandler) CancelOrder(c *fiber.Ctx) error {
	id, err := orderIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.Session.CancelOrder(c.UserContext(), engine.CancelRequest{
		AccountID: h.Session.AccountID(),
		OrderID:   id,
	})
	if err != nil {
		if isNotFound(err) {
			log.Warn().
				Int64("order_id", id).
				Str("ip", c.IP()).
				Msg("Cancel order: order not found")
			return notFound(c, "Order not found")
		}
		return internalError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(models.NewOrderResponse(order))
}

func (h *AccountHandler) GetOrder(c *fiber.Ctx) error {
	id, err := orderIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	order, err := h.Session.Ledger.GetOrder(engine.QueryOrder{AccountID: h.Session.AccountID(), OrderID: id})
	if err != nil {
		return notFound(c, "Order not found")
	}
	return c.Status(fiber.StatusOK).JSON(models.NewOrderResponse(order))
}

// ListOrders returns the order history, or only the resting orders with
// ?status=open.
func (h *AccountHandler) ListOrders(c *fiber.Ctx) error {
	var orders []engine.Order
	switch strings.ToLower(c.Query("status")) {
	case "":
		orders = h.Session.Ledger.Orders()
	case "open":
		orders = h.Session.Ledger.Resting()
	default:
		return badRequest(c, "status must be empty or 'open'")
	}

	resp := models.OrderListResponse{Orders: make([]models.OrderResponse, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, models.NewOrderResponse(o))
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// GetTrade returns the latest settlement of an order.
func (h *AccountHandler) GetTrade(c *fiber.Ctx) error {
	id, err := orderIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	trade, err := h.Session.Ledger.GetTrade(engine.QueryTrade{AccountID: h.Session.AccountID(), OrderID: id})
	if err != nil {
		return notFound(c, "Trade not found")
	}
	return c.Status(fiber.StatusOK).JSON(models.NewTradeResponse(trade))
}

func (h *AccountHandler) ListTrades(c *fiber.Ctx) error {
	id, err := orderIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.Status(fiber.StatusOK).JSON(models.NewTradeResponses(h.Session.Ledger.Trades(id)))
}

func (h *AccountHandler) GetCash(c *fiber.Ctx) error {
	cash, err := h.Session.Ledger.GetCash(engine.QueryCash{AccountID: h.Session.AccountID()})
	if err != nil {
		return notFound(c, "Account not found")
	}
	return c.Status(fiber.StatusOK).JSON(models.NewCashResponse(cash))
}

func (h *AccountHandler) GetPosition(c *fiber.Ctx) error {
	p, err := h.Session.Ledger.GetPosition(engine.QueryPosition{
		AccountID: h.Session.AccountID(),
		Code:      c.Params("code"),
	})
	if err != nil {
		return notFound(c, "Position not found")
	}
	return c.Status(fiber.StatusOK).JSON(models.NewPositionResponse(p))
}

func (h *AccountHandler) ListPositions(c *fiber.Ctx) error {
	positions := h.Session.Ledger.Positions()
	out := make([]models.PositionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, models.NewPositionResponse(p))
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// ProcessQuote feeds one market snapshot to the exchange and returns the
// trades it settled.
func (h *AccountHandler) ProcessQuote(c *fiber.Ctx) error {
	var req models.QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	quote, err := toQuote(&req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.Session.ProcessQuote(c.UserContext(), quote)
	if err != nil {
		return internalError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(models.QuoteResponse{
		Code:     result.Code,
		Settled:  models.NewTradeResponses(result.Settled),
		Rejected: models.NewTradeResponses(result.Rejected),
	})
}

// GetBook returns the account's own resting orders for an instrument as
// price levels.
func (h *AccountHandler) GetBook(c *fiber.Ctx) error {
	depth := c.QueryInt("depth", defaultBookDepth)
	if depth <= 0 {
		depth = defaultBookDepth
	}
	depth = min(depth, maxBookDepth)

	code := c.Params("code")
	bids, asks := h.Session.Exchange.Book(code).Snapshot(depth)
	return c.Status(fiber.StatusOK).JSON(models.BookResponse{
		Code:      code,
		Timestamp: time.Now().UnixMilli(),
		Bids:      models.NewLevelInfos(bids),
		Asks:      models.NewLevelInfos(asks),
	})
}

func (h *AccountHandler) DayRoll(c *fiber.Ctx) error {
	expired, err := h.Session.DayRoll(c.UserContext())
	if err != nil {
		return internalError(c, err)
	}
	resp := models.DayRollResponse{Expired: make([]models.OrderResponse, 0, len(expired))}
	for _, o := range expired {
		resp.Expired = append(resp.Expired, models.NewOrderResponse(o))
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *AccountHandler) HealthCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:          "healthy",
		UptimeSeconds:   int64(time.Since(h.StartTime).Seconds()),
		OrdersProcessed: h.Session.OrdersReceived.Load(),
	})
}

func (h *AccountHandler) Metrics(c *fiber.Ctx) error {
	s := h.Session
	p50, p99, p999 := h.calculateLatencyPercentiles()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersReceived:   s.OrdersReceived.Load(),
		OrdersRejected:   s.OrdersRejected.Load(),
		OrdersCancelled:  s.OrdersCancelled.Load(),
		OrdersResting:    int64(len(s.Ledger.Resting())),
		QuotesProcessed:  s.QuotesProcessed.Load(),
		TradesSettled:    s.TradesSettled.Load(),
		TradesRejected:   s.TradesRejected.Load(),
		LatencyP50Ms:     p50,
		LatencyP99Ms:     p99,
		LatencyP999Ms:    p999,
		ThroughputPerSec: h.calculateThroughput(),
	})
}

func (h *AccountHandler) recordLatency(latency time.Duration) {
	h.latenciesMu.Lock()
	defer h.latenciesMu.Unlock()

	h.latencies = append(h.latencies, latency)

	// keep a rolling window
	if len(h.latencies) > h.maxLatencies {
		h.latencies = h.latencies[len(h.latencies)-h.maxLatencies:]
	}
}

func (h *AccountHandler) calculateLatencyPercentiles() (p50, p99, p999 float64) {
	h.latenciesMu.RLock()
	sorted := make([]time.Duration, len(h.latencies))
	copy(sorted, h.latencies)
	h.latenciesMu.RUnlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(q float64) float64 {
		i := min(int(float64(len(sorted))*q), len(sorted)-1)
		return float64(sorted[i].Nanoseconds()) / 1e6
	}
	return at(0.50), at(0.99), at(0.999)
}

func (h *AccountHandler) calculateThroughput() float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(h.Session.OrdersReceived.Load()) / uptime
}

func (h *AccountHandler) toSubmitRequest(req *models.SubmitOrderRequest) (engine.SubmitOrderRequest, error) {
	if req.Code == "" {
		return engine.SubmitOrderRequest{}, &ValidationError{Message: "Invalid order: code is required"}
	}
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		return engine.SubmitOrderRequest{}, &ValidationError{Message: "Invalid order: side must be BUY or SELL"}
	}
	typ, err := engine.ParseOrderType(req.Type)
	if err != nil {
		return engine.SubmitOrderRequest{}, &ValidationError{Message: "Invalid order: type must be LIMIT or MARKET"}
	}
	if req.Qty <= 0 {
		return engine.SubmitOrderRequest{}, &ValidationError{Message: "Invalid order: qty must be positive"}
	}
	price, err := feed.ParsePrice(req.Price)
	if err != nil || price <= 0 {
		return engine.SubmitOrderRequest{}, &ValidationError{Message: "Invalid order: price must be a positive decimal"}
	}

	return engine.SubmitOrderRequest{
		AccountID: h.Session.AccountID(),
		Code:      req.Code,
		Qty:       req.Qty,
		Price:     price,
		Type:      typ,
		Side:      side,
		Time:      time.Now(),
	}, nil
}

func toQuote(req *models.QuoteRequest) (*engine.Quote, error) {
	if req.Code == "" {
		return nil, &ValidationError{Message: "Invalid quote: code is required"}
	}
	levels := func(in []models.LevelInfo) ([]engine.Level, error) {
		out := make([]engine.Level, 0, len(in))
		for _, l := range in {
			price, err := feed.ParsePrice(l.Price)
			if err != nil || l.Volume < 0 {
				return nil, &ValidationError{Message: "Invalid quote level: " + l.Price}
			}
			out = append(out, engine.Level{Price: price, Volume: l.Volume})
		}
		return out, nil
	}
	asks, err := levels(req.Asks)
	if err != nil {
		return nil, err
	}
	bids, err := levels(req.Bids)
	if err != nil {
		return nil, err
	}
	at := req.Time
	if at.IsZero() {
		at = time.Now()
	}
	return &engine.Quote{Code: req.Code, Time: at, Asks: asks, Bids: bids}, nil
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
