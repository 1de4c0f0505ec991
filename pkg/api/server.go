package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitbook/pkg/app/core/market"
	"github.com/uhyunpark/limitbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/limitbook/pkg/app/core/transaction"
	"github.com/uhyunpark/limitbook/pkg/metrics"
	"github.com/uhyunpark/limitbook/pkg/storage"
)

const maxBodyBytes = 64 << 10

var (
	defaultHistoryStart = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	defaultHistoryEnd   = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

type Config struct {
	DepthLevels    int
	HistoryMaxPage int
	AllowedOrigins []string
}

// Deps are the collaborators the server routes requests to. Registry, Hub and
// Verifier are required; the rest may be nil.
type Deps struct {
	Registry *market.Registry
	Hub      *Hub
	Verifier *transaction.Verifier
	Metrics  *metrics.Metrics
	Journal  *storage.TradeJournal
	Audit    storage.AuditLog
	Logger   *zap.Logger
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg      Config
	registry *market.Registry
	hub      *Hub
	verifier *transaction.Verifier
	metrics  *metrics.Metrics
	journal  *storage.TradeJournal
	audit    storage.AuditLog
	logger   *zap.Logger

	router   *mux.Router
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(cfg Config, deps Deps) *Server {
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 40
	}
	if cfg.HistoryMaxPage <= 0 {
		cfg.HistoryMaxPage = 100
	}
	s := &Server{
		cfg:      cfg,
		registry: deps.Registry,
		hub:      deps.Hub,
		verifier: deps.Verifier,
		metrics:  deps.Metrics,
		journal:  deps.Journal,
		audit:    deps.Audit,
		logger:   deps.Logger,
		router:   mux.NewRouter(),
		upgrader: newUpgrader(cfg.AllowedOrigins),
	}
	if s.audit == nil {
		s.audit = storage.NewNopAuditLog()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders/limit", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")

	api.HandleFunc("/{pair}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/{pair}/tradehistory", s.handleGetTradeHistory).Methods("GET")
	api.HandleFunc("/{pair}/journal", s.handleGetJournal).Methods("GET")
	api.HandleFunc("/{pair}/orders/{id}", s.handleGetOrder).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Handler returns the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api_listening", zap.String("addr", addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// ==============================
// Order Handlers
// ==============================

func (s *Server) readTx(w http.ResponseWriter, r *http.Request, want transaction.TxType) (*transaction.SignedTransaction, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return nil, false
	}
	tx, err := transaction.ParseTransaction(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return nil, false
	}
	if tx.Type != want {
		respondError(w, http.StatusBadRequest, "invalid transaction type", "expected type="+string(want))
		return nil, false
	}
	return tx, true
}

func respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transaction.ErrStaleNonce):
		respondError(w, http.StatusConflict, "stale nonce", err.Error())
	case errors.Is(err, transaction.ErrBadSignature):
		respondError(w, http.StatusUnauthorized, "invalid signature", err.Error())
	default:
		respondError(w, http.StatusBadRequest, "invalid signed request", err.Error())
	}
}

func (s *Server) book(w http.ResponseWriter, instrument string) (*orderbook.OrderBook, bool) {
	b, err := s.registry.Book(instrument)
	switch {
	case errors.Is(err, market.ErrUnknownInstrument):
		respondError(w, http.StatusNotFound, "unknown instrument", err.Error())
		return nil, false
	case err != nil:
		respondError(w, http.StatusBadRequest, "invalid instrument", err.Error())
		return nil, false
	}
	return b, true
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.readTx(w, r, transaction.TxTypeOrder)
	if !ok {
		return
	}
	owner, err := s.verifier.VerifyOrder(tx)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	order, err := tx.Order.ToOrder(owner)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	book, ok := s.book(w, order.Instrument)
	if !ok {
		return
	}

	// the order is shared with the book once added; work from the trades
	remaining := order.Quantity
	start := time.Now()
	trades, err := book.AddOrder(order)
	if err != nil {
		respondError(w, http.StatusBadRequest, "order rejected", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveOrder(order.Instrument, order.Side, time.Since(start))
	}
	for _, t := range trades {
		remaining = remaining.Sub(t.Quantity)
	}

	status := "resting"
	switch {
	case remaining.IsZero():
		status = "filled"
	case len(trades) > 0:
		status = "partially_filled"
	}
	s.appendAudit(storage.AuditEntry{
		Action:     "order",
		Owner:      owner.Hex(),
		Instrument: order.Instrument,
		OrderID:    uint64(order.ID),
		Detail:     status,
	})
	s.logger.Info("order_accepted",
		zap.Stringer("order_id", order.ID),
		zap.String("instrument", order.Instrument),
		zap.Stringer("side", order.Side),
		zap.String("status", status),
		zap.Int("trades", len(trades)))
	s.BroadcastOrderbook(book)

	respondJSON(w, SubmitOrderResponse{
		OrderID:   order.ID.String(),
		Status:    status,
		Remaining: remaining,
		Trades:    tradeInfos(trades),
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.readTx(w, r, transaction.TxTypeCancel)
	if !ok {
		return
	}
	owner, err := s.verifier.VerifyCancel(tx)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	id, err := tx.Cancel.OrderIDValue()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid orderId", err.Error())
		return
	}
	instrument := market.Normalize(tx.Cancel.Instrument)
	resp := CancelOrderResponse{OrderID: id.String()}

	book, exists := s.registry.Lookup(instrument)
	if !exists {
		respondJSON(w, resp)
		return
	}
	if resting, ok := book.Order(id); ok && resting.Submitter != owner.Hex() {
		respondError(w, http.StatusForbidden, "not order owner", "")
		return
	}

	cancelled, removed := book.Cancel(id)
	if s.metrics != nil {
		s.metrics.ObserveCancel(instrument, removed)
	}
	resp.Cancelled = removed
	if removed {
		resp.Remaining = &cancelled.Quantity
		s.appendAudit(storage.AuditEntry{
			Action:     "cancel",
			Owner:      owner.Hex(),
			Instrument: instrument,
			OrderID:    uint64(id),
		})
		s.BroadcastOrderbook(book)
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	n, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	book, ok := s.registry.Lookup(vars["pair"])
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	o, ok := book.Order(orderbook.OrderID(n))
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	respondJSON(w, orderInfo(o))
}

// ==============================
// Market Data Handlers
// ==============================

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	book, ok := s.book(w, mux.Vars(r)["pair"])
	if !ok {
		return
	}
	respondJSON(w, s.snapshot(book))
}

func (s *Server) snapshot(book *orderbook.OrderBook) OrderbookSnapshot {
	project := levelInfo(book.Instrument())
	return OrderbookSnapshot{
		Asks: orEmpty(orderbook.TopLevels(book, orderbook.Sell, s.cfg.DepthLevels, project)),
		Bids: orEmpty(orderbook.TopLevels(book, orderbook.Buy, s.cfg.DepthLevels, project)),
	}
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

type historyQuery struct {
	start, end  time.Time
	skip, limit int
}

func (s *Server) parseHistoryQuery(r *http.Request) (historyQuery, error) {
	q := r.URL.Query()
	hq := historyQuery{start: defaultHistoryStart, end: defaultHistoryEnd, limit: 100}
	var err error
	if v := q.Get("startTime"); v != "" {
		if hq.start, err = time.Parse(time.RFC3339, v); err != nil {
			return hq, errors.New("startTime must be RFC3339")
		}
	}
	end := q.Get("endTime")
	if end == "" {
		end = q.Get("endDateTime")
	}
	if end != "" {
		if hq.end, err = time.Parse(time.RFC3339, end); err != nil {
			return hq, errors.New("endTime must be RFC3339")
		}
	}
	if v := q.Get("skip"); v != "" {
		if hq.skip, err = strconv.Atoi(v); err != nil || hq.skip < 0 {
			return hq, errors.New("skip must be a non-negative integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if hq.limit, err = strconv.Atoi(v); err != nil {
			return hq, errors.New("limit must be an integer")
		}
	}
	if hq.limit > s.cfg.HistoryMaxPage {
		hq.limit = s.cfg.HistoryMaxPage
	}
	return hq, nil
}

func (s *Server) handleGetTradeHistory(w http.ResponseWriter, r *http.Request) {
	book, ok := s.book(w, mux.Vars(r)["pair"])
	if !ok {
		return
	}
	hq, err := s.parseHistoryQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	respondJSON(w, tradeInfos(book.TradeHistory(hq.start, hq.end, hq.skip, hq.limit)))
}

// handleGetJournal reads persisted trades; it answers 404 when no journal is
// configured.
func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		respondError(w, http.StatusNotFound, "journal disabled", "")
		return
	}
	hq, err := s.parseHistoryQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	if hq.limit <= 0 {
		respondJSON(w, []storage.TradeRecord{})
		return
	}
	records, err := s.journal.LoadTrades(market.Normalize(mux.Vars(r)["pair"]), hq.start, hq.end, hq.limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal read failed", err.Error())
		return
	}
	respondJSON(w, orEmpty(records))
}

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	instruments := s.registry.Instruments()
	out := make([]MarketInfo, 0, len(instruments))
	for _, name := range instruments {
		book, ok := s.registry.Lookup(name)
		if !ok {
			continue
		}
		stats := book.Stats()
		info := MarketInfo{
			Instrument: name,
			LastPrice:  book.LastPrice(),
			BidLevels:  stats.BidLevels,
			AskLevels:  stats.AskLevels,
			OpenOrders: stats.OpenOrders,
			Trades:     stats.Trades,
			Digest:     book.Digest(),
		}
		if o, ok := book.BestBid(); ok {
			info.BestBid = &o.Price
		}
		if o, ok := book.BestAsk(); ok {
			info.BestAsk = &o.Price
		}
		out = append(out, info)
	}
	respondJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "true" {
		for _, name := range s.registry.Instruments() {
			book, _ := s.registry.Lookup(name)
			if err := book.Verify(); err != nil {
				s.logger.Error("book_invariant_broken", zap.String("instrument", name), zap.Error(err))
				respondError(w, http.StatusInternalServerError, "book invariant broken", name)
				return
			}
		}
	}
	respondJSON(w, map[string]any{
		"status":     "ok",
		"books":      s.registry.Count(),
		"ws_clients": s.hub.ClientCount(),
	})
}

// ==============================
// Broadcast Methods
// ==============================

// BroadcastOrderbook pushes the current depth of book to its channel.
func (s *Server) BroadcastOrderbook(book *orderbook.OrderBook) {
	s.hub.BroadcastToChannel("orderbook:"+book.Instrument(), s.orderbookUpdate(book))
}

func (s *Server) orderbookUpdate(book *orderbook.OrderBook) OrderbookUpdate {
	snap := s.snapshot(book)
	return OrderbookUpdate{
		Type:       "orderbook",
		Instrument: book.Instrument(),
		Asks:       snap.Asks,
		Bids:       snap.Bids,
		Digest:     book.Digest(),
		Timestamp:  time.Now().UnixMilli(),
	}
}

// sendInitialSnapshot answers an orderbook subscription with the current
// depth so the client does not wait for the next change.
func (s *Server) sendInitialSnapshot(c *Client, channel string) {
	instrument, ok := strings.CutPrefix(channel, "orderbook:")
	if !ok {
		return
	}
	book, exists := s.registry.Lookup(instrument)
	if !exists {
		return
	}
	c.sendJSON(s.orderbookUpdate(book))
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) appendAudit(e storage.AuditEntry) {
	e.At = time.Now().UTC()
	if err := s.audit.Append(e); err != nil {
		s.logger.Warn("audit_append_failed", zap.Error(err))
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
