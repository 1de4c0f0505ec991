package orderbook

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitbook/pkg/util"
)

var (
	ErrInstrumentMismatch = errors.New("order instrument does not match book")
	ErrDuplicateOrder     = errors.New("order id already resting in book")
	ErrOrderNotFresh      = errors.New("order was already submitted")
)

// Option configures an OrderBook.
type Option func(*OrderBook)

// WithClock sets the clock used to stamp trades.
func WithClock(c util.Clock) Option {
	return func(b *OrderBook) { b.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *OrderBook) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTradeListener registers l to receive every trade the book executes.
func WithTradeListener(l TradeListener) Option {
	return func(b *OrderBook) {
		if l != nil {
			b.listeners = append(b.listeners, l)
		}
	}
}

// OrderBook is the limit order book of a single instrument.
//
// Mutations (AddOrder, Cancel) hold the write lock for their whole duration;
// every read takes the read lock and returns copies, so a reader never sees a
// half-applied match.
//
// Trades are queued under the write lock and delivered to listeners outside
// it, one drainer at a time, so listeners see them in Seq order. A listener
// may read the book but must not mutate it.
type OrderBook struct {
	mu sync.RWMutex
	// notifyMu serialises delivery of pending to the listeners.
	notifyMu sync.Mutex
	pending  []Trade

	instrument string
	bids       *bookSide
	asks       *bookSide
	orders     map[OrderID]*Order
	ledger     *Ledger
	lastPrice  decimal.Decimal

	clock     util.Clock
	logger    *zap.Logger
	listeners []TradeListener
}

func NewOrderBook(instrument string, opts ...Option) *OrderBook {
	b := &OrderBook{
		instrument: instrument,
		bids:       newBookSide(Buy),
		asks:       newBookSide(Sell),
		orders:     make(map[OrderID]*Order),
		ledger:     NewLedger(),
		clock:      util.RealClock{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("instrument", instrument))
	return b
}

func (b *OrderBook) Instrument() string {
	return b.instrument
}

// AddOrder matches o against the opposite side and rests any remainder.
// The order is mutated in place; the executed trades are returned in
// execution order. They have been delivered to the registered listeners by
// the time AddOrder returns.
//
// o must be fresh: an order that is resting, was cancelled or was fully
// filled as a maker is rejected with ErrOrderNotFresh.
func (b *OrderBook) AddOrder(o *Order) ([]Trade, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.Instrument != b.instrument {
		return nil, errors.Wrapf(ErrInstrumentMismatch, "%s != %s", o.Instrument, b.instrument)
	}

	b.mu.Lock()
	if _, exists := b.orders[o.ID]; exists {
		b.mu.Unlock()
		return nil, errors.Wrapf(ErrDuplicateOrder, "order %s", o.ID)
	}
	if o.ID == 0 || o.level != nil || o.closed {
		b.mu.Unlock()
		return nil, errors.Wrapf(ErrOrderNotFresh, "order %s", o.ID)
	}
	trades := b.match(o)
	if len(trades) > 0 && len(b.listeners) > 0 {
		b.pending = append(b.pending, trades...)
	}
	b.mu.Unlock()

	if len(trades) > 0 && len(b.listeners) > 0 {
		b.notify()
	}
	return trades, nil
}

// Cancel removes a resting order. Unknown, filled or already cancelled ids
// are a no-op and report false. The returned copy carries the quantity that
// was still open.
func (b *OrderBook) Cancel(id OrderID) (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	cancelled := o.snapshot()
	b.removeResting(o)
	b.logger.Debug("order_cancelled",
		zap.Stringer("order_id", id),
		zap.Stringer("side", o.Side),
		zap.Stringer("price", o.Price),
		zap.Stringer("remaining", o.Quantity))
	return cancelled, true
}

// notify drains pending until it is empty. Whoever holds notifyMu delivers
// every trade queued so far, including those of other submitters, so a
// caller's own trades are out by the time it gets the lock and finds nothing
// left.
func (b *OrderBook) notify() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()
	for {
		b.mu.Lock()
		batch := b.pending
		b.pending = nil
		b.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, t := range batch {
			for _, l := range b.listeners {
				l.OnTrade(t)
			}
		}
	}
}

func (b *OrderBook) side(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// ---- reads ----

// BestBid returns a copy of the earliest order at the highest bid.
func (b *OrderBook) BestBid() (Order, bool) {
	return b.bestOf(b.bids)
}

// BestAsk returns a copy of the earliest order at the lowest ask.
func (b *OrderBook) BestAsk() (Order, bool) {
	return b.bestOf(b.asks)
}

func (b *OrderBook) bestOf(s *bookSide) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := s.best()
	if !ok {
		return Order{}, false
	}
	return l.Head().snapshot(), true
}

// Order looks up a resting order by id.
func (b *OrderBook) Order(id OrderID) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return o.snapshot(), true
}

// Level returns the level at (price, side) including its queued orders.
func (b *OrderBook) Level(price decimal.Decimal, side Side) (LevelView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.side(side).level(price)
	if !ok {
		return LevelView{}, false
	}
	return l.view(true), true
}

// AggregateQuantity is the open quantity resting at (price, side).
func (b *OrderBook) AggregateQuantity(price decimal.Decimal, side Side) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.side(side).level(price)
	if !ok {
		return decimal.Zero, false
	}
	return l.Quantity(), true
}

// AggregateVolume is the open price*quantity resting at (price, side).
func (b *OrderBook) AggregateVolume(price decimal.Decimal, side Side) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.side(side).level(price)
	if !ok {
		return decimal.Zero, false
	}
	return l.Volume(), true
}

// TopLevels projects the first n levels of side, best price first.
func TopLevels[T any](b *OrderBook, side Side, n int, project func(LevelView) T) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	s := b.side(side)
	out := make([]T, 0, min(n, s.depth()))
	s.walk(func(l *PriceLevel) bool {
		out = append(out, project(l.view(false)))
		return len(out) < n
	})
	return out
}

// Depth is a consistent view of both sides taken under one read lock.
type Depth struct {
	Instrument string
	Bids       []LevelView
	Asks       []LevelView
	LastPrice  decimal.Decimal
}

// Depth returns up to n levels per side.
func (b *OrderBook) Depth(n int) Depth {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d := Depth{Instrument: b.instrument, LastPrice: b.lastPrice}
	collect := func(s *bookSide) []LevelView {
		out := make([]LevelView, 0, min(n, s.depth()))
		if n <= 0 {
			return out
		}
		s.walk(func(l *PriceLevel) bool {
			out = append(out, l.view(false))
			return len(out) < n
		})
		return out
	}
	d.Bids = collect(b.bids)
	d.Asks = collect(b.asks)
	return d
}

// TradeHistory returns trades executed in [start, end), oldest first.
func (b *OrderBook) TradeHistory(start, end time.Time, skip, limit int) []Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ledger.Query(start, end, skip, limit)
}

// LastPrice is the price of the most recent trade, zero before the first.
func (b *OrderBook) LastPrice() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastPrice
}

// Stats summarises the book size.
type Stats struct {
	BidLevels  int
	AskLevels  int
	OpenOrders int
	Trades     int
}

func (b *OrderBook) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		BidLevels:  b.bids.depth(),
		AskLevels:  b.asks.depth(),
		OpenOrders: len(b.orders),
		Trades:     b.ledger.Len(),
	}
}
