package market

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/limitbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/limitbook/pkg/util"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrBadInstrument     = errors.New("malformed instrument")
)

var instrumentPattern = regexp.MustCompile(`^[A-Z0-9]+(-[A-Z0-9]+)*$`)

// Registry owns one order book per instrument and creates books on first use.
// Books never share state; the registry lock only guards the map.
type Registry struct {
	mu    sync.RWMutex
	books map[string]*orderbook.OrderBook

	allowed   map[string]struct{} // empty: any well-formed instrument
	clock     util.Clock
	logger    *zap.Logger
	listeners []orderbook.TradeListener
}

// NewRegistry creates an empty registry. When allowed is non-empty only those
// instruments can be traded.
func NewRegistry(allowed []string, clock util.Clock, logger *zap.Logger, listeners ...orderbook.TradeListener) *Registry {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		books:     make(map[string]*orderbook.OrderBook),
		allowed:   make(map[string]struct{}, len(allowed)),
		clock:     clock,
		logger:    logger,
		listeners: listeners,
	}
	for _, a := range allowed {
		r.allowed[Normalize(a)] = struct{}{}
	}
	return r
}

// Normalize upper-cases and trims an instrument key, so "btc-usd" and
// "BTC-USD" address the same book.
func Normalize(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}

func (r *Registry) check(instrument string) error {
	if !instrumentPattern.MatchString(instrument) {
		return fmt.Errorf("%w: %q", ErrBadInstrument, instrument)
	}
	if len(r.allowed) > 0 {
		if _, ok := r.allowed[instrument]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
		}
	}
	return nil
}

// Book returns the book for instrument, creating it if needed.
func (r *Registry) Book(instrument string) (*orderbook.OrderBook, error) {
	key := Normalize(instrument)
	if b, ok := r.Lookup(key); ok {
		return b, nil
	}
	if err := r.check(key); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.books[key]; ok {
		return b, nil
	}
	opts := []orderbook.Option{
		orderbook.WithClock(r.clock),
		orderbook.WithLogger(r.logger),
	}
	for _, l := range r.listeners {
		opts = append(opts, orderbook.WithTradeListener(l))
	}
	b := orderbook.NewOrderBook(key, opts...)
	r.books[key] = b
	r.logger.Info("book_created", zap.String("instrument", key))
	return b, nil
}

// Lookup returns an existing book without creating one.
func (r *Registry) Lookup(instrument string) (*orderbook.OrderBook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.books[Normalize(instrument)]
	return b, ok
}

// Instruments lists the instruments with a book, sorted.
func (r *Registry) Instruments() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.books))
	for k := range r.books {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}
