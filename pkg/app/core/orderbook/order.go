package orderbook

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side an order of this side trades against.
func (s Side) Opposite() Side {
	return -s
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// ParseSide accepts "buy"/"sell" or "bid"/"ask" in any case, ignoring
// surrounding space.
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY", "BID":
		return Buy, nil
	case "SELL", "ASK":
		return Sell, nil
	default:
		return 0, errors.Wrapf(ErrInvalidSide, "%q", v)
	}
}

// Validation errors returned before an order reaches matching.
var (
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidSide       = errors.New("side must be BUY or SELL")
	ErrMissingInstrument = errors.New("missing instrument")
)

// OrderID identifies an order for the lifetime of the process.
type OrderID uint64

func (id OrderID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Sequencer hands out strictly increasing identifiers. It never blocks on a
// book lock.
type Sequencer struct {
	next atomic.Uint64
}

// NewSequencer starts issuing at start+1.
func NewSequencer(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next identifier.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued identifier.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

var orderIDs = NewSequencer(0)

// NextOrderID draws from the process-wide order id sequence.
func NextOrderID() OrderID {
	return OrderID(orderIDs.Next())
}

// Order is a limit order. Quantity and Volume shrink as the order fills;
// everything else is fixed at creation.
type Order struct {
	ID         OrderID
	Instrument string
	Side       Side
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Volume     decimal.Decimal
	Submitter  string
	CreatedAt  time.Time

	// intrusive FIFO links, owned by the price level holding the order
	level *PriceLevel
	prev  *Order
	next  *Order
	// set once the order leaves a book, by cancel or by filling as a maker
	closed bool
}

// NewOrder validates the inputs and assigns the next order id.
func NewOrder(instrument string, side Side, price, quantity decimal.Decimal, submitter string) (*Order, error) {
	if err := validate(instrument, side, price, quantity); err != nil {
		return nil, err
	}
	return &Order{
		ID:         NextOrderID(),
		Instrument: instrument,
		Side:       side,
		Price:      price,
		Quantity:   quantity,
		Volume:     price.Mul(quantity),
		Submitter:  submitter,
		CreatedAt:  time.Now(),
	}, nil
}

func validate(instrument string, side Side, price, quantity decimal.Decimal) error {
	if instrument == "" {
		return ErrMissingInstrument
	}
	if !side.Valid() {
		return ErrInvalidSide
	}
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	return nil
}

// Validate re-checks an order built without NewOrder.
func (o *Order) Validate() error {
	return validate(o.Instrument, o.Side, o.Price, o.Quantity)
}

// Filled reports whether nothing is left to trade.
func (o *Order) Filled() bool {
	return o.Quantity.IsZero()
}

// reduce takes qty off the order and recomputes its volume.
func (o *Order) reduce(qty decimal.Decimal) {
	o.Quantity = o.Quantity.Sub(qty)
	o.Volume = o.Price.Mul(o.Quantity)
}

// snapshot returns a detached copy safe to hand out of the lock.
func (o *Order) snapshot() Order {
	cp := *o
	cp.level, cp.prev, cp.next, cp.closed = nil, nil, nil, false
	return cp
}
