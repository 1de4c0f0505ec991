package orderbook

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// PriceLevel is the FIFO queue of resting orders at one price on one side,
// with aggregates kept in step with the queue.
type PriceLevel struct {
	Price decimal.Decimal
	Side  Side

	head *Order
	tail *Order

	quantity   decimal.Decimal
	volume     decimal.Decimal
	orderCount int
}

func newPriceLevel(price decimal.Decimal, side Side) *PriceLevel {
	return &PriceLevel{Price: price, Side: side}
}

// Append queues o behind every order already at this price.
func (l *PriceLevel) Append(o *Order) {
	o.level = l
	o.prev = l.tail
	o.next = nil
	if l.tail == nil {
		l.head = o
	} else {
		l.tail.next = o
	}
	l.tail = o

	l.quantity = l.quantity.Add(o.Quantity)
	l.volume = l.volume.Add(o.Volume)
	l.orderCount++
}

// Remove unlinks o from wherever it sits in the queue.
func (l *PriceLevel) Remove(o *Order) error {
	if o.level != l {
		return errors.AssertionFailedf("order %s is not queued at %s %s", o.ID, l.Side, l.Price)
	}
	if o.prev == nil {
		l.head = o.next
	} else {
		o.prev.next = o.next
	}
	if o.next == nil {
		l.tail = o.prev
	} else {
		o.next.prev = o.prev
	}
	o.level, o.prev, o.next = nil, nil, nil

	l.quantity = l.quantity.Sub(o.Quantity)
	l.volume = l.volume.Sub(o.Volume)
	l.orderCount--
	return nil
}

// Fill trades qty off o, which must be queued here, and keeps the level
// aggregates in step.
func (l *PriceLevel) Fill(o *Order, qty decimal.Decimal) error {
	if o.level != l {
		return errors.AssertionFailedf("fill on order %s not queued at %s %s", o.ID, l.Side, l.Price)
	}
	if qty.GreaterThan(o.Quantity) {
		return errors.AssertionFailedf("fill %s exceeds order %s remaining %s", qty, o.ID, o.Quantity)
	}
	before := o.Volume
	o.reduce(qty)
	l.quantity = l.quantity.Sub(qty)
	l.volume = l.volume.Sub(before.Sub(o.Volume))
	return nil
}

// Head returns the order with time priority, or nil.
func (l *PriceLevel) Head() *Order {
	return l.head
}

func (l *PriceLevel) Empty() bool {
	return l.head == nil
}

func (l *PriceLevel) Quantity() decimal.Decimal { return l.quantity }
func (l *PriceLevel) Volume() decimal.Decimal   { return l.volume }
func (l *PriceLevel) OrderCount() int           { return l.orderCount }

// Orders walks the queue front to back.
func (l *PriceLevel) Orders(fn func(*Order) bool) {
	for o := l.head; o != nil; o = o.next {
		if !fn(o) {
			return
		}
	}
}

// LevelView is a detached copy of a price level.
type LevelView struct {
	Price      decimal.Decimal
	Side       Side
	Quantity   decimal.Decimal
	Volume     decimal.Decimal
	OrderCount int
	Orders     []Order
}

func (l *PriceLevel) view(withOrders bool) LevelView {
	v := LevelView{
		Price:      l.Price,
		Side:       l.Side,
		Quantity:   l.quantity,
		Volume:     l.volume,
		OrderCount: l.orderCount,
	}
	if withOrders {
		v.Orders = make([]Order, 0, l.orderCount)
		l.Orders(func(o *Order) bool {
			v.Orders = append(v.Orders, o.snapshot())
			return true
		})
	}
	return v
}
