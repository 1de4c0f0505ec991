package orderbook

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Verify walks the whole book and checks that the level aggregates, the id
// index and the price index agree, and that the book is not crossed. It is
// O(orders) and meant for tests and health probes.
func (b *OrderBook) Verify() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := 0
	for _, s := range []*bookSide{b.bids, b.asks} {
		if len(s.byKey) != s.depth() {
			return errors.AssertionFailedf("%s: %d keyed levels vs %d in tree", s.side, len(s.byKey), s.depth())
		}
		var err error
		s.walk(func(l *PriceLevel) bool {
			err = b.verifyLevel(s, l)
			seen += l.orderCount
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	if seen != len(b.orders) {
		return errors.AssertionFailedf("%d queued orders vs %d indexed", seen, len(b.orders))
	}

	bid, hasBid := b.bids.best()
	ask, hasAsk := b.asks.best()
	if hasBid && hasAsk && !bid.Price.LessThan(ask.Price) {
		return errors.AssertionFailedf("crossed book: bid %s >= ask %s", bid.Price, ask.Price)
	}
	return nil
}

func (b *OrderBook) verifyLevel(s *bookSide, l *PriceLevel) error {
	if l.Empty() {
		return errors.AssertionFailedf("%s level %s is empty", s.side, l.Price)
	}
	if keyed, ok := s.level(l.Price); !ok || keyed != l {
		return errors.AssertionFailedf("%s level %s not keyed", s.side, l.Price)
	}
	qty, vol := decimal.Zero, decimal.Zero
	count := 0
	var err error
	l.Orders(func(o *Order) bool {
		switch {
		case o.level != l:
			err = errors.AssertionFailedf("order %s back-link mismatch", o.ID)
		case !o.Quantity.IsPositive():
			err = errors.AssertionFailedf("order %s resting with quantity %s", o.ID, o.Quantity)
		case !o.Price.Equal(l.Price) || o.Side != l.Side:
			err = errors.AssertionFailedf("order %s at %s %s queued in %s %s", o.ID, o.Side, o.Price, l.Side, l.Price)
		case b.orders[o.ID] != o:
			err = errors.AssertionFailedf("order %s queued but not indexed", o.ID)
		}
		qty = qty.Add(o.Quantity)
		vol = vol.Add(o.Volume)
		count++
		return err == nil
	})
	if err != nil {
		return err
	}
	if !qty.Equal(l.quantity) || !vol.Equal(l.volume) || count != l.orderCount {
		return errors.AssertionFailedf("%s level %s aggregates (%s, %s, %d) vs orders (%s, %s, %d)",
			s.side, l.Price, l.quantity, l.volume, l.orderCount, qty, vol, count)
	}
	return nil
}
