package orderbook

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// crossFunc reports whether the opposite side's best price is reachable by
// an incoming order limited at limit.
type crossFunc func(best, limit decimal.Decimal) bool

func buyCrosses(best, limit decimal.Decimal) bool  { return best.LessThanOrEqual(limit) }
func sellCrosses(best, limit decimal.Decimal) bool { return best.GreaterThanOrEqual(limit) }

// sideDetail returns the side an incoming order rests on, the side it trades
// against, and the crossing predicate for its direction.
func (b *OrderBook) sideDetail(s Side) (same, other *bookSide, crosses crossFunc) {
	switch s {
	case Buy:
		return b.bids, b.asks, buyCrosses
	case Sell:
		return b.asks, b.bids, sellCrosses
	}
	panic(errors.AssertionFailedf("unknown side %d", s))
}

// match must be called with the write lock held. Trades always execute at
// the resting order's price.
func (b *OrderBook) match(in *Order) []Trade {
	same, other, crosses := b.sideDetail(in.Side)

	var trades []Trade
	for in.Quantity.IsPositive() {
		level, ok := other.best()
		if !ok || !crosses(level.Price, in.Price) {
			break
		}
		maker := level.Head()
		if maker == nil {
			panic(errors.AssertionFailedf("empty %s level %s left in index", level.Side, level.Price))
		}

		qty := decimal.Min(in.Quantity, maker.Quantity)
		must(level.Fill(maker, qty))
		in.reduce(qty)

		t := b.ledger.Record(Trade{
			ID:           uuid.New(),
			Instrument:   b.instrument,
			Price:        level.Price,
			Quantity:     qty,
			QuoteVolume:  level.Price.Mul(qty),
			TakerSide:    in.Side,
			TakerOrderID: in.ID,
			MakerOrderID: maker.ID,
			Taker:        in.Submitter,
			Maker:        maker.Submitter,
			ExecutedAt:   b.clock.Now(),
		})
		b.lastPrice = t.Price
		trades = append(trades, t)

		b.logger.Info("trade_executed",
			zap.Uint64("seq", t.Seq),
			zap.Stringer("taker", in.ID),
			zap.Stringer("maker", maker.ID),
			zap.Stringer("price", t.Price),
			zap.Stringer("quantity", t.Quantity))

		if maker.Filled() {
			b.removeResting(maker)
		}
	}

	if in.Quantity.IsPositive() {
		b.rest(in, same)
	}
	return trades
}

func (b *OrderBook) rest(o *Order, s *bookSide) {
	s.getOrCreate(o.Price).Append(o)
	b.orders[o.ID] = o
	b.logger.Debug("order_rested",
		zap.Stringer("order_id", o.ID),
		zap.Stringer("side", o.Side),
		zap.Stringer("price", o.Price),
		zap.Stringer("quantity", o.Quantity))
}

// removeResting unlinks o from its level, drops the level once it is empty,
// and forgets the id.
func (b *OrderBook) removeResting(o *Order) {
	level := o.level
	if level == nil {
		panic(errors.AssertionFailedf("order %s indexed but not queued", o.ID))
	}
	s := b.side(o.Side)
	if indexed, ok := s.level(level.Price); !ok || indexed != level {
		panic(errors.AssertionFailedf("order %s queued at unindexed %s level %s", o.ID, o.Side, level.Price))
	}
	must(level.Remove(o))
	if level.Empty() {
		s.remove(level)
	}
	delete(b.orders, o.ID)
	o.closed = true
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
