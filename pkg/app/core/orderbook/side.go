package orderbook

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const priceLevelsBTreeDegree = 32

// bookSide keeps one side's levels ordered best-first: the tree's minimum is
// always the best price, so Min and Ascend serve both sides.
type bookSide struct {
	side   Side
	levels *btree.BTreeG[*PriceLevel]
	byKey  map[string]*PriceLevel
}

func newBookSide(side Side) *bookSide {
	less := func(a, b *PriceLevel) bool { return a.Price.LessThan(b.Price) }
	if side == Buy {
		less = func(a, b *PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
	}
	return &bookSide{
		side:   side,
		levels: btree.NewG(priceLevelsBTreeDegree, less),
		byKey:  make(map[string]*PriceLevel),
	}
}

// priceKey normalises a price so 10, 10.0 and 10.00 share a level.
func priceKey(p decimal.Decimal) string {
	return p.String()
}

func (s *bookSide) best() (*PriceLevel, bool) {
	return s.levels.Min()
}

func (s *bookSide) level(price decimal.Decimal) (*PriceLevel, bool) {
	l, ok := s.byKey[priceKey(price)]
	return l, ok
}

// getOrCreate returns the level at price, inserting an empty one if needed.
func (s *bookSide) getOrCreate(price decimal.Decimal) *PriceLevel {
	if l, ok := s.level(price); ok {
		return l
	}
	l := newPriceLevel(price, s.side)
	s.levels.ReplaceOrInsert(l)
	s.byKey[priceKey(price)] = l
	return l
}

func (s *bookSide) remove(l *PriceLevel) {
	s.levels.Delete(l)
	delete(s.byKey, priceKey(l.Price))
}

func (s *bookSide) empty() bool {
	return s.levels.Len() == 0
}

func (s *bookSide) depth() int {
	return s.levels.Len()
}

// walk visits levels best to worst until fn returns false.
func (s *bookSide) walk(fn func(*PriceLevel) bool) {
	s.levels.Ascend(fn)
}
