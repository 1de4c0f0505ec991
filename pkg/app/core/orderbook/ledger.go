package orderbook

import (
	"time"

	"github.com/google/btree"
)

// Ledger is the append-only trade history of one book, ordered by execution
// time. Trades sharing a timestamp keep the order they were recorded in.
type Ledger struct {
	trades *btree.BTreeG[Trade]
	seq    uint64
}

func NewLedger() *Ledger {
	return &Ledger{
		trades: btree.NewG(priceLevelsBTreeDegree, tradeLess),
	}
}

func tradeLess(a, b Trade) bool {
	if !a.ExecutedAt.Equal(b.ExecutedAt) {
		return a.ExecutedAt.Before(b.ExecutedAt)
	}
	return a.Seq < b.Seq
}

// Record stamps t with the next ledger sequence and stores it.
func (l *Ledger) Record(t Trade) Trade {
	l.seq++
	t.Seq = l.seq
	l.trades.ReplaceOrInsert(t)
	return t
}

// Query returns trades with start <= ExecutedAt < end in chronological order,
// after dropping the first skip matches, capped at limit.
func (l *Ledger) Query(start, end time.Time, skip, limit int) []Trade {
	if limit <= 0 || !start.Before(end) {
		return nil
	}
	if skip < 0 {
		skip = 0
	}
	// Seq starts at 1, so a zero-Seq pivot sorts before every trade at its
	// timestamp: start is inclusive and end exclusive.
	lo := Trade{ExecutedAt: start}
	hi := Trade{ExecutedAt: end}

	var out []Trade
	l.trades.AscendRange(lo, hi, func(t Trade) bool {
		if skip > 0 {
			skip--
			return true
		}
		out = append(out, t)
		return len(out) < limit
	})
	return out
}

// Last returns the most recent trade.
func (l *Ledger) Last() (Trade, bool) {
	return l.trades.Max()
}

func (l *Ledger) Len() int {
	return l.trades.Len()
}
