package storage

import (
	"fmt"
	"math"
	"time"
)

// Journal key schema:
//
//	trade:{instrument}:{unixnano}:{seq} -> TradeRecord (JSON)
//
// unixnano and seq are zero-padded to 20 digits so byte order is time order,
// and trades sharing a nanosecond keep ledger order.
const prefixTrade = "trade:"

func tradeKey(instrument string, executedAt time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixTrade, instrument, unixNanos(executedAt), seq))
}

// tradeTimeKey is the smallest key at or after t for instrument.
func tradeTimeKey(instrument string, t time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:", prefixTrade, instrument, unixNanos(t)))
}

var (
	minKeyTime = time.Unix(0, 0)
	maxKeyTime = time.Unix(0, math.MaxInt64)
)

// unixNanos clamps t into the range the fixed-width key can hold.
func unixNanos(t time.Time) int64 {
	switch {
	case t.Before(minKeyTime):
		return 0
	case t.After(maxKeyTime):
		return math.MaxInt64
	}
	return t.UnixNano()
}

func tradePrefix(instrument string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, instrument))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
