package events

import "github.com/uhyunpark/limitbook/pkg/app/core/orderbook"

// Fanout delivers each trade to every listener in order. A nil entry is
// skipped.
type Fanout []orderbook.TradeListener

func (f Fanout) OnTrade(t orderbook.Trade) {
	for _, l := range f {
		if l != nil {
			l.OnTrade(t)
		}
	}
}
