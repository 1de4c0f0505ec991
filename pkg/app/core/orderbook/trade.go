package orderbook

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is an execution between an incoming (taker) order and a resting
// (maker) order. It is never modified once recorded.
type Trade struct {
	ID           uuid.UUID
	Seq          uint64
	Instrument   string
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	QuoteVolume  decimal.Decimal
	TakerSide    Side
	TakerOrderID OrderID
	MakerOrderID OrderID
	Taker        string
	Maker        string
	ExecutedAt   time.Time
}

// TradeListener observes trades after the book has released its lock.
type TradeListener interface {
	OnTrade(Trade)
}

// TradeListenerFunc adapts a function to TradeListener.
type TradeListenerFunc func(Trade)

func (f TradeListenerFunc) OnTrade(t Trade) { f(t) }
