package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/limitbook/pkg/app/core/orderbook"
)

// API response types for REST endpoints and WebSocket messages.
// Decimals are rendered as JSON strings.

// ==============================
// REST Response Types
// ==============================

// LevelInfo is one aggregated price level.
type LevelInfo struct {
	Side         string          `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	CurrencyPair string          `json:"currencyPair"`
	OrderCount   int             `json:"orderCount"`
}

// OrderbookSnapshot lists asks lowest first and bids highest first.
type OrderbookSnapshot struct {
	Asks []LevelInfo `json:"Asks"`
	Bids []LevelInfo `json:"Bids"`
}

type TradeInfo struct {
	ID           string          `json:"id"`
	SequenceID   uint64          `json:"sequenceId"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	CurrencyPair string          `json:"currencyPair"`
	TradedAt     time.Time       `json:"tradedAt"`
	TakerSide    string          `json:"takerSide"`
	QuoteVolume  decimal.Decimal `json:"quoteVolume"`
}

type OrderInfo struct {
	OrderID      string          `json:"orderId"`
	CurrencyPair string          `json:"currencyPair"`
	Side         string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Volume       decimal.Decimal `json:"volume"`
	Owner        string          `json:"owner"`
}

type MarketInfo struct {
	Instrument string           `json:"instrument"`
	BestBid    *decimal.Decimal `json:"bestBid"`
	BestAsk    *decimal.Decimal `json:"bestAsk"`
	LastPrice  decimal.Decimal  `json:"lastPrice"`
	BidLevels  int              `json:"bidLevels"`
	AskLevels  int              `json:"askLevels"`
	OpenOrders int              `json:"openOrders"`
	Trades     int              `json:"trades"`
	Digest     string           `json:"digest"`
}

// SubmitOrderResponse reports what happened to a limit order. Status is
// "filled", "partially_filled" or "resting".
type SubmitOrderResponse struct {
	OrderID   string          `json:"orderId"`
	Status    string          `json:"status"`
	Remaining decimal.Decimal `json:"remaining"`
	Trades    []TradeInfo     `json:"trades"`
}

type CancelOrderResponse struct {
	OrderID   string           `json:"orderId"`
	Cancelled bool             `json:"cancelled"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients:
//
//	{"op": "subscribe", "channels": ["orderbook:BTC-USD", "trades:BTC-USD"]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

type OrderbookUpdate struct {
	Type       string      `json:"type"` // "orderbook"
	Instrument string      `json:"instrument"`
	Asks       []LevelInfo `json:"asks"`
	Bids       []LevelInfo `json:"bids"`
	Digest     string      `json:"digest"`
	Timestamp  int64       `json:"timestamp"` // Unix milliseconds
}

type TradeUpdate struct {
	Type  string    `json:"type"` // "trade"
	Trade TradeInfo `json:"trade"`
}

// ==============================
// Conversions
// ==============================

func levelInfo(instrument string) func(orderbook.LevelView) LevelInfo {
	return func(v orderbook.LevelView) LevelInfo {
		return LevelInfo{
			Side:         v.Side.String(),
			Quantity:     v.Quantity,
			Price:        v.Price,
			CurrencyPair: instrument,
			OrderCount:   v.OrderCount,
		}
	}
}

func tradeInfo(t orderbook.Trade) TradeInfo {
	return TradeInfo{
		ID:           t.ID.String(),
		SequenceID:   t.Seq,
		Price:        t.Price,
		Quantity:     t.Quantity,
		CurrencyPair: t.Instrument,
		TradedAt:     t.ExecutedAt,
		TakerSide:    t.TakerSide.String(),
		QuoteVolume:  t.QuoteVolume,
	}
}

func tradeInfos(trades []orderbook.Trade) []TradeInfo {
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = tradeInfo(t)
	}
	return out
}

func orderInfo(o orderbook.Order) OrderInfo {
	return OrderInfo{
		OrderID:      o.ID.String(),
		CurrencyPair: o.Instrument,
		Side:         o.Side.String(),
		Price:        o.Price,
		Quantity:     o.Quantity,
		Volume:       o.Volume,
		Owner:        o.Submitter,
	}
}
