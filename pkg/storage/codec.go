package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/limitbook/pkg/app/core/orderbook"
)

// TradeRecord is the persisted form of a trade.
type TradeRecord struct {
	ID           uuid.UUID       `json:"id"`
	Seq          uint64          `json:"seq"`
	Instrument   string          `json:"instrument"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	QuoteVolume  decimal.Decimal `json:"quoteVolume"`
	TakerSide    string          `json:"takerSide"`
	TakerOrderID uint64          `json:"takerOrderId"`
	MakerOrderID uint64          `json:"makerOrderId"`
	Taker        string          `json:"taker,omitempty"`
	Maker        string          `json:"maker,omitempty"`
	ExecutedAt   time.Time       `json:"executedAt"`
}

func recordFromTrade(t orderbook.Trade) TradeRecord {
	return TradeRecord{
		ID:           t.ID,
		Seq:          t.Seq,
		Instrument:   t.Instrument,
		Price:        t.Price,
		Quantity:     t.Quantity,
		QuoteVolume:  t.QuoteVolume,
		TakerSide:    t.TakerSide.String(),
		TakerOrderID: uint64(t.TakerOrderID),
		MakerOrderID: uint64(t.MakerOrderID),
		Taker:        t.Taker,
		Maker:        t.Maker,
		ExecutedAt:   t.ExecutedAt.UTC(),
	}
}

func encodeTrade(t orderbook.Trade) ([]byte, error) {
	b, err := json.Marshal(recordFromTrade(t))
	if err != nil {
		return nil, fmt.Errorf("encode trade %s: %w", t.ID, err)
	}
	return b, nil
}

func decodeTrade(b []byte) (TradeRecord, error) {
	var r TradeRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return TradeRecord{}, fmt.Errorf("decode trade: %w", err)
	}
	return r, nil
}
