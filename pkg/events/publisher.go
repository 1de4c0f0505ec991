package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitbook/pkg/app/core/orderbook"
)

// TradeEvent is the wire form of a trade on the event stream.
type TradeEvent struct {
	ID           string          `json:"id"`
	Seq          uint64          `json:"seq"`
	Instrument   string          `json:"instrument"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TakerSide    string          `json:"takerSide"`
	TakerOrderID uint64          `json:"takerOrderId"`
	MakerOrderID uint64          `json:"makerOrderId"`
	ExecutedAt   time.Time       `json:"executedAt"`
}

func NewTradeEvent(t orderbook.Trade) TradeEvent {
	return TradeEvent{
		ID:           t.ID.String(),
		Seq:          t.Seq,
		Instrument:   t.Instrument,
		Price:        t.Price,
		Quantity:     t.Quantity,
		TakerSide:    t.TakerSide.String(),
		TakerOrderID: uint64(t.TakerOrderID),
		MakerOrderID: uint64(t.MakerOrderID),
		ExecutedAt:   t.ExecutedAt,
	}
}

// Publisher ships trade events out of process.
type Publisher interface {
	Publish(ctx context.Context, ev TradeEvent) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TradeEvent) error { return nil }
func (NopPublisher) Close() error                              { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per trade keyed by instrument, so every
// trade of an instrument lands on the same partition in execution order.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaPublisher builds an async writer; delivery failures are logged from
// the completion callback rather than returned to the matching path.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("kafka_delivery_failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev TradeEvent) error {
	val, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode trade event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Instrument),
		Value: val,
		Time:  ev.ExecutedAt,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Listener adapts a Publisher to a book trade listener.
func Listener(p Publisher, logger *zap.Logger) orderbook.TradeListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return orderbook.TradeListenerFunc(func(t orderbook.Trade) {
		if err := p.Publish(context.Background(), NewTradeEvent(t)); err != nil {
			logger.Warn("trade_publish_failed", zap.String("trade_id", t.ID.String()), zap.Error(err))
		}
	})
}
