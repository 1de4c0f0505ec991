package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitbook/pkg/app/core/orderbook"
)

// TradeJournal is a write-only audit copy of executed trades. Books never
// read it back; it exists for offline inspection and the journal API.
type TradeJournal struct {
	db     *pebble.DB
	logger *zap.Logger
}

func OpenTradeJournal(path string, logger *zap.Logger) (*TradeJournal, error) {
	return openJournal(path, &pebble.Options{}, logger)
}

// OpenMemTradeJournal keeps the journal in memory.
func OpenMemTradeJournal(logger *zap.Logger) (*TradeJournal, error) {
	return openJournal("", &pebble.Options{FS: vfs.NewMem()}, logger)
}

func openJournal(path string, opts *pebble.Options, logger *zap.Logger) (*TradeJournal, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open trade journal %q: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeJournal{db: db, logger: logger}, nil
}

func (j *TradeJournal) Close() error { return j.db.Close() }

func (j *TradeJournal) SaveTrade(t orderbook.Trade) error {
	val, err := encodeTrade(t)
	if err != nil {
		return err
	}
	if err := j.db.Set(tradeKey(t.Instrument, t.ExecutedAt, t.Seq), val, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// OnTrade journals t; failures are logged, never propagated into matching.
func (j *TradeJournal) OnTrade(t orderbook.Trade) {
	if err := j.SaveTrade(t); err != nil {
		j.logger.Error("journal_write_failed", zap.String("trade_id", t.ID.String()), zap.Error(err))
	}
}

// LoadTrades scans instrument's trades with start <= executedAt < end, oldest
// first. limit <= 0 means no cap.
func (j *TradeJournal) LoadTrades(instrument string, start, end time.Time, limit int) ([]TradeRecord, error) {
	if !start.Before(end) {
		return nil, nil
	}
	prefix := tradePrefix(instrument)
	lower := tradeTimeKey(instrument, start)
	upper := tradeTimeKey(instrument, end)
	if pu := keyUpperBound(prefix); string(upper) > string(pu) {
		upper = pu
	}
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}

	var out []TradeRecord
	for iter.First(); iter.Valid(); iter.Next() {
		r, err := decodeTrade(iter.Value())
		if err != nil {
			return out, errors.Join(err, iter.Close())
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Close()
}
