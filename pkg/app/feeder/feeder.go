package feeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitbook/pkg/api"
	"github.com/uhyunpark/limitbook/pkg/app/core/transaction"
	"github.com/uhyunpark/limitbook/pkg/crypto"
)

// Config controls order flow generation rate and shape.
type Config struct {
	BatchSize   int           // requests per tick
	Interval    time.Duration // tick period
	NumAccounts int           // simulated traders
	Instruments []string
	MidPrice    decimal.Decimal
	Spread      decimal.Decimal // e.g. 0.05 for +/-5%
	CancelRatio int             // percent
	Seed        int64           // 0 seeds from the clock
}

// DefaultConfig returns reasonable defaults for local testing (~100 req/s).
func DefaultConfig() Config {
	return Config{
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		NumAccounts: 50,
		Instruments: []string{"BTC-USD"},
		MidPrice:    decimal.NewFromInt(50000),
		Spread:      decimal.RequireFromString("0.05"),
		CancelRatio: 10,
	}
}

// HighLoadConfig returns config for stress testing (~1000 req/s).
func HighLoadConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 100
	cfg.NumAccounts = 200
	return cfg
}

// ConfigForMode maps TXGEN_MODE values to a config.
func ConfigForMode(mode string) (Config, error) {
	switch mode {
	case "", "default":
		return DefaultConfig(), nil
	case "high":
		return HighLoadConfig(), nil
	default:
		return Config{}, fmt.Errorf("unknown feeder mode %q", mode)
	}
}

// Stats counts what the feeder has sent and how the server answered.
type Stats struct {
	Orders   atomic.Int64
	Cancels  atomic.Int64
	Trades   atomic.Int64
	Rejected atomic.Int64
}

// Feeder posts generated requests to a running API.
type Feeder struct {
	gen     *Generator
	baseURL string
	client  *http.Client
	cfg     Config
	logger  *zap.Logger
	stats   Stats
}

func New(cfg Config, domain crypto.EIP712Domain, baseURL string, logger *zap.Logger) (*Feeder, error) {
	gen, err := NewGenerator(cfg, domain)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feeder{
		gen:     gen,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cfg:     cfg,
		logger:  logger,
	}, nil
}

func (f *Feeder) Stats() *Stats {
	return &f.stats
}

// Run feeds one batch per interval until ctx is done.
func (f *Feeder) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	start := time.Now()
	lastLog := start
	f.logger.Info("feeder_started",
		zap.Int("batch", f.cfg.BatchSize),
		zap.Duration("interval", f.cfg.Interval),
		zap.Int("accounts", f.cfg.NumAccounts))

	for {
		select {
		case <-ctx.Done():
			f.logStats("feeder_stopped", time.Since(start))
			return
		case <-ticker.C:
			for i := 0; i < f.cfg.BatchSize; i++ {
				if err := f.Step(ctx); err != nil {
					if ctx.Err() != nil {
						break
					}
					f.logger.Warn("feeder_step_failed", zap.Error(err))
				}
			}
			if time.Since(lastLog) >= 10*time.Second {
				f.logStats("feeder_stats", time.Since(start))
				lastLog = time.Now()
			}
		}
	}
}

func (f *Feeder) logStats(msg string, elapsed time.Duration) {
	sent := f.stats.Orders.Load() + f.stats.Cancels.Load()
	f.logger.Info(msg,
		zap.Int64("orders", f.stats.Orders.Load()),
		zap.Int64("cancels", f.stats.Cancels.Load()),
		zap.Int64("trades", f.stats.Trades.Load()),
		zap.Int64("rejected", f.stats.Rejected.Load()),
		zap.Float64("req_per_sec", float64(sent)/elapsed.Seconds()))
}

// Step generates, sends and books one request.
func (f *Feeder) Step(ctx context.Context) error {
	req, err := f.gen.Next()
	if err != nil {
		return err
	}
	path := "/api/v1/orders/limit"
	if req.Tx.Type == transaction.TxTypeCancel {
		path = "/api/v1/orders/cancel"
		f.stats.Cancels.Add(1)
	} else {
		f.stats.Orders.Add(1)
	}

	status, body, err := f.post(ctx, path, req.Tx)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		f.stats.Rejected.Add(1)
		return fmt.Errorf("%s: status %d: %s", path, status, bytes.TrimSpace(body))
	}
	if req.Tx.Type != transaction.TxTypeOrder {
		return nil
	}

	var resp api.SubmitOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode order response: %w", err)
	}
	f.stats.Trades.Add(int64(len(resp.Trades)))
	if resp.Status != "filled" {
		f.gen.Remember(req.Trader, req.Tx.Order.Instrument, resp.OrderID)
	}
	return nil
}

func (f *Feeder) post(ctx context.Context, path string, tx *transaction.SignedTransaction) (int, []byte, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return 0, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}
