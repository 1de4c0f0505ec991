package feeder

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/limitbook/pkg/app/core/transaction"
	"github.com/uhyunpark/limitbook/pkg/crypto"
)

// Trader is one simulated account: a key, its nonce and the orders it
// believes are still resting.
type Trader struct {
	Signer *crypto.Signer
	nonce  uint64
	open   []openOrder
}

type openOrder struct {
	instrument string
	id         string
}

func (t *Trader) nextNonce() string {
	t.nonce++
	return fmt.Sprintf("%d", t.nonce)
}

// Generator creates signed random orders and cancels around a mid price.
// It is not safe for concurrent use.
type Generator struct {
	traders     []*Trader
	instruments []string
	domain      crypto.EIP712Domain
	mid         decimal.Decimal
	spread      decimal.Decimal // fraction of mid either side
	cancelRatio int             // percent of requests that are cancels
	rng         *rand.Rand
}

func NewGenerator(cfg Config, domain crypto.EIP712Domain) (*Generator, error) {
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("feeder: no instruments")
	}
	if cfg.NumAccounts <= 0 {
		return nil, fmt.Errorf("feeder: NumAccounts must be positive")
	}
	traders := make([]*Trader, cfg.NumAccounts)
	for i := range traders {
		s, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("feeder: generate key: %w", err)
		}
		traders[i] = &Trader{Signer: s}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		traders:     traders,
		instruments: cfg.Instruments,
		domain:      domain,
		mid:         cfg.MidPrice,
		spread:      cfg.Spread,
		cancelRatio: cfg.CancelRatio,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Request is a signed transaction together with the trader that sent it.
type Request struct {
	Trader *Trader
	Tx     *transaction.SignedTransaction
}

// Next returns an order, or a cancel of a remembered open order with
// probability cancelRatio.
func (g *Generator) Next() (Request, error) {
	t := g.traders[g.rng.Intn(len(g.traders))]
	if len(t.open) > 0 && g.rng.Intn(100) < g.cancelRatio {
		return g.cancel(t)
	}
	return g.order(t)
}

func (g *Generator) order(t *Trader) (Request, error) {
	side := "buy"
	if g.rng.Intn(2) == 1 {
		side = "sell"
	}
	// uniform in [mid*(1-spread), mid*(1+spread)], two decimals
	offset := decimal.NewFromFloat(g.rng.Float64()*2 - 1).Mul(g.spread)
	price := g.mid.Mul(decimal.NewFromInt(1).Add(offset)).Round(2)
	if !price.IsPositive() {
		price = decimal.New(1, -2)
	}
	qty := decimal.New(int64(g.rng.Intn(100)+1), -2)

	tx, err := transaction.SignOrder(t.Signer, g.domain, transaction.OrderPayload{
		Instrument: g.instruments[g.rng.Intn(len(g.instruments))],
		Side:       side,
		Price:      price.String(),
		Quantity:   qty.String(),
		Nonce:      t.nextNonce(),
	})
	if err != nil {
		return Request{}, err
	}
	return Request{Trader: t, Tx: tx}, nil
}

func (g *Generator) cancel(t *Trader) (Request, error) {
	i := g.rng.Intn(len(t.open))
	o := t.open[i]
	t.open = append(t.open[:i], t.open[i+1:]...)

	tx, err := transaction.SignCancel(t.Signer, g.domain, transaction.CancelPayload{
		Instrument: o.instrument,
		OrderID:    o.id,
		Nonce:      t.nextNonce(),
	})
	if err != nil {
		return Request{}, err
	}
	return Request{Trader: t, Tx: tx}, nil
}

// Remember records an order the book left resting so a later cancel can
// target it. Only the most recent maxOpen orders per trader are kept.
func (g *Generator) Remember(t *Trader, instrument, orderID string) {
	const maxOpen = 100
	t.open = append(t.open, openOrder{instrument: instrument, id: orderID})
	if len(t.open) > maxOpen {
		t.open = t.open[len(t.open)-maxOpen:]
	}
}

func (g *Generator) Traders() []*Trader {
	return g.traders
}
