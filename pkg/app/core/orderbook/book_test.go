package orderbook

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/limitbook/pkg/util"
)

const testInstrument = "BTC-USD"

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestBook(t *testing.T) (*OrderBook, *util.ManualClock) {
	t.Helper()
	clock := util.NewManualClock(epoch)
	return NewOrderBook(testInstrument, WithClock(clock)), clock
}

func submit(t *testing.T, b *OrderBook, side Side, qty, price string) (*Order, []Trade) {
	t.Helper()
	o, err := NewOrder(testInstrument, side, d(price), d(qty), "tester")
	require.NoError(t, err)
	trades, err := b.AddOrder(o)
	require.NoError(t, err)
	require.NoError(t, b.Verify())
	return o, trades
}

func TestBetterBidBecomesBest(t *testing.T) {
	b, _ := newTestBook(t)
	first, _ := submit(t, b, Buy, "5", "10")
	second, _ := submit(t, b, Buy, "5", "20")

	best, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, second.ID, best.ID)
	assert.True(t, best.Price.Equal(d("20")))

	lvl, ok := b.Level(d("10"), Buy)
	require.True(t, ok)
	require.Len(t, lvl.Orders, 1)
	assert.Equal(t, first.ID, lvl.Orders[0].ID)
}

func TestSamePriceOrdersShareLevel(t *testing.T) {
	b, _ := newTestBook(t)
	first, _ := submit(t, b, Buy, "5", "10")
	second, _ := submit(t, b, Buy, "20", "10.00")

	lvl, ok := b.Level(d("10"), Buy)
	require.True(t, ok)
	assert.Equal(t, 2, lvl.OrderCount)
	assert.True(t, lvl.Quantity.Equal(d("25")))
	assert.True(t, lvl.Volume.Equal(d("250")))
	require.Len(t, lvl.Orders, 2)
	assert.Equal(t, first.ID, lvl.Orders[0].ID)
	assert.Equal(t, second.ID, lvl.Orders[1].ID)

	qty, ok := b.AggregateQuantity(d("10"), Buy)
	require.True(t, ok)
	assert.True(t, qty.Equal(d("25")))
	vol, ok := b.AggregateVolume(d("10.0"), Buy)
	require.True(t, ok)
	assert.True(t, vol.Equal(d("250")))
}

func TestExactCrossEmptiesBothSides(t *testing.T) {
	b, _ := newTestBook(t)
	buy, _ := submit(t, b, Buy, "5", "10")
	sell, trades := submit(t, b, Sell, "5", "10")

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(d("10")))
	assert.True(t, trades[0].Quantity.Equal(d("5")))
	assert.True(t, trades[0].QuoteVolume.Equal(d("50")))
	assert.Equal(t, sell.ID, trades[0].TakerOrderID)
	assert.Equal(t, buy.ID, trades[0].MakerOrderID)
	assert.Equal(t, Sell, trades[0].TakerSide)

	_, ok := b.Level(d("10"), Buy)
	assert.False(t, ok)
	_, ok = b.Level(d("10"), Sell)
	assert.False(t, ok)
	_, ok = b.Order(buy.ID)
	assert.False(t, ok)
	_, ok = b.Order(sell.ID)
	assert.False(t, ok)
	assert.Equal(t, Stats{Trades: 1}, b.Stats())
}

func TestPartialFillLeavesMakerResting(t *testing.T) {
	b, _ := newTestBook(t)
	sell, _ := submit(t, b, Sell, "20", "10")
	buy, trades := submit(t, b, Buy, "5", "10")

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(d("5")))

	resting, ok := b.Order(sell.ID)
	require.True(t, ok)
	assert.True(t, resting.Quantity.Equal(d("15")))
	assert.True(t, resting.Volume.Equal(d("150")))

	qty, ok := b.AggregateQuantity(d("10"), Sell)
	require.True(t, ok)
	assert.True(t, qty.Equal(d("15")))

	_, ok = b.Order(buy.ID)
	assert.False(t, ok)
	assert.True(t, buy.Filled())
}

func TestSweepMatchesBestPriceFirst(t *testing.T) {
	b, _ := newTestBook(t)
	submit(t, b, Buy, "50", "10")
	submit(t, b, Buy, "5", "15")
	sell, trades := submit(t, b, Sell, "20", "8")

	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(d("15")))
	assert.True(t, trades[0].Quantity.Equal(d("5")))
	assert.True(t, trades[1].Price.Equal(d("10")))
	assert.True(t, trades[1].Quantity.Equal(d("15")))
	assert.Less(t, trades[0].Seq, trades[1].Seq)

	qty, ok := b.AggregateQuantity(d("10"), Buy)
	require.True(t, ok)
	assert.True(t, qty.Equal(d("35")))
	_, ok = b.Level(d("15"), Buy)
	assert.False(t, ok)
	_, ok = b.Order(sell.ID)
	assert.False(t, ok)
	assert.True(t, b.LastPrice().Equal(d("10")))
}

func TestCancelUnknownOrderIsNoop(t *testing.T) {
	b, _ := newTestBook(t)
	submit(t, b, Buy, "5", "10")
	before := b.Digest()

	_, ok := b.Order(OrderID(999999))
	assert.False(t, ok)
	_, removed := b.Cancel(OrderID(999999))
	assert.False(t, removed)
	_, ok = b.Order(OrderID(999999))
	assert.False(t, ok)

	assert.Equal(t, before, b.Digest())
	require.NoError(t, b.Verify())
}

func TestCancelRemovesOrderAndLevel(t *testing.T) {
	b, _ := newTestBook(t)
	o, _ := submit(t, b, Sell, "7", "12")

	got, removed := b.Cancel(o.ID)
	require.True(t, removed)
	assert.Equal(t, o.ID, got.ID)
	assert.True(t, got.Quantity.Equal(d("7")))

	_, ok := b.Level(d("12"), Sell)
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)

	_, removed = b.Cancel(o.ID)
	assert.False(t, removed, "second cancel must be a no-op")
	require.NoError(t, b.Verify())
}

func TestCancelMiddleOfQueueKeepsFIFO(t *testing.T) {
	b, _ := newTestBook(t)
	a, _ := submit(t, b, Buy, "1", "10")
	mid, _ := submit(t, b, Buy, "2", "10")
	c, _ := submit(t, b, Buy, "3", "10")

	_, removed := b.Cancel(mid.ID)
	require.True(t, removed)

	lvl, ok := b.Level(d("10"), Buy)
	require.True(t, ok)
	require.Len(t, lvl.Orders, 2)
	assert.Equal(t, a.ID, lvl.Orders[0].ID)
	assert.Equal(t, c.ID, lvl.Orders[1].ID)
	assert.True(t, lvl.Quantity.Equal(d("4")))

	_, trades := submit(t, b, Sell, "4", "10")
	require.Len(t, trades, 2)
	assert.Equal(t, a.ID, trades[0].MakerOrderID)
	assert.Equal(t, c.ID, trades[1].MakerOrderID)
}

func TestCancelAfterPartialFillReportsRemaining(t *testing.T) {
	b, _ := newTestBook(t)
	sell, _ := submit(t, b, Sell, "10", "100")
	submit(t, b, Buy, "4", "100")

	got, removed := b.Cancel(sell.ID)
	require.True(t, removed)
	assert.True(t, got.Quantity.Equal(d("6")))
}

func TestTakerExecutesAtMakerPrice(t *testing.T) {
	b, _ := newTestBook(t)
	submit(t, b, Sell, "3", "101")
	_, trades := submit(t, b, Buy, "3", "150")

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(d("101")))
	_, ok := b.BestBid()
	assert.False(t, ok, "fully filled taker must not rest")
}

func TestNonCrossingOrderRests(t *testing.T) {
	b, _ := newTestBook(t)
	submit(t, b, Sell, "3", "101")
	_, trades := submit(t, b, Buy, "3", "100")
	assert.Empty(t, trades)

	bid, ok := b.BestBid()
	require.True(t, ok)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, bid.Price.LessThan(ask.Price))
}

func TestAddOrderRejectsInvalidInput(t *testing.T) {
	b, _ := newTestBook(t)

	tests := []struct {
		name  string
		order *Order
		want  error
	}{
		{
			name:  "zero price",
			order: &Order{ID: NextOrderID(), Instrument: testInstrument, Side: Buy, Price: d("0"), Quantity: d("1")},
			want:  ErrInvalidPrice,
		},
		{
			name:  "negative quantity",
			order: &Order{ID: NextOrderID(), Instrument: testInstrument, Side: Sell, Price: d("1"), Quantity: d("-1")},
			want:  ErrInvalidQuantity,
		},
		{
			name:  "no side",
			order: &Order{ID: NextOrderID(), Instrument: testInstrument, Price: d("1"), Quantity: d("1")},
			want:  ErrInvalidSide,
		},
		{
			name:  "other instrument",
			order: &Order{ID: NextOrderID(), Instrument: "ETH-USD", Side: Buy, Price: d("1"), Quantity: d("1")},
			want:  ErrInstrumentMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trades, err := b.AddOrder(tt.order)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, trades)
		})
	}
	assert.Equal(t, Stats{}, b.Stats())
}

func TestAddOrderRejectsDuplicateID(t *testing.T) {
	b, _ := newTestBook(t)
	o, _ := submit(t, b, Buy, "1", "10")

	dup := &Order{ID: o.ID, Instrument: testInstrument, Side: Buy, Price: d("11"), Quantity: d("1")}
	_, err := b.AddOrder(dup)
	require.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestOrderIDsIncrease(t *testing.T) {
	var last OrderID
	for i := 0; i < 100; i++ {
		o, err := NewOrder(testInstrument, Buy, d("1"), d("1"), "")
		require.NoError(t, err)
		require.Greater(t, o.ID, last)
		last = o.ID
	}
}

func TestTopLevelsProjection(t *testing.T) {
	b, _ := newTestBook(t)
	for _, p := range []string{"10", "12", "11", "9"} {
		submit(t, b, Buy, "1", p)
	}
	for _, p := range []string{"15", "13", "14"} {
		submit(t, b, Sell, "2", p)
	}

	price := func(v LevelView) string { return v.Price.String() }
	assert.Equal(t, []string{"12", "11", "10"}, TopLevels(b, Buy, 3, price))
	assert.Equal(t, []string{"13", "14", "15"}, TopLevels(b, Sell, 10, price))
	assert.Nil(t, TopLevels(b, Sell, 0, price))

	depth := b.Depth(2)
	require.Len(t, depth.Bids, 2)
	require.Len(t, depth.Asks, 2)
	assert.True(t, depth.Bids[0].Price.Equal(d("12")))
	assert.True(t, depth.Asks[0].Price.Equal(d("13")))
}

func TestTradeListenerSeesTradesInOrder(t *testing.T) {
	var got []Trade
	var b *OrderBook
	clock := util.NewManualClock(epoch)
	b = NewOrderBook(testInstrument, WithClock(clock), WithTradeListener(TradeListenerFunc(func(tr Trade) {
		// the book lock is released before listeners run
		_ = b.Stats()
		got = append(got, tr)
	})))
	submit(t, b, Sell, "1", "10")
	submit(t, b, Sell, "1", "11")
	_, trades := submit(t, b, Buy, "2", "11")

	assert.Equal(t, trades, got)
}

func TestDigestDependsOnlyOnLevels(t *testing.T) {
	a, _ := newTestBook(t)
	submit(t, a, Buy, "5", "10")
	submit(t, a, Sell, "5", "11")

	b, _ := newTestBook(t)
	submit(t, b, Sell, "5", "11")
	submit(t, b, Buy, "2", "10")
	submit(t, b, Buy, "3", "10")

	assert.NotEqual(t, a.Digest(), b.Digest(), "order counts differ")

	c, _ := newTestBook(t)
	submit(t, c, Sell, "5", "11.0")
	o, _ := submit(t, c, Buy, "1", "9")
	submit(t, c, Buy, "5", "10")
	c.Cancel(o.ID)
	assert.Equal(t, a.Digest(), c.Digest())
}

func TestRandomFlowKeepsInvariants(t *testing.T) {
	b, clock := newTestBook(t)
	rng := rand.New(rand.NewSource(42))

	var ids []OrderID
	for i := 0; i < 2000; i++ {
		clock.Advance(time.Millisecond)
		if len(ids) > 0 && rng.Intn(4) == 0 {
			b.Cancel(ids[rng.Intn(len(ids))])
			continue
		}
		side := Buy
		if rng.Intn(2) == 0 {
			side = Sell
		}
		price := decimal.NewFromInt(int64(90 + rng.Intn(21)))
		qty := decimal.NewFromInt(int64(1 + rng.Intn(10)))
		o, err := NewOrder(testInstrument, side, price, qty, "")
		require.NoError(t, err)

		trades, err := b.AddOrder(o)
		require.NoError(t, err)
		for _, tr := range trades {
			require.True(t, tr.Quantity.IsPositive())
			if side == Buy {
				require.True(t, tr.Price.LessThanOrEqual(price))
			} else {
				require.True(t, tr.Price.GreaterThanOrEqual(price))
			}
		}
		ids = append(ids, o.ID)
		require.NoError(t, b.Verify(), "after order %d", i)
	}
	assert.Positive(t, b.Stats().Trades)
}

func TestConcurrentSubmitters(t *testing.T) {
	b := NewOrderBook(testInstrument)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			side := Buy
			if w%2 == 1 {
				side = Sell
			}
			for i := 0; i < 200; i++ {
				o, err := NewOrder(testInstrument, side, decimal.NewFromInt(int64(100+i%5)), decimal.NewFromInt(1), "")
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := b.AddOrder(o); err != nil {
					t.Error(err)
					return
				}
				b.Depth(5)
				b.BestBid()
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, b.Verify())
}

func TestConcurrentSubmittersDeliverTradesInSeqOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seqs []uint64
	)
	b := NewOrderBook(testInstrument, WithTradeListener(TradeListenerFunc(func(tr Trade) {
		time.Sleep(time.Microsecond)
		mu.Lock()
		seqs = append(seqs, tr.Seq)
		mu.Unlock()
	})))

	const workers, perWorker = 8, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				side := Buy
				if (w+i)%2 == 0 {
					side = Sell
				}
				o, err := NewOrder(testInstrument, side, d("100"), d("1"), "worker")
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := b.AddOrder(o); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, b.Verify())

	require.NotEmpty(t, seqs)
	assert.Len(t, seqs, b.Stats().Trades)
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("trade seq %d delivered after %d", seqs[i], seqs[i-1])
		}
	}
}

func TestAddOrderRejectsResubmission(t *testing.T) {
	b, _ := newTestBook(t)

	cancelled, _ := submit(t, b, Buy, "1", "10")
	_, ok := b.Cancel(cancelled.ID)
	require.True(t, ok)
	_, err := b.AddOrder(cancelled)
	require.ErrorIs(t, err, ErrOrderNotFresh)
	_, ok = b.Order(cancelled.ID)
	assert.False(t, ok, "cancelled order came back")

	other, _ := newTestBook(t)
	resting, _ := submit(t, other, Sell, "1", "20")
	_, err = b.AddOrder(resting)
	require.ErrorIs(t, err, ErrOrderNotFresh)
	require.NoError(t, other.Verify())

	noID := &Order{Instrument: testInstrument, Side: Buy, Price: d("1"), Quantity: d("1")}
	_, err = b.AddOrder(noID)
	require.ErrorIs(t, err, ErrOrderNotFresh)

	assert.Equal(t, Stats{}, b.Stats())
	require.NoError(t, b.Verify())
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in   string
		want Side
	}{
		{"buy", Buy},
		{" BUY ", Buy},
		{"bid", Buy},
		{"Sell", Sell},
		{"ask", Sell},
	}
	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseSide("hold")
	require.ErrorIs(t, err, ErrInvalidSide)
}
